// Package interviews runs the interview request and moderation workflow.
// Employers pay for a request up front; rejected and early-cancelled
// requests are refunded.
package interviews

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"talent-source/internal/auth"
	"talent-source/internal/billing"
	"talent-source/internal/i18n"
	"talent-source/internal/notifications"
	"talent-source/internal/revalidate"
	"talent-source/internal/store"
	"talent-source/models"
	"talent-source/utils"
)

var (
	ErrInvalidTransition    = errors.New("invalid interview status transition")
	ErrPastTime             = errors.New("proposed time must be in the future")
	ErrNoteRequired         = errors.New("a moderation note is required")
	ErrCandidateUnavailable = errors.New("candidate is not available for interviews")
)

var transitions = map[models.InterviewStatus][]models.InterviewStatus{
	models.InterviewPending:  {models.InterviewApproved, models.InterviewRejected, models.InterviewCancelled},
	models.InterviewApproved: {models.InterviewCompleted, models.InterviewCancelled},
}

func CanTransition(from, to models.InterviewStatus) bool {
	return slices.Contains(transitions[from], to)
}

type Store interface {
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	GetEmployer(ctx context.Context, id string) (*models.Employer, error)
	CreateInterview(ctx context.Context, iv *models.Interview) error
	GetInterview(ctx context.Context, id string) (*models.Interview, error)
	TransitionInterview(ctx context.Context, iv *models.Interview, t store.Transition) error
	ListInterviewsByEmployer(ctx context.Context, employerID string) ([]models.Interview, error)
	ListInterviewsByCandidate(ctx context.Context, candidateID string) ([]models.Interview, error)
	ListInterviewsByStatus(ctx context.Context, status models.InterviewStatus) ([]models.Interview, error)
	ListInterviews(ctx context.Context) ([]models.Interview, error)
}

type Notifier interface {
	Send(ctx context.Context, role models.Role, recipientID string, msg notifications.Message) (*models.Notification, error)
	SendToAdmins(ctx context.Context, msg notifications.Message) error
}

type Service struct {
	store    Store
	billing  *billing.Service
	notify   Notifier
	notifier revalidate.Notifier
	now      func() time.Time
}

func NewService(s Store, billingService *billing.Service, notify Notifier, notifier revalidate.Notifier) *Service {
	return &Service{
		store:    s,
		billing:  billingService,
		notify:   notify,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RequestInput struct {
	CandidateID string    `json:"candidateId"`
	ProposedAt  time.Time `json:"proposedAt"`
	Location    string    `json:"location"`
	Notes       string    `json:"notes"`
}

// Request books a pending interview and charges the candidate's interview
// price in the same write.
func (s *Service) Request(ctx context.Context, employerID string, in RequestInput) (*models.Interview, error) {
	now := s.now()
	if !in.ProposedAt.After(now) {
		return nil, ErrPastTime
	}
	candidate, err := s.store.GetCandidate(ctx, in.CandidateID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrCandidateUnavailable
	}
	if err != nil {
		return nil, err
	}
	if candidate.Status != models.CandidateActive {
		return nil, ErrCandidateUnavailable
	}
	employer, err := s.store.GetEmployer(ctx, employerID)
	if err != nil {
		return nil, err
	}

	class := candidate.BillingClass
	if class == "" {
		class = models.DefaultBillingClass
	}
	iv := &models.Interview{
		ID:             uuid.NewString(),
		EmployerID:     employerID,
		CandidateID:    candidate.ID,
		Status:         models.InterviewPending,
		ProposedAt:     in.ProposedAt.UTC(),
		Location:       strings.TrimSpace(in.Location),
		Notes:          strings.TrimSpace(in.Notes),
		BillingClass:   class,
		CreditsCharged: s.billing.InterviewCost(class),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateInterview(ctx, iv); err != nil {
		return nil, err
	}
	utils.Logger().Info("interview requested",
		zap.String("interview", iv.ID), zap.String("employer", employerID),
		zap.String("candidate", candidate.ID), zap.Int("credits", iv.CreditsCharged))

	s.changed(ctx, iv)
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Employers, ID: employerID})
	err = s.notify.SendToAdmins(ctx, notifications.Message{
		Kind: notifications.KindInterviewRequested,
		Args: []any{employer.CompanyName, candidate.Name, i18n.FormatTime(iv.ProposedAt)},
		Link: "/admin/interviews/" + iv.ID,
	})
	if err != nil {
		utils.Logger().Warn("notify admins of interview request", zap.String("interview", iv.ID), zap.Error(err))
	}
	return iv, nil
}

func (s *Service) Get(ctx context.Context, viewer auth.Principal, id string) (*models.Interview, error) {
	iv, err := s.store.GetInterview(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(viewer, iv) {
		return nil, models.ErrNotFound
	}
	return iv, nil
}

func canView(viewer auth.Principal, iv *models.Interview) bool {
	switch viewer.Role {
	case models.RoleAdmin:
		return true
	case models.RoleEmployer:
		return iv.EmployerID == viewer.ID
	case models.RoleCandidate:
		return iv.CandidateID == viewer.ID
	}
	return false
}

func (s *Service) Approve(ctx context.Context, adminID, id string) (*models.Interview, error) {
	iv, err := s.transition(ctx, id, store.Transition{To: models.InterviewApproved, ModeratorID: adminID})
	if err != nil {
		return nil, err
	}
	candidate, employer := s.parties(ctx, iv)
	when := i18n.FormatTime(iv.ProposedAt)
	s.send(ctx, models.RoleEmployer, iv.EmployerID, notifications.Message{
		Kind: notifications.KindInterviewApproved,
		Args: []any{candidate, when},
		Link: "/interviews/" + iv.ID,
	})
	s.send(ctx, models.RoleCandidate, iv.CandidateID, notifications.Message{
		Kind: notifications.KindInterviewScheduled,
		Args: []any{employer, when},
		Link: "/interviews/" + iv.ID,
	})
	return iv, nil
}

// Reject refuses a pending request and refunds its charge.
func (s *Service) Reject(ctx context.Context, adminID, id, note string) (*models.Interview, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrNoteRequired
	}
	iv, err := s.store.GetInterview(ctx, id)
	if err != nil {
		return nil, err
	}
	iv, err = s.apply(ctx, iv, store.Transition{
		To:             models.InterviewRejected,
		ModeratorID:    adminID,
		ModerationNote: note,
		Refund:         iv.CreditsCharged,
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Employers, ID: iv.EmployerID})
	candidate, _ := s.parties(ctx, iv)
	s.send(ctx, models.RoleEmployer, iv.EmployerID, notifications.Message{
		Kind: notifications.KindInterviewRejected,
		Args: []any{candidate, note, iv.CreditsCharged},
		Link: "/interviews/" + iv.ID,
	})
	return iv, nil
}

// Cancel is available to the requesting employer. Only pending requests are
// refunded.
func (s *Service) Cancel(ctx context.Context, employerID, id string) (*models.Interview, error) {
	iv, err := s.store.GetInterview(ctx, id)
	if err != nil {
		return nil, err
	}
	if iv.EmployerID != employerID {
		return nil, models.ErrNotFound
	}
	wasApproved := iv.Status == models.InterviewApproved
	t := store.Transition{To: models.InterviewCancelled}
	if iv.Status == models.InterviewPending {
		t.Refund = iv.CreditsCharged
	}
	iv, err = s.apply(ctx, iv, t)
	if err != nil {
		return nil, err
	}
	if t.Refund > 0 {
		s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Employers, ID: employerID})
	}
	if wasApproved {
		_, employer := s.parties(ctx, iv)
		s.send(ctx, models.RoleCandidate, iv.CandidateID, notifications.Message{
			Kind: notifications.KindInterviewCancelled,
			Args: []any{employer, i18n.FormatTime(iv.ProposedAt)},
		})
	}
	return iv, nil
}

// Complete closes an approved interview. The owning employer or an admin may
// complete it.
func (s *Service) Complete(ctx context.Context, actor auth.Principal, id string) (*models.Interview, error) {
	iv, err := s.store.GetInterview(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleEmployer:
		if iv.EmployerID != actor.ID {
			return nil, models.ErrNotFound
		}
	default:
		return nil, models.ErrForbidden
	}
	iv, err = s.apply(ctx, iv, store.Transition{To: models.InterviewCompleted})
	if err != nil {
		return nil, err
	}
	candidate, employer := s.parties(ctx, iv)
	when := i18n.FormatTime(iv.ProposedAt)
	s.send(ctx, models.RoleCandidate, iv.CandidateID, notifications.Message{
		Kind: notifications.KindInterviewCompleted,
		Args: []any{employer, when},
	})
	if actor.Role == models.RoleAdmin {
		s.send(ctx, models.RoleEmployer, iv.EmployerID, notifications.Message{
			Kind: notifications.KindInterviewCompleted,
			Args: []any{candidate, when},
		})
	}
	return iv, nil
}

func (s *Service) transition(ctx context.Context, id string, t store.Transition) (*models.Interview, error) {
	iv, err := s.store.GetInterview(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, iv, t)
}

// apply checks the state machine and writes the change conditioned on the
// status that was read.
func (s *Service) apply(ctx context.Context, iv *models.Interview, t store.Transition) (*models.Interview, error) {
	t.From = iv.Status
	if !CanTransition(t.From, t.To) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From, t.To)
	}
	err := s.store.TransitionInterview(ctx, iv, t)
	if errors.Is(err, models.ErrConflict) {
		return nil, fmt.Errorf("%w: interview changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return nil, err
	}
	utils.Logger().Info("interview status changed",
		zap.String("interview", iv.ID), zap.String("from", string(t.From)),
		zap.String("to", string(t.To)), zap.Int("refund", t.Refund))
	s.changed(ctx, iv)
	return iv, nil
}

func (s *Service) changed(ctx context.Context, iv *models.Interview) {
	s.notifier.Notify(ctx, revalidate.Change{
		Collection:  revalidate.Interviews,
		ID:          iv.ID,
		EmployerID:  iv.EmployerID,
		CandidateID: iv.CandidateID,
	})
}

// parties returns display names for notification text. Lookup failures fall
// back to ids.
func (s *Service) parties(ctx context.Context, iv *models.Interview) (candidate, employer string) {
	candidate, employer = iv.CandidateID, iv.EmployerID
	if c, err := s.store.GetCandidate(ctx, iv.CandidateID); err == nil {
		candidate = c.Name
	}
	if e, err := s.store.GetEmployer(ctx, iv.EmployerID); err == nil {
		employer = e.CompanyName
	}
	return candidate, employer
}

func (s *Service) send(ctx context.Context, role models.Role, id string, msg notifications.Message) {
	if _, err := s.notify.Send(ctx, role, id, msg); err != nil {
		utils.Logger().Warn("interview notification",
			zap.String("kind", msg.Kind), zap.String("recipient", id), zap.Error(err))
	}
}

// List returns the viewer's interviews newest first. Admins see every
// interview, optionally narrowed to status.
func (s *Service) List(ctx context.Context, viewer auth.Principal, status models.InterviewStatus) ([]models.Interview, error) {
	var (
		list []models.Interview
		err  error
	)
	switch viewer.Role {
	case models.RoleEmployer:
		list, err = s.store.ListInterviewsByEmployer(ctx, viewer.ID)
	case models.RoleCandidate:
		list, err = s.store.ListInterviewsByCandidate(ctx, viewer.ID)
	case models.RoleAdmin:
		if status != "" {
			return s.store.ListInterviewsByStatus(ctx, status)
		}
		return s.store.ListInterviews(ctx)
	default:
		return nil, models.ErrForbidden
	}
	if err != nil || status == "" {
		return list, err
	}
	filtered := make([]models.Interview, 0, len(list))
	for _, iv := range list {
		if iv.Status == status {
			filtered = append(filtered, iv)
		}
	}
	return filtered, nil
}

func ParseStatus(value string) (models.InterviewStatus, error) {
	status := models.InterviewStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case "", models.InterviewPending, models.InterviewApproved, models.InterviewRejected,
		models.InterviewCancelled, models.InterviewCompleted:
		return status, nil
	}
	return "", fmt.Errorf("unknown interview status %q", value)
}
