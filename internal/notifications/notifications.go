// Package notifications stores in-app notifications in the recipient's
// language and mirrors them by email.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"talent-source/internal/i18n"
	"talent-source/internal/revalidate"
	"talent-source/models"
	"talent-source/services"
	"talent-source/utils"
)

const (
	KindInterviewRequested = "interview_requested"
	KindInterviewApproved  = "interview_approved"
	KindInterviewScheduled = "interview_scheduled"
	KindInterviewRejected  = "interview_rejected"
	KindInterviewCancelled = "interview_cancelled"
	KindInterviewCompleted = "interview_completed"
	KindCandidateActivated = "candidate_activated"
	KindCreditsAdded       = "credits_added"
)

type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, recipientID string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, recipientID string) error
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	GetEmployer(ctx context.Context, id string) (*models.Employer, error)
	GetAdmin(ctx context.Context, id string) (*models.Admin, error)
	ListAdmins(ctx context.Context) ([]models.Admin, error)
}

// Message is a notification before localization. Title and body are read
// from notify.<Kind>.title and notify.<Kind>.body.
type Message struct {
	Kind string
	Args []any
	Link string
}

type Service struct {
	store    Store
	email    services.EmailClient
	notifier revalidate.Notifier
	now      func() time.Time
}

// NewService builds the notification service. A nil email client disables
// email delivery.
func NewService(store Store, email services.EmailClient, notifier revalidate.Notifier) *Service {
	return &Service{
		store:    store,
		email:    email,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type recipient struct {
	email string
	lang  string
}

func (s *Service) lookup(ctx context.Context, role models.Role, id string) (recipient, error) {
	switch role {
	case models.RoleCandidate:
		c, err := s.store.GetCandidate(ctx, id)
		if err != nil {
			return recipient{}, err
		}
		return recipient{email: c.Email, lang: c.PreferredLanguage}, nil
	case models.RoleEmployer:
		e, err := s.store.GetEmployer(ctx, id)
		if err != nil {
			return recipient{}, err
		}
		return recipient{email: e.Email, lang: e.PreferredLanguage}, nil
	case models.RoleAdmin:
		a, err := s.store.GetAdmin(ctx, id)
		if err != nil {
			return recipient{}, err
		}
		return recipient{email: a.Email, lang: i18n.English}, nil
	}
	return recipient{}, fmt.Errorf("unknown role %q", role)
}

// Send stores msg for the recipient in their preferred language and emails it.
func (s *Service) Send(ctx context.Context, role models.Role, recipientID string, msg Message) (*models.Notification, error) {
	to, err := s.lookup(ctx, role, recipientID)
	if err != nil {
		return nil, fmt.Errorf("notification recipient %s/%s: %w", role, recipientID, err)
	}
	return s.deliver(ctx, role, recipientID, to, msg)
}

// SendToAdmins notifies every admin. It stops at the first storage error.
func (s *Service) SendToAdmins(ctx context.Context, msg Message) error {
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	for _, a := range admins {
		if _, err := s.deliver(ctx, models.RoleAdmin, a.ID, recipient{email: a.Email, lang: i18n.English}, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, role models.Role, recipientID string, to recipient, msg Message) (*models.Notification, error) {
	lang := i18n.Normalize(to.lang)
	n := &models.Notification{
		ID:            uuid.NewString(),
		RecipientID:   recipientID,
		RecipientRole: role,
		Kind:          msg.Kind,
		Title:         i18n.T(lang, "notify."+msg.Kind+".title"),
		Body:          i18n.T(lang, "notify."+msg.Kind+".body", msg.Args...),
		Link:          msg.Link,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Notifications, ID: n.ID, RecipientID: recipientID})

	if s.email != nil && to.email != "" {
		err := s.email.Send(ctx, services.Email{
			To:      to.email,
			Subject: n.Title,
			Text:    n.Body + "\n\n" + i18n.T(lang, "email.footer"),
		})
		if err != nil {
			utils.Logger().Warn("notification email failed",
				zap.String("notification", n.ID), zap.String("kind", n.Kind), zap.Error(err))
		}
	}
	return n, nil
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID string, unreadOnly bool) ([]models.Notification, error) {
	all, err := s.store.ListNotifications(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if !unreadOnly {
		return all, nil
	}
	unread := make([]models.Notification, 0, len(all))
	for _, n := range all {
		if !n.Read {
			unread = append(unread, n)
		}
	}
	return unread, nil
}

func (s *Service) MarkRead(ctx context.Context, id, recipientID string) error {
	err := s.store.MarkNotificationRead(ctx, id, recipientID)
	if errors.Is(err, models.ErrConflict) {
		return models.ErrNotFound
	}
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Notifications, ID: id, RecipientID: recipientID})
	return nil
}

// MarkAllRead marks every unread notification read and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	unread, err := s.List(ctx, recipientID, true)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, n := range unread {
		if err := s.store.MarkNotificationRead(ctx, n.ID, recipientID); err != nil {
			return marked, err
		}
		marked++
	}
	if marked > 0 {
		s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Notifications, RecipientID: recipientID})
	}
	return marked, nil
}
