// Package candidates serves candidate profiles: self-service edits and
// uploads, employer browsing with contact masking, paid contact unlocks and
// admin moderation.
package candidates

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"talent-source/internal/auth"
	"talent-source/internal/billing"
	"talent-source/internal/i18n"
	"talent-source/internal/notifications"
	"talent-source/internal/revalidate"
	"talent-source/models"
	"talent-source/services"
	"talent-source/utils"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 50
	MaxExperience   = 60
	CVURLTTL        = 15 * time.Minute
)

var (
	ErrInvalidProfile = errors.New("invalid profile")
	ErrInvalidStatus  = errors.New("invalid candidate status")
	ErrUnavailable    = errors.New("candidate is not available")
)

type Store interface {
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	UpdateCandidateProfile(ctx context.Context, c *models.Candidate) (*models.Candidate, error)
	SetCandidateFile(ctx context.Context, id, field, key string) (*models.Candidate, string, error)
	ListCandidates(ctx context.Context, f models.CandidateFilter) ([]models.Candidate, error)
	SetCandidateStatus(ctx context.Context, id string, status models.CandidateStatus) error
	GetSkill(ctx context.Context, id string) (*models.Skill, error)
	GetUnlock(ctx context.Context, employerID, candidateID string) (*models.ContactUnlock, error)
	CreateUnlock(ctx context.Context, u *models.ContactUnlock) error
	ListInterviewsByCandidate(ctx context.Context, candidateID string) ([]models.Interview, error)
}

type Notifier interface {
	Send(ctx context.Context, role models.Role, recipientID string, msg notifications.Message) (*models.Notification, error)
}

type Service struct {
	store    Store
	files    services.S3Client
	bucket   string
	billing  *billing.Service
	notify   Notifier
	notifier revalidate.Notifier
	now      func() time.Time
}

func NewService(store Store, files services.S3Client, bucket string, billingService *billing.Service,
	notify Notifier, notifier revalidate.Notifier) *Service {
	return &Service{
		store:    store,
		files:    files,
		bucket:   bucket,
		billing:  billingService,
		notify:   notify,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProfileUpdate lists the fields a candidate may change. Nil fields are kept.
type ProfileUpdate struct {
	Name              *string              `json:"name"`
	NameAr            *string              `json:"nameAr"`
	Nationality       *string              `json:"nationality"`
	Gender            *string              `json:"gender"`
	BirthDate         *string              `json:"birthDate"`
	City              *string              `json:"city"`
	PrimarySkillID    *string              `json:"primarySkillId"`
	SkillIDs          *[]string            `json:"skillIds"`
	ExperienceYears   *int                 `json:"experienceYears"`
	Languages         *[]string            `json:"languages"`
	Bio               *string              `json:"bio"`
	BioAr             *string              `json:"bioAr"`
	Availability      *models.Availability `json:"availability"`
	ExpectedSalary    *int                 `json:"expectedSalary"`
	PreferredLanguage *string              `json:"preferredLanguage"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProfile, fmt.Sprintf(format, args...))
}

func trimmed(p *string) string {
	return strings.TrimSpace(*p)
}

// UpdateProfile applies u to the candidate's own profile. Changing the
// primary skill re-derives the billing class.
func (s *Service) UpdateProfile(ctx context.Context, id string, u ProfileUpdate) (*models.Candidate, error) {
	c, err := s.store.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.Name != nil {
		if trimmed(u.Name) == "" {
			return nil, invalid("name is required")
		}
		c.Name = trimmed(u.Name)
	}
	if u.NameAr != nil {
		c.NameAr = trimmed(u.NameAr)
	}
	if u.Nationality != nil {
		c.Nationality = strings.ToUpper(trimmed(u.Nationality))
	}
	if u.Gender != nil {
		gender := strings.ToLower(trimmed(u.Gender))
		if gender != "" && gender != "male" && gender != "female" {
			return nil, invalid("gender must be male or female")
		}
		c.Gender = gender
	}
	if u.BirthDate != nil {
		birth := trimmed(u.BirthDate)
		if birth != "" {
			if _, err := time.Parse(time.DateOnly, birth); err != nil {
				return nil, invalid("birthDate must be YYYY-MM-DD")
			}
		}
		c.BirthDate = birth
	}
	if u.City != nil {
		c.City = trimmed(u.City)
	}
	if u.ExperienceYears != nil {
		if *u.ExperienceYears < 0 || *u.ExperienceYears > MaxExperience {
			return nil, invalid("experienceYears must be between 0 and %d", MaxExperience)
		}
		c.ExperienceYears = *u.ExperienceYears
	}
	if u.Languages != nil {
		c.Languages = cleanList(*u.Languages)
	}
	if u.Bio != nil {
		c.Bio = trimmed(u.Bio)
	}
	if u.BioAr != nil {
		c.BioAr = trimmed(u.BioAr)
	}
	if u.Availability != nil {
		if *u.Availability != "" && !u.Availability.Valid() {
			return nil, invalid("unknown availability %q", *u.Availability)
		}
		c.Availability = *u.Availability
	}
	if u.ExpectedSalary != nil {
		if *u.ExpectedSalary < 0 {
			return nil, invalid("expectedSalary must not be negative")
		}
		c.ExpectedSalary = *u.ExpectedSalary
	}
	if u.PreferredLanguage != nil {
		c.PreferredLanguage = i18n.Normalize(*u.PreferredLanguage)
	}
	if u.SkillIDs != nil {
		ids := cleanList(*u.SkillIDs)
		for _, skillID := range ids {
			if _, err := s.skill(ctx, skillID); err != nil {
				return nil, err
			}
		}
		c.SkillIDs = ids
	}
	if u.PrimarySkillID != nil {
		skillID := trimmed(u.PrimarySkillID)
		c.PrimarySkillID = skillID
		c.BillingClass = models.DefaultBillingClass
		if skillID != "" {
			skill, err := s.skill(ctx, skillID)
			if err != nil {
				return nil, err
			}
			c.BillingClass = skill.BillingClass
		}
	}

	saved, err := s.store.UpdateCandidateProfile(ctx, c)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Candidates, ID: saved.ID})
	return saved, nil
}

func (s *Service) skill(ctx context.Context, id string) (*models.Skill, error) {
	skill, err := s.store.GetSkill(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, invalid("unknown skill %q", id)
	}
	return skill, err
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// SetStatus is the admin moderation action. Activation notifies the candidate.
func (s *Service) SetStatus(ctx context.Context, id string, status models.CandidateStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	c, err := s.store.GetCandidate(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == status {
		return nil
	}
	if err := s.store.SetCandidateStatus(ctx, id, status); err != nil {
		return err
	}
	utils.Logger().Info("candidate status changed",
		zap.String("candidate", id), zap.String("from", string(c.Status)), zap.String("to", string(status)))
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Candidates, ID: id})

	if status == models.CandidateActive {
		_, err := s.notify.Send(ctx, models.RoleCandidate, id, notifications.Message{
			Kind: notifications.KindCandidateActivated,
			Link: "/candidates/" + id,
		})
		if err != nil {
			utils.Logger().Warn("activation notification", zap.String("candidate", id), zap.Error(err))
		}
	}
	return nil
}

// View is a candidate as shown to one viewer.
type View struct {
	models.Candidate
	ContactVisible bool `json:"contactVisible"`
	HasCV          bool `json:"hasCv"`
}

func newView(c models.Candidate, contactVisible bool) View {
	v := View{Candidate: c, ContactVisible: contactVisible, HasCV: c.CVKey != ""}
	if !contactVisible {
		v.Email = ""
		v.Phone = ""
	}
	return v
}

// Get loads one candidate for viewer. Employers only see active candidates.
func (s *Service) Get(ctx context.Context, viewer auth.Principal, id string) (*View, error) {
	c, err := s.store.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	switch viewer.Role {
	case models.RoleCandidate:
		if viewer.ID != id {
			return nil, models.ErrForbidden
		}
	case models.RoleEmployer:
		if c.Status != models.CandidateActive {
			return nil, models.ErrNotFound
		}
	}
	visible, err := s.contactVisible(ctx, viewer, c)
	if err != nil {
		return nil, err
	}
	v := newView(*c, visible)
	return &v, nil
}

// contactVisible reports whether viewer may see c's email, phone and CV.
func (s *Service) contactVisible(ctx context.Context, viewer auth.Principal, c *models.Candidate) (bool, error) {
	switch viewer.Role {
	case models.RoleAdmin:
		return true, nil
	case models.RoleCandidate:
		return viewer.ID == c.ID, nil
	case models.RoleEmployer:
	default:
		return false, nil
	}

	_, err := s.store.GetUnlock(ctx, viewer.ID, c.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, err
	}
	interviews, err := s.store.ListInterviewsByCandidate(ctx, c.ID)
	if err != nil {
		return false, err
	}
	for _, iv := range interviews {
		if iv.EmployerID == viewer.ID && (iv.Status == models.InterviewApproved || iv.Status == models.InterviewCompleted) {
			return true, nil
		}
	}
	return false, nil
}

// UnlockResult reports what an unlock cost. Repeated unlocks cost nothing.
type UnlockResult struct {
	View            View `json:"candidate"`
	CreditsCharged  int  `json:"creditsCharged"`
	AlreadyUnlocked bool `json:"alreadyUnlocked"`
}

// Unlock charges employerID the unlock price of the candidate's billing
// class, once.
func (s *Service) Unlock(ctx context.Context, employerID, candidateID string) (*UnlockResult, error) {
	c, err := s.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CandidateActive {
		return nil, ErrUnavailable
	}

	cost := s.billing.UnlockCost(c.BillingClass)
	err = s.store.CreateUnlock(ctx, &models.ContactUnlock{
		EmployerID:     employerID,
		CandidateID:    candidateID,
		CreditsCharged: cost,
		CreatedAt:      s.now(),
	})
	switch {
	case errors.Is(err, models.ErrConflict):
		return &UnlockResult{View: newView(*c, true), AlreadyUnlocked: true}, nil
	case err != nil:
		return nil, err
	}

	utils.Logger().Info("contact unlocked",
		zap.String("employer", employerID), zap.String("candidate", candidateID), zap.Int("credits", cost))
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Employers, ID: employerID})
	return &UnlockResult{View: newView(*c, true), CreditsCharged: cost}, nil
}

// CVURL presigns the CV for viewers allowed to see contact details.
func (s *Service) CVURL(ctx context.Context, viewer auth.Principal, id string) (string, error) {
	v, err := s.Get(ctx, viewer, id)
	if err != nil {
		return "", err
	}
	if !v.ContactVisible {
		return "", models.ErrForbidden
	}
	if v.CVKey == "" {
		return "", models.ErrNotFound
	}
	return s.files.PresignGet(ctx, s.bucket, v.CVKey, CVURLTTL)
}
