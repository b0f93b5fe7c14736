// Package employers manages employer profiles and their credit summary.
package employers

import (
	"context"
	"errors"
	"strings"
	"time"

	"talent-source/internal/billing"
	"talent-source/internal/i18n"
	"talent-source/internal/revalidate"
	"talent-source/models"
)

var ErrInvalidProfile = errors.New("invalid employer profile")

type Store interface {
	GetEmployer(ctx context.Context, id string) (*models.Employer, error)
	UpdateEmployerProfile(ctx context.Context, e *models.Employer) error
}

type Service struct {
	store    Store
	billing  *billing.Service
	notifier revalidate.Notifier
	now      func() time.Time
}

func NewService(store Store, billingService *billing.Service, notifier revalidate.Notifier) *Service {
	return &Service{
		store:    store,
		billing:  billingService,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type ProfileUpdate struct {
	CompanyName       *string `json:"companyName"`
	ContactName       *string `json:"contactName"`
	Industry          *string `json:"industry"`
	City              *string `json:"city"`
	PreferredLanguage *string `json:"preferredLanguage"`
}

func (s *Service) UpdateProfile(ctx context.Context, id string, u ProfileUpdate) (*models.Employer, error) {
	e, err := s.store.GetEmployer(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.CompanyName != nil {
		name := strings.TrimSpace(*u.CompanyName)
		if name == "" {
			return nil, ErrInvalidProfile
		}
		e.CompanyName = name
	}
	if u.ContactName != nil {
		e.ContactName = strings.TrimSpace(*u.ContactName)
	}
	if u.Industry != nil {
		e.Industry = strings.TrimSpace(*u.Industry)
	}
	if u.City != nil {
		e.City = strings.TrimSpace(*u.City)
	}
	if u.PreferredLanguage != nil {
		e.PreferredLanguage = i18n.Normalize(*u.PreferredLanguage)
	}
	e.UpdatedAt = s.now()
	if err := s.store.UpdateEmployerProfile(ctx, e); err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Employers, ID: e.ID})
	return e, nil
}

// Me is the employer's own profile with its credit state.
type Me struct {
	*models.Employer
	Account billing.Account `json:"account"`
}

func (s *Service) Me(ctx context.Context, id string) (*Me, error) {
	e, err := s.store.GetEmployer(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Me{Employer: e, Account: s.billing.AccountFor(e, s.now())}, nil
}
