// Package auth registers and signs in candidates, employers and admins and
// manages their session cookies.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"talent-source/internal/i18n"
	"talent-source/internal/otp"
	"talent-source/internal/revalidate"
	"talent-source/models"
	"talent-source/utils"
)

const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrWeakPassword       = errors.New("password too short")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrMissingField       = errors.New("missing required field")
)

type Store interface {
	CreateCandidate(ctx context.Context, c *models.Candidate) error
	CreateEmployer(ctx context.Context, e *models.Employer) error
	CreateAdmin(ctx context.Context, a *models.Admin) error
	FindAccountID(ctx context.Context, role models.Role, field, value string) (string, error)
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	GetEmployer(ctx context.Context, id string) (*models.Employer, error)
	GetAdmin(ctx context.Context, id string) (*models.Admin, error)
	SetPasswordHash(ctx context.Context, role models.Role, id, hash string) error
}

type OTPVerifier interface {
	Send(ctx context.Context, phone string, purpose models.OTPPurpose, lang string) (*otp.SendResult, error)
	Verify(ctx context.Context, phone string, purpose models.OTPPurpose, code string) (string, error)
}

type Service struct {
	store    Store
	otp      OTPVerifier
	notifier revalidate.Notifier
	cost     int
	now      func() time.Time
}

func NewService(store Store, otpVerifier OTPVerifier, notifier revalidate.Notifier) *Service {
	return &Service{
		store:    store,
		otp:      otpVerifier,
		notifier: notifier,
		cost:     bcrypt.DefaultCost,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CandidateRegistration struct {
	Name              string `json:"name"`
	NameAr            string `json:"nameAr"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Password          string `json:"password"`
	PreferredLanguage string `json:"preferredLanguage"`
}

type EmployerRegistration struct {
	CompanyName       string `json:"companyName"`
	ContactName       string `json:"contactName"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Password          string `json:"password"`
	Industry          string `json:"industry"`
	City              string `json:"city"`
	PreferredLanguage string `json:"preferredLanguage"`
}

func (s *Service) RegisterCandidate(ctx context.Context, in CandidateRegistration) (*models.Candidate, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	phone, err := otp.NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := &models.Candidate{
		ID:                uuid.NewString(),
		Name:              name,
		NameAr:            strings.TrimSpace(in.NameAr),
		Email:             email,
		Phone:             phone,
		PasswordHash:      hash,
		BillingClass:      models.DefaultBillingClass,
		Status:            models.CandidatePending,
		PreferredLanguage: i18n.Normalize(in.PreferredLanguage),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateCandidate(ctx, c); err != nil {
		return nil, err
	}
	utils.Logger().Info("candidate registered", zap.String("id", c.ID))
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Candidates, ID: c.ID})
	return c, nil
}

func (s *Service) RegisterEmployer(ctx context.Context, in EmployerRegistration) (*models.Employer, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	phone, err := otp.NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	company := strings.TrimSpace(in.CompanyName)
	if company == "" {
		return nil, fmt.Errorf("%w: companyName", ErrMissingField)
	}
	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	e := &models.Employer{
		ID:                uuid.NewString(),
		CompanyName:       company,
		ContactName:       strings.TrimSpace(in.ContactName),
		Email:             email,
		Phone:             phone,
		PasswordHash:      hash,
		Industry:          strings.TrimSpace(in.Industry),
		City:              strings.TrimSpace(in.City),
		Status:            models.EmployerActive,
		PreferredLanguage: i18n.Normalize(in.PreferredLanguage),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateEmployer(ctx, e); err != nil {
		return nil, err
	}
	utils.Logger().Info("employer registered", zap.String("id", e.ID))
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Employers, ID: e.ID})
	return e, nil
}

func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (*models.Admin, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}
	a := &models.Admin{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateAdmin(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Login checks credentials against one collection. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) Login(ctx context.Context, role models.Role, email, password string) (Principal, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	id, err := s.store.FindAccountID(ctx, role, "email", email)
	if errors.Is(err, models.ErrNotFound) {
		// keep timing close to the found path
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, err
	}

	hash, suspended, err := s.credentials(ctx, role, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Principal{}, ErrInvalidCredentials
	}
	if suspended {
		return Principal{}, ErrAccountSuspended
	}
	return Principal{ID: id, Role: role}, nil
}

func (s *Service) credentials(ctx context.Context, role models.Role, id string) (string, bool, error) {
	switch role {
	case models.RoleCandidate:
		c, err := s.store.GetCandidate(ctx, id)
		if err != nil {
			return "", false, err
		}
		return c.PasswordHash, c.Status == models.CandidateSuspended, nil
	case models.RoleEmployer:
		e, err := s.store.GetEmployer(ctx, id)
		if err != nil {
			return "", false, err
		}
		return e.PasswordHash, e.Status == models.EmployerSuspended, nil
	case models.RoleAdmin:
		a, err := s.store.GetAdmin(ctx, id)
		if err != nil {
			return "", false, err
		}
		return a.PasswordHash, false, nil
	}
	return "", false, models.ErrNotFound
}

// Active fails with ErrAccountSuspended for suspended accounts and with
// ErrUnauthenticated when the account no longer exists.
func (s *Service) Active(ctx context.Context, p Principal) error {
	_, suspended, err := s.credentials(ctx, p.Role, p.ID)
	if errors.Is(err, models.ErrNotFound) {
		return ErrUnauthenticated
	}
	if err != nil {
		return err
	}
	if suspended {
		return ErrAccountSuspended
	}
	return nil
}

// Me loads the account behind p.
func (s *Service) Me(ctx context.Context, p Principal) (any, error) {
	switch p.Role {
	case models.RoleCandidate:
		return s.store.GetCandidate(ctx, p.ID)
	case models.RoleEmployer:
		return s.store.GetEmployer(ctx, p.ID)
	case models.RoleAdmin:
		return s.store.GetAdmin(ctx, p.ID)
	}
	return nil, models.ErrNotFound
}

// RequestPasswordReset texts a reset code when phone belongs to an account of
// role. Unknown phones succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, role models.Role, phone, lang string) error {
	normalized, err := otp.NormalizePhone(phone)
	if err != nil {
		return err
	}
	if _, err := s.store.FindAccountID(ctx, role, "phone", normalized); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			utils.Debug("password reset for unknown phone")
			return nil
		}
		return err
	}
	_, err = s.otp.Send(ctx, normalized, models.OTPResetPassword, lang)
	return err
}

// ResetPassword consumes a reset_password code for phone and sets password.
func (s *Service) ResetPassword(ctx context.Context, role models.Role, phone, code, password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	normalized, err := s.otp.Verify(ctx, phone, models.OTPResetPassword, code)
	if err != nil {
		return err
	}
	id, err := s.store.FindAccountID(ctx, role, "phone", normalized)
	if err != nil {
		return err
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.SetPasswordHash(ctx, role, id, hash); err != nil {
		return err
	}
	utils.Logger().Info("password reset", zap.String("role", string(role)), zap.String("id", id))
	return nil
}

func (s *Service) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// RoleForCollection maps a collection path segment to its role.
func RoleForCollection(collection string) (models.Role, bool) {
	switch collection {
	case "candidates":
		return models.RoleCandidate, true
	case "employers":
		return models.RoleEmployer, true
	case "admins":
		return models.RoleAdmin, true
	}
	return "", false
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)
