// Package otp issues and verifies one-time SMS codes.
package otp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"go.uber.org/zap"

	"talent-source/internal/i18n"
	"talent-source/models"
	"talent-source/services"
	"talent-source/utils"
)

const (
	CodeTTL           = 10 * time.Minute
	MaxAttempts       = 5
	ResendCooldown    = 60 * time.Second
	MaxSendsPerWindow = 5
	SendWindow        = time.Hour
)

var (
	ErrInvalidCode     = errors.New("invalid code")
	ErrExpired         = errors.New("code expired")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrResendTooSoon   = errors.New("code requested too soon")
	ErrTooManyRequests = errors.New("too many codes requested")
	ErrInvalidPurpose  = errors.New("invalid purpose")
)

// ThrottleError carries the wait before another code may be requested.
type ThrottleError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter)
}

func (e *ThrottleError) Unwrap() error {
	return e.Err
}

type Store interface {
	GetOTP(ctx context.Context, key string) (*models.OTPRecord, error)
	PutOTP(ctx context.Context, rec *models.OTPRecord) error
	IncrementOTPAttempts(ctx context.Context, key, hash string) error
	ConsumeOTP(ctx context.Context, key, hash string) error
	FindAccountID(ctx context.Context, role models.Role, field, value string) (string, error)
	SetPhoneVerified(ctx context.Context, role models.Role, id string) error
}

type Service struct {
	store  Store
	sms    services.SMSClient
	pepper []byte
	now    func() time.Time
	random io.Reader
}

func NewService(store Store, sms services.SMSClient, pepper string) *Service {
	return &Service{
		store:  store,
		sms:    sms,
		pepper: []byte(pepper),
		now:    func() time.Time { return time.Now().UTC() },
		random: rand.Reader,
	}
}

type SendResult struct {
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Send issues a fresh code for phone and texts it in lang.
func (s *Service) Send(ctx context.Context, phone string, purpose models.OTPPurpose, lang string) (*SendResult, error) {
	if !purpose.Valid() {
		return nil, ErrInvalidPurpose
	}
	phone, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	now := s.now()
	key := models.OTPKey(purpose, phone)

	rec, err := s.store.GetOTP(ctx, key)
	switch {
	case errors.Is(err, models.ErrNotFound):
		rec = &models.OTPRecord{Key: key, Phone: phone, Purpose: purpose, WindowStart: now}
	case err != nil:
		return nil, err
	}

	if wait := rec.LastSentAt.Add(ResendCooldown).Sub(now); !rec.LastSentAt.IsZero() && wait > 0 {
		return nil, &ThrottleError{Err: ErrResendTooSoon, RetryAfter: wait.Round(time.Second)}
	}
	if now.Sub(rec.WindowStart) >= SendWindow {
		rec.WindowStart = now
		rec.SendCount = 0
	}
	if rec.SendCount >= MaxSendsPerWindow {
		return nil, &ThrottleError{Err: ErrTooManyRequests, RetryAfter: rec.WindowStart.Add(SendWindow).Sub(now).Round(time.Second)}
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, err
	}
	salt := make([]byte, 16)
	if _, err := io.ReadFull(s.random, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	// The record only changes once the SMS is out: a failed send keeps the
	// previous code valid and costs no quota.
	body := i18n.T(lang, "sms.otp."+string(purpose), code, int(CodeTTL.Minutes()))
	if err := s.sms.Send(ctx, phone, body); err != nil {
		return nil, err
	}

	rec.Salt = hex.EncodeToString(salt)
	rec.Hash = s.hash(salt, phone, code)
	rec.ExpiresAt = now.Add(CodeTTL)
	rec.Attempts = 0
	rec.ConsumedAt = nil
	rec.SendCount++
	rec.LastSentAt = now
	if err := s.store.PutOTP(ctx, rec); err != nil {
		return nil, err
	}
	utils.Logger().Info("otp sent", zap.String("purpose", string(purpose)), zap.Int("sendCount", rec.SendCount))
	return &SendResult{Phone: phone, ExpiresAt: rec.ExpiresAt}, nil
}

// Verify checks code and consumes it on success. It returns the normalized phone.
func (s *Service) Verify(ctx context.Context, phone string, purpose models.OTPPurpose, code string) (string, error) {
	if !purpose.Valid() {
		return "", ErrInvalidPurpose
	}
	phone, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	key := models.OTPKey(purpose, phone)

	rec, err := s.store.GetOTP(ctx, key)
	if err != nil {
		return "", err
	}
	if rec.ConsumedAt != nil {
		return "", models.ErrNotFound
	}
	if !s.now().Before(rec.ExpiresAt) {
		return "", ErrExpired
	}
	if rec.Attempts >= MaxAttempts {
		return "", ErrTooManyAttempts
	}

	salt, err := hex.DecodeString(rec.Salt)
	if err != nil {
		return "", fmt.Errorf("corrupt otp salt: %w", err)
	}
	candidate := s.hash(salt, phone, code)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(rec.Hash)) != 1 {
		if err := s.store.IncrementOTPAttempts(ctx, key, rec.Hash); err != nil && !errors.Is(err, models.ErrNotFound) {
			return "", err
		}
		if rec.Attempts+1 >= MaxAttempts {
			return "", ErrTooManyAttempts
		}
		return "", ErrInvalidCode
	}
	if err := s.store.ConsumeOTP(ctx, key, rec.Hash); err != nil {
		return "", err
	}
	return phone, nil
}

// ConfirmPhone verifies a verify_phone code and marks the account's phone verified.
// The phone must belong to the account.
func (s *Service) ConfirmPhone(ctx context.Context, role models.Role, accountID, phone, code string) error {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	owner, err := s.store.FindAccountID(ctx, role, "phone", normalized)
	if errors.Is(err, models.ErrNotFound) || (err == nil && owner != accountID) {
		return models.ErrForbidden
	}
	if err != nil {
		return err
	}
	if _, err := s.Verify(ctx, normalized, models.OTPVerifyPhone, code); err != nil {
		return err
	}
	return s.store.SetPhoneVerified(ctx, role, accountID)
}

func (s *Service) generateCode() (string, error) {
	n, err := rand.Int(s.random, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (s *Service) hash(salt []byte, phone, code string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write(salt)
	mac.Write([]byte(phone))
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}
