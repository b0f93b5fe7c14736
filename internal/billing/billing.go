// Package billing prices employer actions by billing class and moves credits.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"talent-source/models"
	"talent-source/utils"
)

var ErrInvalidAmount = errors.New("credit amount must be positive")

// Ledger applies balance changes. A charge fails with
// models.ErrInsufficientCredits or models.ErrPlanExpired.
type Ledger interface {
	ChargeCredits(ctx context.Context, employerID string, credits int) error
	RefundCredits(ctx context.Context, employerID string, credits int) error
}

type Service struct {
	ledger  Ledger
	pricing models.Pricing
}

func NewService(ledger Ledger, pricing models.Pricing) *Service {
	if pricing == nil {
		pricing = models.DefaultPricing()
	}
	return &Service{ledger: ledger, pricing: pricing}
}

func (s *Service) Pricing() models.Pricing {
	return s.pricing
}

func (s *Service) InterviewCost(class models.BillingClass) int {
	return s.pricing.InterviewCost(class)
}

func (s *Service) UnlockCost(class models.BillingClass) int {
	return s.pricing.UnlockCost(class)
}

// Charge spends credits that are not tied to another write.
func (s *Service) Charge(ctx context.Context, employerID string, credits int) error {
	if credits <= 0 {
		return ErrInvalidAmount
	}
	if err := s.ledger.ChargeCredits(ctx, employerID, credits); err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) || errors.Is(err, models.ErrPlanExpired) {
			return err
		}
		return fmt.Errorf("charge %d credits: %w", credits, err)
	}
	utils.Logger().Info("credits charged", zap.String("employer", employerID), zap.Int("credits", credits))
	return nil
}

func (s *Service) Refund(ctx context.Context, employerID string, credits int) error {
	if credits <= 0 {
		return ErrInvalidAmount
	}
	if err := s.ledger.RefundCredits(ctx, employerID, credits); err != nil {
		return fmt.Errorf("refund %d credits: %w", credits, err)
	}
	utils.Logger().Info("credits refunded", zap.String("employer", employerID), zap.Int("credits", credits))
	return nil
}

// Account is the credit state shown to an employer.
type Account struct {
	CreditBalance int            `json:"creditBalance"`
	PlanID        string         `json:"planId,omitempty"`
	PlanActive    bool           `json:"planActive"`
	PlanExpiresAt string         `json:"planExpiresAt,omitempty"`
	Pricing       models.Pricing `json:"pricing"`
}

func (s *Service) AccountFor(e *models.Employer, now time.Time) Account {
	a := Account{
		CreditBalance: e.CreditBalance,
		PlanID:        e.PlanID,
		PlanActive:    e.PlanActive(now),
		Pricing:       s.pricing,
	}
	if e.PlanExpiresAt != nil {
		a.PlanExpiresAt = e.PlanExpiresAt.UTC().Format(time.RFC3339)
	}
	return a
}
