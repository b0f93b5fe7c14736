// Package purchases sells credit plans through MyFatoorah and credits the
// employer once the gateway reports the invoice paid.
package purchases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"talent-source/internal/i18n"
	"talent-source/internal/notifications"
	"talent-source/internal/revalidate"
	"talent-source/models"
	"talent-source/services"
	"talent-source/utils"
)

const CallbackPath = "/api/purchases/callback"

var (
	ErrPlanUnavailable = errors.New("plan is not available")
	ErrPaymentFailed   = errors.New("payment failed")
	ErrAmountMismatch  = errors.New("paid amount does not match the purchase")
)

type Store interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	GetEmployer(ctx context.Context, id string) (*models.Employer, error)
	CreatePurchase(ctx context.Context, p *models.Purchase) error
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)
	ListPurchasesByEmployer(ctx context.Context, employerID string) ([]models.Purchase, error)
	SetPurchaseInvoice(ctx context.Context, id, invoiceID, paymentURL string) error
	MarkPurchaseFailed(ctx context.Context, id string) error
	FulfillPurchase(ctx context.Context, p *models.Purchase, paymentID string, expiresAt time.Time) error
}

type Notifier interface {
	Send(ctx context.Context, role models.Role, recipientID string, msg notifications.Message) (*models.Notification, error)
}

type Service struct {
	store         Store
	gateway       services.PaymentGateway
	notify        Notifier
	notifier      revalidate.Notifier
	publicURL     string
	webhookSecret []byte
	now           func() time.Time
}

func NewService(store Store, gateway services.PaymentGateway, notify Notifier, notifier revalidate.Notifier,
	publicURL, webhookSecret string) *Service {
	return &Service{
		store:         store,
		gateway:       gateway,
		notify:        notify,
		notifier:      notifier,
		publicURL:     strings.TrimRight(publicURL, "/"),
		webhookSecret: []byte(webhookSecret),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Plans lists the active plans in display order.
func (s *Service) Plans(ctx context.Context) ([]models.Plan, error) {
	all, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]models.Plan, 0, len(all))
	for _, p := range all {
		if p.Active {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].SortOrder != active[j].SortOrder {
			return active[i].SortOrder < active[j].SortOrder
		}
		return active[i].Slug < active[j].Slug
	})
	return active, nil
}

func (s *Service) List(ctx context.Context, employerID string) ([]models.Purchase, error) {
	list, err := s.store.ListPurchasesByEmployer(ctx, employerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// Checkout opens a pending purchase and a gateway invoice for it. The
// employer pays at the returned PaymentURL.
func (s *Service) Checkout(ctx context.Context, employerID, planID, lang string) (*models.Purchase, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrPlanUnavailable
	}
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanUnavailable
	}
	employer, err := s.store.GetEmployer(ctx, employerID)
	if err != nil {
		return nil, err
	}

	p := &models.Purchase{
		ID:         uuid.NewString(),
		EmployerID: employerID,
		PlanID:     plan.ID,
		Amount:     plan.Price,
		Currency:   plan.Currency,
		Credits:    plan.Credits,
		Status:     models.PurchasePending,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreatePurchase(ctx, p); err != nil {
		return nil, err
	}

	customer := employer.ContactName
	if customer == "" {
		customer = employer.CompanyName
	}
	invoice, err := s.gateway.SendPayment(ctx, services.PaymentRequest{
		Reference:     p.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		CustomerName:  customer,
		CustomerEmail: employer.Email,
		Language:      i18n.Normalize(lang),
		CallbackURL:   s.publicURL + CallbackPath,
		ErrorURL:      s.publicURL + CallbackPath,
	})
	if err != nil {
		if markErr := s.store.MarkPurchaseFailed(ctx, p.ID); markErr != nil {
			utils.Logger().Warn("mark purchase failed", zap.String("purchase", p.ID), zap.Error(markErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if err := s.store.SetPurchaseInvoice(ctx, p.ID, invoice.InvoiceID, invoice.PaymentURL); err != nil {
		return nil, err
	}
	p.InvoiceID = invoice.InvoiceID
	p.PaymentURL = invoice.PaymentURL

	utils.Logger().Info("checkout started",
		zap.String("purchase", p.ID), zap.String("employer", employerID),
		zap.String("plan", plan.Slug), zap.String("invoice", invoice.InvoiceID))
	s.changed(ctx, p)
	return p, nil
}

// Fulfill settles a purchase from the gateway's view of the payment. It is
// safe to call repeatedly for the same payment.
func (s *Service) Fulfill(ctx context.Context, key string, keyType services.PaymentKeyType) (*models.Purchase, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrPaymentFailed, keyType)
	}
	status, err := s.gateway.GetPaymentStatus(ctx, key, keyType)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPurchase(ctx, status.Reference)
	if err != nil {
		return nil, fmt.Errorf("purchase for invoice %s: %w", status.InvoiceID, err)
	}
	if p.Status == models.PurchasePaid {
		return p, nil
	}

	switch status.InvoiceStatus {
	case services.InvoiceStatusPaid:
	case "Pending", "":
		return p, nil
	default:
		if err := s.store.MarkPurchaseFailed(ctx, p.ID); err != nil && !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		utils.Logger().Info("purchase failed",
			zap.String("purchase", p.ID), zap.String("invoiceStatus", status.InvoiceStatus))
		p.Status = models.PurchaseFailed
		s.changed(ctx, p)
		return p, nil
	}

	if status.Amount > 0 && math.Abs(status.Amount-p.Amount) > 0.005 {
		utils.Logger().Error("paid amount mismatch",
			zap.String("purchase", p.ID), zap.Float64("expected", p.Amount), zap.Float64("paid", status.Amount))
		return nil, ErrAmountMismatch
	}
	return s.credit(ctx, p, status.PaymentID)
}

func (s *Service) credit(ctx context.Context, p *models.Purchase, paymentID string) (*models.Purchase, error) {
	plan, err := s.store.GetPlan(ctx, p.PlanID)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", p.PlanID, err)
	}
	employer, err := s.store.GetEmployer(ctx, p.EmployerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := PlanExpiry(now, employer.PlanExpiresAt, plan.DurationDays)

	err = s.store.FulfillPurchase(ctx, p, paymentID, expiresAt)
	if errors.Is(err, models.ErrConflict) {
		// settled by a concurrent callback or webhook
		return s.store.GetPurchase(ctx, p.ID)
	}
	if err != nil {
		return nil, err
	}
	p.Status = models.PurchasePaid
	p.PaymentID = paymentID
	p.PaidAt = &now

	utils.Logger().Info("purchase paid",
		zap.String("purchase", p.ID), zap.String("employer", p.EmployerID),
		zap.Int("credits", p.Credits), zap.Time("planExpiresAt", expiresAt))
	s.changed(ctx, p)
	_, err = s.notify.Send(ctx, models.RoleEmployer, p.EmployerID, notifications.Message{
		Kind: notifications.KindCreditsAdded,
		Args: []any{p.Credits, i18n.FormatTime(expiresAt)},
		Link: "/account",
	})
	if err != nil {
		utils.Logger().Warn("credits notification", zap.String("purchase", p.ID), zap.Error(err))
	}
	return p, nil
}

// PlanExpiry extends from the later of now and the current expiry.
func PlanExpiry(now time.Time, current *time.Time, durationDays int) time.Time {
	start := now
	if current != nil && current.After(now) {
		start = *current
	}
	return start.AddDate(0, 0, durationDays)
}

func (s *Service) changed(ctx context.Context, p *models.Purchase) {
	s.notifier.Notify(ctx, revalidate.Change{Collection: revalidate.Purchases, ID: p.ID, EmployerID: p.EmployerID})
}
