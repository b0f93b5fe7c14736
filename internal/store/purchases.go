package store

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"talent-source/models"
)

func (s *Store) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	return s.putItem(ctx, s.tables.Purchases, p, notExists("ID"))
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	var p models.Purchase
	if err := s.getItem(ctx, s.tables.Purchases, idKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPurchasesByEmployer(ctx context.Context, employerID string) ([]models.Purchase, error) {
	var purchases []models.Purchase
	if err := s.queryIndex(ctx, s.tables.Purchases, indexByEmployer, "EmployerID", employerID, &purchases); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *Store) SetPurchaseInvoice(ctx context.Context, id, invoiceID, paymentURL string) error {
	update := expression.Set(expression.Name("InvoiceID"), expression.Value(invoiceID)).
		Set(expression.Name("PaymentURL"), expression.Value(paymentURL))
	err := s.updateItem(ctx, s.tables.Purchases, idKey(id), update, exists("ID"))
	if errors.Is(err, models.ErrConflict) {
		return models.ErrNotFound
	}
	return err
}

// MarkPurchaseFailed moves a pending purchase to failed; other states are left alone.
func (s *Store) MarkPurchaseFailed(ctx context.Context, id string) error {
	update := expression.Set(expression.Name("Status"), expression.Value(models.PurchaseFailed))
	cond := expression.Name("Status").Equal(expression.Value(models.PurchasePending))
	return s.updateItem(ctx, s.tables.Purchases, idKey(id), update, &cond)
}

// FulfillPurchase marks the purchase paid and credits the employer atomically.
// ErrConflict means the purchase was no longer pending.
func (s *Store) FulfillPurchase(ctx context.Context, p *models.Purchase, paymentID string, expiresAt time.Time) error {
	now := s.now()
	purchaseUpdate := expression.Set(expression.Name("Status"), expression.Value(models.PurchasePaid)).
		Set(expression.Name("PaymentID"), expression.Value(paymentID)).
		Set(expression.Name("PaidAt"), expression.Value(now))
	pending := expression.Name("Status").Equal(expression.Value(models.PurchasePending))
	purchaseItem, err := updateTx(s.tables.Purchases, idKey(p.ID), purchaseUpdate, &pending)
	if err != nil {
		return err
	}

	employerUpdate := expression.Add(expression.Name("CreditBalance"), expression.Value(p.Credits)).
		Set(expression.Name("PlanID"), expression.Value(p.PlanID)).
		Set(expression.Name("PlanExpiresAt"), expression.Value(expiresAt)).
		Set(expression.Name("PlanExpiresUnix"), expression.Value(expiresAt.Unix())).
		Set(expression.Name("UpdatedAt"), expression.Value(now))
	employerItem, err := updateTx(s.tables.Employers, idKey(p.EmployerID), employerUpdate, exists("ID"))
	if err != nil {
		return err
	}

	codes, err := s.transact(ctx, []types.TransactWriteItem{purchaseItem, employerItem})
	switch {
	case err == nil:
		return nil
	case conditionFailedAt(codes, 0):
		return models.ErrConflict
	case conditionFailedAt(codes, 1):
		return models.ErrNotFound
	}
	return err
}
