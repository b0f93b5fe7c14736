package store

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"talent-source/models"
)

func (s *Store) GetOTP(ctx context.Context, key string) (*models.OTPRecord, error) {
	var rec models.OTPRecord
	if err := s.getItem(ctx, s.tables.OTP, stringKey("Key", key), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) PutOTP(ctx context.Context, rec *models.OTPRecord) error {
	return s.putItem(ctx, s.tables.OTP, rec, nil)
}

// IncrementOTPAttempts counts a failed verification against the code identified by hash.
func (s *Store) IncrementOTPAttempts(ctx context.Context, key, hash string) error {
	update := expression.Add(expression.Name("Attempts"), expression.Value(1))
	cond := expression.Name("Hash").Equal(expression.Value(hash))
	err := s.updateItem(ctx, s.tables.OTP, stringKey("Key", key), update, &cond)
	if errors.Is(err, models.ErrConflict) {
		return models.ErrNotFound
	}
	return err
}

// ConsumeOTP marks the code used. A concurrent consumer gets ErrNotFound.
func (s *Store) ConsumeOTP(ctx context.Context, key, hash string) error {
	update := expression.Set(expression.Name("ConsumedAt"), expression.Value(s.now()))
	cond := expression.Name("Hash").Equal(expression.Value(hash)).
		And(expression.AttributeNotExists(expression.Name("ConsumedAt")))
	err := s.updateItem(ctx, s.tables.OTP, stringKey("Key", key), update, &cond)
	if errors.Is(err, models.ErrConflict) {
		return models.ErrNotFound
	}
	return err
}
