package store

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"talent-source/models"
)

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.putItem(ctx, s.tables.Notifications, n, notExists("ID"))
}

func (s *Store) ListNotifications(ctx context.Context, recipientID string) ([]models.Notification, error) {
	var notifications []models.Notification
	if err := s.queryIndex(ctx, s.tables.Notifications, indexByRecipient, "RecipientID", recipientID, &notifications); err != nil {
		return nil, err
	}
	sortNewestFirst(notifications, func(n models.Notification) time.Time { return n.CreatedAt })
	return notifications, nil
}

// MarkNotificationRead returns ErrConflict when the notification belongs to someone else.
func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	update := expression.Set(expression.Name("Read"), expression.Value(true))
	cond := expression.Name("RecipientID").Equal(expression.Value(recipientID))
	return s.updateItem(ctx, s.tables.Notifications, idKey(id), update, &cond)
}

func sortNewestFirst[T any](items []T, at func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool { return at(items[i]).After(at(items[j])) })
}
