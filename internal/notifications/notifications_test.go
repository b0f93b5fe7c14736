package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-source/internal/revalidate"
	"talent-source/models"
	"talent-source/services"
)

type memStore struct {
	mu            sync.Mutex
	notifications map[string]*models.Notification
	candidates    map[string]*models.Candidate
	employers     map[string]*models.Employer
	admins        []models.Admin
}

func newMemStore() *memStore {
	return &memStore{
		notifications: map[string]*models.Notification{},
		candidates:    map[string]*models.Candidate{},
		employers:     map[string]*models.Employer{},
	}
}

func (m *memStore) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *memStore) ListNotifications(_ context.Context, recipientID string) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.notifications {
		if n.RecipientID == recipientID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, id, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return models.ErrConflict
	}
	n.Read = true
	return nil
}

func (m *memStore) GetCandidate(_ context.Context, id string) (*models.Candidate, error) {
	if c, ok := m.candidates[id]; ok {
		return c, nil
	}
	return nil, models.ErrNotFound
}

func (m *memStore) GetEmployer(_ context.Context, id string) (*models.Employer, error) {
	if e, ok := m.employers[id]; ok {
		return e, nil
	}
	return nil, models.ErrNotFound
}

func (m *memStore) GetAdmin(_ context.Context, id string) (*models.Admin, error) {
	for _, a := range m.admins {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) ListAdmins(context.Context) ([]models.Admin, error) {
	return m.admins, nil
}

type failingEmail struct{}

func (failingEmail) Send(context.Context, services.Email) error { return errors.New("ses down") }

func newTestService(store *memStore, email services.EmailClient) *Service {
	svc := NewService(store, email, revalidate.NopNotifier{})
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc
}

func TestSendLocalizesForRecipient(t *testing.T) {
	store := newMemStore()
	store.employers["e1"] = &models.Employer{ID: "e1", Email: "hr@acme.test", PreferredLanguage: "en"}
	store.candidates["c1"] = &models.Candidate{ID: "c1", Email: "c@x.test", PreferredLanguage: "ar"}
	email := services.NewMockEmailService()
	svc := newTestService(store, email)
	ctx := context.Background()

	n, err := svc.Send(ctx, models.RoleEmployer, "e1", Message{Kind: KindCreditsAdded, Args: []any{20, "2025-04-01 12:00"}})
	require.NoError(t, err)
	assert.Equal(t, "Credits added", n.Title)
	assert.Equal(t, "20 credits were added to your account. Your plan is valid until 2025-04-01 12:00.", n.Body)
	assert.Equal(t, models.RoleEmployer, n.RecipientRole)

	n, err = svc.Send(ctx, models.RoleCandidate, "c1", Message{Kind: KindCandidateActivated})
	require.NoError(t, err)
	assert.NotEqual(t, "Profile approved", n.Title)

	sent := email.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "hr@acme.test", sent[0].To)
	assert.Equal(t, "Credits added", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "You received this email")

	_, err = svc.Send(ctx, models.RoleCandidate, "missing", Message{Kind: KindCandidateActivated})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEmailFailureDoesNotFailSend(t *testing.T) {
	store := newMemStore()
	store.candidates["c1"] = &models.Candidate{ID: "c1", Email: "c@x.test"}
	svc := newTestService(store, failingEmail{})

	n, err := svc.Send(context.Background(), models.RoleCandidate, "c1", Message{Kind: KindCandidateActivated})
	require.NoError(t, err)
	assert.Contains(t, store.notifications, n.ID)
}

func TestSendToAdmins(t *testing.T) {
	store := newMemStore()
	store.admins = []models.Admin{{ID: "a1", Email: "a1@x.test"}, {ID: "a2", Email: "a2@x.test"}}
	svc := newTestService(store, nil)

	require.NoError(t, svc.SendToAdmins(context.Background(), Message{
		Kind: KindInterviewRequested,
		Args: []any{"Acme", "Sara", "2025-03-02 10:00"},
		Link: "/admin/interviews/iv1",
	}))
	for _, id := range []string{"a1", "a2"} {
		list, err := svc.List(context.Background(), id, false)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Acme requested an interview with Sara on 2025-03-02 10:00.", list[0].Body)
		assert.Equal(t, "/admin/interviews/iv1", list[0].Link)
	}
}

func TestReadState(t *testing.T) {
	store := newMemStore()
	store.candidates["c1"] = &models.Candidate{ID: "c1"}
	store.candidates["c2"] = &models.Candidate{ID: "c2"}
	svc := newTestService(store, nil)
	ctx := context.Background()

	var ids []string
	for range 3 {
		n, err := svc.Send(ctx, models.RoleCandidate, "c1", Message{Kind: KindCandidateActivated})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	other, err := svc.Send(ctx, models.RoleCandidate, "c2", Message{Kind: KindCandidateActivated})
	require.NoError(t, err)

	list, err := svc.List(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID, "newest first")

	require.NoError(t, svc.MarkRead(ctx, ids[0], "c1"))
	assert.ErrorIs(t, svc.MarkRead(ctx, other.ID, "c1"), models.ErrNotFound)
	assert.ErrorIs(t, svc.MarkRead(ctx, "missing", "c1"), models.ErrNotFound)

	unread, err := svc.List(ctx, "c1", true)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	marked, err := svc.MarkAllRead(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, marked)
	unread, err = svc.List(ctx, "c1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	unread, err = svc.List(ctx, "c2", true)
	require.NoError(t, err)
	assert.Len(t, unread, 1)
}
