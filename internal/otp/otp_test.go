package otp

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-source/models"
	"talent-source/services"
)

type fakeStore struct {
	mu       sync.Mutex
	records  map[string]models.OTPRecord
	owners   map[string]string
	verified map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  map[string]models.OTPRecord{},
		owners:   map[string]string{},
		verified: map[string]bool{},
	}
}

func (f *fakeStore) GetOTP(_ context.Context, key string) (*models.OTPRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeStore) PutOTP(_ context.Context, rec *models.OTPRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.Key] = *rec
	return nil
}

func (f *fakeStore) IncrementOTPAttempts(_ context.Context, key, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok || rec.Hash != hash {
		return models.ErrNotFound
	}
	rec.Attempts++
	f.records[key] = rec
	return nil
}

func (f *fakeStore) ConsumeOTP(_ context.Context, key, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok || rec.Hash != hash || rec.ConsumedAt != nil {
		return models.ErrNotFound
	}
	now := time.Now()
	rec.ConsumedAt = &now
	f.records[key] = rec
	return nil
}

func (f *fakeStore) FindAccountID(_ context.Context, role models.Role, field, value string) (string, error) {
	id, ok := f.owners[string(role)+"#"+field+"#"+value]
	if !ok {
		return "", models.ErrNotFound
	}
	return id, nil
}

func (f *fakeStore) SetPhoneVerified(_ context.Context, role models.Role, id string) error {
	f.verified[string(role)+"#"+id] = true
	return nil
}

type fixture struct {
	svc   *Service
	store *fakeStore
	sms   *services.MockSMSClient
	now   time.Time
}

func newFixture() *fixture {
	f := &fixture{store: newFakeStore(), sms: services.NewMockSMSService(), now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	f.svc = NewService(f.store, f.sms, "pepper")
	f.svc.now = func() time.Time { return f.now }
	return f
}

var codePattern = regexp.MustCompile(`\d{6}`)

func (f *fixture) lastCode(t *testing.T) string {
	t.Helper()
	sent := f.sms.Sent()
	require.NotEmpty(t, sent)
	code := codePattern.FindString(sent[len(sent)-1].Body)
	require.NotEmpty(t, code)
	return code
}

func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

func TestSendStoresHashNotCode(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Send(context.Background(), "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)
	assert.Equal(t, "966512345678", res.Phone)
	assert.Equal(t, f.now.Add(CodeTTL), res.ExpiresAt)

	code := f.lastCode(t)
	rec := f.store.records[models.OTPKey(models.OTPVerifyPhone, "966512345678")]
	assert.NotContains(t, rec.Hash, code)
	assert.Len(t, rec.Salt, 32)
	assert.Len(t, rec.Hash, 64)
	assert.Equal(t, 1, rec.SendCount)
	assert.Equal(t, "966512345678", f.sms.Sent()[0].Phone)
}

func TestSendLocalizesMessage(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Send(context.Background(), "0512345678", models.OTPResetPassword, "ar")
	require.NoError(t, err)
	assert.Contains(t, f.sms.Sent()[0].Body, "رمز إعادة تعيين كلمة المرور")
}

func TestSendThrottles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)

	f.now = f.now.Add(20 * time.Second)
	_, err = f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	var throttle *ThrottleError
	require.ErrorAs(t, err, &throttle)
	assert.ErrorIs(t, err, ErrResendTooSoon)
	assert.Equal(t, 40*time.Second, throttle.RetryAfter)

	for i := 0; i < MaxSendsPerWindow-1; i++ {
		f.now = f.now.Add(ResendCooldown)
		_, err = f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
		require.NoError(t, err)
	}
	f.now = f.now.Add(ResendCooldown)
	_, err = f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	assert.ErrorIs(t, err, ErrTooManyRequests)

	f.now = f.now.Add(SendWindow)
	_, err = f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	assert.NoError(t, err)
}

// flakySMS fails while down is set and delegates to the mock otherwise.
type flakySMS struct {
	*services.MockSMSClient
	down bool
}

func (f *flakySMS) Send(ctx context.Context, phone, body string) error {
	if f.down {
		return errors.New("taqnyat 503")
	}
	return f.MockSMSClient.Send(ctx, phone, body)
}

func TestSendFailureKeepsRecordAndQuota(t *testing.T) {
	f := newFixture()
	sms := &flakySMS{MockSMSClient: f.sms}
	f.svc.sms = sms
	ctx := context.Background()
	key := models.OTPKey(models.OTPVerifyPhone, "966512345678")

	_, err := f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)
	before := f.store.records[key]

	f.now = f.now.Add(ResendCooldown)
	sms.down = true
	_, err = f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.EqualError(t, err, "taqnyat 503")
	assert.Equal(t, before, f.store.records[key])

	// no cooldown started by the failed attempt
	f.now = f.now.Add(5 * time.Second)
	sms.down = false
	_, err = f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.records[key].SendCount)
	assert.Len(t, f.sms.Sent(), 2)
}

func TestSendFailureLeavesPreviousCodeValid(t *testing.T) {
	f := newFixture()
	sms := &flakySMS{MockSMSClient: f.sms}
	f.svc.sms = sms
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)
	code := f.lastCode(t)

	f.now = f.now.Add(ResendCooldown)
	sms.down = true
	_, err = f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.Error(t, err)

	_, err = f.svc.Verify(ctx, "0512345678", models.OTPVerifyPhone, code)
	assert.NoError(t, err)
}

func TestSendRejectsInvalidInput(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Send(context.Background(), "12345", models.OTPVerifyPhone, "en")
	assert.ErrorIs(t, err, ErrInvalidPhone)
	_, err = f.svc.Send(context.Background(), "0512345678", models.OTPPurpose("login"), "en")
	assert.ErrorIs(t, err, ErrInvalidPurpose)
}

func TestVerifyFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)
	code := f.lastCode(t)

	_, err = f.svc.Verify(ctx, "0512345678", models.OTPVerifyPhone, wrongCode(code))
	assert.ErrorIs(t, err, ErrInvalidCode)

	phone, err := f.svc.Verify(ctx, "+966512345678", models.OTPVerifyPhone, code)
	require.NoError(t, err)
	assert.Equal(t, "966512345678", phone)

	_, err = f.svc.Verify(ctx, "0512345678", models.OTPVerifyPhone, code)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestVerifyPurposeIsolation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, "0512345678", models.OTPResetPassword, f.lastCode(t))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestVerifyExpired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)
	f.now = f.now.Add(CodeTTL)

	_, err = f.svc.Verify(ctx, "0512345678", models.OTPVerifyPhone, f.lastCode(t))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyLocksAfterMaxAttempts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)
	code := f.lastCode(t)

	for i := 0; i < MaxAttempts-1; i++ {
		_, err = f.svc.Verify(ctx, "0512345678", models.OTPVerifyPhone, wrongCode(code))
		require.ErrorIs(t, err, ErrInvalidCode)
	}
	_, err = f.svc.Verify(ctx, "0512345678", models.OTPVerifyPhone, wrongCode(code))
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	_, err = f.svc.Verify(ctx, "0512345678", models.OTPVerifyPhone, code)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestResendResetsAttempts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)
	first := f.lastCode(t)
	for i := 0; i < MaxAttempts; i++ {
		_, _ = f.svc.Verify(ctx, "0512345678", models.OTPVerifyPhone, wrongCode(first))
	}

	f.now = f.now.Add(ResendCooldown)
	_, err = f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, "0512345678", models.OTPVerifyPhone, f.lastCode(t))
	assert.NoError(t, err)
}

func TestConfirmPhone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.owners["candidate#phone#966512345678"] = "cand-1"

	_, err := f.svc.Send(ctx, "0512345678", models.OTPVerifyPhone, "en")
	require.NoError(t, err)
	code := f.lastCode(t)

	err = f.svc.ConfirmPhone(ctx, models.RoleCandidate, "someone-else", "0512345678", code)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	require.NoError(t, f.svc.ConfirmPhone(ctx, models.RoleCandidate, "cand-1", "0512345678", code))
	assert.True(t, f.store.verified["candidate#cand-1"])
}
