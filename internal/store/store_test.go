package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-source/models"
)

// dynamoStub answers DynamoDB JSON protocol calls from canned handlers keyed
// by operation name and records every request body it sees.
type dynamoStub struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]func(body map[string]any) (int, string)
	calls    []stubCall
}

type stubCall struct {
	Op   string
	Body map[string]any
}

func newDynamoStub(t *testing.T) *dynamoStub {
	return &dynamoStub{t: t, handlers: map[string]func(map[string]any) (int, string){}}
}

func (d *dynamoStub) on(op string, h func(body map[string]any) (int, string)) {
	d.handlers[op] = h
}

func (d *dynamoStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.Header.Get("X-Amz-Target"), "DynamoDB_20120810.")
	raw, _ := io.ReadAll(r.Body)
	body := map[string]any{}
	_ = json.Unmarshal(raw, &body)

	d.mu.Lock()
	d.calls = append(d.calls, stubCall{Op: op, Body: body})
	h, ok := d.handlers[op]
	d.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	if !ok {
		d.t.Errorf("unexpected target %s", op)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	status, payload := h(body)
	w.WriteHeader(status)
	fmt.Fprint(w, payload)
}

func (d *dynamoStub) opCalls(op string) []stubCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []stubCall
	for _, c := range d.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func ok(payload string) func(map[string]any) (int, string) {
	return func(map[string]any) (int, string) { return http.StatusOK, payload }
}

func canceled(codes ...string) func(map[string]any) (int, string) {
	return func(map[string]any) (int, string) {
		var reasons []string
		for _, c := range codes {
			reasons = append(reasons, fmt.Sprintf(`{"Code":%q}`, c))
		}
		return http.StatusBadRequest, fmt.Sprintf(`{"__type":"com.amazonaws.dynamodb.v20120810#TransactionCanceledException","message":"Transaction cancelled","CancellationReasons":[%s]}`, strings.Join(reasons, ","))
	}
}

func newTestStore(t *testing.T, stub *dynamoStub) *Store {
	t.Helper()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	cfg := aws.Config{
		Region:      "me-south-1",
		Credentials: aws.AnonymousCredentials{},
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(server.URL)
		o.RetryMaxAttempts = 1
	})
	s := New(client, TableNames("test"))
	s.now = func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestTableNamesUsePrefix(t *testing.T) {
	tables := TableNames("prod")
	assert.Equal(t, "prod-Candidates", tables.Candidates)
	assert.Equal(t, "prod-OTPCodes", tables.OTP)
	assert.Equal(t, "Guards", TableNames("").Guards)
	assert.Len(t, tables.Specs(), 11)
}

func TestCreateCandidateMapsGuardFailures(t *testing.T) {
	cases := []struct {
		name  string
		codes []string
		want  error
	}{
		{"emailTaken", []string{"ConditionalCheckFailed", "None", "None"}, models.ErrEmailTaken},
		{"phoneTaken", []string{"None", "None", "ConditionalCheckFailed"}, models.ErrPhoneTaken},
		{"idConflict", []string{"None", "ConditionalCheckFailed", "None"}, models.ErrConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := newDynamoStub(t)
			stub.on("TransactWriteItems", canceled(tc.codes...))
			s := newTestStore(t, stub)

			err := s.CreateCandidate(context.Background(), &models.Candidate{ID: "c1", Email: "a@b.sa", Phone: "966501234567"})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateCandidateWritesGuardsAndItem(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("TransactWriteItems", ok(`{}`))
	s := newTestStore(t, stub)

	err := s.CreateCandidate(context.Background(), &models.Candidate{ID: "c1", Email: "a@b.sa", Phone: "966501234567", Status: models.CandidatePending})
	require.NoError(t, err)

	calls := stub.opCalls("TransactWriteItems")
	require.Len(t, calls, 1)
	items := calls[0].Body["TransactItems"].([]any)
	require.Len(t, items, 3)
	firstPut := items[0].(map[string]any)["Put"].(map[string]any)
	assert.Equal(t, "test-Guards", firstPut["TableName"])
	key := firstPut["Item"].(map[string]any)["Key"].(map[string]any)["S"]
	assert.Equal(t, "candidate#email#a@b.sa", key)
}

func TestCreateInterviewClassifiesChargeFailure(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("TransactWriteItems", canceled("None", "None", "ConditionalCheckFailed"))
	stub.on("GetItem", ok(`{"Item":{"ID":{"S":"e1"},"CreditBalance":{"N":"0"},"PlanExpiresAt":{"S":"2030-01-01T00:00:00Z"},"PlanExpiresUnix":{"N":"1893456000"}}}`))
	s := newTestStore(t, stub)

	err := s.CreateInterview(context.Background(), &models.Interview{ID: "i1", EmployerID: "e1", CandidateID: "c1", CreditsCharged: 3})
	require.ErrorIs(t, err, models.ErrInsufficientCredits)
}

func TestCreateInterviewReportsExpiredPlan(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("TransactWriteItems", canceled("None", "None", "ConditionalCheckFailed"))
	stub.on("GetItem", ok(`{"Item":{"ID":{"S":"e1"},"CreditBalance":{"N":"50"}}}`))
	s := newTestStore(t, stub)

	err := s.CreateInterview(context.Background(), &models.Interview{ID: "i1", EmployerID: "e1", CandidateID: "c1", CreditsCharged: 3})
	require.ErrorIs(t, err, models.ErrPlanExpired)
}

func TestCreateInterviewDuplicate(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("TransactWriteItems", canceled("ConditionalCheckFailed", "None", "None"))
	s := newTestStore(t, stub)

	err := s.CreateInterview(context.Background(), &models.Interview{ID: "i1", EmployerID: "e1", CandidateID: "c1", CreditsCharged: 3})
	require.ErrorIs(t, err, models.ErrDuplicateRequest)
}

func TestTransitionInterviewRefundsAndReleasesGuard(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("TransactWriteItems", ok(`{}`))
	s := newTestStore(t, stub)

	iv := &models.Interview{ID: "i1", EmployerID: "e1", CandidateID: "c1", Status: models.InterviewPending, CreditsCharged: 4}
	err := s.TransitionInterview(context.Background(), iv, Transition{
		From:           models.InterviewPending,
		To:             models.InterviewRejected,
		ModeratorID:    "a1",
		ModerationNote: "incomplete",
		Refund:         4,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InterviewRejected, iv.Status)
	assert.Equal(t, "a1", iv.ModeratorID)

	items := stub.opCalls("TransactWriteItems")[0].Body["TransactItems"].([]any)
	require.Len(t, items, 3)
	assert.Contains(t, items[1].(map[string]any), "Update")
	assert.Contains(t, items[2].(map[string]any), "Delete")
}

func TestTransitionInterviewStaleState(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("TransactWriteItems", canceled("ConditionalCheckFailed"))
	s := newTestStore(t, stub)

	iv := &models.Interview{ID: "i1", Status: models.InterviewApproved}
	err := s.TransitionInterview(context.Background(), iv, Transition{From: models.InterviewApproved, To: models.InterviewCompleted})
	require.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, models.InterviewApproved, iv.Status)
}

func TestGetCandidateNotFound(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("GetItem", ok(`{}`))
	s := newTestStore(t, stub)

	_, err := s.GetCandidate(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestListCandidatesPushesFilterDown(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("Scan", ok(`{"Items":[{"ID":{"S":"c1"},"Name":{"S":"Sara"},"Status":{"S":"active"}}]}`))
	s := newTestStore(t, stub)

	got, err := s.ListCandidates(context.Background(), models.CandidateFilter{Status: models.CandidateActive, MinExperience: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Sara", got[0].Name)

	body := stub.opCalls("Scan")[0].Body
	assert.Contains(t, body["FilterExpression"], "AND")
}

func TestCandidateFilterExpression(t *testing.T) {
	assert.Nil(t, candidateFilterExpression(models.CandidateFilter{}))
	assert.NotNil(t, candidateFilterExpression(models.CandidateFilter{SkillID: "s1"}))
}

func TestFulfillPurchaseAlreadyPaid(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("TransactWriteItems", canceled("ConditionalCheckFailed", "None"))
	s := newTestStore(t, stub)

	err := s.FulfillPurchase(context.Background(), &models.Purchase{ID: "p1", EmployerID: "e1", Credits: 10}, "pay-1", time.Now())
	require.ErrorIs(t, err, models.ErrConflict)
}

func TestCreateUnlockAlreadyUnlocked(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("TransactWriteItems", canceled("ConditionalCheckFailed", "None"))
	s := newTestStore(t, stub)

	err := s.CreateUnlock(context.Background(), &models.ContactUnlock{EmployerID: "e1", CandidateID: "c1", CreditsCharged: 2})
	require.ErrorIs(t, err, models.ErrConflict)
}

func TestListNotificationsNewestFirst(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("Query", ok(`{"Items":[
		{"ID":{"S":"old"},"RecipientID":{"S":"u1"},"CreatedAt":{"S":"2025-01-01T00:00:00Z"}},
		{"ID":{"S":"new"},"RecipientID":{"S":"u1"},"CreatedAt":{"S":"2025-02-01T00:00:00Z"}}
	]}`))
	s := newTestStore(t, stub)

	got, err := s.ListNotifications(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "test-Notifications", stub.opCalls("Query")[0].Body["TableName"])
	assert.Equal(t, indexByRecipient, stub.opCalls("Query")[0].Body["IndexName"])
}

func TestMarkNotificationReadForeignRecipient(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("UpdateItem", func(map[string]any) (int, string) {
		return http.StatusBadRequest, `{"__type":"com.amazonaws.dynamodb.v20120810#ConditionalCheckFailedException","message":"The conditional request failed"}`
	})
	s := newTestStore(t, stub)

	err := s.MarkNotificationRead(context.Background(), "n1", "someone-else")
	require.ErrorIs(t, err, models.ErrConflict)
}

func attributeNames(body map[string]any) []string {
	var names []string
	for _, v := range body["ExpressionAttributeNames"].(map[string]any) {
		names = append(names, v.(string))
	}
	return names
}

func TestUpdateCandidateProfileTouchesOnlyProfileFields(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("UpdateItem", ok(`{"Attributes":{"ID":{"S":"c1"},"Name":{"S":"Sara"},"City":{"S":"Jeddah"},"Status":{"S":"active"},"PhoneVerified":{"BOOL":true},"ExperienceYears":{"N":"4"}}}`))
	s := newTestStore(t, stub)

	// a stale read: pending and unverified
	got, err := s.UpdateCandidateProfile(context.Background(), &models.Candidate{
		ID: "c1", Name: "Sara", City: "Jeddah", ExperienceYears: 4,
		Status: models.CandidatePending, PhoneVerified: false, CVKey: "candidates/c1/cv-old.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CandidateActive, got.Status)
	assert.True(t, got.PhoneVerified)

	body := stub.opCalls("UpdateItem")[0].Body
	names := attributeNames(body)
	assert.Subset(t, names, []string{"Name", "City", "ExperienceYears", "UpdatedAt", "Bio"})
	for _, owned := range []string{"Status", "PhoneVerified", "CVKey", "PhotoKey", "Email", "Phone", "PasswordHash", "CreatedAt"} {
		assert.NotContains(t, names, owned)
	}
	assert.Contains(t, body["UpdateExpression"], "REMOVE")
	assert.Equal(t, "ALL_NEW", body["ReturnValues"])
	assert.Contains(t, body["ConditionExpression"], "attribute_exists")
}

func TestUpdateCandidateProfileMissing(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("UpdateItem", func(map[string]any) (int, string) {
		return http.StatusBadRequest, `{"__type":"com.amazonaws.dynamodb.v20120810#ConditionalCheckFailedException","message":"The conditional request failed"}`
	})
	s := newTestStore(t, stub)

	_, err := s.UpdateCandidateProfile(context.Background(), &models.Candidate{ID: "ghost", Name: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSetCandidateFileReturnsReplacedKey(t *testing.T) {
	stub := newDynamoStub(t)
	stub.on("UpdateItem", ok(`{"Attributes":{"ID":{"S":"c1"},"Name":{"S":"Sara"},"Status":{"S":"active"},"CVKey":{"S":"candidates/c1/cv-old.pdf"},"PhotoKey":{"S":"candidates/c1/photo-1.png"}}}`))
	s := newTestStore(t, stub)

	c, previous, err := s.SetCandidateFile(context.Background(), "c1", "CVKey", "candidates/c1/cv-new.pdf")
	require.NoError(t, err)
	assert.Equal(t, "candidates/c1/cv-old.pdf", previous)
	assert.Equal(t, "candidates/c1/cv-new.pdf", c.CVKey)
	assert.Equal(t, "candidates/c1/photo-1.png", c.PhotoKey)
	assert.Equal(t, models.CandidateActive, c.Status)

	body := stub.opCalls("UpdateItem")[0].Body
	assert.ElementsMatch(t, []string{"CVKey", "UpdatedAt", "ID"}, attributeNames(body))
	assert.Equal(t, "ALL_OLD", body["ReturnValues"])

	_, _, err = s.SetCandidateFile(context.Background(), "c1", "Status", "active")
	assert.Error(t, err)
}
