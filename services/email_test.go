package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSES(endpoint string) *sesClientImpl {
	cfg := aws.Config{Region: "me-south-1", Credentials: aws.AnonymousCredentials{}}
	client := sesv2.NewFromConfig(cfg, func(o *sesv2.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.RetryMaxAttempts = 1
	})
	return &sesClientImpl{client: client, from: "no-reply@talent.test"}
}

func TestSESSendEmail(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/email/outbound-emails", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"MessageId":"msg-1"}`))
	}))
	defer server.Close()

	err := newTestSES(server.URL).Send(context.Background(), Email{To: "a@b.test", Subject: "Hi", Text: "Body"})
	require.NoError(t, err)
	assert.Equal(t, "no-reply@talent.test", body["FromEmailAddress"])
	dest, _ := body["Destination"].(map[string]any)
	assert.Equal(t, []any{"a@b.test"}, dest["ToAddresses"])
}

func TestSESSendEmailError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Amzn-Errortype", "MessageRejected")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Email address is not verified."}`))
	}))
	defer server.Close()

	err := newTestSES(server.URL).Send(context.Background(), Email{To: "a@b.test", Subject: "Hi", Text: "Body"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}

func TestMockEmailRecords(t *testing.T) {
	m := NewMockEmailService()
	require.NoError(t, m.Send(context.Background(), Email{To: "x@y.test", Subject: "s"}))
	assert.Len(t, m.Sent(), 1)
}
