package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"talent-source/utils"
)

type SMSClient interface {
	Send(ctx context.Context, phone string, body string) error
}

type taqnyatClientImpl struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	sender       string
	retryInitial time.Duration
}

type taqnyatRequest struct {
	Recipients []string `json:"recipients"`
	Body       string   `json:"body"`
	Sender     string   `json:"sender"`
}

type taqnyatResponse struct {
	StatusCode int    `json:"statusCode"`
	MessageID  any    `json:"messageId"`
	Message    string `json:"message"`
}

func NewTaqnyatService(baseURL, token, sender string) SMSClient {
	if baseURL == "" {
		baseURL = "https://api.taqnyat.sa"
	}
	return &taqnyatClientImpl{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		sender:       sender,
		retryInitial: 500 * time.Millisecond,
	}
}

func (t *taqnyatClientImpl) Send(ctx context.Context, phone string, body string) error {
	req := taqnyatRequest{Recipients: []string{phone}, Body: body, Sender: t.sender}
	err := retryTransient(ctx, "taqnyat", t.retryInitial, 3, func() error {
		var resp taqnyatResponse
		return PostJSON(ctx, t.httpClient, t.baseURL+"/v1/messages", BearerHeader(t.token), req, &resp)
	})
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	utils.Debug("sms sent", zap.String("phone", maskPhone(phone)))
	return nil
}

// SentSMS is a message captured by the logging client.
type SentSMS struct {
	Phone string
	Body  string
}

// MockSMSClient logs messages instead of sending them.
type MockSMSClient struct {
	mu   sync.Mutex
	sent []SentSMS
}

func NewMockSMSService() *MockSMSClient {
	return &MockSMSClient{}
}

func (m *MockSMSClient) Send(_ context.Context, phone string, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentSMS{Phone: phone, Body: body})
	m.mu.Unlock()
	utils.Logger().Info("dry run sms", zap.String("phone", maskPhone(phone)), zap.String("body", body))
	return nil
}

func (m *MockSMSClient) Sent() []SentSMS {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentSMS(nil), m.sent...)
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
