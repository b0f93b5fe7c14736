package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"talent-source/utils"
)

type Email struct {
	To      string
	Subject string
	Text    string
}

type EmailClient interface {
	Send(ctx context.Context, msg Email) error
}

type sesClientImpl struct {
	client *sesv2.Client
	from   string
}

func NewSESService(cfg aws.Config, from string) EmailClient {
	return &sesClientImpl{client: sesv2.NewFromConfig(cfg), from: from}
}

func (s *sesClientImpl) Send(ctx context.Context, msg Email) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("ses rejected email (%s): %w", apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// MockEmailClient logs emails instead of sending them.
type MockEmailClient struct {
	mu   sync.Mutex
	sent []Email
}

func NewMockEmailService() *MockEmailClient {
	return &MockEmailClient{}
}

func (m *MockEmailClient) Send(_ context.Context, msg Email) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	utils.Logger().Info("dry run email", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func (m *MockEmailClient) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}
