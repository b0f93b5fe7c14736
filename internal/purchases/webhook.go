package purchases

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"talent-source/models"
	"talent-source/services"
)

const SignatureHeader = "MyFatoorah-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

type webhookEvent struct {
	Event string `json:"Event"`
	Data  struct {
		InvoiceID         json.RawMessage `json:"InvoiceId"`
		CustomerReference string          `json:"CustomerReference"`
		TransactionStatus string          `json:"TransactionStatus"`
	} `json:"Data"`
}

// Sign returns the base64 HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (s *Service) VerifySignature(body []byte, signature string) error {
	if len(s.webhookSecret) == 0 || signature == "" {
		return ErrInvalidSignature
	}
	got, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrInvalidSignature
	}
	want, _ := base64.StdEncoding.DecodeString(Sign(s.webhookSecret, body))
	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}
	return nil
}

// HandleWebhook authenticates a gateway notification and settles the
// invoice it names. The event payload is only trusted for the invoice id;
// the status is read back from the gateway.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*models.Purchase, error) {
	if err := s.VerifySignature(body, signature); err != nil {
		return nil, err
	}
	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	invoiceID := strings.Trim(string(event.Data.InvoiceID), `"`)
	if invoiceID == "" || invoiceID == "null" {
		return nil, fmt.Errorf("webhook %q has no invoice id", event.Event)
	}
	return s.Fulfill(ctx, invoiceID, services.PaymentKeyInvoiceID)
}
