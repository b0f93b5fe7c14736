package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"talent-source/utils"
)

type PaymentKeyType string

const (
	PaymentKeyPaymentID PaymentKeyType = "PaymentId"
	PaymentKeyInvoiceID PaymentKeyType = "InvoiceId"
)

const InvoiceStatusPaid = "Paid"

type PaymentRequest struct {
	Reference     string
	Amount        float64
	Currency      string
	CustomerName  string
	CustomerEmail string
	Language      string
	CallbackURL   string
	ErrorURL      string
}

type PaymentInvoice struct {
	InvoiceID  string
	PaymentURL string
}

type PaymentStatus struct {
	InvoiceID     string
	InvoiceStatus string
	Reference     string
	PaymentID     string
	Amount        float64
}

type PaymentGateway interface {
	SendPayment(ctx context.Context, req PaymentRequest) (*PaymentInvoice, error)
	GetPaymentStatus(ctx context.Context, key string, keyType PaymentKeyType) (*PaymentStatus, error)
}

var ErrPaymentRejected = errors.New("payment gateway rejected the request")

type myFatoorahClientImpl struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	retryInitial time.Duration
}

type myFatoorahEnvelope[T any] struct {
	IsSuccess        bool   `json:"IsSuccess"`
	Message          string `json:"Message"`
	ValidationErrors []struct {
		Name  string `json:"Name"`
		Error string `json:"Error"`
	} `json:"ValidationErrors"`
	Data T `json:"Data"`
}

type sendPaymentRequest struct {
	InvoiceValue       float64 `json:"InvoiceValue"`
	CustomerName       string  `json:"CustomerName"`
	CustomerEmail      string  `json:"CustomerEmail,omitempty"`
	NotificationOption string  `json:"NotificationOption"`
	CustomerReference  string  `json:"CustomerReference"`
	CallBackURL        string  `json:"CallBackUrl"`
	ErrorURL           string  `json:"ErrorUrl"`
	DisplayCurrencyIso string  `json:"DisplayCurrencyIso"`
	Language           string  `json:"Language"`
}

type sendPaymentData struct {
	InvoiceID  int64  `json:"InvoiceId"`
	InvoiceURL string `json:"InvoiceURL"`
}

type paymentStatusRequest struct {
	Key     string `json:"Key"`
	KeyType string `json:"KeyType"`
}

type paymentStatusData struct {
	InvoiceID           int64   `json:"InvoiceId"`
	InvoiceStatus       string  `json:"InvoiceStatus"`
	CustomerReference   string  `json:"CustomerReference"`
	InvoiceValue        float64 `json:"InvoiceValue"`
	InvoiceTransactions []struct {
		PaymentID         string `json:"PaymentId"`
		TransactionStatus string `json:"TransactionStatus"`
	} `json:"InvoiceTransactions"`
}

func NewMyFatoorahService(baseURL, token string) PaymentGateway {
	if baseURL == "" {
		baseURL = "https://apitest.myfatoorah.com"
	}
	return &myFatoorahClientImpl{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		retryInitial: 500 * time.Millisecond,
	}
}

func (m *myFatoorahClientImpl) SendPayment(ctx context.Context, req PaymentRequest) (*PaymentInvoice, error) {
	lang := "en"
	if req.Language == "ar" {
		lang = "ar"
	}
	body := sendPaymentRequest{
		InvoiceValue:       req.Amount,
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		NotificationOption: "LNK",
		CustomerReference:  req.Reference,
		CallBackURL:        req.CallbackURL,
		ErrorURL:           req.ErrorURL,
		DisplayCurrencyIso: req.Currency,
		Language:           lang,
	}
	var resp myFatoorahEnvelope[sendPaymentData]
	if err := m.call(ctx, "/v2/SendPayment", body, &resp); err != nil {
		return nil, fmt.Errorf("send payment: %w", err)
	}
	return &PaymentInvoice{
		InvoiceID:  strconv.FormatInt(resp.Data.InvoiceID, 10),
		PaymentURL: resp.Data.InvoiceURL,
	}, nil
}

func (m *myFatoorahClientImpl) GetPaymentStatus(ctx context.Context, key string, keyType PaymentKeyType) (*PaymentStatus, error) {
	var resp myFatoorahEnvelope[paymentStatusData]
	if err := m.call(ctx, "/v2/GetPaymentStatus", paymentStatusRequest{Key: key, KeyType: string(keyType)}, &resp); err != nil {
		return nil, fmt.Errorf("get payment status: %w", err)
	}
	status := &PaymentStatus{
		InvoiceID:     strconv.FormatInt(resp.Data.InvoiceID, 10),
		InvoiceStatus: resp.Data.InvoiceStatus,
		Reference:     resp.Data.CustomerReference,
		Amount:        resp.Data.InvoiceValue,
	}
	if keyType == PaymentKeyPaymentID {
		status.PaymentID = key
	}
	for _, tx := range resp.Data.InvoiceTransactions {
		if tx.TransactionStatus == "Succss" || tx.TransactionStatus == "Success" {
			status.PaymentID = tx.PaymentID
		}
	}
	return status, nil
}

func (m *myFatoorahClientImpl) call(ctx context.Context, path string, in any, out interface{ success() (bool, string) }) error {
	err := retryTransient(ctx, "myfatoorah", m.retryInitial, 3, func() error {
		return PostJSON(ctx, m.httpClient, m.baseURL+path, BearerHeader(m.token), in, out)
	})
	if err != nil {
		return err
	}
	if ok, msg := out.success(); !ok {
		return fmt.Errorf("%w: %s", ErrPaymentRejected, msg)
	}
	return nil
}

func (e *myFatoorahEnvelope[T]) success() (bool, string) {
	if e.IsSuccess {
		return true, ""
	}
	msg := e.Message
	for _, v := range e.ValidationErrors {
		msg += "; " + v.Name + ": " + v.Error
	}
	return false, msg
}

// MockPaymentGateway approves every invoice immediately. The payment URL
// points straight at the callback so the whole flow runs locally.
type MockPaymentGateway struct {
	mu        sync.Mutex
	publicURL string
	invoices  map[string]PaymentStatus
}

func NewMockPaymentGateway(publicURL string) *MockPaymentGateway {
	return &MockPaymentGateway{publicURL: strings.TrimRight(publicURL, "/"), invoices: map[string]PaymentStatus{}}
}

func (m *MockPaymentGateway) SendPayment(_ context.Context, req PaymentRequest) (*PaymentInvoice, error) {
	invoiceID := uuid.NewString()
	paymentID := "mock-" + invoiceID
	m.mu.Lock()
	m.invoices[invoiceID] = PaymentStatus{
		InvoiceID:     invoiceID,
		InvoiceStatus: InvoiceStatusPaid,
		Reference:     req.Reference,
		PaymentID:     paymentID,
		Amount:        req.Amount,
	}
	m.mu.Unlock()
	utils.Logger().Info("dry run payment", zap.String("reference", req.Reference), zap.Float64("amount", req.Amount))
	return &PaymentInvoice{
		InvoiceID:  invoiceID,
		PaymentURL: m.publicURL + "/api/purchases/callback?paymentId=" + url.QueryEscape(paymentID),
	}, nil
}

func (m *MockPaymentGateway) GetPaymentStatus(_ context.Context, key string, keyType PaymentKeyType) (*PaymentStatus, error) {
	invoiceID := key
	if keyType == PaymentKeyPaymentID {
		invoiceID = strings.TrimPrefix(key, "mock-")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.invoices[invoiceID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown invoice %s", ErrPaymentRejected, key)
	}
	return &status, nil
}
