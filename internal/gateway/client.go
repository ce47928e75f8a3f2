// Package gateway предоставляет клиент внешнего платёжного шлюза и схему подписи его уведомлений.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/archivemart/internal/model"
)

// Статусы платежа, которые сообщает шлюз.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
}

// CreatePaymentRequest — запрос на создание платежа.
type CreatePaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reference string          `json:"reference"`
}

// Payment — созданный платёж.
type Payment struct {
	ExternalID string `json:"external_id"`
	PaymentURL string `json:"payment_url"`
}

// PaymentStatus описывает ответ шлюза о состоянии платежа. Тот же формат приходит в уведомлениях.
type PaymentStatus struct {
	ExternalID string          `json:"external_id"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
}

// Paid сообщает, что платёж успешно проведён.
func (s PaymentStatus) Paid() bool {
	return s.Status == StatusPaid || s.Status == StatusCompleted
}

// Failed сообщает, что платёж окончательно не состоялся.
func (s PaymentStatus) Failed() bool {
	return s.Status == StatusFailed || s.Status == StatusCancelled || s.Status == StatusExpired
}

// NewClient создаёт HTTP-клиент для обращения к шлюзу по указанному адресу.
// Запросы повторяются при ошибках сети и ответах 5xx.
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = checkRetry
	rc.Logger = nil
	if logger != nil {
		rc.Logger = leveledLogger{logger.Sugar().Named("gateway")}
	}

	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL:    base,
		apiKey:     apiKey,
		httpClient: rc,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*retryablehttp.Request, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("payment gateway not configured: %w", model.ErrExternalUnavailable)
	}

	var raw any
	if body != nil {
		raw = bytes.NewReader(body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, raw)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// CreatePayment создаёт платёж на сумму amountCents. reference — идентификатор заказа.
// Недоступность шлюза возвращается как model.ErrExternalUnavailable.
func (c *Client) CreatePayment(ctx context.Context, amountCents int64, currency, reference string) (*Payment, error) {
	body, err := json.Marshal(CreatePaymentRequest{
		Amount:    decimal.New(amountCents, -2),
		Currency:  currency,
		Reference: reference,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/payments", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Idempotency-Key", reference)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w: %v", model.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("create payment: %w: status %d", model.ErrExternalUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create payment: unexpected status: %d", resp.StatusCode)
	}

	var p Payment
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if p.ExternalID == "" {
		return nil, fmt.Errorf("create payment: empty external id")
	}

	return &p, nil
}

// GetPaymentStatus запрашивает состояние платежа. Возвращает код ответа и, для 429,
// время ожидания из заголовка Retry-After.
func (c *Client) GetPaymentStatus(ctx context.Context, externalID string) (*PaymentStatus, int, time.Duration, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/payments/"+externalID, nil)
	if err != nil {
		return nil, 0, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w: %v", model.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result PaymentStatus
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	return &result, resp.StatusCode, 0, nil
}

// checkRetry повторяет запросы при ошибках сети и 5xx. Ответ 429 возвращается вызывающему,
// который сам выдерживает паузу из Retry-After.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// leveledLogger передаёт сообщения retryablehttp в zap.
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.l.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.l.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.l.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.l.Debugw(msg, kv...) }
