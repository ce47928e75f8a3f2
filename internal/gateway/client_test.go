package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/archivemart/internal/model"
)

func newTestClient(url string) *Client {
	c := NewClient(url, "secret-key", nil)
	c.httpClient.RetryWaitMin = time.Millisecond
	c.httpClient.RetryWaitMax = 5 * time.Millisecond
	return c
}

func TestCreatePayment_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/payments" {
			t.Fatalf("path = %s, want /api/payments", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Fatalf("authorization = %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "order-1" {
			t.Fatalf("idempotency key = %q, want order-1", got)
		}

		var req CreatePaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !req.Amount.Equal(decimal.RequireFromString("27.50")) || req.Currency != "USD" || req.Reference != "order-1" {
			t.Fatalf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Payment{ExternalID: "pay_1", PaymentURL: "https://pay.example/pay_1"})
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	p, err := newTestClient(ts.URL).CreatePayment(ctx, 27_50, "USD", "order-1")
	if err != nil {
		t.Fatalf("CreatePayment error: %v", err)
	}
	if p.ExternalID != "pay_1" || p.PaymentURL != "https://pay.example/pay_1" {
		t.Fatalf("unexpected payment: %+v", p)
	}
}

func TestCreatePayment_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Payment{ExternalID: "pay_2"})
	}))
	defer ts.Close()

	p, err := newTestClient(ts.URL).CreatePayment(context.Background(), 100, "USD", "order-2")
	if err != nil {
		t.Fatalf("CreatePayment error: %v", err)
	}
	if p.ExternalID != "pay_2" {
		t.Fatalf("external id = %q, want pay_2", p.ExternalID)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestCreatePayment_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).CreatePayment(context.Background(), 100, "USD", "order-3")
	if !errors.Is(err, model.ErrExternalUnavailable) {
		t.Fatalf("err = %v, want ErrExternalUnavailable", err)
	}
}

func TestCreatePayment_NotConfigured(t *testing.T) {
	_, err := NewClient("", "", nil).CreatePayment(context.Background(), 100, "USD", "order-4")
	if !errors.Is(err, model.ErrExternalUnavailable) {
		t.Fatalf("err = %v, want ErrExternalUnavailable", err)
	}
}

func TestGetPaymentStatus_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payments/pay_1" {
			t.Fatalf("path = %s, want /api/payments/pay_1", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"external_id":"pay_1","status":"paid","amount":"27.50"}`))
	}))
	defer ts.Close()

	res, code, retry, err := newTestClient(ts.URL).GetPaymentStatus(context.Background(), "pay_1")
	if err != nil {
		t.Fatalf("GetPaymentStatus error: %v", err)
	}
	if code != http.StatusOK || retry != 0 {
		t.Fatalf("code = %d, retry = %v", code, retry)
	}
	if !res.Paid() || res.Failed() {
		t.Fatalf("status %q must be paid", res.Status)
	}
	if !res.Amount.Equal(decimal.RequireFromString("27.5")) {
		t.Fatalf("amount = %s", res.Amount)
	}
}

func TestGetPaymentStatus_TooManyRequests(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, retry, err := newTestClient(ts.URL).GetPaymentStatus(ctx, "pay_1")
	if err != nil {
		t.Fatalf("GetPaymentStatus error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil response for 429, got %+v", res)
	}
	if code != http.StatusTooManyRequests {
		t.Fatalf("status code = %d, want %d", code, http.StatusTooManyRequests)
	}
	if retry < 5*time.Second {
		t.Fatalf("retryAfter = %v, want at least 5s", retry)
	}
	if calls.Load() != 1 {
		t.Fatalf("429 must not be retried by the client, calls = %d", calls.Load())
	}
}

func TestGetPaymentStatus_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	res, code, _, err := newTestClient(ts.URL).GetPaymentStatus(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetPaymentStatus error: %v", err)
	}
	if res != nil || code != http.StatusNotFound {
		t.Fatalf("res = %+v, code = %d", res, code)
	}
}
