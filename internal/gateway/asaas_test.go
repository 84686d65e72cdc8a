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
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *AsaasClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewAsaasClient(Options{
		BaseURL:         srv.URL,
		APIKey:          "test-key",
		Timeout:         time.Second,
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
	}, nil)
}

func TestAsaas_CreateRemoteCharge_SendsPayload(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/payments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("access_token") != "test-key" {
			t.Errorf("missing access token header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pay_123","status":"PENDING","value":150.5,"dueDate":"2025-03-10","invoiceUrl":"https://example.test/i/pay_123"}`))
	})

	remote, err := client.CreateRemoteCharge(context.Background(), CreateChargeRequest{
		CustomerID:        "cus_1",
		BillingType:       BillingTypePix,
		Value:             decimal.RequireFromString("150.5"),
		DueDate:           time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Description:       "March",
		ExternalReference: "charge-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if remote.ID != "pay_123" {
		t.Errorf("expected id pay_123, got %s", remote.ID)
	}
	if !remote.Value.Equal(decimal.RequireFromString("150.50")) {
		t.Errorf("expected value 150.50, got %s", remote.Value)
	}
	if got["value"] != 150.5 {
		t.Errorf("expected numeric value 150.5 in body, got %v", got["value"])
	}
	if got["dueDate"] != "2025-03-10" {
		t.Errorf("expected dueDate 2025-03-10, got %v", got["dueDate"])
	}
	if got["externalReference"] != "charge-1" {
		t.Errorf("expected externalReference charge-1, got %v", got["externalReference"])
	}
}

func TestAsaas_ConfirmCashSettlement_Path(t *testing.T) {
	var body receiveInCashBody
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/payments/pay_1/receiveInCash" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"id":"pay_1","status":"RECEIVED_IN_CASH"}`))
	})

	err := client.ConfirmCashSettlement(context.Background(), "pay_1",
		time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.PaymentDate != "2025-01-05" || body.Value.String() != "100.00" {
		t.Errorf("unexpected body %+v", body)
	}
	if body.NotifyCustomer {
		t.Error("expected notifyCustomer=false")
	}
}

func TestAsaas_ErrorClassification(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, ``, ErrRateLimited},
		{"not found", http.StatusNotFound, ``, ErrNotFound},
		{"rejected", http.StatusBadRequest, `{"errors":[{"code":"invalid_dueDate","description":"due date in the past"}]}`, ErrRejected},
		{"server error", http.StatusBadGateway, ``, ErrUnreachable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			err := client.UndoCashSettlement(context.Background(), "pay_1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAsaas_RejectedError_CarriesReason(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":"invalid_value","description":"value below minimum"}]}`))
	})

	err := client.UpdateRemoteCharge(context.Background(), "pay_1", decimal.NewFromInt(1), time.Now())

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Code != "invalid_value" || rejected.Reason != "value below minimum" {
		t.Errorf("unexpected rejection %+v", rejected)
	}
	if IsRetryable(err) {
		t.Error("rejections must not be retryable")
	}
}

func TestAsaas_Timeout_IsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client := NewAsaasClient(Options{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, nil)

	err := client.DeleteRemoteCharge(context.Background(), "pay_1")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("timeouts should be retryable")
	}
}

func TestAsaas_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 5; i++ {
		err := client.DeleteRemoteCharge(context.Background(), "pay_1")
		if !errors.Is(err, ErrUnreachable) {
			t.Fatalf("call %d: expected ErrUnreachable, got %v", i, err)
		}
	}

	if calls.Load() != 3 {
		t.Errorf("expected breaker to stop traffic after 3 calls, server saw %d", calls.Load())
	}
}

func TestAsaas_RejectionsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	for i := 0; i < 5; i++ {
		_ = client.DeleteRemoteCharge(context.Background(), "pay_1")
	}

	if calls.Load() != 5 {
		t.Errorf("expected all 5 calls to reach the server, got %d", calls.Load())
	}
}

func TestAsaas_FetchPaymentQRPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/payments/pay_9/pixQrCode" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"encodedImage":"aW1n","payload":"000201...","expirationDate":"2025-02-01 23:59:59"}`))
	})

	qr, err := client.FetchPaymentQRPayload(context.Background(), "pay_9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qr.Payload != "000201..." || qr.EncodedImage != "aW1n" {
		t.Errorf("unexpected payload %+v", qr)
	}
	want := time.Date(2025, 2, 1, 23, 59, 59, 0, time.UTC)
	if !qr.ExpirationDate.Equal(want) {
		t.Errorf("expected expiration %v, got %v", want, qr.ExpirationDate)
	}
}
