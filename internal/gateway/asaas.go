package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
	maxErrorBody    = 64 << 10
)

// Options configures an AsaasClient.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// BreakerFailures consecutive unreachable answers open the breaker
	// for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// AsaasClient talks to an Asaas-compatible REST API.
type AsaasClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

var _ Client = (*AsaasClient)(nil)

// NewAsaasClient creates a new gateway client. Outbound requests are traced as
// New Relic external segments when the request context carries a transaction.
func NewAsaasClient(opts Options, logger *zap.Logger) *AsaasClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	c := &AsaasClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: newrelic.NewRoundTripper(http.DefaultTransport),
		},
		logger: logger.Named("gateway"),
	}

	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only transport-level failures say anything about gateway health.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnreachable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

type createPaymentBody struct {
	Customer          string      `json:"customer"`
	BillingType       BillingType `json:"billingType"`
	Value             json.Number `json:"value"`
	DueDate           string      `json:"dueDate"`
	Description       string      `json:"description,omitempty"`
	ExternalReference string      `json:"externalReference,omitempty"`
}

type updatePaymentBody struct {
	Value   json.Number `json:"value"`
	DueDate string      `json:"dueDate"`
}

type receiveInCashBody struct {
	PaymentDate    string      `json:"paymentDate"`
	Value          json.Number `json:"value"`
	NotifyCustomer bool        `json:"notifyCustomer"`
}

type paymentResponse struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Value      decimal.Decimal `json:"value"`
	DueDate    string          `json:"dueDate"`
	InvoiceURL string          `json:"invoiceUrl"`
}

type pixQRCodeResponse struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

type errorResponse struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

// CreateRemoteCharge issues a new charge at the gateway.
func (c *AsaasClient) CreateRemoteCharge(ctx context.Context, req CreateChargeRequest) (*RemoteCharge, error) {
	billingType := req.BillingType
	if billingType == "" {
		billingType = BillingTypeUndefined
	}

	var resp paymentResponse
	err := c.do(ctx, http.MethodPost, "/v3/payments", createPaymentBody{
		Customer:          req.CustomerID,
		BillingType:       billingType,
		Value:             money(req.Value),
		DueDate:           req.DueDate.Format(dateLayout),
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
	}, &resp)
	if err != nil {
		return nil, err
	}

	remote := &RemoteCharge{
		ID:         resp.ID,
		Status:     resp.Status,
		Value:      resp.Value,
		InvoiceURL: resp.InvoiceURL,
	}
	if d, err := time.Parse(dateLayout, resp.DueDate); err == nil {
		remote.DueDate = d
	}

	return remote, nil
}

// UpdateRemoteCharge pushes a new value and due date to a pending remote charge.
func (c *AsaasClient) UpdateRemoteCharge(ctx context.Context, ref string, value decimal.Decimal, dueDate time.Time) error {
	return c.do(ctx, http.MethodPut, paymentPath(ref, ""), updatePaymentBody{
		Value:   money(value),
		DueDate: dueDate.Format(dateLayout),
	}, nil)
}

// DeleteRemoteCharge cancels a remote charge.
func (c *AsaasClient) DeleteRemoteCharge(ctx context.Context, ref string) error {
	return c.do(ctx, http.MethodDelete, paymentPath(ref, ""), nil, nil)
}

// ConfirmCashSettlement marks a remote charge as received outside the gateway.
func (c *AsaasClient) ConfirmCashSettlement(ctx context.Context, ref string, date time.Time, value decimal.Decimal) error {
	return c.do(ctx, http.MethodPost, paymentPath(ref, "receiveInCash"), receiveInCashBody{
		PaymentDate: date.Format(dateLayout),
		Value:       money(value),
	}, nil)
}

// UndoCashSettlement reverts a previous ConfirmCashSettlement.
func (c *AsaasClient) UndoCashSettlement(ctx context.Context, ref string) error {
	return c.do(ctx, http.MethodPost, paymentPath(ref, "undoReceivedInCash"), nil, nil)
}

// FetchPaymentQRPayload retrieves the PIX QR code for a remote charge.
func (c *AsaasClient) FetchPaymentQRPayload(ctx context.Context, ref string) (*QRPayload, error) {
	var resp pixQRCodeResponse
	if err := c.do(ctx, http.MethodGet, paymentPath(ref, "pixQrCode"), nil, &resp); err != nil {
		return nil, err
	}

	qr := &QRPayload{
		EncodedImage: resp.EncodedImage,
		Payload:      resp.Payload,
	}
	if t, err := time.Parse(timestampLayout, resp.ExpirationDate); err == nil {
		qr.ExpirationDate = t
	}

	return qr, nil
}

// do runs one request through the circuit breaker and decodes the answer into out.
func (c *AsaasClient) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if err != nil {
		c.logger.Warn("gateway call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
	}
	return err
}

func (c *AsaasClient) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("access_token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %w", ErrUnreachable, err)
		}
		return nil
	}

	return classify(resp)
}

// classify maps a non-2xx answer to the gateway error taxonomy.
func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	rejected := &RejectedError{StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return rejected
	}
	var parsed errorResponse
	if json.Unmarshal(raw, &parsed) == nil && len(parsed.Errors) > 0 {
		rejected.Code = parsed.Errors[0].Code
		rejected.Reason = parsed.Errors[0].Description
	}

	return rejected
}

func paymentPath(ref, action string) string {
	p := "/v3/payments/" + url.PathEscape(ref)
	if action != "" {
		p += "/" + action
	}
	return p
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
