// Package gateway defines the capabilities consumed from the external payment
// gateway and an HTTP adapter for an Asaas-compatible REST API.
package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BillingType is the payment method a remote charge accepts.
type BillingType string

const (
	BillingTypeUndefined  BillingType = "UNDEFINED"
	BillingTypePix        BillingType = "PIX"
	BillingTypeBoleto     BillingType = "BOLETO"
	BillingTypeCreditCard BillingType = "CREDIT_CARD"
)

// CreateChargeRequest contains the parameters for issuing a remote charge.
type CreateChargeRequest struct {
	CustomerID        string
	BillingType       BillingType
	Value             decimal.Decimal
	DueDate           time.Time
	Description       string
	ExternalReference string // local charge id
}

// RemoteCharge is the gateway's view of a charge.
type RemoteCharge struct {
	ID         string
	Status     string
	Value      decimal.Decimal
	DueDate    time.Time
	InvoiceURL string
}

// QRPayload is an instant-payment QR code issued for a remote charge.
type QRPayload struct {
	EncodedImage   string
	Payload        string
	ExpirationDate time.Time
}

// Client is the set of gateway operations the reconciliation engine relies on.
// Each call blocks until the gateway answers or ctx expires, and either
// succeeds or returns one of ErrRateLimited, *RejectedError, ErrUnreachable
// or ErrNotFound. There are no partial results.
type Client interface {
	CreateRemoteCharge(ctx context.Context, req CreateChargeRequest) (*RemoteCharge, error)
	UpdateRemoteCharge(ctx context.Context, ref string, value decimal.Decimal, dueDate time.Time) error
	DeleteRemoteCharge(ctx context.Context, ref string) error
	ConfirmCashSettlement(ctx context.Context, ref string, date time.Time, value decimal.Decimal) error
	UndoCashSettlement(ctx context.Context, ref string) error
	FetchPaymentQRPayload(ctx context.Context, ref string) (*QRPayload, error)
}
