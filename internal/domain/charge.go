package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeStatus represents the settlement status of a charge.
type ChargeStatus string

const (
	ChargeStatusPending ChargeStatus = "PENDING"
	ChargeStatusPaid    ChargeStatus = "PAID"
)

// ChargeOrigin records how a charge came into existence.
type ChargeOrigin string

const (
	ChargeOriginManual    ChargeOrigin = "MANUAL"
	ChargeOriginAutomatic ChargeOrigin = "AUTOMATIC"
)

// Charge is a monthly amount owed by a passenger's responsible party,
// optionally mirrored at the payment gateway.
type Charge struct {
	ID                  string
	PassengerID         string
	Description         string
	Amount              decimal.Decimal
	DueDate             time.Time    // calendar date, see DateOf
	PaymentDate         *time.Time   // set only when Status is PAID
	PaymentType         *PaymentType // set only when Status is PAID
	Status              ChargeStatus
	Origin              ChargeOrigin
	ManualPayment       bool
	ExternalReferenceID *string // gateway charge id; never cleared once set
	RemindersDisabled   bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsPaid reports whether the charge has been settled.
func (c *Charge) IsPaid() bool {
	return c.Status == ChargeStatusPaid
}

// IsLinked reports whether the charge has a mirror at the gateway.
func (c *Charge) IsLinked() bool {
	return c.ExternalReferenceID != nil && *c.ExternalReferenceID != ""
}

// ExternalReference returns the gateway charge id, or "" when unlinked.
func (c *Charge) ExternalReference() string {
	if c.ExternalReferenceID == nil {
		return ""
	}
	return *c.ExternalReferenceID
}

// Clone returns a deep copy of the charge. Pointer fields are copied so the
// clone can serve as a rollback snapshot.
func (c *Charge) Clone() *Charge {
	cp := *c
	if c.PaymentDate != nil {
		d := *c.PaymentDate
		cp.PaymentDate = &d
	}
	if c.PaymentType != nil {
		pt := *c.PaymentType
		cp.PaymentType = &pt
	}
	if c.ExternalReferenceID != nil {
		ref := *c.ExternalReferenceID
		cp.ExternalReferenceID = &ref
	}
	return &cp
}

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
