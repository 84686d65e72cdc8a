package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidChargeID is returned when charge ID is empty.
	ErrInvalidChargeID = errors.New("invalid charge id")

	// ErrInvalidPassengerID is returned when passenger ID is empty.
	ErrInvalidPassengerID = errors.New("invalid passenger id")

	// ErrInvalidAmount is returned when an amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidDueDate is returned when a due date is missing.
	ErrInvalidDueDate = errors.New("invalid due date")

	// ErrInvalidPaymentDate is returned when a payment date is missing.
	ErrInvalidPaymentDate = errors.New("invalid payment date")

	// ErrInvalidPaymentType is returned when payment type is unknown.
	ErrInvalidPaymentType = errors.New("invalid payment type")

	// ErrInvalidOrigin is returned when charge origin is unknown.
	ErrInvalidOrigin = errors.New("invalid charge origin")

	// ErrDueDateInPast is returned when a gateway-linked pending charge would
	// get a due date before today.
	ErrDueDateInPast = errors.New("due date cannot be in the past for a charge registered at the gateway")

	// ErrAmountImmutable is returned when editing the amount of a charge
	// settled by the gateway.
	ErrAmountImmutable = errors.New("amount cannot be changed after the charge was paid through the gateway")

	// ErrDueDateImmutable is returned when editing the due date of a paid charge.
	ErrDueDateImmutable = errors.New("due date cannot be changed after the charge was paid")

	// ErrChargeAlreadyPaid is returned when registering a payment twice.
	ErrChargeAlreadyPaid = errors.New("charge already paid")

	// ErrChargeNotPaid is returned when undoing the payment of a pending charge.
	ErrChargeNotPaid = errors.New("charge is not paid")

	// ErrChargeNotLinked is returned when a gateway-only feature is requested
	// for a charge without a gateway mirror.
	ErrChargeNotLinked = errors.New("charge is not registered at the payment gateway")

	// ErrChargeBusy is returned when another operation holds the charge for
	// longer than the lock wait.
	ErrChargeBusy = errors.New("charge is being modified by another operation")

	// ErrGatewayCommunicationFailed is returned when a gateway step failed and
	// every local effect of the operation was reverted.
	ErrGatewayCommunicationFailed = errors.New("payment gateway communication failed; the change was not applied")

	// ErrIrrecoverableDivergence is matched by every *DivergenceError.
	ErrIrrecoverableDivergence = errors.New("local charge and gateway charge diverged")
)

// validationErrors are rejected before any write and never retried.
var validationErrors = []error{
	ErrInvalidChargeID,
	ErrInvalidPassengerID,
	ErrInvalidAmount,
	ErrInvalidDueDate,
	ErrInvalidPaymentDate,
	ErrInvalidPaymentType,
	ErrInvalidOrigin,
	ErrDueDateInPast,
	ErrAmountImmutable,
	ErrDueDateImmutable,
	ErrChargeAlreadyPaid,
	ErrChargeNotPaid,
	ErrChargeNotLinked,
}

// IsValidationError reports whether err was caused by caller input.
func IsValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// DivergenceError reports that the local store and the gateway disagree about
// a charge and compensation could not reconcile them. Retrying is unsafe
// until someone decides which side is authoritative.
type DivergenceError struct {
	ChargeID  string
	Operation Operation

	// Cause is the step failure that triggered compensation.
	Cause error

	// CompensationErr is the failure of the compensating step, or nil when
	// the operation has no compensating step.
	CompensationErr error
}

func (e *DivergenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "charge %s diverged from gateway during %s: %v", e.ChargeID, e.Operation, e.Cause)
	if e.CompensationErr != nil {
		fmt.Fprintf(&b, "; compensation failed: %v", e.CompensationErr)
	} else {
		b.WriteString("; no compensation available")
	}
	return b.String()
}

// Is makes errors.Is(err, ErrIrrecoverableDivergence) true.
func (e *DivergenceError) Is(target error) bool {
	return target == ErrIrrecoverableDivergence
}

func (e *DivergenceError) Unwrap() []error {
	if e.CompensationErr == nil {
		return []error{e.Cause}
	}
	return []error{e.Cause, e.CompensationErr}
}
