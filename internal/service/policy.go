package service

import (
	"time"

	"github.com/shopspring/decimal"

	"cobranca/internal/domain"
)

// ValidAmount reports whether amount can be charged: positive and in whole
// cents, matching the NUMERIC(12,2) column and the gateway's two-decimal values.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Round(2).Equal(amount)
}

// CanEditAmount reports whether the charge amount may change. Amounts settled
// by the gateway are final; manually recorded settlements may be corrected.
func CanEditAmount(charge *domain.Charge) bool {
	return !(charge.IsPaid() && !charge.ManualPayment)
}

// CanEditDueDate reports whether the due date may change.
func CanEditDueDate(charge *domain.Charge) bool {
	return !charge.IsPaid()
}

// ValidateDueDateChange rejects moving a gateway-linked pending charge to a
// due date before today. Unchanged due dates are always accepted.
func ValidateDueDateChange(charge *domain.Charge, newDueDate, today time.Time) error {
	if !charge.IsLinked() || charge.IsPaid() {
		return nil
	}

	newDue := domain.DateOf(newDueDate)
	if newDue.Equal(domain.DateOf(charge.DueDate)) {
		return nil
	}

	if newDue.Before(domain.DateOf(today)) {
		return ErrDueDateInPast
	}

	return nil
}

// RequiresGatewaySync reports whether the charge has a gateway mirror.
func RequiresGatewaySync(charge *domain.Charge) bool {
	return charge.IsLinked()
}

// RequiresUndoSync reports whether undoing a payment must also be undone at
// the gateway. Only automatically generated, linked charges qualify.
func RequiresUndoSync(charge *domain.Charge) bool {
	return charge.Origin == domain.ChargeOriginAutomatic && charge.IsLinked()
}

// EffectiveSettlementDate is the date reported to the gateway for a cash
// settlement. The gateway refuses dates before the charge existed, so a
// payment date before the charge's creation day is replaced by today. The
// creation day is taken in today's location, not the store's session zone.
func EffectiveSettlementDate(charge *domain.Charge, requested, today time.Time) time.Time {
	paid := domain.DateOf(requested)
	if paid.Before(domain.DateOf(charge.CreatedAt.In(today.Location()))) {
		return domain.DateOf(today)
	}
	return paid
}

// ValidateDetailsChange runs every edit check for UpdateChargeDetails.
func ValidateDetailsChange(charge *domain.Charge, newAmount decimal.Decimal, newDueDate, today time.Time) error {
	if !ValidAmount(newAmount) {
		return ErrInvalidAmount
	}
	if newDueDate.IsZero() {
		return ErrInvalidDueDate
	}

	if !CanEditAmount(charge) && !newAmount.Equal(charge.Amount) {
		return ErrAmountImmutable
	}

	if !CanEditDueDate(charge) && !domain.DateOf(newDueDate).Equal(domain.DateOf(charge.DueDate)) {
		return ErrDueDateImmutable
	}

	return ValidateDueDateChange(charge, newDueDate, today)
}
