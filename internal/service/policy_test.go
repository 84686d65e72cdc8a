package service

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cobranca/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func linkedCharge(status domain.ChargeStatus, manual bool) *domain.Charge {
	ref := "g1"
	return &domain.Charge{
		ID:                  "charge-1",
		Amount:              decimal.NewFromInt(100),
		DueDate:             date(2025, 1, 10),
		Status:              status,
		Origin:              domain.ChargeOriginAutomatic,
		ManualPayment:       manual,
		ExternalReferenceID: &ref,
		CreatedAt:           date(2024, 12, 20),
	}
}

func TestCanEditAmount(t *testing.T) {
	testCases := []struct {
		name   string
		status domain.ChargeStatus
		manual bool
		want   bool
	}{
		{"pending", domain.ChargeStatusPending, false, true},
		{"paid manually", domain.ChargeStatusPaid, true, true},
		{"paid through gateway", domain.ChargeStatusPaid, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanEditAmount(linkedCharge(tc.status, tc.manual)); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCanEditDueDate(t *testing.T) {
	if !CanEditDueDate(linkedCharge(domain.ChargeStatusPending, false)) {
		t.Error("pending charge due date should be editable")
	}
	if CanEditDueDate(linkedCharge(domain.ChargeStatusPaid, true)) {
		t.Error("paid charge due date should not be editable")
	}
}

func TestValidateDueDateChange(t *testing.T) {
	today := date(2025, 1, 5)

	testCases := []struct {
		name   string
		charge *domain.Charge
		newDue time.Time
		want   error
	}{
		{"linked pending past date", linkedCharge(domain.ChargeStatusPending, false), date(2024, 12, 1), ErrDueDateInPast},
		{"linked pending yesterday", linkedCharge(domain.ChargeStatusPending, false), date(2025, 1, 4), ErrDueDateInPast},
		{"linked pending today", linkedCharge(domain.ChargeStatusPending, false), today, nil},
		{"linked pending future", linkedCharge(domain.ChargeStatusPending, false), date(2025, 2, 1), nil},
		{"unlinked past date", &domain.Charge{Status: domain.ChargeStatusPending, DueDate: date(2025, 1, 10)}, date(2024, 12, 1), nil},
		{"paid charge is out of scope", linkedCharge(domain.ChargeStatusPaid, true), date(2024, 12, 1), nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDueDateChange(tc.charge, tc.newDue, today)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateDueDateChange_UnchangedPastDateAccepted(t *testing.T) {
	charge := linkedCharge(domain.ChargeStatusPending, false)

	// An overdue charge keeps its own due date even though it is in the past.
	if err := ValidateDueDateChange(charge, charge.DueDate, date(2025, 3, 1)); err != nil {
		t.Errorf("expected unchanged due date to be accepted, got %v", err)
	}
}

func TestRequiresUndoSync(t *testing.T) {
	charge := linkedCharge(domain.ChargeStatusPaid, true)
	if !RequiresUndoSync(charge) {
		t.Error("automatic linked charge should require undo sync")
	}

	charge.Origin = domain.ChargeOriginManual
	if RequiresUndoSync(charge) {
		t.Error("manual charge should not require undo sync")
	}

	charge.Origin = domain.ChargeOriginAutomatic
	charge.ExternalReferenceID = nil
	if RequiresUndoSync(charge) {
		t.Error("unlinked charge should not require undo sync")
	}
}

func TestEffectiveSettlementDate(t *testing.T) {
	charge := linkedCharge(domain.ChargeStatusPending, false)
	today := date(2025, 1, 5)

	if got := EffectiveSettlementDate(charge, date(2024, 12, 1), today); !got.Equal(today) {
		t.Errorf("backdated payment should settle today, got %v", got)
	}
	if got := EffectiveSettlementDate(charge, date(2024, 12, 20), today); !got.Equal(date(2024, 12, 20)) {
		t.Errorf("payment on creation day should be kept, got %v", got)
	}
	if got := EffectiveSettlementDate(charge, date(2025, 1, 2), today); !got.Equal(date(2025, 1, 2)) {
		t.Errorf("payment after creation should be kept, got %v", got)
	}
}

func TestEffectiveSettlementDate_CreationDayInClockLocation(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	charge := linkedCharge(domain.ChargeStatusPending, false)
	// 22:30 on Jan 10 in São Paulo, as read back from a UTC session.
	charge.CreatedAt = time.Date(2025, 1, 11, 1, 30, 0, 0, time.UTC)
	today := time.Date(2025, 1, 15, 9, 0, 0, 0, saoPaulo)

	if got := EffectiveSettlementDate(charge, date(2025, 1, 10), today); !got.Equal(date(2025, 1, 10)) {
		t.Errorf("payment on the local creation day should be kept, got %v", got)
	}
	if got := EffectiveSettlementDate(charge, date(2025, 1, 9), today); !got.Equal(date(2025, 1, 15)) {
		t.Errorf("payment before the local creation day should settle today, got %v", got)
	}
}

func TestValidAmount(t *testing.T) {
	testCases := []struct {
		amount string
		want   bool
	}{
		{"100", true},
		{"95.50", true},
		{"0.01", true},
		{"100.000", true},
		{"0.001", false},
		{"10.999", false},
		{"0", false},
		{"-5.00", false},
	}

	for _, tc := range testCases {
		t.Run(tc.amount, func(t *testing.T) {
			if got := ValidAmount(decimal.RequireFromString(tc.amount)); got != tc.want {
				t.Errorf("ValidAmount(%s) = %v, want %v", tc.amount, got, tc.want)
			}
		})
	}
}

func TestValidateDetailsChange(t *testing.T) {
	today := date(2025, 1, 5)

	testCases := []struct {
		name   string
		charge *domain.Charge
		amount decimal.Decimal
		due    time.Time
		want   error
	}{
		{"zero amount", linkedCharge(domain.ChargeStatusPending, false), decimal.Zero, date(2025, 1, 10), ErrInvalidAmount},
		{"sub-cent amount", linkedCharge(domain.ChargeStatusPending, false), decimal.RequireFromString("100.005"), date(2025, 1, 10), ErrInvalidAmount},
		{"gateway-paid amount change", linkedCharge(domain.ChargeStatusPaid, false), decimal.NewFromInt(90), date(2025, 1, 10), ErrAmountImmutable},
		{"gateway-paid same amount", linkedCharge(domain.ChargeStatusPaid, false), decimal.RequireFromString("100.00"), date(2025, 1, 10), nil},
		{"manually-paid amount change", linkedCharge(domain.ChargeStatusPaid, true), decimal.NewFromInt(90), date(2025, 1, 10), nil},
		{"paid due date change", linkedCharge(domain.ChargeStatusPaid, true), decimal.NewFromInt(100), date(2025, 1, 20), ErrDueDateImmutable},
		{"pending past due date", linkedCharge(domain.ChargeStatusPending, false), decimal.NewFromInt(100), date(2024, 12, 1), ErrDueDateInPast},
		{"pending valid edit", linkedCharge(domain.ChargeStatusPending, false), decimal.NewFromInt(120), date(2025, 2, 10), nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDetailsChange(tc.charge, tc.amount, tc.due, today)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
