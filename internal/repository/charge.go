package repository

import (
	"context"

	"cobranca/internal/domain"
)

// ChargeRepository defines the persistence operations for charges.
// Every call touches exactly one row; no multi-row transaction is offered.
type ChargeRepository interface {
	// Create persists a new charge.
	Create(ctx context.Context, charge *domain.Charge) error

	// GetByID retrieves a charge by ID.
	// Returns ErrNotFound if the charge does not exist.
	GetByID(ctx context.Context, id string) (*domain.Charge, error)

	// Update writes the lifecycle fields of an existing charge (amount,
	// due date, payment date and type, status, manual flag, gateway
	// reference, updated_at). Description and RemindersDisabled are left
	// as stored. Returns ErrNotFound if the charge does not exist.
	Update(ctx context.Context, charge *domain.Charge) error

	// Delete permanently removes a charge.
	// Returns ErrNotFound if the charge does not exist.
	Delete(ctx context.Context, id string) error
}
