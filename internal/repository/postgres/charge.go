package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"cobranca/internal/domain"
	"cobranca/internal/repository"
)

const uniqueViolation = "23505"

// ChargeRepository is a PostgreSQL implementation of repository.ChargeRepository.
type ChargeRepository struct {
	q Querier
}

// NewChargeRepository creates a new PostgreSQL charge repository.
func NewChargeRepository(db *sql.DB) *ChargeRepository {
	return &ChargeRepository{q: db}
}

// Create persists a new charge.
func (r *ChargeRepository) Create(ctx context.Context, charge *domain.Charge) error {
	query := `
		INSERT INTO charges (
			id, passenger_id, description, amount, due_date, payment_date, payment_type,
			status, origin, manual_payment, external_reference_id, reminders_disabled,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.q.ExecContext(ctx, query,
		charge.ID,
		charge.PassengerID,
		charge.Description,
		charge.Amount,
		charge.DueDate,
		nullTime(charge.PaymentDate),
		nullPaymentType(charge.PaymentType),
		charge.Status,
		charge.Origin,
		charge.ManualPayment,
		nullString(charge.ExternalReferenceID),
		charge.RemindersDisabled,
		charge.CreatedAt,
		charge.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrAlreadyExists
		}
		return err
	}

	return nil
}

// GetByID retrieves a charge by ID.
func (r *ChargeRepository) GetByID(ctx context.Context, id string) (*domain.Charge, error) {
	query := `
		SELECT id, passenger_id, description, amount, due_date, payment_date, payment_type,
			status, origin, manual_payment, external_reference_id, reminders_disabled,
			created_at, updated_at
		FROM charges WHERE id = $1
	`

	var (
		charge      domain.Charge
		paymentDate pq.NullTime
		paymentType sql.NullString
		externalRef sql.NullString
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&charge.ID,
		&charge.PassengerID,
		&charge.Description,
		&charge.Amount,
		&charge.DueDate,
		&paymentDate,
		&paymentType,
		&charge.Status,
		&charge.Origin,
		&charge.ManualPayment,
		&externalRef,
		&charge.RemindersDisabled,
		&charge.CreatedAt,
		&charge.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	charge.DueDate = domain.DateOf(charge.DueDate)
	if paymentDate.Valid {
		d := domain.DateOf(paymentDate.Time)
		charge.PaymentDate = &d
	}
	if paymentType.Valid {
		pt := domain.PaymentType(paymentType.String)
		charge.PaymentType = &pt
	}
	if externalRef.Valid {
		ref := externalRef.String
		charge.ExternalReferenceID = &ref
	}

	return &charge, nil
}

// Update writes the columns owned by the charge lifecycle: amount, dates,
// settlement fields, status and the gateway reference. description and
// reminders_disabled belong to other flows and are never rewritten here.
func (r *ChargeRepository) Update(ctx context.Context, charge *domain.Charge) error {
	query := `
		UPDATE charges SET
			amount = $1,
			due_date = $2,
			payment_date = $3,
			payment_type = $4,
			status = $5,
			manual_payment = $6,
			external_reference_id = $7,
			updated_at = $8
		WHERE id = $9
	`

	result, err := r.q.ExecContext(ctx, query,
		charge.Amount,
		charge.DueDate,
		nullTime(charge.PaymentDate),
		nullPaymentType(charge.PaymentType),
		charge.Status,
		charge.ManualPayment,
		nullString(charge.ExternalReferenceID),
		charge.UpdatedAt,
		charge.ID,
	)
	if err != nil {
		return err
	}

	return expectOneRow(result)
}

// Delete permanently removes a charge.
func (r *ChargeRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM charges WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func nullTime(t *time.Time) pq.NullTime {
	if t == nil {
		return pq.NullTime{}
	}
	return pq.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullPaymentType(p *domain.PaymentType) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}
