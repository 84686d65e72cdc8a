package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cobranca/internal/domain"
	"cobranca/internal/gateway"
	"cobranca/internal/redis"
	"cobranca/internal/repository"
)

const defaultGatewayTimeout = 10 * time.Second

// PixCache caches gateway QR payloads by charge id.
type PixCache interface {
	GetPix(ctx context.Context, chargeID string) (*domain.PixQRCode, error)
	SetPix(ctx context.Context, qr *domain.PixQRCode) error
	InvalidatePix(ctx context.Context, chargeID string) error
}

// ChargeServiceDeps contains the collaborators of a ChargeService.
// Only ChargeRepo and Gateway are required.
type ChargeServiceDeps struct {
	ChargeRepo     repository.ChargeRepository
	Gateway        gateway.Client
	Locker         Locker        // defaults to an in-process KeyedMutex
	PixCache       PixCache      // optional
	Recorder       EventRecorder // optional
	Logger         *zap.Logger
	Clock          func() time.Time
	GatewayTimeout time.Duration
}

// ChargeService keeps local charges and their gateway mirrors consistent.
// Every mutating operation runs under the charge's lock and, once started,
// is not abandoned when the caller's context is cancelled.
type ChargeService struct {
	chargeRepo     repository.ChargeRepository
	gateway        gateway.Client
	locker         Locker
	pixCache       PixCache
	recorder       EventRecorder
	logger         *zap.Logger
	now            func() time.Time
	gatewayTimeout time.Duration
}

// NewChargeService creates a new ChargeService.
func NewChargeService(deps ChargeServiceDeps) *ChargeService {
	s := &ChargeService{
		chargeRepo:     deps.ChargeRepo,
		gateway:        deps.Gateway,
		locker:         deps.Locker,
		pixCache:       deps.PixCache,
		recorder:       deps.Recorder,
		logger:         deps.Logger,
		now:            deps.Clock,
		gatewayTimeout: deps.GatewayTimeout,
	}
	if s.locker == nil {
		s.locker = NewKeyedMutex()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("charges")
	if s.now == nil {
		s.now = time.Now
	}
	if s.gatewayTimeout <= 0 {
		s.gatewayTimeout = defaultGatewayTimeout
	}
	return s
}

// CreateChargeRequest contains the parameters for creating a charge.
type CreateChargeRequest struct {
	PassengerID string
	Description string
	Amount      decimal.Decimal
	DueDate     time.Time
	Origin      domain.ChargeOrigin // defaults to MANUAL

	// GatewayCustomerID, when set, mirrors the charge at the gateway.
	GatewayCustomerID string
	BillingType       gateway.BillingType
}

// CreateCharge persists a new PENDING charge, registering it at the gateway
// first when requested.
func (s *ChargeService) CreateCharge(ctx context.Context, req CreateChargeRequest) (*domain.Charge, error) {
	if req.PassengerID == "" {
		return nil, ErrInvalidPassengerID
	}
	if !ValidAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}
	if req.DueDate.IsZero() {
		return nil, ErrInvalidDueDate
	}

	origin := req.Origin
	if origin == "" {
		origin = domain.ChargeOriginManual
	}
	if origin != domain.ChargeOriginManual && origin != domain.ChargeOriginAutomatic {
		return nil, ErrInvalidOrigin
	}

	now := s.now()
	dueDate := domain.DateOf(req.DueDate)
	if req.GatewayCustomerID != "" && dueDate.Before(domain.DateOf(now)) {
		return nil, ErrDueDateInPast
	}

	ctx = context.WithoutCancel(ctx)

	charge := &domain.Charge{
		ID:          uuid.New().String(),
		PassengerID: req.PassengerID,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     dueDate,
		Status:      domain.ChargeStatusPending,
		Origin:      origin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	sg := saga{
		op:       OpCreateCharge,
		chargeID: charge.ID,
		local: func(ctx context.Context) error {
			return s.chargeRepo.Create(ctx, charge)
		},
	}

	if req.GatewayCustomerID != "" {
		sg.remote = func(ctx context.Context) error {
			remote, err := s.gateway.CreateRemoteCharge(ctx, gateway.CreateChargeRequest{
				CustomerID:        req.GatewayCustomerID,
				BillingType:       req.BillingType,
				Value:             charge.Amount,
				DueDate:           charge.DueDate,
				Description:       charge.Description,
				ExternalReference: charge.ID,
			})
			if err != nil {
				return err
			}
			ref := remote.ID
			charge.ExternalReferenceID = &ref
			return nil
		}
		sg.undoRemote = func(ctx context.Context) error {
			return s.gateway.DeleteRemoteCharge(ctx, charge.ExternalReference())
		}
	}

	if err := s.run(ctx, sg); err != nil {
		return nil, err
	}

	s.record(ctx, ChargeEvent{
		Type:        EventChargeCreated,
		ChargeID:    charge.ID,
		PassengerID: charge.PassengerID,
		Amount:      charge.Amount,
		Message:     "charge created",
		Data: map[string]interface{}{
			"due_date":              charge.DueDate.Format(time.DateOnly),
			"external_reference_id": charge.ExternalReference(),
		},
	})

	return charge, nil
}

// GetCharge retrieves a charge by ID.
func (s *ChargeService) GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error) {
	if chargeID == "" {
		return nil, ErrInvalidChargeID
	}

	return s.chargeRepo.GetByID(ctx, chargeID)
}

// RegisterPaymentRequest contains the parameters for a manual settlement.
type RegisterPaymentRequest struct {
	ChargeID    string
	PaymentDate time.Time
	PaymentType domain.PaymentType
	PaidAmount  decimal.Decimal
}

// RegisterManualPayment marks a charge as paid by a human-recorded settlement.
// Linked charges are confirmed at the gateway first; if the local write then
// fails the confirmation is undone.
func (s *ChargeService) RegisterManualPayment(ctx context.Context, req RegisterPaymentRequest) error {
	if req.ChargeID == "" {
		return ErrInvalidChargeID
	}
	if !req.PaymentType.Valid() {
		return ErrInvalidPaymentType
	}
	if !ValidAmount(req.PaidAmount) {
		return ErrInvalidAmount
	}
	if req.PaymentDate.IsZero() {
		return ErrInvalidPaymentDate
	}

	return s.withChargeLock(ctx, req.ChargeID, func(ctx context.Context, snapshot *domain.Charge) error {
		if snapshot.IsPaid() {
			return ErrChargeAlreadyPaid
		}

		now := s.now()
		paymentDate := domain.DateOf(req.PaymentDate)
		paymentType := req.PaymentType

		updated := snapshot.Clone()
		updated.Status = domain.ChargeStatusPaid
		updated.PaymentDate = &paymentDate
		updated.PaymentType = &paymentType
		updated.Amount = req.PaidAmount
		updated.ManualPayment = true
		updated.UpdatedAt = now

		sg := saga{
			op:       OpRegisterManualPayment,
			chargeID: snapshot.ID,
			local: func(ctx context.Context) error {
				return s.chargeRepo.Update(ctx, updated)
			},
		}

		if RequiresGatewaySync(snapshot) {
			ref := snapshot.ExternalReference()
			settledOn := EffectiveSettlementDate(snapshot, req.PaymentDate, now)
			if !settledOn.Equal(paymentDate) {
				s.logger.Info("payment date precedes charge creation, settling at gateway with today's date",
					zap.String("charge_id", snapshot.ID),
					zap.Time("requested", paymentDate),
					zap.Time("effective", settledOn),
				)
			}

			sg.remote = func(ctx context.Context) error {
				return s.gateway.ConfirmCashSettlement(ctx, ref, settledOn, req.PaidAmount)
			}
			sg.undoRemote = func(ctx context.Context) error {
				return s.gateway.UndoCashSettlement(ctx, ref)
			}
		}

		if err := s.run(ctx, sg); err != nil {
			return err
		}

		s.invalidatePix(ctx, snapshot.ID)
		s.record(ctx, ChargeEvent{
			Type:        EventPaymentRegistered,
			ChargeID:    snapshot.ID,
			PassengerID: snapshot.PassengerID,
			Amount:      req.PaidAmount,
			Message:     "manual payment registered",
			Data: map[string]interface{}{
				"payment_date": paymentDate.Format(time.DateOnly),
				"payment_type": string(paymentType),
			},
		})
		return nil
	})
}

// UndoPayment reverts a charge to PENDING. The local record is written first;
// if the gateway then refuses, the record is restored to its pre-call state.
func (s *ChargeService) UndoPayment(ctx context.Context, chargeID string) error {
	if chargeID == "" {
		return ErrInvalidChargeID
	}

	return s.withChargeLock(ctx, chargeID, func(ctx context.Context, snapshot *domain.Charge) error {
		if !snapshot.IsPaid() {
			return ErrChargeNotPaid
		}

		updated := snapshot.Clone()
		updated.Status = domain.ChargeStatusPending
		updated.PaymentDate = nil
		updated.PaymentType = nil
		updated.ManualPayment = false
		updated.UpdatedAt = s.now()

		sg := saga{
			op:       OpUndoPayment,
			chargeID: snapshot.ID,
			local: func(ctx context.Context) error {
				return s.chargeRepo.Update(ctx, updated)
			},
			undoLocal: func(ctx context.Context) error {
				return s.chargeRepo.Update(ctx, snapshot)
			},
		}

		if RequiresUndoSync(snapshot) {
			ref := snapshot.ExternalReference()
			sg.remote = func(ctx context.Context) error {
				return s.gateway.UndoCashSettlement(ctx, ref)
			}
		}

		if err := s.run(ctx, sg); err != nil {
			return err
		}

		s.record(ctx, ChargeEvent{
			Type:        EventPaymentUndone,
			ChargeID:    snapshot.ID,
			PassengerID: snapshot.PassengerID,
			Amount:      snapshot.Amount,
			Message:     "payment undone",
		})
		return nil
	})
}

// UpdateDetailsRequest contains the parameters for editing a charge.
type UpdateDetailsRequest struct {
	ChargeID string
	Amount   decimal.Decimal
	DueDate  time.Time

	// PaymentType is applied only to charges already settled manually.
	PaymentType *domain.PaymentType
}

// UpdateChargeDetails edits amount, due date and, for manually settled
// charges, payment type. Linked pending charges are pushed to the gateway
// after the local write, which is rolled back if the push fails.
func (s *ChargeService) UpdateChargeDetails(ctx context.Context, req UpdateDetailsRequest) error {
	if req.ChargeID == "" {
		return ErrInvalidChargeID
	}
	if req.PaymentType != nil && !req.PaymentType.Valid() {
		return ErrInvalidPaymentType
	}

	return s.withChargeLock(ctx, req.ChargeID, func(ctx context.Context, snapshot *domain.Charge) error {
		if err := ValidateDetailsChange(snapshot, req.Amount, req.DueDate, s.now()); err != nil {
			return err
		}

		newDueDate := domain.DateOf(req.DueDate)
		amountChanged := !req.Amount.Equal(snapshot.Amount)
		dueDateChanged := !newDueDate.Equal(domain.DateOf(snapshot.DueDate))

		updated := snapshot.Clone()
		updated.Amount = req.Amount
		updated.DueDate = newDueDate

		paymentTypeChanged := false
		if req.PaymentType != nil && snapshot.IsPaid() && snapshot.ManualPayment {
			if snapshot.PaymentType == nil || *snapshot.PaymentType != *req.PaymentType {
				pt := *req.PaymentType
				updated.PaymentType = &pt
				paymentTypeChanged = true
			}
		}

		if !amountChanged && !dueDateChanged && !paymentTypeChanged {
			return nil
		}
		updated.UpdatedAt = s.now()

		sg := saga{
			op:       OpUpdateChargeDetails,
			chargeID: snapshot.ID,
			local: func(ctx context.Context) error {
				return s.chargeRepo.Update(ctx, updated)
			},
			undoLocal: func(ctx context.Context) error {
				return s.chargeRepo.Update(ctx, snapshot)
			},
		}

		if RequiresGatewaySync(snapshot) && !snapshot.IsPaid() && (amountChanged || dueDateChanged) {
			ref := snapshot.ExternalReference()
			sg.remote = func(ctx context.Context) error {
				return s.gateway.UpdateRemoteCharge(ctx, ref, updated.Amount, updated.DueDate)
			}
		}

		if err := s.run(ctx, sg); err != nil {
			return err
		}

		if amountChanged || dueDateChanged {
			s.invalidatePix(ctx, snapshot.ID)
		}
		s.record(ctx, ChargeEvent{
			Type:        EventChargeUpdated,
			ChargeID:    snapshot.ID,
			PassengerID: snapshot.PassengerID,
			Amount:      updated.Amount,
			Message:     "charge details updated",
			Data: map[string]interface{}{
				"previous_amount":   snapshot.Amount.StringFixed(2),
				"previous_due_date": snapshot.DueDate.Format(time.DateOnly),
				"due_date":          updated.DueDate.Format(time.DateOnly),
			},
		})
		return nil
	})
}

// DeleteCharge permanently removes a charge. Linked charges are deleted at the
// gateway first; if that fails the local record is left untouched.
func (s *ChargeService) DeleteCharge(ctx context.Context, chargeID string) error {
	if chargeID == "" {
		return ErrInvalidChargeID
	}

	return s.withChargeLock(ctx, chargeID, func(ctx context.Context, snapshot *domain.Charge) error {
		sg := saga{
			op:       OpDeleteCharge,
			chargeID: snapshot.ID,
			local: func(ctx context.Context) error {
				return s.chargeRepo.Delete(ctx, snapshot.ID)
			},
		}

		if RequiresGatewaySync(snapshot) {
			ref := snapshot.ExternalReference()
			sg.remote = func(ctx context.Context) error {
				err := s.gateway.DeleteRemoteCharge(ctx, ref)
				if errors.Is(err, gateway.ErrNotFound) {
					// Already gone remotely, e.g. a retry after a failed local delete.
					return nil
				}
				return err
			}
		}

		if err := s.run(ctx, sg); err != nil {
			return err
		}

		s.invalidatePix(ctx, snapshot.ID)
		s.record(ctx, ChargeEvent{
			Type:        EventChargeDeleted,
			ChargeID:    snapshot.ID,
			PassengerID: snapshot.PassengerID,
			Amount:      snapshot.Amount,
			Message:     "charge deleted",
		})
		return nil
	})
}

// withChargeLock acquires the charge lock, loads the rollback snapshot and runs
// fn. Waiting for the lock honours ctx; fn runs detached from cancellation so
// a started operation always reaches success or compensation.
func (s *ChargeService) withChargeLock(ctx context.Context, chargeID string, fn func(ctx context.Context, snapshot *domain.Charge) error) error {
	release, err := s.locker.Lock(ctx, chargeID)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return ErrChargeBusy
		}
		return err
	}
	defer release()

	ctx = context.WithoutCancel(ctx)

	snapshot, err := s.chargeRepo.GetByID(ctx, chargeID)
	if err != nil {
		return err
	}

	return fn(ctx, snapshot)
}

func (s *ChargeService) invalidatePix(ctx context.Context, chargeID string) {
	if s.pixCache == nil {
		return
	}
	if err := s.pixCache.InvalidatePix(ctx, chargeID); err != nil {
		s.logger.Warn("failed to invalidate pix cache", zap.String("charge_id", chargeID), zap.Error(err))
	}
}

func (s *ChargeService) record(ctx context.Context, event ChargeEvent) {
	if s.recorder == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	if err := s.recorder.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record charge event",
			zap.String("type", string(event.Type)),
			zap.String("charge_id", event.ChargeID),
			zap.Error(err),
		)
	}
}
