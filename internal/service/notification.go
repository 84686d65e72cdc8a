package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChargeEventType represents a charge lifecycle event.
type ChargeEventType string

const (
	EventChargeCreated      ChargeEventType = "CHARGE_CREATED"
	EventPaymentRegistered  ChargeEventType = "PAYMENT_REGISTERED"
	EventPaymentUndone      ChargeEventType = "PAYMENT_UNDONE"
	EventChargeUpdated      ChargeEventType = "CHARGE_UPDATED"
	EventChargeDeleted      ChargeEventType = "CHARGE_DELETED"
	EventDivergenceDetected ChargeEventType = "DIVERGENCE_DETECTED"
)

// ChargeEvent is an entry for the notification/audit trail.
type ChargeEvent struct {
	Type        ChargeEventType
	ChargeID    string
	PassengerID string
	Amount      decimal.Decimal
	Message     string
	Data        map[string]interface{}
	CreatedAt   time.Time
}

// EventRecorder is the boundary to the append-only notification log.
type EventRecorder interface {
	Record(ctx context.Context, event ChargeEvent) error
}

// NotificationService records charge events to the structured log. It stands
// in for the notification table, which is owned by another service.
type NotificationService struct {
	logger *zap.Logger
}

var _ EventRecorder = (*NotificationService)(nil)

// NewNotificationService creates a new NotificationService.
func NewNotificationService(logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{logger: logger.Named("notification")}
}

// Record writes the event.
func (s *NotificationService) Record(ctx context.Context, event ChargeEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("charge_id", event.ChargeID),
		zap.String("passenger_id", event.PassengerID),
		zap.String("amount", event.Amount.StringFixed(2)),
		zap.Time("created_at", event.CreatedAt),
	}
	if len(event.Data) > 0 {
		fields = append(fields, zap.Any("data", event.Data))
	}

	if event.Type == EventDivergenceDetected {
		s.logger.Error(event.Message, fields...)
		return nil
	}
	s.logger.Info(event.Message, fields...)
	return nil
}
