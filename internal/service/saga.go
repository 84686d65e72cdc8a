package service

import (
	"context"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"
)

// Operation names a charge lifecycle operation.
type Operation string

const (
	OpCreateCharge          Operation = "create_charge"
	OpRegisterManualPayment Operation = "register_manual_payment"
	OpUndoPayment           Operation = "undo_payment"
	OpUpdateChargeDetails   Operation = "update_charge_details"
	OpDeleteCharge          Operation = "delete_charge"
)

// syncOrder decides which side of a saga is written first.
type syncOrder int

const (
	// localFirst writes the store, then the gateway; a gateway failure
	// restores the local snapshot.
	localFirst syncOrder = iota

	// remoteFirst calls the gateway, then writes the store; a store failure
	// runs the remote compensation, if the operation has one.
	remoteFirst
)

func (o syncOrder) String() string {
	if o == remoteFirst {
		return "remote_first"
	}
	return "local_first"
}

// operationOrders is the single place where each operation's ordering lives.
// Deletion is remote-first because an orphaned gateway charge can still
// collect money, while a local row that fails to disappear cannot.
var operationOrders = map[Operation]syncOrder{
	OpCreateCharge:          remoteFirst,
	OpRegisterManualPayment: remoteFirst,
	OpUndoPayment:           localFirst,
	OpUpdateChargeDetails:   localFirst,
	OpDeleteCharge:          remoteFirst,
}

type step func(ctx context.Context) error

// saga is one lifecycle operation split into its local and remote steps.
type saga struct {
	op       Operation
	chargeID string

	local  step
	remote step // nil when the charge needs no gateway call

	// undoLocal restores the rollback snapshot after a remote failure
	// (local-first only).
	undoLocal step

	// undoRemote reverts the remote step after a local failure
	// (remote-first only). nil means the failure is reported as divergence.
	undoRemote step
}

// run executes sg with the ordering declared for its operation. It returns
// nil only when every required step completed.
func (s *ChargeService) run(ctx context.Context, sg saga) error {
	order := operationOrders[sg.op]

	txn := newrelic.FromContext(ctx)
	defer txn.StartSegment("charge/" + string(sg.op)).End()

	logger := s.logger.With(
		zap.String("operation", string(sg.op)),
		zap.String("charge_id", sg.chargeID),
		zap.Stringer("order", order),
	)

	if order == remoteFirst {
		return s.runRemoteFirst(ctx, sg, logger)
	}
	return s.runLocalFirst(ctx, sg, logger)
}

func (s *ChargeService) runLocalFirst(ctx context.Context, sg saga, logger *zap.Logger) error {
	if err := sg.local(ctx); err != nil {
		return fmt.Errorf("%s: %w", sg.op, err)
	}

	if sg.remote == nil {
		return nil
	}

	remoteErr := s.callGateway(ctx, sg.remote)
	if remoteErr == nil {
		return nil
	}

	logger.Warn("gateway step failed, restoring local snapshot", zap.Error(remoteErr))

	if err := sg.undoLocal(ctx); err != nil {
		return s.diverged(ctx, sg, remoteErr, err)
	}

	return fmt.Errorf("%w: %w", ErrGatewayCommunicationFailed, remoteErr)
}

func (s *ChargeService) runRemoteFirst(ctx context.Context, sg saga, logger *zap.Logger) error {
	if sg.remote != nil {
		if err := s.callGateway(ctx, sg.remote); err != nil {
			logger.Warn("gateway step failed, nothing written", zap.Error(err))
			return fmt.Errorf("%w: %w", ErrGatewayCommunicationFailed, err)
		}
	}

	localErr := sg.local(ctx)
	if localErr == nil {
		return nil
	}

	if sg.remote == nil {
		return fmt.Errorf("%s: %w", sg.op, localErr)
	}

	if sg.undoRemote == nil {
		return s.diverged(ctx, sg, localErr, nil)
	}

	logger.Warn("local step failed after gateway step, compensating at gateway", zap.Error(localErr))

	if err := s.callGateway(ctx, sg.undoRemote); err != nil {
		return s.diverged(ctx, sg, localErr, err)
	}

	return fmt.Errorf("%w: local write failed and the gateway step was undone: %w", ErrGatewayCommunicationFailed, localErr)
}

// callGateway bounds a remote step by the gateway timeout. A timeout is a
// remote failure like any other.
func (s *ChargeService) callGateway(ctx context.Context, fn step) error {
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	return fn(gctx)
}

// diverged builds, logs and records a DivergenceError.
func (s *ChargeService) diverged(ctx context.Context, sg saga, cause, compensationErr error) error {
	err := &DivergenceError{
		ChargeID:        sg.chargeID,
		Operation:       sg.op,
		Cause:           cause,
		CompensationErr: compensationErr,
	}

	s.logger.Error("IRRECOVERABLE DIVERGENCE between local charge and gateway",
		zap.String("operation", string(sg.op)),
		zap.String("charge_id", sg.chargeID),
		zap.NamedError("cause", cause),
		zap.NamedError("compensation_error", compensationErr),
	)
	newrelic.FromContext(ctx).NoticeError(err)

	s.record(ctx, ChargeEvent{
		Type:     EventDivergenceDetected,
		ChargeID: sg.chargeID,
		Message:  err.Error(),
		Data: map[string]interface{}{
			"operation": string(sg.op),
		},
	})

	return err
}
