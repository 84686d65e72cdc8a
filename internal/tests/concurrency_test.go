package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cobranca/internal/domain"
	"cobranca/internal/gateway"
	"cobranca/internal/redis"
	"cobranca/internal/service"
)

func TestConcurrentUpdates_SameCharge_AreSerialized(t *testing.T) {
	f := newFixture(pendingLinkedCharge())
	f.gw.Delay = 10 * time.Millisecond

	const workers = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- f.svc.UpdateChargeDetails(context.Background(), service.UpdateDetailsRequest{
				ChargeID: "charge-1",
				Amount:   decimal.NewFromInt(int64(200 + i)),
				DueDate:  date(2025, 1, 20),
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if f.gw.MaxInFlight != 1 {
		t.Errorf("expected gateway calls for one charge to never overlap, saw %d at once", f.gw.MaxInFlight)
	}

	// Last push wins on both sides.
	calls := f.gw.Calls()
	if len(calls) != workers {
		t.Fatalf("expected %d gateway updates, got %d", workers, len(calls))
	}
	last := calls[len(calls)-1]
	if got := f.repo.GetCharge("charge-1").Amount; !got.Equal(last.Value) {
		t.Errorf("local amount %s diverged from last gateway value %s", got, last.Value)
	}
}

func TestConcurrentRegister_SameCharge_OnlyOneSucceeds(t *testing.T) {
	f := newFixture(pendingLinkedCharge())
	f.gw.Delay = 5 * time.Millisecond

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.RegisterManualPayment(context.Background(), paymentRequest())
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, service.ErrChargeAlreadyPaid):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if succeeded != 1 {
		t.Errorf("expected exactly one registration, got %d", succeeded)
	}
	assertMethods(t, f.gw, "confirm")
}

// A started operation runs to completion even when its caller goes away.
func TestRegisterPayment_CallerCancelled_OperationCompletes(t *testing.T) {
	f := newFixture(pendingLinkedCharge())
	f.gw.Delay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := f.svc.RegisterManualPayment(ctx, paymentRequest()); err != nil {
		t.Fatalf("expected operation to complete, got %v", err)
	}

	if f.repo.GetCharge("charge-1").Status != domain.ChargeStatusPaid {
		t.Error("expected charge to be paid")
	}
}

func TestRegisterPayment_GatewayTimeout_NothingWritten(t *testing.T) {
	repo := NewMockChargeRepository()
	repo.AddCharge(pendingLinkedCharge())
	gw := NewMockGateway()
	gw.Delay = time.Second

	svc := service.NewChargeService(service.ChargeServiceDeps{
		ChargeRepo:     repo,
		Gateway:        gw,
		Clock:          func() time.Time { return today },
		GatewayTimeout: 20 * time.Millisecond,
	})

	err := svc.RegisterManualPayment(context.Background(), paymentRequest())

	assertGatewayFailure(t, err)
	if !errors.Is(err, gateway.ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
	if repo.UpdateCallCount != 0 {
		t.Error("expected no store writes")
	}
}

type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context, chargeID string) (func(), error) {
	return nil, redis.ErrLockNotAcquired
}

func TestMutations_LockHeldElsewhere_ChargeBusy(t *testing.T) {
	repo := NewMockChargeRepository()
	repo.AddCharge(pendingLinkedCharge())
	gw := NewMockGateway()

	svc := service.NewChargeService(service.ChargeServiceDeps{
		ChargeRepo: repo,
		Gateway:    gw,
		Locker:     busyLocker{},
		Clock:      func() time.Time { return today },
	})

	ops := map[string]func() error{
		"register": func() error { return svc.RegisterManualPayment(context.Background(), paymentRequest()) },
		"undo":     func() error { return svc.UndoPayment(context.Background(), "charge-1") },
		"delete":   func() error { return svc.DeleteCharge(context.Background(), "charge-1") },
		"update": func() error {
			return svc.UpdateChargeDetails(context.Background(), service.UpdateDetailsRequest{
				ChargeID: "charge-1", Amount: decimal.NewFromInt(1), DueDate: date(2025, 1, 20),
			})
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, service.ErrChargeBusy) {
				t.Fatalf("expected ErrChargeBusy, got %v", err)
			}
		})
	}
	assertMethods(t, gw)
}
