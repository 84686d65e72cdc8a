package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"cobranca/internal/domain"
	"cobranca/internal/gateway"
	"cobranca/internal/repository"
	"cobranca/internal/service"
)

var errStoreDown = errors.New("store unavailable")

// ──────────────────────────────────────────────
// MOCK CHARGE REPOSITORY
// ──────────────────────────────────────────────

// MockChargeRepository is a mock implementation of ChargeRepository.
type MockChargeRepository struct {
	mu      sync.RWMutex
	charges map[string]*domain.Charge

	// Counters for verification
	CreateCallCount int32
	UpdateCallCount int32
	DeleteCallCount int32

	// Error injection
	CreateError error
	DeleteError error
	GetError    error

	// GetErrors is consumed one entry per GetByID call; a nil entry
	// succeeds. Once exhausted, GetError applies.
	GetErrors []error

	// UpdateErrors is consumed one entry per Update call; a nil entry
	// succeeds. Once exhausted, UpdateError applies.
	UpdateErrors []error
	UpdateError  error
}

// NewMockChargeRepository creates a new mock charge repository.
func NewMockChargeRepository() *MockChargeRepository {
	return &MockChargeRepository{
		charges: make(map[string]*domain.Charge),
	}
}

// AddCharge adds a charge to the mock repository.
func (m *MockChargeRepository) AddCharge(charge *domain.Charge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[charge.ID] = charge.Clone()
}

func (m *MockChargeRepository) Create(ctx context.Context, charge *domain.Charge) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.charges[charge.ID]; ok {
		return repository.ErrAlreadyExists
	}
	m.charges[charge.ID] = charge.Clone()
	return nil
}

func (m *MockChargeRepository) GetByID(ctx context.Context, id string) (*domain.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if len(m.GetErrors) > 0 {
		err, m.GetErrors = m.GetErrors[0], m.GetErrors[1:]
	} else {
		err = m.GetError
	}
	if err != nil {
		return nil, err
	}

	charge, ok := m.charges[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return charge.Clone(), nil
}

func (m *MockChargeRepository) Update(ctx context.Context, charge *domain.Charge) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if len(m.UpdateErrors) > 0 {
		err, m.UpdateErrors = m.UpdateErrors[0], m.UpdateErrors[1:]
	} else {
		err = m.UpdateError
	}
	if err != nil {
		return err
	}

	stored, ok := m.charges[charge.ID]
	if !ok {
		return repository.ErrNotFound
	}
	// Same column set as the postgres repository.
	updated := charge.Clone()
	updated.Description = stored.Description
	updated.RemindersDisabled = stored.RemindersDisabled
	m.charges[charge.ID] = updated
	return nil
}

// SetRemindersDisabled changes the reminder flag the way the reminder
// settings flow does, outside any charge operation.
func (m *MockChargeRepository) SetRemindersDisabled(id string, disabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.charges[id]; ok {
		c.RemindersDisabled = disabled
	}
}

func (m *MockChargeRepository) Delete(ctx context.Context, id string) error {
	atomic.AddInt32(&m.DeleteCallCount, 1)
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.charges[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.charges, id)
	return nil
}

// GetCharge returns the stored charge (for test assertions).
func (m *MockChargeRepository) GetCharge(id string) *domain.Charge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.charges[id]; ok {
		return c.Clone()
	}
	return nil
}

// Count returns the number of stored charges.
func (m *MockChargeRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.charges)
}

// ──────────────────────────────────────────────
// MOCK GATEWAY
// ──────────────────────────────────────────────

// GatewayCall records one call made to MockGateway.
type GatewayCall struct {
	Method string
	Ref    string
	Value  decimal.Decimal
	Date   time.Time
}

// MockGateway is a mock implementation of gateway.Client.
type MockGateway struct {
	mu    sync.Mutex
	calls []GatewayCall

	// Error injection per method
	CreateError  error
	UpdateError  error
	DeleteError  error
	ConfirmError error
	UndoError    error
	FetchError   error

	// CreatedID is returned by CreateRemoteCharge.
	CreatedID string
	// QR is returned by FetchPaymentQRPayload.
	QR *gateway.QRPayload

	// Delay is applied to every call; calls still honour ctx.
	Delay time.Duration

	inFlight    int32
	MaxInFlight int32
}

var _ gateway.Client = (*MockGateway)(nil)

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{CreatedID: "pay_mock"}
}

func (m *MockGateway) enter(ctx context.Context, call GatewayCall) error {
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&m.MaxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&m.MaxInFlight, peak, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if m.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.Delay):
		return nil
	case <-ctx.Done():
		return gateway.ErrUnreachable
	}
}

func (m *MockGateway) CreateRemoteCharge(ctx context.Context, req gateway.CreateChargeRequest) (*gateway.RemoteCharge, error) {
	if err := m.enter(ctx, GatewayCall{Method: "create", Ref: req.ExternalReference, Value: req.Value, Date: req.DueDate}); err != nil {
		return nil, err
	}
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	return &gateway.RemoteCharge{ID: m.CreatedID, Status: "PENDING", Value: req.Value, DueDate: req.DueDate}, nil
}

func (m *MockGateway) UpdateRemoteCharge(ctx context.Context, ref string, value decimal.Decimal, dueDate time.Time) error {
	if err := m.enter(ctx, GatewayCall{Method: "update", Ref: ref, Value: value, Date: dueDate}); err != nil {
		return err
	}
	return m.UpdateError
}

func (m *MockGateway) DeleteRemoteCharge(ctx context.Context, ref string) error {
	if err := m.enter(ctx, GatewayCall{Method: "delete", Ref: ref}); err != nil {
		return err
	}
	return m.DeleteError
}

func (m *MockGateway) ConfirmCashSettlement(ctx context.Context, ref string, date time.Time, value decimal.Decimal) error {
	if err := m.enter(ctx, GatewayCall{Method: "confirm", Ref: ref, Value: value, Date: date}); err != nil {
		return err
	}
	return m.ConfirmError
}

func (m *MockGateway) UndoCashSettlement(ctx context.Context, ref string) error {
	if err := m.enter(ctx, GatewayCall{Method: "undo", Ref: ref}); err != nil {
		return err
	}
	return m.UndoError
}

func (m *MockGateway) FetchPaymentQRPayload(ctx context.Context, ref string) (*gateway.QRPayload, error) {
	if err := m.enter(ctx, GatewayCall{Method: "fetch_qr", Ref: ref}); err != nil {
		return nil, err
	}
	if m.FetchError != nil {
		return nil, m.FetchError
	}
	if m.QR == nil {
		return &gateway.QRPayload{EncodedImage: "aW1n", Payload: "000201", ExpirationDate: time.Now().Add(time.Hour)}, nil
	}
	return m.QR, nil
}

// Calls returns the recorded calls in order.
func (m *MockGateway) Calls() []GatewayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GatewayCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Methods returns the method names of the recorded calls in order.
func (m *MockGateway) Methods() []string {
	calls := m.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK PIX CACHE
// ──────────────────────────────────────────────

// MockPixCache is an in-memory PixCache.
type MockPixCache struct {
	mu      sync.Mutex
	entries map[string]*domain.PixQRCode

	GetCallCount        int32
	SetCallCount        int32
	InvalidateCallCount int32

	GetError error
}

// NewMockPixCache creates a new mock pix cache.
func NewMockPixCache() *MockPixCache {
	return &MockPixCache{entries: make(map[string]*domain.PixQRCode)}
}

func (m *MockPixCache) GetPix(ctx context.Context, chargeID string) (*domain.PixQRCode, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[chargeID], nil
}

func (m *MockPixCache) SetPix(ctx context.Context, qr *domain.PixQRCode) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[qr.ChargeID] = qr
	return nil
}

func (m *MockPixCache) InvalidatePix(ctx context.Context, chargeID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, chargeID)
	return nil
}

// Has reports whether chargeID is cached.
func (m *MockPixCache) Has(chargeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[chargeID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK EVENT RECORDER
// ──────────────────────────────────────────────

// MockRecorder collects recorded charge events.
type MockRecorder struct {
	mu     sync.Mutex
	events []service.ChargeEvent
}

func (m *MockRecorder) Record(ctx context.Context, event service.ChargeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Types returns the recorded event types in order.
func (m *MockRecorder) Types() []service.ChargeEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]service.ChargeEventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// Has reports whether an event of type t was recorded.
func (m *MockRecorder) Has(t service.ChargeEventType) bool {
	for _, got := range m.Types() {
		if got == t {
			return true
		}
	}
	return false
}
