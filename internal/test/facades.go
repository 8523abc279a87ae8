package test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
)

// SessionFacadeStub provides controllable behaviour for session
// endpoints.
type SessionFacadeStub struct {
	StartFn   func(context.Context, string) (*model.Session, error)
	LiveFn    func(context.Context, string) (*model.Session, error)
	AbandonFn func(context.Context, string) error
}

// StartSession delegates to the override or returns a fresh session.
func (s SessionFacadeStub) StartSession(ctx context.Context, tableID string) (*model.Session, error) {
	if s.StartFn != nil {
		return s.StartFn(ctx, tableID)
	}
	return &model.Session{ID: "session-1", TableID: tableID, Status: model.SessionStatusOpen, Version: 1}, nil
}

// LiveSessionForTable returns the configured live session.
func (s SessionFacadeStub) LiveSessionForTable(ctx context.Context, tableID string) (*model.Session, error) {
	if s.LiveFn != nil {
		return s.LiveFn(ctx, tableID)
	}
	return nil, domainErrors.ErrNotFound
}

// AbandonSession executes the configured abandon handler.
func (s SessionFacadeStub) AbandonSession(ctx context.Context, sessionID string) error {
	if s.AbandonFn != nil {
		return s.AbandonFn(ctx, sessionID)
	}
	return nil
}

// OrderFacadeStub provides controllable behaviour for order endpoints.
type OrderFacadeStub struct {
	SubmitFn func(context.Context, string, []model.OrderItemRequest) (*model.Order, error)
	ListFn   func(context.Context, string) ([]model.Order, error)
}

// SubmitOrder delegates to the override or echoes a pending order.
func (s OrderFacadeStub) SubmitOrder(ctx context.Context, sessionID string, items []model.OrderItemRequest) (*model.Order, error) {
	if s.SubmitFn != nil {
		return s.SubmitFn(ctx, sessionID, items)
	}
	return &model.Order{ID: "order-1", SessionID: sessionID, Seq: 1, Status: model.OrderStatusPending, SubmittedAt: time.Unix(0, 0)}, nil
}

// SessionOrders returns predefined orders.
func (s OrderFacadeStub) SessionOrders(ctx context.Context, sessionID string) ([]model.Order, error) {
	if s.ListFn != nil {
		return s.ListFn(ctx, sessionID)
	}
	return []model.Order{}, nil
}

// PaymentFacadeStub simulates checkout and callback handling.
type PaymentFacadeStub struct {
	CheckoutFn func(context.Context, string) (*model.PaymentAttempt, error)
	CallbackFn func(context.Context, string, model.GatewayOutcome) error
}

// Checkout delegates to the override or returns a dispatched attempt.
func (s PaymentFacadeStub) Checkout(ctx context.Context, sessionID string) (*model.PaymentAttempt, error) {
	if s.CheckoutFn != nil {
		return s.CheckoutFn(ctx, sessionID)
	}
	return &model.PaymentAttempt{ID: "attempt-1", SessionID: sessionID, Status: model.PaymentStatusPendingGateway}, nil
}

// HandleGatewayCallback executes the configured callback handler.
func (s PaymentFacadeStub) HandleGatewayCallback(ctx context.Context, gatewayRef string, outcome model.GatewayOutcome) error {
	if s.CallbackFn != nil {
		return s.CallbackFn(ctx, gatewayRef, outcome)
	}
	return nil
}

// TablesideFacadeStub aggregates the facade stubs for router tests.
type TablesideFacadeStub struct {
	SessionFacadeStub
	OrderFacadeStub
	PaymentFacadeStub
}

// HealthCheckerStub reports configurable storage health.
type HealthCheckerStub struct {
	Err error
}

// HealthCheck returns the configured error.
func (s HealthCheckerStub) HealthCheck(ctx context.Context) error { return s.Err }

// SweeperFacadeStub mimics sweeper interactions with the orchestrator.
type SweeperFacadeStub struct {
	Batches   [][]model.Session
	ExpiredFn func(context.Context, int) ([]model.Session, error)
	AbandonFn func(context.Context, string) error

	mu        sync.Mutex
	Abandoned []string
	calls     int32
}

// ExpiredSessions returns batches from the configured queue.
func (s *SweeperFacadeStub) ExpiredSessions(ctx context.Context, limit int) ([]model.Session, error) {
	if s.ExpiredFn != nil {
		return s.ExpiredFn(ctx, limit)
	}
	call := atomic.AddInt32(&s.calls, 1)
	if int(call) <= len(s.Batches) {
		return s.Batches[call-1], nil
	}
	time.Sleep(10 * time.Millisecond)
	return nil, nil
}

// AbandonSession records which sessions the sweeper expired.
func (s *SweeperFacadeStub) AbandonSession(ctx context.Context, sessionID string) error {
	if s.AbandonFn != nil {
		return s.AbandonFn(ctx, sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Abandoned = append(s.Abandoned, sessionID)
	return nil
}

// AbandonedSessions returns a snapshot of recorded expirations.
func (s *SweeperFacadeStub) AbandonedSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Abandoned))
	copy(out, s.Abandoned)
	return out
}

// CatalogProviderStub serves dishes from a fixed menu.
type CatalogProviderStub struct {
	Dishes   map[string]*model.Dish
	LookupFn func(context.Context, string) (*model.Dish, error)
}

// Lookup returns the configured dish or ErrDishNotFound.
func (s CatalogProviderStub) Lookup(ctx context.Context, dishID string) (*model.Dish, error) {
	if s.LookupFn != nil {
		return s.LookupFn(ctx, dishID)
	}
	if dish, ok := s.Dishes[dishID]; ok {
		copied := *dish
		return &copied, nil
	}
	return nil, domainErrors.ErrDishNotFound
}

// CaptureGatewayStub fakes the card gateway's capture endpoint and
// records every dispatched key. Safe for concurrent use.
type CaptureGatewayStub struct {
	CaptureFn func(context.Context, string, float64, string) (string, error)
	Err       error

	mu   sync.Mutex
	Keys []string
	refs int32
}

// Capture returns a unique gateway reference per dispatch.
func (s *CaptureGatewayStub) Capture(ctx context.Context, attemptID string, amount float64, idempotencyKey string) (string, error) {
	if s.CaptureFn != nil {
		return s.CaptureFn(ctx, attemptID, amount, idempotencyKey)
	}
	if s.Err != nil {
		return "", s.Err
	}
	s.mu.Lock()
	s.Keys = append(s.Keys, idempotencyKey)
	s.mu.Unlock()
	return fmt.Sprintf("ref-%d", atomic.AddInt32(&s.refs, 1)), nil
}

// DispatchedKeys returns a snapshot of recorded idempotency keys.
func (s *CaptureGatewayStub) DispatchedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Keys))
	copy(out, s.Keys)
	return out
}

// EventsRecorder captures published domain events.
type EventsRecorder struct {
	mu              sync.Mutex
	ClosedSessions  []string
	ConfirmedOrders []string
}

// SessionClosed records the settled session id.
func (r *EventsRecorder) SessionClosed(ctx context.Context, sessionID, tableID string, amount float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ClosedSessions = append(r.ClosedSessions, sessionID)
}

// OrderConfirmed records the confirmed order id.
func (r *EventsRecorder) OrderConfirmed(ctx context.Context, orderID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ConfirmedOrders = append(r.ConfirmedOrders, orderID)
}

// Close is a no-op.
func (r *EventsRecorder) Close() {}

// Confirmed returns a snapshot of recorded confirmed order ids.
func (r *EventsRecorder) Confirmed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ConfirmedOrders))
	copy(out, r.ConfirmedOrders)
	return out
}

// Closed returns a snapshot of recorded closed session ids.
func (r *EventsRecorder) Closed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ClosedSessions))
	copy(out, r.ClosedSessions)
	return out
}
