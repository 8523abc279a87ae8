package test

import (
	"context"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
	"github.com/dinehall/tableside/internal/domain/repository"
)

// TableRepositoryStub keeps occupancy in-memory with the same
// claim-if-free semantics as the SQL implementation. Safe for
// concurrent use.
type TableRepositoryStub struct {
	mu        sync.Mutex
	Occupants map[string]string
	Known     map[string]bool
	AcquireFn func(context.Context, string, string) error
	ReleaseFn func(context.Context, string, string) error
	Err       error
}

// NewTableRepositoryStub constructs a stub where the listed tables
// exist and start free.
func NewTableRepositoryStub(tableIDs ...string) *TableRepositoryStub {
	known := make(map[string]bool, len(tableIDs))
	for _, id := range tableIDs {
		known[id] = true
	}
	return &TableRepositoryStub{Occupants: make(map[string]string), Known: known}
}

// Acquire claims the table when free; exactly one concurrent caller
// wins.
func (s *TableRepositoryStub) Acquire(ctx context.Context, tableID, sessionID string) error {
	if s.AcquireFn != nil {
		return s.AcquireFn(ctx, tableID, sessionID)
	}
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Known != nil && !s.Known[tableID] {
		return domainErrors.ErrNotFound
	}
	if _, busy := s.Occupants[tableID]; busy {
		return domainErrors.ErrTableOccupied
	}
	s.Occupants[tableID] = sessionID
	return nil
}

// Release frees the table when held by sessionID; freeing a free table
// is a no-op.
func (s *TableRepositoryStub) Release(ctx context.Context, tableID, sessionID string) error {
	if s.ReleaseFn != nil {
		return s.ReleaseFn(ctx, tableID, sessionID)
	}
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	holder, ok := s.Occupants[tableID]
	if !ok {
		return nil
	}
	if holder != sessionID {
		return domainErrors.ErrSessionMismatch
	}
	delete(s.Occupants, tableID)
	return nil
}

// Get reports current occupancy.
func (s *TableRepositoryStub) Get(ctx context.Context, tableID string) (*model.Table, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Known != nil && !s.Known[tableID] {
		return nil, domainErrors.ErrNotFound
	}
	table := &model.Table{ID: tableID, UpdatedAt: time.Now()}
	if holder, ok := s.Occupants[tableID]; ok {
		sessionID := holder
		table.Occupied = true
		table.SessionID = &sessionID
	}
	return table, nil
}

// Holder returns the session currently occupying the table, if any.
func (s *TableRepositoryStub) Holder(tableID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	holder, ok := s.Occupants[tableID]
	return holder, ok
}

// SessionRepositoryStub stores sessions in-memory with optimistic
// versioning. Safe for concurrent use.
type SessionRepositoryStub struct {
	mu           sync.Mutex
	Sessions     map[string]*model.Session
	CreateFn     func(context.Context, string, string) (*model.Session, error)
	TransitionFn func(context.Context, string, int64, model.SessionStatus) (*model.Session, error)
	Err          error
}

// NewSessionRepositoryStub constructs stub with initialized storage.
func NewSessionRepositoryStub() *SessionRepositoryStub {
	return &SessionRepositoryStub{Sessions: make(map[string]*model.Session)}
}

// Seed inserts a session directly, for test arrangement.
func (s *SessionRepositoryStub) Seed(session *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.Sessions[session.ID] = &copied
}

// Create opens a fresh session at version 1.
func (s *SessionRepositoryStub) Create(ctx context.Context, sessionID, tableID string) (*model.Session, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, sessionID, tableID)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session := &model.Session{
		ID:        sessionID,
		TableID:   tableID,
		Status:    model.SessionStatusOpen,
		Version:   1,
		CreatedAt: time.Now(),
	}
	s.Sessions[sessionID] = session
	copied := *session
	return &copied, nil
}

// Get returns a copy of the stored session.
func (s *SessionRepositoryStub) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[sessionID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

// GetOpenByTable returns the table's live session.
func (s *SessionRepositoryStub) GetOpenByTable(ctx context.Context, tableID string) (*model.Session, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.Sessions {
		if session.TableID == tableID && session.Live() {
			copied := *session
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

// Transition applies the status change when the expected version still
// matches and the change is legal.
func (s *SessionRepositoryStub) Transition(ctx context.Context, sessionID string, expectedVersion int64, newStatus model.SessionStatus) (*model.Session, error) {
	if s.TransitionFn != nil {
		return s.TransitionFn(ctx, sessionID, expectedVersion, newStatus)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[sessionID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	if !model.CanTransition(session.Status, newStatus) {
		return nil, domainErrors.ErrInvalidTransition
	}
	if session.Version != expectedVersion {
		return nil, domainErrors.ErrVersionConflict
	}
	session.Status = newStatus
	session.Version++
	if !session.Live() {
		now := time.Now()
		session.ClosedAt = &now
	}
	copied := *session
	return &copied, nil
}

// ListExpired returns open sessions created before the cutoff, oldest
// first.
func (s *SessionRepositoryStub) ListExpired(ctx context.Context, olderThan time.Time, limit int) ([]model.Session, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []model.Session
	for _, session := range s.Sessions {
		if session.Status == model.SessionStatusOpen && session.CreatedAt.Before(olderThan) {
			expired = append(expired, *session)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// OrderRepositoryStub is an in-memory ledger. When Sessions is set,
// Append re-checks the session status the way the SQL ledger does.
type OrderRepositoryStub struct {
	mu       sync.Mutex
	Orders   []model.Order
	Sessions *SessionRepositoryStub
	AppendFn func(context.Context, string, string, []model.LineItem) (*model.Order, error)
	// ConfirmAllPendingFn, when set, replaces ConfirmAllPending.
	ConfirmAllPendingFn func(context.Context, string) ([]string, error)
	Err                 error
}

// Append admits one batch and assigns the next per-session seq.
func (s *OrderRepositoryStub) Append(ctx context.Context, orderID, sessionID string, items []model.LineItem) (*model.Order, error) {
	if s.AppendFn != nil {
		return s.AppendFn(ctx, orderID, sessionID, items)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Sessions != nil {
		session, err := s.Sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.Status != model.SessionStatusOpen {
			return nil, domainErrors.ErrSessionNotOpen
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var maxSeq int64
	for _, order := range s.Orders {
		if order.SessionID == sessionID && order.Seq > maxSeq {
			maxSeq = order.Seq
		}
	}
	order := model.Order{
		ID:          orderID,
		SessionID:   sessionID,
		Seq:         maxSeq + 1,
		Status:      model.OrderStatusPending,
		Items:       items,
		SubmittedAt: time.Now(),
	}
	s.Orders = append(s.Orders, order)
	copied := order
	return &copied, nil
}

// Confirm flips one pending order to confirmed.
func (s *OrderRepositoryStub) Confirm(ctx context.Context, orderID string) (*model.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Orders {
		if s.Orders[i].ID == orderID {
			s.Orders[i].Status = model.OrderStatusConfirmed
			copied := s.Orders[i]
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

// ConfirmAllPending confirms the session's pending orders.
func (s *OrderRepositoryStub) ConfirmAllPending(ctx context.Context, sessionID string) ([]string, error) {
	if s.ConfirmAllPendingFn != nil {
		return s.ConfirmAllPendingFn(ctx, sessionID)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var confirmed []string
	for i := range s.Orders {
		if s.Orders[i].SessionID == sessionID && s.Orders[i].Status == model.OrderStatusPending {
			s.Orders[i].Status = model.OrderStatusConfirmed
			confirmed = append(confirmed, s.Orders[i].ID)
		}
	}
	return confirmed, nil
}

// ListBySession returns the session's orders in seq order.
func (s *OrderRepositoryStub) ListBySession(ctx context.Context, sessionID string) ([]model.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []model.Order
	for _, order := range s.Orders {
		if order.SessionID == sessionID {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })
	return orders, nil
}

// TotalAmount sums non-cancelled orders from snapshotted prices.
func (s *OrderRepositoryStub) TotalAmount(ctx context.Context, sessionID string) (float64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for i := range s.Orders {
		if s.Orders[i].SessionID == sessionID && s.Orders[i].Status != model.OrderStatusCancelled {
			total += s.Orders[i].Total()
		}
	}
	return total, nil
}

// PaymentRepositoryStub stores capture attempts in-memory enforcing
// the one-in-flight-per-session constraint.
type PaymentRepositoryStub struct {
	mu       sync.Mutex
	Attempts map[string]*model.PaymentAttempt
	CreateFn func(context.Context, *model.PaymentAttempt) (*model.PaymentAttempt, error)
	SettleFn func(context.Context, string, model.PaymentStatus) (*model.PaymentAttempt, error)
	Err      error
}

// NewPaymentRepositoryStub constructs stub with initialized storage.
func NewPaymentRepositoryStub() *PaymentRepositoryStub {
	return &PaymentRepositoryStub{Attempts: make(map[string]*model.PaymentAttempt)}
}

// Create registers a fresh initiated attempt unless one is in flight.
func (s *PaymentRepositoryStub) Create(ctx context.Context, attempt *model.PaymentAttempt) (*model.PaymentAttempt, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, attempt)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.Attempts {
		if existing.SessionID == attempt.SessionID && existing.InFlight() {
			return nil, domainErrors.ErrAttemptInFlight
		}
	}
	stored := *attempt
	stored.Status = model.PaymentStatusInitiated
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.Attempts[stored.ID] = &stored
	copied := stored
	return &copied, nil
}

// GetByGatewayRef finds the attempt a gateway reference points at.
func (s *PaymentRepositoryStub) GetByGatewayRef(ctx context.Context, gatewayRef string) (*model.PaymentAttempt, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, attempt := range s.Attempts {
		if attempt.GatewayRef != nil && *attempt.GatewayRef == gatewayRef {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

// GetInFlight returns the session's unresolved attempt.
func (s *PaymentRepositoryStub) GetInFlight(ctx context.Context, sessionID string) (*model.PaymentAttempt, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, attempt := range s.Attempts {
		if attempt.SessionID == sessionID && attempt.InFlight() {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

// MarkDispatched records the gateway reference on an initiated
// attempt.
func (s *PaymentRepositoryStub) MarkDispatched(ctx context.Context, attemptID, gatewayRef string) (*model.PaymentAttempt, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.Attempts[attemptID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	ref := gatewayRef
	attempt.Status = model.PaymentStatusPendingGateway
	attempt.GatewayRef = &ref
	attempt.UpdatedAt = time.Now()
	copied := *attempt
	return &copied, nil
}

// Settle moves the attempt to a terminal status; terminal attempts are
// never overwritten.
func (s *PaymentRepositoryStub) Settle(ctx context.Context, attemptID string, status model.PaymentStatus) (*model.PaymentAttempt, error) {
	if s.SettleFn != nil {
		return s.SettleFn(ctx, attemptID, status)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.Attempts[attemptID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	if attempt.Terminal() {
		return nil, domainErrors.ErrAlreadyTerminal
	}
	attempt.Status = status
	attempt.UpdatedAt = time.Now()
	copied := *attempt
	return &copied, nil
}

// CountByStatus counts the session's attempts in the given status.
func (s *PaymentRepositoryStub) CountByStatus(ctx context.Context, sessionID string, status model.PaymentStatus) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, attempt := range s.Attempts {
		if attempt.SessionID == sessionID && attempt.Status == status {
			count++
		}
	}
	return count, nil
}

// FactoryStub bundles the repository stubs behind the factory
// interface.
type FactoryStub struct {
	TableRepo   *TableRepositoryStub
	SessionRepo *SessionRepositoryStub
	OrderRepo   *OrderRepositoryStub
	PaymentRepo *PaymentRepositoryStub
}

// NewFactoryStub wires a consistent in-memory repository set: the
// ledger re-checks session status against the session stub.
func NewFactoryStub(tableIDs ...string) *FactoryStub {
	sessions := NewSessionRepositoryStub()
	return &FactoryStub{
		TableRepo:   NewTableRepositoryStub(tableIDs...),
		SessionRepo: sessions,
		OrderRepo:   &OrderRepositoryStub{Sessions: sessions},
		PaymentRepo: NewPaymentRepositoryStub(),
	}
}

// Tables returns the table repository stub.
func (f *FactoryStub) Tables() repository.TableRepository { return f.TableRepo }

// Sessions returns the session repository stub.
func (f *FactoryStub) Sessions() repository.SessionRepository { return f.SessionRepo }

// Orders returns the order repository stub.
func (f *FactoryStub) Orders() repository.OrderRepository { return f.OrderRepo }

// Payments returns the payment repository stub.
func (f *FactoryStub) Payments() repository.PaymentRepository { return f.PaymentRepo }
