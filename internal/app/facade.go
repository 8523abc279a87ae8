package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dinehall/tableside/internal/adapter/events"
	"github.com/dinehall/tableside/internal/config"
	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
	"github.com/dinehall/tableside/internal/pkg/idemkey"
	"github.com/dinehall/tableside/internal/pkg/keyedmutex"
	"github.com/dinehall/tableside/internal/usecase"
)

// CatalogProvider resolves dish ids for price snapshotting.
type CatalogProvider interface {
	Lookup(ctx context.Context, dishID string) (*model.Dish, error)
}

// TableServiceFacade is the orchestration engine: the only entry point
// external callers use, and the only component allowed to mutate more
// than one store in a single operation. All mutating operations
// against a session serialize through a per-session lock; operations
// on different sessions proceed in parallel.
type TableServiceFacade struct {
	tables   *usecase.TableUseCase
	sessions *usecase.SessionUseCase
	orders   *usecase.OrderUseCase
	payments *usecase.PaymentUseCase
	catalog  CatalogProvider
	events   events.Publisher
	locks    *keyedmutex.Mutex
	logger   *slog.Logger

	secret     string
	retries    int
	sessionTTL time.Duration
}

// NewTableServiceFacade constructs the orchestrator.
func NewTableServiceFacade(
	tables *usecase.TableUseCase,
	sessions *usecase.SessionUseCase,
	orders *usecase.OrderUseCase,
	payments *usecase.PaymentUseCase,
	catalog CatalogProvider,
	publisher events.Publisher,
	cfg *config.Config,
	logger *slog.Logger,
) *TableServiceFacade {
	return &TableServiceFacade{
		tables:     tables,
		sessions:   sessions,
		orders:     orders,
		payments:   payments,
		catalog:    catalog,
		events:     publisher,
		locks:      keyedmutex.New(),
		logger:     logger,
		secret:     cfg.IdempotencySecret,
		retries:    cfg.ConflictRetries,
		sessionTTL: cfg.SessionTTL,
	}
}

// StartSession claims the table and opens a session on it. If session
// creation fails after the claim, the claim is rolled back so the
// table is not left occupied without a session.
func (f *TableServiceFacade) StartSession(ctx context.Context, tableID string) (*model.Session, error) {
	sessionID := uuid.NewString()

	if err := f.tables.Acquire(ctx, tableID, sessionID); err != nil {
		return nil, err
	}

	session, err := f.sessions.Create(ctx, sessionID, tableID)
	if err != nil {
		if releaseErr := f.tables.Release(ctx, tableID, sessionID); releaseErr != nil {
			f.logger.Error("rollback table claim failed",
				slog.String("table_id", tableID),
				slog.String("session_id", sessionID),
				slog.String("error", releaseErr.Error()),
			)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

// LiveSessionForTable returns the table's current live session, so a
// re-scan of the same QR code resumes instead of starting over.
func (f *TableServiceFacade) LiveSessionForTable(ctx context.Context, tableID string) (*model.Session, error) {
	return f.sessions.GetByTable(ctx, tableID)
}

// SubmitOrder snapshots prices from the catalog and appends one order
// batch to the session's ledger. Appends for one session are admitted
// in lock order; the ledger re-checks the session status inside its
// own transaction.
func (f *TableServiceFacade) SubmitOrder(ctx context.Context, sessionID string, items []model.OrderItemRequest) (*model.Order, error) {
	if len(items) == 0 {
		return nil, domainErrors.ErrEmptyItems
	}

	lineItems := make([]model.LineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, domainErrors.ErrEmptyItems
		}
		dish, err := f.catalog.Lookup(ctx, item.DishID)
		if err != nil {
			return nil, err
		}
		lineItems = append(lineItems, model.LineItem{
			DishID:    dish.ID,
			Name:      dish.Name,
			Quantity:  item.Quantity,
			UnitPrice: dish.UnitPrice,
		})
	}

	unlock := f.locks.Lock(sessionID)
	defer unlock()

	return f.orders.Append(ctx, sessionID, lineItems)
}

// SessionOrders returns the session's orders in admission order.
func (f *TableServiceFacade) SessionOrders(ctx context.Context, sessionID string) ([]model.Order, error) {
	return f.orders.ListBySession(ctx, sessionID)
}

// Checkout freezes the session and dispatches a capture attempt. When
// any step after the freeze fails, the session is reverted to open, so
// it is never stuck awaiting payment without an in-flight attempt.
func (f *TableServiceFacade) Checkout(ctx context.Context, sessionID string) (*model.PaymentAttempt, error) {
	unlock := f.locks.Lock(sessionID)
	defer unlock()

	session, err := f.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case model.SessionStatusOpen:
	case model.SessionStatusAwaitingPayment:
		if _, err := f.payments.InFlight(ctx, sessionID); err == nil {
			return nil, domainErrors.ErrAttemptInFlight
		} else if !errors.Is(err, domainErrors.ErrNotFound) {
			return nil, err
		}
		return nil, domainErrors.ErrSessionNotOpen
	default:
		return nil, domainErrors.ErrSessionNotOpen
	}

	amount, err := f.orders.TotalAmount(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		// Nothing billable on the ledger; a zero-amount capture would
		// only confuse the gateway.
		return nil, domainErrors.ErrEmptyItems
	}

	frozen, err := f.transitionWithRetry(ctx, sessionID, session.Version, model.SessionStatusAwaitingPayment)
	if err != nil {
		return nil, err
	}

	// The key depends only on the session and the version at which it
	// entered awaiting_payment, so a client retry of the same checkout
	// reuses it and the gateway deduplicates.
	key := idemkey.Derive(f.secret, frozen.ID, frozen.Version)
	attempt, err := f.payments.Initiate(ctx, frozen, amount, key)
	if err != nil {
		if _, revertErr := f.transitionWithRetry(ctx, sessionID, frozen.Version, model.SessionStatusOpen); revertErr != nil {
			f.logger.Error("revert session to open failed",
				slog.String("session_id", sessionID),
				slog.String("error", revertErr.Error()),
			)
		}
		return nil, err
	}

	return attempt, nil
}

// HandleGatewayCallback reconciles one asynchronous gateway outcome.
// Deliveries are at-least-once: replays with the already-applied
// outcome are no-ops, and a replay also completes any settlement step
// a crash left unfinished. A conflicting outcome on a terminal attempt
// is recorded for manual reconciliation and never overwritten.
func (f *TableServiceFacade) HandleGatewayCallback(ctx context.Context, gatewayRef string, outcome model.GatewayOutcome) error {
	attempt, err := f.payments.ByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return err
	}

	unlock := f.locks.Lock(attempt.SessionID)
	defer unlock()

	attempt, _, err = f.payments.Resolve(ctx, gatewayRef, outcome)
	if err != nil {
		if errors.Is(err, domainErrors.ErrAlreadyTerminal) {
			f.logger.Error("conflicting gateway outcome, manual reconciliation required",
				slog.String("gateway_ref", gatewayRef),
				slog.String("attempt_id", attempt.ID),
				slog.String("recorded_status", string(attempt.Status)),
				slog.String("reported_outcome", string(outcome)),
			)
		}
		return err
	}

	return f.completeSettlement(ctx, attempt)
}

// completeSettlement drives the session to the state implied by the
// attempt's terminal status. Every step is idempotent, so a webhook
// redelivery after a partial failure finishes the job.
func (f *TableServiceFacade) completeSettlement(ctx context.Context, attempt *model.PaymentAttempt) error {
	session, err := f.sessions.Get(ctx, attempt.SessionID)
	if err != nil {
		return err
	}

	if session.Status != model.SessionStatusAwaitingPayment {
		if attempt.Status == model.PaymentStatusSucceeded && session.Status == model.SessionStatusClosed {
			return f.finishClosedSettlement(ctx, session)
		}
		return nil
	}

	if attempt.Status == model.PaymentStatusFailed {
		// Resume ordering; the next checkout derives a fresh key from
		// the bumped version.
		_, err := f.transitionWithRetry(ctx, session.ID, session.Version, model.SessionStatusOpen)
		return err
	}

	closed, err := f.transitionWithRetry(ctx, session.ID, session.Version, model.SessionStatusClosed)
	if err != nil {
		return err
	}

	confirmed, err := f.orders.ConfirmAllPending(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("confirm orders: %w", err)
	}

	if err := f.tables.Release(ctx, session.TableID, session.ID); err != nil {
		return fmt.Errorf("release table: %w", err)
	}

	for _, orderID := range confirmed {
		f.events.OrderConfirmed(ctx, orderID, session.ID)
	}
	f.events.SessionClosed(ctx, closed.ID, closed.TableID, attempt.Amount)

	f.logger.Info("session settled",
		slog.String("session_id", closed.ID),
		slog.String("table_id", closed.TableID),
		slog.Float64("amount", attempt.Amount),
	)
	return nil
}

// finishClosedSettlement re-runs the post-close steps for a session
// whose closed transition already committed. A redelivery lands here
// when an earlier delivery failed between the transition and the table
// release, leaving pending orders or an occupied table behind. A table
// that has since moved on to a newer session is left alone.
func (f *TableServiceFacade) finishClosedSettlement(ctx context.Context, session *model.Session) error {
	confirmed, err := f.orders.ConfirmAllPending(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("confirm orders: %w", err)
	}

	err = f.tables.Release(ctx, session.TableID, session.ID)
	if err != nil && !errors.Is(err, domainErrors.ErrSessionMismatch) {
		return fmt.Errorf("release table: %w", err)
	}

	for _, orderID := range confirmed {
		f.events.OrderConfirmed(ctx, orderID, session.ID)
	}
	return nil
}

// AbandonSession cancels an open session (staff action or timeout) and
// frees its table. Orders are retained for audit. Calling it again on a
// session that is already terminal retries the table release, so a
// failed release never strands the table.
func (f *TableServiceFacade) AbandonSession(ctx context.Context, sessionID string) error {
	unlock := f.locks.Lock(sessionID)
	defer unlock()

	session, err := f.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	switch session.Status {
	case model.SessionStatusAbandoned, model.SessionStatusClosed:
		// The session is already terminal; a retry after a failed
		// release only needs to free the table. A table that moved on
		// to a newer session is left alone.
		err := f.tables.Release(ctx, session.TableID, session.ID)
		if err != nil && !errors.Is(err, domainErrors.ErrSessionMismatch) {
			return err
		}
		return nil
	}

	abandoned, err := f.transitionWithRetry(ctx, sessionID, session.Version, model.SessionStatusAbandoned)
	if err != nil {
		return err
	}

	return f.tables.Release(ctx, abandoned.TableID, abandoned.ID)
}

// ExpiredSessions lists open sessions past their TTL for the sweeper.
func (f *TableServiceFacade) ExpiredSessions(ctx context.Context, limit int) ([]model.Session, error) {
	return f.sessions.ListExpired(ctx, time.Now().Add(-f.sessionTTL), limit)
}

// transitionWithRetry applies the transition, re-reading and retrying
// a bounded number of times on version conflicts. Other failures
// surface unmodified.
func (f *TableServiceFacade) transitionWithRetry(ctx context.Context, sessionID string, expectedVersion int64, to model.SessionStatus) (*model.Session, error) {
	version := expectedVersion
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		session, err := f.sessions.Transition(ctx, sessionID, version, to)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, domainErrors.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err

		current, getErr := f.sessions.Get(ctx, sessionID)
		if getErr != nil {
			return nil, getErr
		}
		version = current.Version
	}
	return nil, lastErr
}
