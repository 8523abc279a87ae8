package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
	"github.com/dinehall/tableside/internal/domain/repository"
)

const uniqueViolationCode = "23505"

// Pool is the subset of pgxpool.Pool the storage relies on; tests
// substitute a pgxmock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Storage acts as repository facade backed by PostgreSQL.
type Storage struct {
	pool   Pool
	logger *slog.Logger
}

type tableRepository struct {
	storage *Storage
}

type sessionRepository struct {
	storage *Storage
}

type orderRepository struct {
	storage *Storage
}

type paymentRepository struct {
	storage *Storage
}

// New creates storage with schema initialization.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	storage := &Storage{pool: pool, logger: logger}
	if err := storage.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return storage, nil
}

// Close releases database resources.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Factory methods for domain repositories.
func (s *Storage) Tables() repository.TableRepository {
	return &tableRepository{storage: s}
}

func (s *Storage) Sessions() repository.SessionRepository {
	return &sessionRepository{storage: s}
}

func (s *Storage) Orders() repository.OrderRepository {
	return &orderRepository{storage: s}
}

func (s *Storage) Payments() repository.PaymentRepository {
	return &paymentRepository{storage: s}
}

func (s *Storage) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tables (
            id TEXT PRIMARY KEY,
            occupied BOOLEAN NOT NULL DEFAULT FALSE,
            session_id TEXT,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            table_id TEXT NOT NULL REFERENCES tables(id),
            status TEXT NOT NULL,
            version BIGINT NOT NULL DEFAULT 1,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            closed_at TIMESTAMPTZ
        )`,
		`CREATE TABLE IF NOT EXISTS orders (
            id TEXT PRIMARY KEY,
            session_id TEXT NOT NULL REFERENCES sessions(id),
            seq BIGINT NOT NULL,
            status TEXT NOT NULL,
            submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (session_id, seq)
        )`,
		`CREATE TABLE IF NOT EXISTS order_items (
            order_id TEXT NOT NULL REFERENCES orders(id),
            position INT NOT NULL,
            dish_id TEXT NOT NULL,
            name TEXT NOT NULL,
            quantity INT NOT NULL,
            unit_price DOUBLE PRECISION NOT NULL,
            PRIMARY KEY (order_id, position)
        )`,
		`CREATE TABLE IF NOT EXISTS payment_attempts (
            id TEXT PRIMARY KEY,
            session_id TEXT NOT NULL REFERENCES sessions(id),
            idempotency_key TEXT NOT NULL,
            amount DOUBLE PRECISION NOT NULL,
            status TEXT NOT NULL,
            gateway_ref TEXT UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_live_table ON sessions(table_id)
            WHERE status IN ('open', 'awaiting_payment')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_in_flight ON payment_attempts(session_id)
            WHERE status IN ('initiated', 'pending_gateway')`,
		`CREATE INDEX IF NOT EXISTS idx_orders_session ON orders(session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_open_age ON sessions(created_at) WHERE status = 'open'`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

// --- TableRepository implementation ---

func (r *tableRepository) Acquire(ctx context.Context, tableID, sessionID string) error {
	const query = `UPDATE tables SET occupied=TRUE, session_id=$2, updated_at=NOW()
                   WHERE id=$1 AND occupied=FALSE`
	tag, err := r.storage.pool.Exec(ctx, query, tableID, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row changed: either the table does not exist or someone else
	// holds it.
	var occupied bool
	err = r.storage.pool.QueryRow(ctx, `SELECT occupied FROM tables WHERE id=$1`, tableID).Scan(&occupied)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainErrors.ErrNotFound
		}
		return err
	}
	return domainErrors.ErrTableOccupied
}

func (r *tableRepository) Release(ctx context.Context, tableID, sessionID string) error {
	const query = `UPDATE tables SET occupied=FALSE, session_id=NULL, updated_at=NOW()
                   WHERE id=$1 AND session_id=$2`
	tag, err := r.storage.pool.Exec(ctx, query, tableID, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	table, err := r.Get(ctx, tableID)
	if err != nil {
		return err
	}
	if !table.Occupied && table.SessionID == nil {
		// Already free: releasing twice is a no-op.
		return nil
	}
	return domainErrors.ErrSessionMismatch
}

func (r *tableRepository) Get(ctx context.Context, tableID string) (*model.Table, error) {
	const query = `SELECT id, occupied, session_id, updated_at FROM tables WHERE id=$1`
	var t model.Table
	err := r.storage.pool.QueryRow(ctx, query, tableID).Scan(&t.ID, &t.Occupied, &t.SessionID, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// --- SessionRepository implementation ---

func (r *sessionRepository) Create(ctx context.Context, sessionID, tableID string) (*model.Session, error) {
	const query = `INSERT INTO sessions (id, table_id, status) VALUES ($1, $2, $3)
                   RETURNING version, created_at`
	s := model.Session{ID: sessionID, TableID: tableID, Status: model.SessionStatusOpen}
	err := r.storage.pool.QueryRow(ctx, query, sessionID, tableID, model.SessionStatusOpen).Scan(&s.Version, &s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// Live-session partial index: another session already
			// holds the table.
			return nil, domainErrors.ErrTableOccupied
		}
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	const query = `SELECT id, table_id, status, version, created_at, closed_at FROM sessions WHERE id=$1`
	return r.scanSession(r.storage.pool.QueryRow(ctx, query, sessionID))
}

func (r *sessionRepository) GetOpenByTable(ctx context.Context, tableID string) (*model.Session, error) {
	const query = `SELECT id, table_id, status, version, created_at, closed_at FROM sessions
                   WHERE table_id=$1 AND status IN ('open', 'awaiting_payment')`
	return r.scanSession(r.storage.pool.QueryRow(ctx, query, tableID))
}

func (r *sessionRepository) scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.TableID, &s.Status, &s.Version, &s.CreatedAt, &s.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) Transition(ctx context.Context, sessionID string, expectedVersion int64, newStatus model.SessionStatus) (*model.Session, error) {
	var result *model.Session
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		const selectQuery = `SELECT id, table_id, status, version, created_at, closed_at
                             FROM sessions WHERE id=$1 FOR UPDATE`
		var s model.Session
		err := tx.QueryRow(ctx, selectQuery, sessionID).Scan(&s.ID, &s.TableID, &s.Status, &s.Version, &s.CreatedAt, &s.ClosedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domainErrors.ErrNotFound
			}
			return err
		}

		if !model.CanTransition(s.Status, newStatus) {
			return domainErrors.ErrInvalidTransition
		}
		if s.Version != expectedVersion {
			return domainErrors.ErrVersionConflict
		}

		const updateQuery = `UPDATE sessions
                             SET status=$2, version=version+1,
                                 closed_at=CASE WHEN $2 IN ('closed', 'abandoned') THEN NOW() ELSE NULL END
                             WHERE id=$1
                             RETURNING version, closed_at`
		if err := tx.QueryRow(ctx, updateQuery, sessionID, newStatus).Scan(&s.Version, &s.ClosedAt); err != nil {
			return err
		}
		s.Status = newStatus
		result = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *sessionRepository) ListExpired(ctx context.Context, olderThan time.Time, limit int) ([]model.Session, error) {
	const query = `SELECT id, table_id, status, version, created_at, closed_at FROM sessions
                   WHERE status='open' AND created_at < $1
                   ORDER BY created_at
                   LIMIT $2`
	rows, err := r.storage.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.TableID, &s.Status, &s.Version, &s.CreatedAt, &s.ClosedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// --- OrderRepository implementation ---

func (r *orderRepository) Append(ctx context.Context, orderID, sessionID string, items []model.LineItem) (*model.Order, error) {
	if len(items) == 0 {
		return nil, domainErrors.ErrEmptyItems
	}

	var order *model.Order
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		// Re-read the session status under lock: the session may have
		// closed between the caller's check and this write.
		var status model.SessionStatus
		err := tx.QueryRow(ctx, `SELECT status FROM sessions WHERE id=$1 FOR UPDATE`, sessionID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domainErrors.ErrNotFound
			}
			return err
		}
		if status != model.SessionStatusOpen {
			return domainErrors.ErrSessionNotOpen
		}

		var seq int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0)+1 FROM orders WHERE session_id=$1`, sessionID).Scan(&seq); err != nil {
			return err
		}

		o := model.Order{ID: orderID, SessionID: sessionID, Seq: seq, Status: model.OrderStatusPending, Items: items}
		const insertOrder = `INSERT INTO orders (id, session_id, seq, status) VALUES ($1, $2, $3, $4)
                             RETURNING submitted_at`
		if err := tx.QueryRow(ctx, insertOrder, orderID, sessionID, seq, model.OrderStatusPending).Scan(&o.SubmittedAt); err != nil {
			return err
		}

		const insertItem = `INSERT INTO order_items (order_id, position, dish_id, name, quantity, unit_price)
                            VALUES ($1, $2, $3, $4, $5, $6)`
		for i, item := range items {
			if _, err := tx.Exec(ctx, insertItem, orderID, i, item.DishID, item.Name, item.Quantity, item.UnitPrice); err != nil {
				return err
			}
		}

		order = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) Confirm(ctx context.Context, orderID string) (*model.Order, error) {
	var order *model.Order
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		const selectQuery = `SELECT id, session_id, seq, status, submitted_at FROM orders WHERE id=$1 FOR UPDATE`
		var o model.Order
		err := tx.QueryRow(ctx, selectQuery, orderID).Scan(&o.ID, &o.SessionID, &o.Seq, &o.Status, &o.SubmittedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domainErrors.ErrNotFound
			}
			return err
		}

		switch o.Status {
		case model.OrderStatusConfirmed:
			// Confirming twice is a no-op.
		case model.OrderStatusPending:
			if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, orderID, model.OrderStatusConfirmed); err != nil {
				return err
			}
			o.Status = model.OrderStatusConfirmed
		default:
			return domainErrors.ErrInvalidTransition
		}

		order = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) ConfirmAllPending(ctx context.Context, sessionID string) ([]string, error) {
	const query = `UPDATE orders SET status=$2 WHERE session_id=$1 AND status=$3 RETURNING id`
	rows, err := r.storage.pool.Query(ctx, query, sessionID, model.OrderStatusConfirmed, model.OrderStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *orderRepository) ListBySession(ctx context.Context, sessionID string) ([]model.Order, error) {
	const query = `SELECT o.id, o.session_id, o.seq, o.status, o.submitted_at,
                          i.dish_id, i.name, i.quantity, i.unit_price
                   FROM orders o
                   JOIN order_items i ON i.order_id = o.id
                   WHERE o.session_id=$1
                   ORDER BY o.seq, i.position`
	rows, err := r.storage.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Order
	for rows.Next() {
		var (
			o    model.Order
			item model.LineItem
		)
		if err := rows.Scan(&o.ID, &o.SessionID, &o.Seq, &o.Status, &o.SubmittedAt,
			&item.DishID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		if n := len(result); n > 0 && result[n-1].ID == o.ID {
			result[n-1].Items = append(result[n-1].Items, item)
			continue
		}
		o.Items = []model.LineItem{item}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *orderRepository) TotalAmount(ctx context.Context, sessionID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(i.quantity * i.unit_price), 0)
                   FROM orders o
                   JOIN order_items i ON i.order_id = o.id
                   WHERE o.session_id=$1 AND o.status <> 'cancelled'`
	var total float64
	if err := r.storage.pool.QueryRow(ctx, query, sessionID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// --- PaymentRepository implementation ---

func (r *paymentRepository) Create(ctx context.Context, attempt *model.PaymentAttempt) (*model.PaymentAttempt, error) {
	const query = `INSERT INTO payment_attempts (id, session_id, idempotency_key, amount, status)
                   VALUES ($1, $2, $3, $4, $5)
                   RETURNING created_at, updated_at`
	a := *attempt
	a.Status = model.PaymentStatusInitiated
	err := r.storage.pool.QueryRow(ctx, query, a.ID, a.SessionID, a.IdempotencyKey, a.Amount, a.Status).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// In-flight partial index: an unresolved attempt exists.
			return nil, domainErrors.ErrAttemptInFlight
		}
		return nil, err
	}
	return &a, nil
}

func (r *paymentRepository) GetByGatewayRef(ctx context.Context, gatewayRef string) (*model.PaymentAttempt, error) {
	const query = `SELECT id, session_id, idempotency_key, amount, status, gateway_ref, created_at, updated_at
                   FROM payment_attempts WHERE gateway_ref=$1`
	return r.scanAttempt(r.storage.pool.QueryRow(ctx, query, gatewayRef))
}

func (r *paymentRepository) GetInFlight(ctx context.Context, sessionID string) (*model.PaymentAttempt, error) {
	const query = `SELECT id, session_id, idempotency_key, amount, status, gateway_ref, created_at, updated_at
                   FROM payment_attempts
                   WHERE session_id=$1 AND status IN ('initiated', 'pending_gateway')`
	return r.scanAttempt(r.storage.pool.QueryRow(ctx, query, sessionID))
}

func (r *paymentRepository) scanAttempt(row pgx.Row) (*model.PaymentAttempt, error) {
	var a model.PaymentAttempt
	err := row.Scan(&a.ID, &a.SessionID, &a.IdempotencyKey, &a.Amount, &a.Status, &a.GatewayRef, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *paymentRepository) MarkDispatched(ctx context.Context, attemptID, gatewayRef string) (*model.PaymentAttempt, error) {
	const query = `UPDATE payment_attempts
                   SET status=$2, gateway_ref=$3, updated_at=NOW()
                   WHERE id=$1 AND status=$4
                   RETURNING id, session_id, idempotency_key, amount, status, gateway_ref, created_at, updated_at`
	return r.scanAttempt(r.storage.pool.QueryRow(ctx, query, attemptID, model.PaymentStatusPendingGateway, gatewayRef, model.PaymentStatusInitiated))
}

func (r *paymentRepository) Settle(ctx context.Context, attemptID string, status model.PaymentStatus) (*model.PaymentAttempt, error) {
	var attempt *model.PaymentAttempt
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		const selectQuery = `SELECT id, session_id, idempotency_key, amount, status, gateway_ref, created_at, updated_at
                             FROM payment_attempts WHERE id=$1 FOR UPDATE`
		var a model.PaymentAttempt
		err := tx.QueryRow(ctx, selectQuery, attemptID).Scan(&a.ID, &a.SessionID, &a.IdempotencyKey, &a.Amount, &a.Status, &a.GatewayRef, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domainErrors.ErrNotFound
			}
			return err
		}
		if a.Terminal() {
			return domainErrors.ErrAlreadyTerminal
		}

		const updateQuery = `UPDATE payment_attempts SET status=$2, updated_at=NOW() WHERE id=$1 RETURNING updated_at`
		if err := tx.QueryRow(ctx, updateQuery, attemptID, status).Scan(&a.UpdatedAt); err != nil {
			return err
		}
		a.Status = status
		attempt = &a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *paymentRepository) CountByStatus(ctx context.Context, sessionID string, status model.PaymentStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM payment_attempts WHERE session_id=$1 AND status=$2`
	var count int
	if err := r.storage.pool.QueryRow(ctx, query, sessionID, status).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// WithinTransaction executes function inside transaction boundary.
func (s *Storage) WithinTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck verifies database connectivity.
func (s *Storage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Logger returns storage logger.
func (s *Storage) Logger() *slog.Logger {
	return s.logger
}
