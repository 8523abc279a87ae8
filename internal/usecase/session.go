package usecase

import (
	"context"
	"time"

	"github.com/dinehall/tableside/internal/domain/model"
	"github.com/dinehall/tableside/internal/domain/repository"
	"github.com/dinehall/tableside/internal/storage/cache"
)

// SessionUseCase owns session state: durable store plus a fast-path
// cache of live sessions invalidated on every transition.
type SessionUseCase struct {
	sessions repository.SessionRepository
	cache    *cache.SessionCache
}

// NewSessionUseCase constructs SessionUseCase.
func NewSessionUseCase(sessions repository.SessionRepository, sessionCache *cache.SessionCache) *SessionUseCase {
	return &SessionUseCase{sessions: sessions, cache: sessionCache}
}

// Create persists a fresh open session for the table.
func (u *SessionUseCase) Create(ctx context.Context, sessionID, tableID string) (*model.Session, error) {
	session, err := u.sessions.Create(ctx, sessionID, tableID)
	if err != nil {
		return nil, err
	}
	u.cache.Put(session)
	return session, nil
}

// Get returns the session, served from cache when possible.
func (u *SessionUseCase) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	if session, ok := u.cache.Get(sessionID); ok {
		return session, nil
	}
	session, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	u.cache.Put(session)
	return session, nil
}

// GetByTable returns the table's live session, serving re-scans of the
// same QR code.
func (u *SessionUseCase) GetByTable(ctx context.Context, tableID string) (*model.Session, error) {
	if session, ok := u.cache.GetByTable(tableID); ok {
		return session, nil
	}
	session, err := u.sessions.GetOpenByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	u.cache.Put(session)
	return session, nil
}

// Transition applies an optimistic-versioned status change and keeps
// the cache consistent with the outcome.
func (u *SessionUseCase) Transition(ctx context.Context, sessionID string, expectedVersion int64, newStatus model.SessionStatus) (*model.Session, error) {
	session, err := u.sessions.Transition(ctx, sessionID, expectedVersion, newStatus)
	if err != nil {
		return nil, err
	}
	u.cache.Invalidate(session.ID, session.TableID)
	u.cache.Put(session)
	return session, nil
}

// ListExpired returns open sessions older than the TTL cutoff.
func (u *SessionUseCase) ListExpired(ctx context.Context, olderThan time.Time, limit int) ([]model.Session, error) {
	return u.sessions.ListExpired(ctx, olderThan, limit)
}
