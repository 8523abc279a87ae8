package repository

import (
	"context"
	"time"

	"github.com/dinehall/tableside/internal/domain/model"
)

// SessionRepository is the single source of truth for session state.
type SessionRepository interface {
	Create(ctx context.Context, sessionID, tableID string) (*model.Session, error)
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	GetOpenByTable(ctx context.Context, tableID string) (*model.Session, error)
	// Transition applies an optimistic-versioned status change. A
	// stale expectedVersion fails with ErrVersionConflict; an illegal
	// status change fails with ErrInvalidTransition.
	Transition(ctx context.Context, sessionID string, expectedVersion int64, newStatus model.SessionStatus) (*model.Session, error)
	// ListExpired returns open sessions created before olderThan, for
	// the background sweep.
	ListExpired(ctx context.Context, olderThan time.Time, limit int) ([]model.Session, error)
}
