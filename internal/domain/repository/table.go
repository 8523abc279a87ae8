package repository

import (
	"context"

	"github.com/dinehall/tableside/internal/domain/model"
)

// TableRepository owns table occupancy state. No other component may
// read or write it directly.
type TableRepository interface {
	// Acquire atomically claims a free table for the session. Exactly
	// one concurrent caller observes success; losers receive
	// ErrTableOccupied.
	Acquire(ctx context.Context, tableID, sessionID string) error
	// Release frees the table if it still references sessionID. A
	// table that is already free is a no-op success; a table held by a
	// different session fails with ErrSessionMismatch.
	Release(ctx context.Context, tableID, sessionID string) error
	Get(ctx context.Context, tableID string) (*model.Table, error)
}
