package usecase

import (
	"context"

	"github.com/dinehall/tableside/internal/domain/model"
	"github.com/dinehall/tableside/internal/domain/repository"
)

// TableUseCase guards table occupancy. All occupancy reads and writes
// go through here; no other component touches table state.
type TableUseCase struct {
	tables repository.TableRepository
}

// NewTableUseCase constructs TableUseCase.
func NewTableUseCase(tables repository.TableRepository) *TableUseCase {
	return &TableUseCase{tables: tables}
}

// Acquire claims a free table for the session; losers of the race get
// ErrTableOccupied.
func (u *TableUseCase) Acquire(ctx context.Context, tableID, sessionID string) error {
	return u.tables.Acquire(ctx, tableID, sessionID)
}

// Release frees the table held by the session.
func (u *TableUseCase) Release(ctx context.Context, tableID, sessionID string) error {
	return u.tables.Release(ctx, tableID, sessionID)
}

// Get returns current occupancy state.
func (u *TableUseCase) Get(ctx context.Context, tableID string) (*model.Table, error) {
	return u.tables.Get(ctx, tableID)
}
