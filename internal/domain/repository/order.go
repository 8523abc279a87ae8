package repository

import (
	"context"

	"github.com/dinehall/tableside/internal/domain/model"
)

// OrderRepository is the append-only per-session order ledger.
type OrderRepository interface {
	// Append re-reads the session status inside the insert transaction
	// and fails with ErrSessionNotOpen unless it is open. Ledger order
	// is the order in which appends were admitted.
	Append(ctx context.Context, orderID, sessionID string, items []model.LineItem) (*model.Order, error)
	Confirm(ctx context.Context, orderID string) (*model.Order, error)
	// ConfirmAllPending flips every pending order of the session to
	// confirmed and returns the confirmed order ids.
	ConfirmAllPending(ctx context.Context, sessionID string) ([]string, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Order, error)
	// TotalAmount sums quantity times snapshotted unit price across
	// the session's non-cancelled orders.
	TotalAmount(ctx context.Context, sessionID string) (float64, error)
}
