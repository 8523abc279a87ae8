package usecase

import (
	"context"

	"github.com/google/uuid"

	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
	"github.com/dinehall/tableside/internal/domain/repository"
)

// OrderUseCase encapsulates the append-only order ledger.
type OrderUseCase struct {
	orders repository.OrderRepository
}

// NewOrderUseCase constructs OrderUseCase.
func NewOrderUseCase(orders repository.OrderRepository) *OrderUseCase {
	return &OrderUseCase{orders: orders}
}

// Append validates and writes one order batch. The repository re-reads
// the session status inside its transaction, so a session closing
// concurrently cannot gain an order.
func (u *OrderUseCase) Append(ctx context.Context, sessionID string, items []model.LineItem) (*model.Order, error) {
	if len(items) == 0 {
		return nil, domainErrors.ErrEmptyItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, domainErrors.ErrEmptyItems
		}
	}
	return u.orders.Append(ctx, uuid.NewString(), sessionID, items)
}

// Confirm flips one pending order to confirmed.
func (u *OrderUseCase) Confirm(ctx context.Context, orderID string) (*model.Order, error) {
	return u.orders.Confirm(ctx, orderID)
}

// ConfirmAllPending confirms the session's remaining pending orders at
// settlement and returns their ids.
func (u *OrderUseCase) ConfirmAllPending(ctx context.Context, sessionID string) ([]string, error) {
	return u.orders.ConfirmAllPending(ctx, sessionID)
}

// ListBySession returns the session's orders in admission order.
func (u *OrderUseCase) ListBySession(ctx context.Context, sessionID string) ([]model.Order, error) {
	return u.orders.ListBySession(ctx, sessionID)
}

// TotalAmount sums the session's non-cancelled orders.
func (u *OrderUseCase) TotalAmount(ctx context.Context, sessionID string) (float64, error) {
	return u.orders.TotalAmount(ctx, sessionID)
}
