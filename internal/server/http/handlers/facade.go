package handlers

import (
	"context"

	"github.com/dinehall/tableside/internal/domain/model"
)

// SessionFacade describes session lifecycle capabilities required by
// handlers.
type SessionFacade interface {
	StartSession(ctx context.Context, tableID string) (*model.Session, error)
	LiveSessionForTable(ctx context.Context, tableID string) (*model.Session, error)
	AbandonSession(ctx context.Context, sessionID string) error
}

// OrderFacade encapsulates ledger operations exposed via HTTP.
type OrderFacade interface {
	SubmitOrder(ctx context.Context, sessionID string, items []model.OrderItemRequest) (*model.Order, error)
	SessionOrders(ctx context.Context, sessionID string) ([]model.Order, error)
}

// PaymentFacade provides checkout and gateway reconciliation.
type PaymentFacade interface {
	Checkout(ctx context.Context, sessionID string) (*model.PaymentAttempt, error)
	HandleGatewayCallback(ctx context.Context, gatewayRef string, outcome model.GatewayOutcome) error
}

// TablesideFacade aggregates the full set of operations used across
// handlers.
type TablesideFacade interface {
	SessionFacade
	OrderFacade
	PaymentFacade
}

// HealthChecker reports storage availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
