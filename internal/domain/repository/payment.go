package repository

import (
	"context"

	"github.com/dinehall/tableside/internal/domain/model"
)

// PaymentRepository persists capture attempts. The schema allows at
// most one in-flight attempt per session.
type PaymentRepository interface {
	Create(ctx context.Context, attempt *model.PaymentAttempt) (*model.PaymentAttempt, error)
	GetByGatewayRef(ctx context.Context, gatewayRef string) (*model.PaymentAttempt, error)
	GetInFlight(ctx context.Context, sessionID string) (*model.PaymentAttempt, error)
	// MarkDispatched moves an initiated attempt to pending_gateway and
	// records the gateway reference.
	MarkDispatched(ctx context.Context, attemptID, gatewayRef string) (*model.PaymentAttempt, error)
	// Settle moves an attempt to a terminal status. Settling an
	// already-terminal attempt fails with ErrAlreadyTerminal.
	Settle(ctx context.Context, attemptID string, status model.PaymentStatus) (*model.PaymentAttempt, error)
	CountByStatus(ctx context.Context, sessionID string, status model.PaymentStatus) (int, error)
}
