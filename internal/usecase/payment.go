package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
	"github.com/dinehall/tableside/internal/domain/repository"
)

// CaptureGateway dispatches a capture request to the external card
// gateway and returns its reference id. The outcome arrives later on
// the webhook.
type CaptureGateway interface {
	Capture(ctx context.Context, attemptID string, amount float64, idempotencyKey string) (string, error)
}

// PaymentUseCase drives capture attempts and reconciles gateway
// results.
type PaymentUseCase struct {
	payments repository.PaymentRepository
	gateway  CaptureGateway
	logger   *slog.Logger
}

// NewPaymentUseCase constructs PaymentUseCase.
func NewPaymentUseCase(payments repository.PaymentRepository, gateway CaptureGateway, logger *slog.Logger) *PaymentUseCase {
	return &PaymentUseCase{payments: payments, gateway: gateway, logger: logger}
}

// Initiate creates a capture attempt for the session and dispatches it
// to the gateway. At most one attempt per session may be unresolved;
// a second caller fails with ErrAttemptInFlight and should poll, not
// retry.
func (u *PaymentUseCase) Initiate(ctx context.Context, session *model.Session, amount float64, idempotencyKey string) (*model.PaymentAttempt, error) {
	if session.Status != model.SessionStatusAwaitingPayment {
		return nil, domainErrors.ErrSessionNotAwaitingPayment
	}

	attempt, err := u.payments.Create(ctx, &model.PaymentAttempt{
		ID:             uuid.NewString(),
		SessionID:      session.ID,
		IdempotencyKey: idempotencyKey,
		Amount:         amount,
	})
	if err != nil {
		return nil, err
	}

	gatewayRef, err := u.gateway.Capture(ctx, attempt.ID, amount, idempotencyKey)
	if err != nil {
		// The attempt never reached the gateway; settle it failed so
		// the session is free to check out again.
		if _, settleErr := u.payments.Settle(ctx, attempt.ID, model.PaymentStatusFailed); settleErr != nil {
			u.logger.Error("settle undispatched attempt failed",
				slog.String("attempt_id", attempt.ID),
				slog.String("error", settleErr.Error()),
			)
		}
		return nil, fmt.Errorf("dispatch capture: %w", err)
	}

	return u.payments.MarkDispatched(ctx, attempt.ID, gatewayRef)
}

// Resolve applies a gateway callback outcome. Repeated callbacks with
// the outcome already applied are accepted as no-ops (changed=false);
// a conflicting outcome on a terminal attempt fails with
// ErrAlreadyTerminal and is never overwritten.
func (u *PaymentUseCase) Resolve(ctx context.Context, gatewayRef string, outcome model.GatewayOutcome) (*model.PaymentAttempt, bool, error) {
	attempt, err := u.payments.GetByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return nil, false, err
	}

	target := outcome.TerminalStatus()
	if attempt.Terminal() {
		if attempt.Status == target {
			return attempt, false, nil
		}
		return attempt, false, domainErrors.ErrAlreadyTerminal
	}

	settled, err := u.payments.Settle(ctx, attempt.ID, target)
	if err != nil {
		return nil, false, err
	}
	return settled, true, nil
}

// ByGatewayRef looks up the attempt a gateway reference points at.
func (u *PaymentUseCase) ByGatewayRef(ctx context.Context, gatewayRef string) (*model.PaymentAttempt, error) {
	return u.payments.GetByGatewayRef(ctx, gatewayRef)
}

// InFlight returns the session's unresolved attempt, if any.
func (u *PaymentUseCase) InFlight(ctx context.Context, sessionID string) (*model.PaymentAttempt, error) {
	return u.payments.GetInFlight(ctx, sessionID)
}

// SucceededCount reports how many attempts of the session captured
// successfully; a closed session has exactly one.
func (u *PaymentUseCase) SucceededCount(ctx context.Context, sessionID string) (int, error) {
	return u.payments.CountByStatus(ctx, sessionID, model.PaymentStatusSucceeded)
}
