package model

import "time"

// PaymentStatus describes a capture attempt's lifecycle.
type PaymentStatus string

const (
	PaymentStatusInitiated      PaymentStatus = "initiated"
	PaymentStatusPendingGateway PaymentStatus = "pending_gateway"
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusFailed         PaymentStatus = "failed"
)

// GatewayOutcome is the result reported by the card gateway callback.
type GatewayOutcome string

const (
	GatewayOutcomeSucceeded GatewayOutcome = "succeeded"
	GatewayOutcomeFailed    GatewayOutcome = "failed"
)

// PaymentAttempt is one capture request against the card gateway. At
// most one attempt per session may be in flight; a session closes only
// after exactly one attempt succeeds.
type PaymentAttempt struct {
	ID             string
	SessionID      string
	IdempotencyKey string
	Amount         float64
	Status         PaymentStatus
	GatewayRef     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the attempt reached a final state.
func (a *PaymentAttempt) Terminal() bool {
	return a.Status == PaymentStatusSucceeded || a.Status == PaymentStatusFailed
}

// InFlight reports whether the attempt still awaits resolution.
func (a *PaymentAttempt) InFlight() bool {
	return a.Status == PaymentStatusInitiated || a.Status == PaymentStatusPendingGateway
}

// TerminalStatus maps a gateway outcome onto the attempt status it
// settles to.
func (o GatewayOutcome) TerminalStatus() PaymentStatus {
	if o == GatewayOutcomeSucceeded {
		return PaymentStatusSucceeded
	}
	return PaymentStatusFailed
}
