package dto

// CheckoutResponse acknowledges a dispatched capture attempt.
type CheckoutResponse struct {
	PaymentAttemptID string  `json:"payment_attempt_id"`
	Amount           float64 `json:"amount"`
	Status           string  `json:"status"`
}

// GatewayCallbackRequest describes the card gateway's webhook payload.
type GatewayCallbackRequest struct {
	GatewayRef string  `json:"gateway_ref"`
	Outcome    string  `json:"outcome"`
	Amount     float64 `json:"amount"`
}
