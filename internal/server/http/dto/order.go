package dto

import "time"

// SubmitOrderRequest describes one batch of requested dishes.
type SubmitOrderRequest struct {
	Items []OrderItemRequest `json:"items"`
}

// OrderItemRequest is a single requested dish position.
type OrderItemRequest struct {
	DishID   string `json:"dish_id"`
	Quantity int32  `json:"quantity"`
}

// SubmitOrderResponse acknowledges an admitted order batch.
type SubmitOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// LineItemResponse is one dish position with its snapshotted price.
type LineItemResponse struct {
	DishID    string  `json:"dish_id"`
	Name      string  `json:"name"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderResponse describes one ledger entry.
type OrderResponse struct {
	OrderID     string             `json:"order_id"`
	Items       []LineItemResponse `json:"items"`
	Status      string             `json:"status"`
	SubmittedAt time.Time          `json:"submitted_at"`
}
