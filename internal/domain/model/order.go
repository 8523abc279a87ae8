package model

import "time"

// OrderStatus describes one order batch's lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderItemRequest is one requested dish position as submitted by the
// diner, before the catalog price snapshot.
type OrderItemRequest struct {
	DishID   string
	Quantity int32
}

// LineItem is a single dish position with the unit price snapshotted
// at submission time.
type LineItem struct {
	DishID    string
	Name      string
	Quantity  int32
	UnitPrice float64
}

// Order is one batch of line items submitted within a session. Seq is
// assigned per session in admission order; confirmed orders are
// immutable except for status transitions.
type Order struct {
	ID          string
	SessionID   string
	Seq         int64
	Status      OrderStatus
	Items       []LineItem
	SubmittedAt time.Time
}

// Total returns the order amount from snapshotted prices.
func (o *Order) Total() float64 {
	var sum float64
	for _, item := range o.Items {
		sum += float64(item.Quantity) * item.UnitPrice
	}
	return sum
}
