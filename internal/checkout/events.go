package checkout

import (
	"encoding/json"
	"time"
)

// Fulfillment event types published to the event bus.
const (
	EventOrderCompleted = "OrderCompleted"
	EventOrderRefunded  = "OrderRefunded"
)

// Event is the envelope for fulfillment events on the bus.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// OrderCompleted signals that payment for an order is final and content
// access should be granted to the payer.
type OrderCompleted struct {
	OrderID     string    `json:"order_id"`
	PayerEmail  string    `json:"payer_email"`
	ProductName string    `json:"product_name"`
	Price       string    `json:"price"`
	Currency    string    `json:"currency"`
	CompletedAt time.Time `json:"completed_at"`
}

// OrderRefunded signals that a completed order was refunded and content
// access should be revoked.
type OrderRefunded struct {
	OrderID     string    `json:"order_id"`
	PayerEmail  string    `json:"payer_email"`
	ProductName string    `json:"product_name"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	RefundedAt  time.Time `json:"refunded_at"`
}
