package checkout

import (
	"errors"
	"fmt"
	"time"
)

// State is the payment session state of an order.
type State string

const (
	StateCreated        State = "CREATED"
	StateApproved       State = "APPROVED"
	StateCapturePending State = "CAPTURE_PENDING"
	StateCompleted      State = "COMPLETED"
	StateRefunded       State = "REFUNDED"
	StateFailed         State = "FAILED"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderCompleted = errors.New("order is already completed")
	ErrInvalidState   = errors.New("invalid order state transition")
)

// validTransitions defines the forward-only transition graph. FAILED is
// reachable from every non-terminal state; REFUNDED only from COMPLETED.
var validTransitions = map[State][]State{
	StateCreated:        {StateApproved, StateCapturePending, StateCompleted, StateFailed},
	StateApproved:       {StateCapturePending, StateCompleted, StateFailed},
	StateCapturePending: {StateCompleted, StateFailed},
	StateCompleted:      {StateRefunded},
	StateRefunded:       {},
	StateFailed:         {},
}

// Product is what the buyer is purchasing. Price is kept as the processor's
// decimal string and never computed on locally.
type Product struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Price    string `json:"price"`
}

// Order is the local audit record of one purchase attempt, keyed by the
// processor-assigned order ID. Orders are never deleted, only terminally
// marked.
type Order struct {
	ID          string    `json:"order_id"`
	Product     Product   `json:"product"`
	State       State     `json:"state"`
	PayerEmail  string    `json:"payer_email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// FulfillmentDispatched flips false to true exactly once; it is the
	// guard against double-granting content access.
	FulfillmentDispatched bool `json:"fulfillment_dispatched"`

	// Refund audit fields, set when a refund webhook is applied.
	RefundAmount   string    `json:"refund_amount,omitempty"`
	RefundCurrency string    `json:"refund_currency,omitempty"`
	RefundedAt     time.Time `json:"refunded_at,omitempty"`
}

// CanTransitionTo checks if the order can move to the target state.
func (o *Order) CanTransitionTo(target State) bool {
	allowed, exists := validTransitions[o.State]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the order has reached a terminal state.
// COMPLETED counts: the only event still accepted there is a refund, which
// is handled explicitly.
func (o *Order) Terminal() bool {
	return o.State == StateCompleted || o.State == StateRefunded || o.State == StateFailed
}

// transitionError returns an appropriate error for an invalid transition.
func (o *Order) transitionError(target State) error {
	if (o.State == StateCompleted || o.State == StateRefunded) && target != StateRefunded {
		return ErrOrderCompleted
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidState, o.State, target)
}
