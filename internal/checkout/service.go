package checkout

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/paypal-checkout/internal/paypal"
)

// Store persists order audit records. Implementations live in
// internal/store.
type Store interface {
	Save(ctx context.Context, order *Order) error
	Get(ctx context.Context, orderID string) (*Order, bool, error)
	List(ctx context.Context) ([]*Order, error)
}

// Processor is the slice of the payment processor client the service needs.
type Processor interface {
	CreateOrder(ctx context.Context, name, currency, price string) (*paypal.OrderResult, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
}

// Dispatcher performs fulfillment side effects. Both methods are invoked at
// most once per order, after the guarding flag or state transition has been
// persisted.
type Dispatcher interface {
	GrantAccess(ctx context.Context, order *Order) error
	RevokeAccess(ctx context.Context, order *Order) error
}

// Service is the payment session state machine. It owns every mutation of
// order state; all event paths (synchronous capture, asynchronous webhooks)
// are serialized per order ID so racing deliveries cannot double-dispatch
// fulfillment.
type Service struct {
	store      Store
	processor  Processor
	dispatcher Dispatcher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store Store, processor Processor, dispatcher Dispatcher) *Service {
	return &Service{
		store:      store,
		processor:  processor,
		dispatcher: dispatcher,
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockOrder acquires the per-order mutex and returns its unlock func.
// Lock entries are kept for the order's lifetime; orders are few and never
// deleted, so the map mirrors the audit log.
func (s *Service) lockOrder(orderID string) func() {
	s.mu.Lock()
	l, ok := s.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[orderID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// CreateOrder validates the product, creates a processor order and persists
// the local record in state CREATED.
func (s *Service) CreateOrder(ctx context.Context, product Product) (*paypal.OrderResult, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	result, err := s.processor.CreateOrder(ctx, product.Name, product.Currency, product.Price)
	if err != nil {
		return nil, err
	}

	order := &Order{
		ID:        result.OrderID,
		Product:   product,
		State:     StateCreated,
		CreatedAt: time.Now(),
	}
	if err := s.store.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("saving order %s: %w", order.ID, err)
	}

	log.Printf("[Checkout] Order %s created (%s %s %s)", order.ID, product.Name, product.Price, product.Currency)
	return result, nil
}

// CaptureOrder finalizes funds for an approved order. Orders already past
// capture are rejected locally before any processor call: duplicates surface
// as ErrOrderCompleted, which callers treat as a no-op success.
func (s *Service) CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error) {
	unlock := s.lockOrder(orderID)
	defer unlock()

	order, found, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}

	switch order.State {
	case StateCompleted, StateRefunded:
		return nil, ErrOrderCompleted
	case StateFailed:
		return nil, fmt.Errorf("%w: order %s has failed", ErrInvalidState, orderID)
	}

	result, err := s.processor.CaptureOrder(ctx, orderID)
	if err != nil {
		// Local state is untouched on processor failure.
		return nil, err
	}

	if !result.Completed() {
		order.State = StateCapturePending
		if err := s.store.Save(ctx, order); err != nil {
			return nil, fmt.Errorf("saving order %s: %w", orderID, err)
		}
		log.Printf("[Checkout] Order %s capture pending (processor status %s)", orderID, result.Status)
		return result, nil
	}

	if err := s.complete(ctx, order, result.PayerEmail); err != nil {
		return nil, err
	}
	return result, nil
}

// HandleWebhook applies a verified processor event to the state machine.
// It only returns an error for store failures; every domain-level oddity
// (unknown order, terminal-state replay, unhandled event type) is logged and
// swallowed so the webhook is acknowledged and not redelivered.
func (s *Service) HandleWebhook(ctx context.Context, event *paypal.WebhookEvent) error {
	orderID := event.OrderID()
	if orderID == "" {
		log.Printf("[Checkout] Webhook %s (%s) carries no order id, ignoring", event.ID, event.EventType)
		return nil
	}

	unlock := s.lockOrder(orderID)
	defer unlock()

	order, found, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !found {
		log.Printf("[Checkout] Webhook %s (%s) for unknown order %s, acknowledging", event.ID, event.EventType, orderID)
		return nil
	}

	switch event.EventType {
	case paypal.EventCheckoutOrderApproved:
		return s.approve(ctx, order)
	case paypal.EventCheckoutOrderCompleted, paypal.EventPaymentCaptureCompleted:
		return s.complete(ctx, order, event.PayerEmail())
	case paypal.EventPaymentCaptureDenied:
		return s.fail(ctx, order, event.EventType)
	case paypal.EventPaymentRefundCompleted:
		value, currency := event.RefundAmount()
		return s.refund(ctx, order, value, currency)
	default:
		log.Printf("[Checkout] Ignoring webhook event type %s for order %s", event.EventType, orderID)
		return nil
	}
}

// approve moves CREATED to APPROVED. Replays and late deliveries after the
// order moved on are no-ops.
func (s *Service) approve(ctx context.Context, order *Order) error {
	if !order.CanTransitionTo(StateApproved) {
		log.Printf("[Checkout] Order %s already %s, approval is a no-op", order.ID, order.State)
		return nil
	}
	order.State = StateApproved
	if err := s.store.Save(ctx, order); err != nil {
		return fmt.Errorf("saving order %s: %w", order.ID, err)
	}
	log.Printf("[Checkout] Order %s approved by buyer", order.ID)
	return nil
}

// complete drives the order to COMPLETED and dispatches fulfillment exactly
// once. Both the synchronous capture path and the webhook path land here;
// whichever arrives first wins, the other finds the flag set and does
// nothing. The flag is persisted before the dispatcher runs, so a crash in
// between loses one dispatch rather than risking two.
func (s *Service) complete(ctx context.Context, order *Order, payerEmail string) error {
	if payerEmail != "" && order.PayerEmail == "" {
		order.PayerEmail = payerEmail
	}

	if order.State != StateCompleted {
		if !order.CanTransitionTo(StateCompleted) {
			log.Printf("[Checkout] Order %s is %s, completion is a no-op", order.ID, order.State)
			return nil
		}
		order.State = StateCompleted
		order.CompletedAt = time.Now()
	}

	if order.FulfillmentDispatched {
		if err := s.store.Save(ctx, order); err != nil {
			return fmt.Errorf("saving order %s: %w", order.ID, err)
		}
		log.Printf("[Checkout] Order %s already fulfilled, duplicate completion ignored", order.ID)
		return nil
	}

	order.FulfillmentDispatched = true
	if err := s.store.Save(ctx, order); err != nil {
		return fmt.Errorf("saving order %s: %w", order.ID, err)
	}

	log.Printf("[Checkout] Order %s completed, payer %s", order.ID, order.PayerEmail)
	if err := s.dispatcher.GrantAccess(ctx, order); err != nil {
		// The guard is already set; retrying here would reopen the
		// double-dispatch window. Leave recovery to the operator.
		log.Printf("[Checkout] Fulfillment dispatch failed for order %s: %v", order.ID, err)
	}
	return nil
}

// refund transitions COMPLETED to REFUNDED and revokes access once. Refund
// events for orders in any other state are acknowledged without effect.
func (s *Service) refund(ctx context.Context, order *Order, amount, currency string) error {
	if order.State != StateCompleted {
		log.Printf("[Checkout] Refund event for order %s in state %s, ignoring", order.ID, order.State)
		return nil
	}

	order.State = StateRefunded
	order.RefundAmount = amount
	order.RefundCurrency = currency
	order.RefundedAt = time.Now()
	if err := s.store.Save(ctx, order); err != nil {
		return fmt.Errorf("saving order %s: %w", order.ID, err)
	}

	log.Printf("[Checkout] Order %s refunded: %s %s", order.ID, amount, currency)
	if err := s.dispatcher.RevokeAccess(ctx, order); err != nil {
		log.Printf("[Checkout] Revoke dispatch failed for order %s: %v", order.ID, err)
	}
	return nil
}

// fail marks a non-terminal order FAILED.
func (s *Service) fail(ctx context.Context, order *Order, reason string) error {
	if !order.CanTransitionTo(StateFailed) {
		log.Printf("[Checkout] Failure event for order %s in state %s, ignoring", order.ID, order.State)
		return nil
	}
	order.State = StateFailed
	if err := s.store.Save(ctx, order); err != nil {
		return fmt.Errorf("saving order %s: %w", order.ID, err)
	}
	log.Printf("[Checkout] Order %s failed (%s)", order.ID, reason)
	return nil
}

// ListOrders returns every order audit record.
func (s *Service) ListOrders(ctx context.Context) ([]*Order, error) {
	return s.store.List(ctx)
}
