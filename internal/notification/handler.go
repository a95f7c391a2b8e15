package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/paypal-checkout/internal/checkout"
	"github.com/example/paypal-checkout/internal/email"
)

// Handler processes fulfillment events for sending notifications
type Handler struct {
	emailService *email.Service
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service) *Handler {
	return &Handler{emailService: emailSvc}
}

// HandleEvent processes an event from Kafka. Returning an error leaves the
// message for the consumer group to retry independently of the webhook path.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event checkout.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	switch event.Type {
	case checkout.EventOrderCompleted:
		return h.handleOrderCompleted(event)
	case checkout.EventOrderRefunded:
		return h.handleOrderRefunded(event)
	}

	return nil
}

func (h *Handler) handleOrderCompleted(event checkout.Event) error {
	var e checkout.OrderCompleted
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderCompleted event: %v", err)
		return err
	}

	if e.PayerEmail == "" {
		log.Printf("[Notifier] Order %s completed without a payer email, skipping confirmation", e.OrderID)
		return nil
	}

	if err := h.emailService.SendAccessGranted(e.PayerEmail, e.OrderID, e.ProductName, e.Price, e.Currency); err != nil {
		log.Printf("[Notifier] Failed to send confirmation to %s: %v", e.PayerEmail, err)
		return err
	}

	log.Printf("[Notifier] Access granted email sent to %s for order %s", e.PayerEmail, e.OrderID)
	return nil
}

func (h *Handler) handleOrderRefunded(event checkout.Event) error {
	var e checkout.OrderRefunded
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderRefunded event: %v", err)
		return err
	}

	if e.PayerEmail == "" {
		log.Printf("[Notifier] Order %s refunded without a payer email, skipping notice", e.OrderID)
		return nil
	}

	if err := h.emailService.SendAccessRevoked(e.PayerEmail, e.OrderID, e.ProductName, e.Amount, e.Currency); err != nil {
		log.Printf("[Notifier] Failed to send refund notice to %s: %v", e.PayerEmail, err)
		return err
	}

	log.Printf("[Notifier] Access revoked email sent to %s for order %s", e.PayerEmail, e.OrderID)
	return nil
}
