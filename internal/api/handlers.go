package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/example/paypal-checkout/internal/checkout"
	"github.com/example/paypal-checkout/internal/paypal"
)

// maxWebhookBody caps webhook request bodies.
const maxWebhookBody = int64(65536)

// CheckoutService is the slice of the checkout service the handlers use.
type CheckoutService interface {
	CreateOrder(ctx context.Context, product checkout.Product) (*paypal.OrderResult, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
	HandleWebhook(ctx context.Context, event *paypal.WebhookEvent) error
	ListOrders(ctx context.Context) ([]*checkout.Order, error)
}

// WebhookVerifier authenticates inbound webhook deliveries.
type WebhookVerifier interface {
	VerifyWebhookSignature(ctx context.Context, headers http.Header, rawBody []byte) (bool, error)
}

type Handlers struct {
	service  CheckoutService
	verifier WebhookVerifier
	clientID string
}

func NewHandlers(service CheckoutService, verifier WebhookVerifier, clientID string) *Handlers {
	return &Handlers{
		service:  service,
		verifier: verifier,
		clientID: clientID,
	}
}

// CreateOrder handles POST /api/create-paypal-order.
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var product checkout.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.CreateOrder(r.Context(), product)
	if err != nil {
		var vErr *checkout.ValidationError
		if errors.As(err, &vErr) {
			respondError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		log.Printf("[API] Create order failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	respondRaw(w, http.StatusOK, result.Raw)
}

// CaptureOrder handles POST /api/capture-paypal-order.
func (h *Handlers) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderID"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "Order ID is required")
		return
	}

	result, err := h.service.CaptureOrder(r.Context(), req.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrOrderCompleted):
			// Duplicate capture: answer success without touching the
			// processor again.
			respondJSON(w, http.StatusOK, map[string]string{"status": "COMPLETED"})
		case errors.Is(err, checkout.ErrOrderNotFound):
			respondError(w, http.StatusNotFound, "order not found")
		default:
			log.Printf("[API] Capture order %s failed: %v", req.OrderID, err)
			respondError(w, http.StatusInternalServerError, "failed to capture order")
		}
		return
	}

	respondRaw(w, http.StatusOK, result.Raw)
}

// Webhook handles POST /paypal-webhook. Verified events are always
// acknowledged with success, even when they change no local state, so the
// processor never enters a redelivery storm. Only unverifiable deliveries
// are rejected.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	ok, err := h.verifier.VerifyWebhookSignature(r.Context(), r.Header, body)
	if err != nil {
		log.Printf("[API] Webhook signature verification error: %v", err)
		respondError(w, http.StatusInternalServerError, "verification unavailable")
		return
	}
	if !ok {
		log.Printf("[API] Webhook signature verification FAILED from %s, event dropped", r.RemoteAddr)
		respondError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	event, err := paypal.ParseWebhookEvent(body)
	if err != nil {
		log.Printf("[API] Webhook body unparseable: %v", err)
		respondError(w, http.StatusBadRequest, "invalid event")
		return
	}

	log.Printf("[API] Received webhook event %s (%s)", event.ID, event.EventType)
	if err := h.service.HandleWebhook(r.Context(), event); err != nil {
		// Store failure: let the processor redeliver.
		log.Printf("[API] Webhook %s handling failed: %v", event.ID, err)
		respondError(w, http.StatusInternalServerError, "event not processed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondRaw relays a processor response body unchanged.
func respondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
