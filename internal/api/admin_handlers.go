package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/example/paypal-checkout/internal/auth"
)

// AdminHandlers serves the operator surface: login and the order audit log.
type AdminHandlers struct {
	service      CheckoutService
	jwtService   *auth.JWTService
	passwordHash string
}

func NewAdminHandlers(service CheckoutService, jwtService *auth.JWTService, passwordHash string) *AdminHandlers {
	return &AdminHandlers{
		service:      service,
		jwtService:   jwtService,
		passwordHash: passwordHash,
	}
}

// Login handles POST /admin/login.
func (h *AdminHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		respondError(w, http.StatusBadRequest, "password is required")
		return
	}

	if !auth.CheckPassword(req.Password, h.passwordHash) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtService.GenerateAccessToken("admin", "admin")
	if err != nil {
		log.Printf("[API] Generating admin token: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"expires_at":   expiresAt,
	})
}

// ListOrders handles GET /admin/orders.
func (h *AdminHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		log.Printf("[API] Listing orders: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	respondJSON(w, http.StatusOK, orders)
}
