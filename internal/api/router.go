package api

import (
	"log"
	"net/http"

	"github.com/example/paypal-checkout/internal/api/middleware"
	"github.com/example/paypal-checkout/internal/auth"
)

// RouterConfig bundles the router dependencies. AdminHandlers and JWTService
// may be nil, in which case the admin routes are not mounted.
type RouterConfig struct {
	Handlers      *Handlers
	AdminHandlers *AdminHandlers
	JWTService    *auth.JWTService
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", onlyMethod(http.MethodGet, cfg.Handlers.Index))
	mux.HandleFunc("/success", onlyMethod(http.MethodGet, cfg.Handlers.Success))
	mux.HandleFunc("/cancel", onlyMethod(http.MethodGet, cfg.Handlers.Cancel))

	mux.HandleFunc("/api/create-paypal-order", onlyMethod(http.MethodPost, cfg.Handlers.CreateOrder))
	mux.HandleFunc("/api/capture-paypal-order", onlyMethod(http.MethodPost, cfg.Handlers.CaptureOrder))
	mux.HandleFunc("/paypal-webhook", onlyMethod(http.MethodPost, cfg.Handlers.Webhook))

	if cfg.AdminHandlers != nil && cfg.JWTService != nil {
		mux.HandleFunc("/admin/login", onlyMethod(http.MethodPost, cfg.AdminHandlers.Login))

		adminOnly := middleware.AuthMiddleware(cfg.JWTService)
		requireAdmin := middleware.RequireRole("admin")
		mux.Handle("/admin/orders", adminOnly(requireAdmin(
			http.HandlerFunc(onlyMethod(http.MethodGet, cfg.AdminHandlers.ListOrders)))))
	}

	return withLogging(mux)
}

func onlyMethod(method string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[API] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
