package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/paypal-checkout/internal/auth"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key", 15*time.Minute)
}

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	jwtService := newTestJWTService()
	middleware := AuthMiddleware(jwtService)

	token, _, err := jwtService.GenerateAccessToken("admin", "admin")
	require.NoError(t, err)

	// Capture the claims the middleware puts on the context
	var capturedClaims *auth.Claims
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(UserContextKey).(*auth.Claims)
		if ok {
			capturedClaims = claims
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, capturedClaims)
	assert.Equal(t, "admin", capturedClaims.Name)
	assert.Equal(t, "admin", capturedClaims.Role)
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	middleware := AuthMiddleware(newTestJWTService())

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	rec := httptest.NewRecorder()

	middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	middleware := AuthMiddleware(newTestJWTService())

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	rec := httptest.NewRecorder()

	middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	// Create service with very short expiry
	jwtService := auth.NewJWTService("test-secret", 1*time.Millisecond)
	middleware := AuthMiddleware(jwtService)

	token, _, err := jwtService.GenerateAccessToken("admin", "admin")
	require.NoError(t, err)

	// Wait for token to expire
	time.Sleep(10 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_WrongSignature(t *testing.T) {
	jwtService1 := auth.NewJWTService("secret-1", 15*time.Minute)
	jwtService2 := auth.NewJWTService("secret-2", 15*time.Minute)

	token, _, err := jwtService1.GenerateAccessToken("admin", "admin")
	require.NoError(t, err)

	// Validate with a service holding a different secret
	middleware := AuthMiddleware(jwtService2)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ExtractToken(req))

	req.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", ExtractToken(req))

	req.Header.Set("Authorization", "Basic abc123")
	assert.Empty(t, ExtractToken(req))
}

// ============================================
// Require Role Middleware Tests
// ============================================

func withClaims(req *http.Request, claims *auth.Claims) *http.Request {
	ctx := context.WithValue(req.Context(), UserContextKey, claims)
	return req.WithContext(ctx)
}

func TestRequireRole_HasRole(t *testing.T) {
	middleware := RequireRole("admin")

	req := withClaims(httptest.NewRequest(http.MethodGet, "/admin/orders", nil),
		&auth.Claims{Name: "admin", Role: "admin"})
	rec := httptest.NewRecorder()

	middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole_WrongRole(t *testing.T) {
	middleware := RequireRole("admin")

	req := withClaims(httptest.NewRequest(http.MethodGet, "/admin/orders", nil),
		&auth.Claims{Name: "viewer", Role: "viewer"})
	rec := httptest.NewRecorder()

	middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "forbidden")
}

func TestRequireRole_NoClaims(t *testing.T) {
	middleware := RequireRole("admin")

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	rec := httptest.NewRecorder()

	middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================
// Helper Functions Tests
// ============================================

func TestGetUserFromContext(t *testing.T) {
	claims := &auth.Claims{Name: "admin", Role: "admin"}
	ctx := context.WithValue(context.Background(), UserContextKey, claims)

	result, ok := GetUserFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, claims, result)

	result, ok = GetUserFromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, result)
}
