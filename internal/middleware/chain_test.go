package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// newUploadLikeRouter はアップロードエンドポイントと同じ
// SecurityHeaders -> CSRF -> RateLimit のチェーンをchi.Routerで組み立てる。
func newUploadLikeRouter(limiter Limiter, reached *bool) http.Handler {
	r := chi.NewRouter()
	r.Use(NewSecurityHeadersMiddleware())
	r.Get("/api/csrf-token", NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP)
	r.Group(func(r chi.Router) {
		r.Use(NewCSRFMiddleware(CSRFConfig{}))
		r.Use(NewRateLimitMiddleware(limiter, RateLimitPolicy{FailOpen: true}, nil))
		r.Post("/api/uploads/scan", func(w http.ResponseWriter, r *http.Request) {
			*reached = true
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

// TestMiddlewareChain_CSRFTokenThenPost は発行したトークンでPOSTが通ることを検証する。
func TestMiddlewareChain_CSRFTokenThenPost(t *testing.T) {
	reached := false
	limiter := NewFixedWindowLimiter(RateLimiterConfig{Window: time.Minute, Max: 10})
	router := newUploadLikeRouter(limiter, &reached)

	tokenReq := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	tokenRes := httptest.NewRecorder()
	router.ServeHTTP(tokenRes, tokenReq)

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(tokenRes.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}
	if got := tokenRes.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("expected Strict-Transport-Security header on every response")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/scan", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: body.Token})
	req.Header.Set(CSRFHeaderName, body.Token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !reached {
		t.Error("handler should have been reached")
	}
}

// TestMiddlewareChain_CSRFFailure_DoesNotConsumeRateLimit は
// CSRF検証に失敗したリクエストがレート制限のカウントに影響しないことを検証する。
func TestMiddlewareChain_CSRFFailure_DoesNotConsumeRateLimit(t *testing.T) {
	reached := false
	limiter := NewFixedWindowLimiter(RateLimiterConfig{Window: time.Minute, Max: 1})
	router := newUploadLikeRouter(limiter, &reached)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/uploads/scan", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusForbidden)
		}
	}

	if limiter.Len() != 0 {
		t.Errorf("limiter entries = %d, want 0", limiter.Len())
	}
	if reached {
		t.Error("handler should not have been reached")
	}
}

// TestMiddlewareChain_SecurityHeaders は全てのセキュリティヘッダーが付与されることを検証する。
func TestMiddlewareChain_SecurityHeaders(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"Strict-Transport-Security": "max-age=63072000; includeSubDomains; preload",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestSecurityHeaders_APIPathsAreNotCached(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("api", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/user-roles", nil))

		if got := w.Header().Get("Cache-Control"); got != "no-store" {
			t.Errorf("Cache-Control = %q, want no-store", got)
		}
		if got := w.Header().Get("Content-Security-Policy"); got != apiContentSecurityPolicy {
			t.Errorf("Content-Security-Policy = %q, want %q", got, apiContentSecurityPolicy)
		}
	})

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if got := w.Header().Get("Cache-Control"); got != "" {
			t.Errorf("Cache-Control = %q, want empty outside /api/", got)
		}
	})
}
