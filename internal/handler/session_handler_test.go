package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/loomcart/internal/middleware"
)

func TestSetSession(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantMaxAge int
	}{
		{"explicit expiry", `{"token":"eyJhbGciOi.payload.sig","expires_in":3600}`, 3600},
		{"zero expiry uses default", `{"token":"eyJhbGciOi.payload.sig","expires_in":0}`, 28800},
		{"expiry above cap is clamped", `{"token":"eyJhbGciOi.payload.sig","expires_in":999999}`, 28800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(jsonRequest(http.MethodPost, "/api/session", tt.body))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, true, decodeBody(t, w.Body.String())["success"])
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

			c := findCookie(w, middleware.SessionCookieName)
			require.NotNil(t, c)
			assert.Equal(t, "eyJhbGciOi.payload.sig", c.Value)
			assert.True(t, c.HttpOnly)
			assert.True(t, c.Secure)
			assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
			assert.Equal(t, "/", c.Path)
			assert.Equal(t, tt.wantMaxAge, c.MaxAge)
		})
	}
}

func TestSetSession_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing token", `{"expires_in":60}`},
		{"negative expiry", `{"token":"t","expires_in":-1}`},
		{"not json", `token=abc`},
		{"oversized token", `{"token":"` + strings.Repeat("a", 8193) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(jsonRequest(http.MethodPost, "/api/session", tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Nil(t, findCookie(w, middleware.SessionCookieName))
		})
	}
}

func TestSetSession_RateLimited(t *testing.T) {
	env := newTestEnv(t, withRateLimitMax(2))
	body := `{"token":"t","expires_in":60}`

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, env.do(jsonRequest(http.MethodPost, "/api/session", body)).Code)
	}

	w := env.do(jsonRequest(http.MethodPost, "/api/session", body))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeBody(t, w.Body.String())["code"])
	assert.Nil(t, findCookie(w, middleware.SessionCookieName))
}

func TestClearSession(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(http.MethodPost, "/api/session/clear", "")
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "stale"})
	w := env.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w.Body.String())["success"])

	c := findCookie(w, middleware.SessionCookieName)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
	assert.True(t, c.HttpOnly)
}
