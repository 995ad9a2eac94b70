package handler

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

func TestUploadScan(t *testing.T) {
	t.Run("safe image is stored", func(t *testing.T) {
		env := newTestEnv(t)

		req := withCSRF(multipartRequest(t, "/api/uploads/scan", "pallu.png", pngBytes), csrfToken)
		w := env.do(req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w.Body.String())
		assert.Equal(t, true, body["safe"])
		path, _ := body["path"].(string)
		assert.True(t, strings.HasPrefix(path, "uploads/"), path)
		assert.True(t, strings.HasSuffix(path, ".png"), path)
		assert.Len(t, env.storage.objects, 1)
	})

	t.Run("script in svg is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`)

		req := withCSRF(multipartRequest(t, "/api/uploads/scan", "motif.svg", svg), csrfToken)
		w := env.do(req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w.Body.String())
		assert.Equal(t, false, body["safe"])
		assert.NotEmpty(t, body["reason"])
		assert.Empty(t, env.storage.objects)
	})

	t.Run("extension mismatch is rejected", func(t *testing.T) {
		env := newTestEnv(t)

		req := withCSRF(multipartRequest(t, "/api/uploads/scan", "pallu.gif", pngBytes), csrfToken)
		w := env.do(req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, env.storage.objects)
	})

	t.Run("file over limit", func(t *testing.T) {
		env := newTestEnv(t)
		big := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 2048)...)

		req := withCSRF(multipartRequest(t, "/api/uploads/scan", "pallu.png", big), csrfToken)
		w := env.do(req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, env.storage.objects)
	})

	t.Run("missing file field", func(t *testing.T) {
		env := newTestEnv(t)

		req := withCSRF(jsonRequest(http.MethodPost, "/api/uploads/scan", `{}`), csrfToken)
		w := env.do(req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing CSRF token", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(multipartRequest(t, "/api/uploads/scan", "pallu.png", pngBytes))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, env.storage.objects)
	})

	t.Run("rate limited", func(t *testing.T) {
		env := newTestEnv(t, withRateLimitMax(1))

		first := env.do(withCSRF(multipartRequest(t, "/api/uploads/scan", "pallu.png", pngBytes), csrfToken))
		require.Equal(t, http.StatusOK, first.Code)

		w := env.do(withCSRF(multipartRequest(t, "/api/uploads/scan", "pallu.png", pngBytes), csrfToken))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Len(t, env.storage.objects, 1)
	})
}
