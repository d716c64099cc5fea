package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityHeadersWithCSP(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	t.Run("plain http", func(t *testing.T) {
		w := httptest.NewRecorder()
		SecurityHeadersWithCSP(false, "")(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Empty(t, w.Header().Get("Content-Security-Policy"))
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	})

	t.Run("https with policy", func(t *testing.T) {
		csp := ContentSecurityPolicy("default-src 'self'", "img-src *")
		assert.Equal(t, "default-src 'self'; img-src *", csp)

		w := httptest.NewRecorder()
		SecurityHeadersWithCSP(true, csp)(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, csp, w.Header().Get("Content-Security-Policy"))
		assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")
	})
}
