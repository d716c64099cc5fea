package middleware

import (
	"net/http"
	"strings"
)

var staticSecurityHeaders = map[string]string{
	"X-Frame-Options":        "DENY",
	"X-Content-Type-Options": "nosniff",
	"X-XSS-Protection":       "1; mode=block",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
	"Permissions-Policy":     "camera=(), microphone=(), geolocation=(), payment=()",
}

// ContentSecurityPolicy joins directives into one header value.
func ContentSecurityPolicy(directives ...string) string {
	return strings.Join(directives, "; ")
}

// SecurityHeadersWithCSP sets the fixed security headers on every response.
// An empty csp sends no Content-Security-Policy; isHTTPS adds HSTS.
func SecurityHeadersWithCSP(isHTTPS bool, csp string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := w.Header()
			for k, v := range staticSecurityHeaders {
				headers.Set(k, v)
			}
			if csp != "" {
				headers.Set("Content-Security-Policy", csp)
			}
			if isHTTPS {
				headers.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
