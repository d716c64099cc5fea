package middleware

import (
	"fmt"
	"net"
	"net/http"

	"github.com/ninechan-dev/ninechan/shared/middleware/ratelimiter"
	"github.com/ninechan-dev/ninechan/shared/utils"
)

// RateLimit rejects requests over the limit for the key getKey returns.
// Requests for which bypass returns true are never limited.
func RateLimit(rl *ratelimiter.KeyedLimiter, getKey func(r *http.Request) (string, error), bypass func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass != nil && bypass(r) {
				next.ServeHTTP(w, r)
				return
			}

			key, err := getKey(r)
			if err != nil {
				utils.WriteErrorAndStatusCode(w, err)
				return
			}
			if !rl.Allow(key) {
				http.Error(w, "Rate limit exceeded, try again later", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetClientID keys on the resolved identity. It must run after ResolveIdentity.
func GetClientID(r *http.Request) (string, error) {
	id, ok := GetIdentityFromContext(r)
	if !ok || id.ClientId == "" {
		return "", fmt.Errorf("no identity on request")
	}
	return "client_" + id.ClientId, nil
}

// GetIP extracts the real client IP from RemoteAddr
// Does NOT trust X-Real-IP or X-Forwarded-For headers (no reverse proxy)
func GetIP(r *http.Request) (string, error) {
	// Only trust RemoteAddr - can't be spoofed (comes from TCP connection)
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// Fallback: if RemoteAddr doesn't have port, use it directly
		ip = r.RemoteAddr
	}

	// Validate it's a real IP
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("invalid IP address: %s", ip)
	}

	return ip, nil
}
