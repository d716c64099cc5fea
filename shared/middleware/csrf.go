package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ninechan-dev/ninechan/shared/csrf"
	"github.com/ninechan-dev/ninechan/shared/logger"
)

type csrfContextKey string

const csrfTokenContextKey csrfContextKey = "csrf_token"

// CSRFConfig holds CSRF middleware configuration
type CSRFConfig struct {
	SecureCookies bool // Use Secure flag on cookies (requires HTTPS)
	// MaxMemory bounds multipart parsing; larger uploads spill to disk.
	MaxMemory int64
}

// GenerateCSRFToken middleware generates and sets CSRF token cookie
func GenerateCSRFToken(config CSRFConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if cookie, err := r.Cookie(csrf.CookieName); err == nil && len(cookie.Value) >= csrf.MinTokenLength {
				token = cookie.Value
			} else {
				token = csrf.NewToken()
				http.SetCookie(w, &http.Cookie{
					Name:     csrf.CookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					Secure:   config.SecureCookies,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   86400, // 24 hours
				})
			}

			ctx := context.WithValue(r.Context(), csrfTokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ValidateCSRFToken middleware validates CSRF token from form submission
func ValidateCSRFToken(config CSRFConfig) func(http.Handler) http.Handler {
	maxMemory := config.MaxMemory
	if maxMemory <= 0 {
		maxMemory = 32 << 20
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut &&
				r.Method != http.MethodPatch && r.Method != http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(csrf.CookieName)
			if err != nil {
				logger.Log.Warn("CSRF token cookie missing", "path", r.URL.Path)
				http.Error(w, "CSRF token missing", http.StatusForbidden)
				return
			}

			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				if err := r.ParseMultipartForm(maxMemory); err != nil {
					logger.Log.Warn("failed to parse multipart form", "error", err)
					http.Error(w, "Invalid form data", http.StatusBadRequest)
					return
				}
			} else if r.Form == nil {
				if err := r.ParseForm(); err != nil {
					logger.Log.Warn("failed to parse form", "error", err)
					http.Error(w, "Invalid form data", http.StatusBadRequest)
					return
				}
			}

			if !csrf.ValidateToken(cookie.Value, r.FormValue(csrf.FormField)) {
				logger.Log.Warn("CSRF token validation failed", "path", r.URL.Path)
				http.Error(w, "CSRF token invalid", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetCSRFTokenFromContext retrieves CSRF token from request context
func GetCSRFTokenFromContext(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenContextKey).(string)
	return token
}
