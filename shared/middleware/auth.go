package middleware

import (
	"context"
	"net/http"

	"github.com/ninechan-dev/ninechan/shared/domain"
	jwt_internal "github.com/ninechan-dev/ninechan/shared/jwt"
	"github.com/ninechan-dev/ninechan/shared/logger"
)

const IdentityCookieName = "ninechan_identity"

// Key to store the identity in the request context
type key int

const IdentityKey key = 0

// GuestIssuer mints a fresh anonymous identity.
type GuestIssuer interface {
	New() domain.Identity
}

// Auth resolves the request's identity from the identity cookie.
type Auth struct {
	jwtService    jwt_internal.JwtService
	guests        GuestIssuer
	isModerator   func(domain.Identity) bool
	secureCookies bool
}

func NewAuth(jwtService jwt_internal.JwtService, guests GuestIssuer, isModerator func(domain.Identity) bool, secureCookies bool) *Auth {
	return &Auth{
		jwtService:    jwtService,
		guests:        guests,
		isModerator:   isModerator,
		secureCookies: secureCookies,
	}
}

// ResolveIdentity always puts an identity in the context. A missing or
// invalid cookie yields a new guest, whose cookie is set on the response.
func (a *Auth) ResolveIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := a.extractIdentity(r)
			if !ok {
				id = a.guests.New()
				if err := a.SetIdentityCookie(w, id); err != nil {
					logger.Log.Error("failed to issue guest identity", "error", err)
				}
			}
			ctx := context.WithValue(r.Context(), IdentityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ModeratorOnly refuses requests whose identity is not a moderator.
// It must run after ResolveIdentity.
func (a *Auth) ModeratorOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentityFromContext(r)
			if !ok || !a.isModerator(id) {
				logger.Log.Warn("moderator action refused", "path", r.URL.Path, "client_id", id.ClientId, "username", id.Username)
				http.Error(w, "Access denied. Only for moderators", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetIdentityCookie signs id into the identity cookie.
func (a *Auth) SetIdentityCookie(w http.ResponseWriter, id domain.Identity) error {
	token, err := a.jwtService.NewToken(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     IdentityCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.jwtService.TTL().Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (a *Auth) extractIdentity(r *http.Request) (domain.Identity, bool) {
	cookie, err := r.Cookie(IdentityCookieName)
	if err != nil || cookie.Value == "" {
		return domain.Identity{}, false
	}
	token, err := a.jwtService.DecodeToken(cookie.Value)
	if err != nil {
		return domain.Identity{}, false
	}
	return jwt_internal.IdentityFromToken(token)
}

// GetIdentityFromContext retrieves the identity resolved for the request.
func GetIdentityFromContext(r *http.Request) (domain.Identity, bool) {
	id, ok := r.Context().Value(IdentityKey).(domain.Identity)
	return id, ok
}
