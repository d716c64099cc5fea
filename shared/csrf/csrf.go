// Package csrf implements double-submit tokens: one random value lives in a
// cookie and every form echoes it back.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
)

const (
	CookieName = "csrf_token"
	FormField  = "csrf_token"

	// MinTokenLength rejects placeholders and truncated values.
	MinTokenLength = 16
)

// NewToken returns 128 random bits as base32 text.
func NewToken() string {
	return rand.Text()
}

// ValidateToken reports whether the form echoed the cookie's token.
func ValidateToken(cookieToken, formToken string) bool {
	if len(cookieToken) < MinTokenLength {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(formToken)) == 1
}
