package handler

import (
	"encoding/base64"
	"net/http"
)

const flashCookieName = "flash"

// setFlash stores a one-shot message for the next page render, base64
// encoded so any characters survive the cookie.
func (h *Handler) setFlash(w http.ResponseWriter, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.StdEncoding.EncodeToString([]byte(message)),
		Path:     "/",
		MaxAge:   300, // 5 minutes (enough time for redirect)
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, targetURL, message string) {
	h.setFlash(w, message)
	http.Redirect(w, r, targetURL, http.StatusSeeOther)
}

// popFlash returns the pending message, if any, and clears it.
func (h *Handler) popFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	msg, err := base64.StdEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(msg)
}
