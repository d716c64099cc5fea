package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/ninechan-dev/ninechan/internal/render"
	"github.com/ninechan-dev/ninechan/shared/logger"
	"github.com/ninechan-dev/ninechan/shared/middleware"
)

// safeBack only allows same-site paths as redirect targets.
func safeBack(back string) string {
	if !strings.HasPrefix(back, "/") || strings.HasPrefix(back, "//") || strings.HasPrefix(back, "/\\") {
		return "/"
	}
	return back
}

func connectAction(back string) string {
	return ConnectPath + "?back=" + url.QueryEscape(back)
}

func (h *Handler) ConnectGet(w http.ResponseWriter, r *http.Request) {
	back := safeBack(r.URL.Query().Get("back"))
	viewer := h.viewer(r)
	if !viewer.Identity.IsGuest(h.cfg.GuestPrefix) {
		page := h.renderer.Notice("Connected", "You are already connected as "+viewer.Identity.Username+".", back)
		writeHTML(w, http.StatusOK, render.HTML(page))
		return
	}
	page := h.renderer.ConnectForm(connectAction(back), back, h.popFlash(w, r), viewer)
	writeHTML(w, http.StatusOK, render.HTML(page))
}

func (h *Handler) ConnectPost(w http.ResponseWriter, r *http.Request) {
	back := safeBack(r.URL.Query().Get("back"))
	current, _ := middleware.GetIdentityFromContext(r)

	upgraded, err := h.identity.Connect(r.Context(), current, r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		h.redirectWithFlash(w, r, connectAction(back), userMessage(err))
		return
	}
	if err := h.cookies.SetIdentityCookie(w, upgraded); err != nil {
		logger.Log.Error("failed to issue identity cookie", "client_id", upgraded.ClientId, "error", err)
		h.redirectWithFlash(w, r, connectAction(back), userMessage(err))
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}
