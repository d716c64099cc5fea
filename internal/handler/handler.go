package handler

import (
	"context"
	"net/http"

	"github.com/ninechan-dev/ninechan/internal/nav"
	"github.com/ninechan-dev/ninechan/internal/render"
	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/internal/service"
	"github.com/ninechan-dev/ninechan/shared/domain"
	"github.com/ninechan-dev/ninechan/shared/middleware"
)

const ConnectPath = "/connect"

type Snapshotter interface {
	Snapshot() room.Snapshot
}

type IdentityService interface {
	Connect(ctx context.Context, current domain.Identity, username, password string) (domain.Identity, error)
}

type CookieIssuer interface {
	SetIdentityCookie(w http.ResponseWriter, id domain.Identity) error
}

type Config struct {
	Boards        []render.NavLink
	GuestPrefix   string
	SecureCookies bool
}

type Handler struct {
	board       service.BoardService
	identity    IdentityService
	room        Snapshotter
	nav         *nav.Controller
	renderer    *render.Renderer
	cookies     CookieIssuer
	isModerator func(domain.Identity) bool
	cfg         Config
}

func New(board service.BoardService, identity IdentityService, room Snapshotter, controller *nav.Controller, renderer *render.Renderer, cookies CookieIssuer, isModerator func(domain.Identity) bool, cfg Config) *Handler {
	return &Handler{
		board:       board,
		identity:    identity,
		room:        room,
		nav:         controller,
		renderer:    renderer,
		cookies:     cookies,
		isModerator: isModerator,
		cfg:         cfg,
	}
}

func (h *Handler) viewer(r *http.Request) render.Viewer {
	id, _ := middleware.GetIdentityFromContext(r)
	return render.Viewer{
		Identity:    id,
		IsModerator: h.isModerator(id),
		CSRFToken:   middleware.GetCSRFTokenFromContext(r),
	}
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
