// Package live pushes re-rendered board regions to open pages over a
// websocket whenever the shared document or the viewer's identity changes.
package live

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ninechan-dev/ninechan/internal/nav"
	"github.com/ninechan-dev/ninechan/internal/render"
	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/shared/domain"
	"github.com/ninechan-dev/ninechan/shared/logger"
	"github.com/ninechan-dev/ninechan/shared/middleware"
)

// Room is the part of the shared-state collaborator the live view needs.
type Room interface {
	Snapshot() room.Snapshot
	SubscribeState(fn room.StateListener) (unsubscribe func())
	SubscribePresence(fn room.PresenceListener) (unsubscribe func())
	Join(id domain.Identity)
	Leave(clientId domain.ClientId)
}

type Config struct {
	GuestPrefix string
	ConnectPath string
	// CheckOrigin overrides the upgrader's same-origin check.
	CheckOrigin func(r *http.Request) bool
}

type Hub struct {
	room        Room
	nav         *nav.Controller
	renderer    *render.Renderer
	isModerator func(domain.Identity) bool
	cfg         Config
	upgrader    websocket.Upgrader
	log         *slog.Logger

	mu      sync.Mutex
	clients map[domain.ClientId]int
	conns   map[*client]struct{}
}

func NewHub(r Room, controller *nav.Controller, renderer *render.Renderer, isModerator func(domain.Identity) bool, cfg Config) *Hub {
	return &Hub{
		room:        r,
		nav:         controller,
		renderer:    renderer,
		isModerator: isModerator,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		log:     logger.Component("live"),
		clients: map[domain.ClientId]int{},
		conns:   map[*client]struct{}{},
	}
}

// ServeHTTP upgrades GET /ws/{board}. It must run after ResolveIdentity and
// GenerateCSRFToken so pushed forms carry the page's token.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentityFromContext(r)
	if !ok {
		http.Error(w, "no identity", http.StatusUnauthorized)
		return
	}
	board := chi.URLParam(r, "board")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		h.log.Warn("websocket upgrade failed", "client_id", id.ClientId, "error", err)
		return
	}

	c := newClient(h, conn, h.viewerFor(id, middleware.GetCSRFTokenFromContext(r)), board)
	h.join(id, c)
	unsubState := h.room.SubscribeState(func(room.Snapshot) { c.markDirty() })
	unsubPresence := h.room.SubscribePresence(c.presenceChanged)

	go c.writePump()
	c.readPump()

	unsubState()
	unsubPresence()
	h.leave(id.ClientId, c)
}

// RepaintBoard re-renders every open page currently showing board. It is for
// content that lives outside the document, such as the rules page.
func (h *Hub) RepaintBoard(board string) {
	h.mu.Lock()
	conns := make([]*client, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if c.currentBoard() == board {
			c.markDirty()
		}
	}
}

func (h *Hub) viewerFor(id domain.Identity, csrfToken string) render.Viewer {
	return render.Viewer{Identity: id, IsModerator: h.isModerator(id), CSRFToken: csrfToken}
}

// join and leave count connections per client so several tabs share one
// presence entry.
func (h *Hub) join(id domain.Identity, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
	h.clients[id.ClientId]++
	if h.clients[id.ClientId] == 1 {
		h.room.Join(id)
	}
	connectedClients.Inc()
}

func (h *Hub) leave(clientId domain.ClientId, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	h.clients[clientId]--
	if h.clients[clientId] <= 0 {
		delete(h.clients, clientId)
		h.room.Leave(clientId)
	}
	connectedClients.Dec()
}
