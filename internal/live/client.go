package live

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ninechan-dev/ninechan/internal/nav"
	"github.com/ninechan-dev/ninechan/internal/render"
	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/shared/domain"
)

const (
	// timeout for writing one message to the connection.
	writeWait = 10 * time.Second

	// how long to wait for a pong before dropping the connection.
	pongWait = 60 * time.Second

	// must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// clients only ever send navigation requests.
	maxMessageSize = 1024
)

type MessageType string

const (
	// TypeBoard carries the re-rendered board region.
	TypeBoard MessageType = "board"
	// TypeIdentity carries the re-rendered identity display.
	TypeIdentity MessageType = "identity"
	// TypeRedirect tells the page its board was replaced by another one.
	TypeRedirect MessageType = "redirect"
	// TypeNavigate is sent by the page when the user picks a board.
	TypeNavigate MessageType = "navigate"
)

// Outbound is one server-to-page message.
type Outbound struct {
	Type         MessageType `json:"type"`
	Board        string      `json:"board,omitempty"`
	HTML         string      `json:"html,omitempty"`
	ShowComposer bool        `json:"showComposer,omitempty"`
	Version      int64       `json:"version,omitempty"`
}

type inbound struct {
	Type  MessageType `json:"type"`
	Board string      `json:"board"`
}

// client owns one connection. Only writePump writes to conn.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	mu     sync.Mutex
	state  nav.AppState
	viewer render.Viewer

	dirty     chan struct{}
	identity  chan struct{}
	navigate  chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, viewer render.Viewer, board string) *client {
	return &client{
		hub:      h,
		conn:     conn,
		log:      h.log.With("client_id", viewer.Identity.ClientId),
		state:    nav.AppState{CurrentBoard: board},
		viewer:   viewer,
		dirty:    make(chan struct{}, 1),
		identity: make(chan struct{}, 1),
		navigate: make(chan string, 8),
		closed:   make(chan struct{}),
	}
}

// markDirty coalesces change notifications: a full re-paint always renders
// the latest snapshot, so one pending signal is enough.
func (c *client) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// presenceChanged picks up an identity upgrade made on another request.
func (c *client) presenceChanged(peers map[domain.ClientId]domain.Identity) {
	c.mu.Lock()
	current := c.viewer.Identity
	updated, ok := peers[current.ClientId]
	if !ok || updated == current {
		c.mu.Unlock()
		return
	}
	c.viewer = c.hub.viewerFor(updated, c.viewer.CSRFToken)
	c.mu.Unlock()

	select {
	case c.identity <- struct{}{}:
	default:
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *client) readPump() {
	defer func() {
		c.close()
		if err := c.conn.Close(); err != nil {
			c.log.Debug("connection close error", "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("failed to set read deadline", "error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("websocket closed unexpectedly", "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("client sent invalid json", "error", err)
			continue
		}
		if msg.Type != TypeNavigate {
			c.log.Warn("client sent unsupported message type", "type", msg.Type)
			continue
		}
		select {
		case c.navigate <- msg.Board:
		default:
			c.log.Warn("navigation request dropped", "board", msg.Board)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := c.show(c.currentBoard()); err != nil {
		c.fail(err)
		return
	}

	for {
		var err error
		select {
		case <-c.closed:
			return
		case board := <-c.navigate:
			err = c.show(board)
		case <-c.dirty:
			err = c.repaint()
		case <-c.identity:
			if err = c.sendIdentity(); err == nil {
				err = c.repaint()
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = c.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *client) fail(err error) {
	c.log.Info("websocket write failed", "error", err)
	c.close()
	c.conn.Close()
}

func (c *client) currentBoard() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CurrentBoard
}

type step func(nav.AppState, room.Snapshot, render.Viewer) (nav.AppState, nav.View)

// show navigates to requested and pushes the result.
func (c *client) show(requested string) error {
	return c.push(func(state nav.AppState, snap room.Snapshot, viewer render.Viewer) (nav.AppState, nav.View) {
		return c.hub.nav.Navigate(state, snap, requested, viewer)
	})
}

// repaint re-renders the current board against the latest snapshot.
func (c *client) repaint() error {
	return c.push(c.hub.nav.Repaint)
}

// push runs one navigation step and sends the view. A redirect is pushed
// first, followed by the board it resolved to.
func (c *client) push(next step) error {
	snap := c.hub.room.Snapshot()

	c.mu.Lock()
	state, view := next(c.state, snap, c.viewer)
	if view.Redirect {
		state, view = c.hub.nav.Navigate(state, snap, state.CurrentBoard, c.viewer)
		view.Redirect = true
	}
	c.state = state
	c.mu.Unlock()

	if view.Redirect {
		if err := c.send(Outbound{Type: TypeRedirect, Board: view.Board}); err != nil {
			return err
		}
	}
	return c.send(Outbound{
		Type:         TypeBoard,
		Board:        view.Board,
		HTML:         render.HTML(view.Content),
		ShowComposer: view.ShowComposer,
		Version:      snap.Version,
	})
}

func (c *client) sendIdentity() error {
	c.mu.Lock()
	viewer := c.viewer
	c.mu.Unlock()
	node := c.hub.renderer.IdentityDisplay(viewer, c.hub.cfg.GuestPrefix, c.hub.cfg.ConnectPath)
	return c.send(Outbound{Type: TypeIdentity, HTML: render.HTML(node)})
}

func (c *client) send(msg Outbound) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return err
	}
	pushedMessages.WithLabelValues(string(msg.Type)).Inc()
	return nil
}
