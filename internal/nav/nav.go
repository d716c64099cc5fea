// Package nav maps a requested board to what should be shown.
package nav

import (
	"golang.org/x/net/html"

	"github.com/ninechan-dev/ninechan/internal/render"
	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/shared/domain"
)

// AppState is the only client-local state: the board being viewed.
type AppState struct {
	CurrentBoard domain.BoardName
}

// View is the outcome of one navigation.
type View struct {
	Board domain.BoardName
	// Redirect is set when the requested board was replaced by the default.
	Redirect     bool
	ShowComposer bool
	Content      *html.Node
}

// Resolve decides which board to show. Rules always resolves to itself, a
// known board to itself, anything else (empty included) to defaultBoard.
// The default board resolves even before the document has it.
func Resolve(doc domain.Document, requested, defaultBoard domain.BoardName) (board domain.BoardName, redirect bool) {
	switch {
	case requested == domain.RulesBoard:
		return requested, false
	case requested != "" && doc.HasBoard(requested):
		return requested, false
	case requested == defaultBoard:
		return defaultBoard, false
	default:
		return defaultBoard, true
	}
}

// RulesSource supplies the rendered rules HTML.
type RulesSource interface {
	HTML() string
}

type Controller struct {
	renderer     *render.Renderer
	rules        RulesSource
	defaultBoard domain.BoardName
}

func NewController(renderer *render.Renderer, rules RulesSource, defaultBoard domain.BoardName) *Controller {
	return &Controller{renderer: renderer, rules: rules, defaultBoard: defaultBoard}
}

func (c *Controller) DefaultBoard() domain.BoardName {
	return c.defaultBoard
}

// Navigate resolves requested against the snapshot and renders the whole
// board region. The returned state replaces the caller's.
func (c *Controller) Navigate(state AppState, snap room.Snapshot, requested domain.BoardName, viewer render.Viewer) (AppState, View) {
	board, redirect := Resolve(snap.Doc, requested, c.defaultBoard)
	state.CurrentBoard = board

	view := View{Board: board, Redirect: redirect}
	if redirect {
		return state, view
	}
	if board == domain.RulesBoard {
		view.Content = c.renderer.Rules(c.rules.HTML())
		return state, view
	}
	view.ShowComposer = true
	view.Content = c.renderer.Board(board, snap.Doc.Boards[board], viewer)
	return state, view
}

// Repaint re-renders the current board, for change notifications. A board
// that disappeared from the document falls back like any navigation.
func (c *Controller) Repaint(state AppState, snap room.Snapshot, viewer render.Viewer) (AppState, View) {
	return c.Navigate(state, snap, state.CurrentBoard, viewer)
}
