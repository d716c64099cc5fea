package nav

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninechan-dev/ninechan/internal/format"
	"github.com/ninechan-dev/ninechan/internal/render"
	"github.com/ninechan-dev/ninechan/internal/room"
	"github.com/ninechan-dev/ninechan/shared/domain"
)

type staticRules string

func (s staticRules) HTML() string { return string(s) }

func snapshot(t *testing.T, boards map[string]any) room.Snapshot {
	t.Helper()
	r := room.New(nil)
	require.NoError(t, r.Update(context.Background(), map[string]any{"boards": boards}))
	return r.Snapshot()
}

func TestResolve(t *testing.T) {
	doc := domain.Document{Boards: map[domain.BoardName]domain.BoardThreads{
		"tech":   {},
		"random": {},
	}}
	empty := domain.Document{}

	tests := []struct {
		name      string
		doc       domain.Document
		requested string
		want      string
		redirect  bool
	}{
		{"rules is synthetic", empty, "rules", "rules", false},
		{"known board", doc, "tech", "tech", false},
		{"empty falls back", doc, "", "random", true},
		{"unknown falls back", doc, "nope", "random", true},
		{"listed in nav but not stored", doc, "games", "random", true},
		{"default renders before it exists", empty, "random", "random", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board, redirect := Resolve(tt.doc, tt.requested, "random")
			assert.Equal(t, tt.want, board)
			assert.Equal(t, tt.redirect, redirect)
		})
	}
}

func TestNavigate(t *testing.T) {
	c := NewController(render.New(format.NewModerators(nil), time.UTC), staticRules("<ol><li>Be nice.</li></ol>"), "random")
	snap := snapshot(t, map[string]any{
		"tech": map[string]any{
			"T1": map[string]any{"id": "T1", "comment": "hello", "timestamp": "2024-01-01T00:00:00Z", "replies": map[string]any{}},
		},
	})
	viewer := render.Viewer{Identity: domain.Identity{Username: "Guest-1234"}}

	t.Run("board", func(t *testing.T) {
		state, view := c.Navigate(AppState{}, snap, "tech", viewer)
		assert.Equal(t, "tech", state.CurrentBoard)
		assert.True(t, view.ShowComposer)
		assert.False(t, view.Redirect)
		assert.Len(t, render.FindAll(view.Content, render.ByClass("thread")), 1)
	})

	t.Run("rules hides composer", func(t *testing.T) {
		state, view := c.Navigate(AppState{CurrentBoard: "tech"}, snap, "rules", viewer)
		assert.Equal(t, "rules", state.CurrentBoard)
		assert.False(t, view.ShowComposer)
		assert.Contains(t, render.HTML(view.Content), "Be nice.")
	})

	t.Run("unknown redirects without content", func(t *testing.T) {
		state, view := c.Navigate(AppState{}, snap, "bogus", viewer)
		assert.Equal(t, "random", state.CurrentBoard)
		assert.True(t, view.Redirect)
		assert.Nil(t, view.Content)
	})

	t.Run("repaint keeps the board", func(t *testing.T) {
		state, view := c.Repaint(AppState{CurrentBoard: "tech"}, snap, viewer)
		assert.Equal(t, "tech", state.CurrentBoard)
		assert.Equal(t, "tech", view.Board)
	})
}
