package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ninechan-dev/ninechan/internal/render"
	"github.com/ninechan-dev/ninechan/internal/service"
	internal_errors "github.com/ninechan-dev/ninechan/shared/errors"
)

// Deletes are two steps: GET renders a confirmation page, POST with
// confirmed=true performs the delete. Both are mounted behind ModeratorOnly.

func (h *Handler) DeleteThreadConfirm(w http.ResponseWriter, r *http.Request) {
	board := chi.URLParam(r, "board")
	threadId := chi.URLParam(r, "thread")
	if _, ok := h.room.Snapshot().Doc.Thread(board, threadId); !ok {
		http.Redirect(w, r, boardPath(board), http.StatusSeeOther)
		return
	}
	action := render.ThreadPath(board, threadId) + "/delete"
	page := h.renderer.ConfirmDelete("thread", action, boardPath(board), h.viewer(r))
	writeHTML(w, http.StatusOK, render.HTML(page))
}

func (h *Handler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	board := chi.URLParam(r, "board")
	err := h.board.DeleteThread(r.Context(), service.DeleteInput{
		Board:     board,
		ThreadId:  chi.URLParam(r, "thread"),
		Confirmed: r.FormValue("confirmed") == "true",
	})
	h.finishDelete(w, r, boardPath(board), err)
}

func (h *Handler) DeleteReplyConfirm(w http.ResponseWriter, r *http.Request) {
	board := chi.URLParam(r, "board")
	threadId := chi.URLParam(r, "thread")
	replyId := chi.URLParam(r, "reply")
	thread, ok := h.room.Snapshot().Doc.Thread(board, threadId)
	if !ok {
		http.Redirect(w, r, boardPath(board), http.StatusSeeOther)
		return
	}
	if _, ok := thread.Replies[replyId]; !ok {
		http.Redirect(w, r, boardPath(board), http.StatusSeeOther)
		return
	}
	action := render.ReplyPath(board, threadId, replyId) + "/delete"
	page := h.renderer.ConfirmDelete("reply", action, boardPath(board), h.viewer(r))
	writeHTML(w, http.StatusOK, render.HTML(page))
}

func (h *Handler) DeleteReply(w http.ResponseWriter, r *http.Request) {
	board := chi.URLParam(r, "board")
	err := h.board.DeleteReply(r.Context(), service.DeleteInput{
		Board:     board,
		ThreadId:  chi.URLParam(r, "thread"),
		ReplyId:   chi.URLParam(r, "reply"),
		Confirmed: r.FormValue("confirmed") == "true",
	})
	h.finishDelete(w, r, boardPath(board), err)
}

// finishDelete returns to the board. An unconfirmed delete changes nothing
// and says nothing.
func (h *Handler) finishDelete(w http.ResponseWriter, r *http.Request, target string, err error) {
	if err != nil && !errors.Is(err, internal_errors.ErrNotConfirmed) {
		h.redirectWithFlash(w, r, target, userMessage(err))
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
