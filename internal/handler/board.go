package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ninechan-dev/ninechan/internal/nav"
	"github.com/ninechan-dev/ninechan/internal/render"
	"github.com/ninechan-dev/ninechan/internal/service"
	"github.com/ninechan-dev/ninechan/internal/upload"
	internal_errors "github.com/ninechan-dev/ninechan/shared/errors"
	"github.com/ninechan-dev/ninechan/shared/logger"
	"github.com/ninechan-dev/ninechan/shared/middleware"
)

func boardPath(board string) string {
	return "/" + url.PathEscape(board)
}

// Index sends the bare site root to the default board.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, boardPath(h.nav.DefaultBoard()), http.StatusSeeOther)
}

func (h *Handler) BoardGet(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "board")
	viewer := h.viewer(r)

	_, view := h.nav.Navigate(nav.AppState{}, h.room.Snapshot(), requested, viewer)
	if view.Redirect {
		http.Redirect(w, r, boardPath(view.Board), http.StatusSeeOther)
		return
	}

	data := render.PageData{
		Board:       view.Board,
		Boards:      h.cfg.Boards,
		Viewer:      viewer,
		GuestPrefix: h.cfg.GuestPrefix,
		ConnectPath: ConnectPath + "?back=" + url.QueryEscape(boardPath(view.Board)),
		Flash:       h.popFlash(w, r),
		Content:     view.Content,
	}
	if view.ShowComposer {
		data.Composer = h.renderer.NewThreadSection(view.Board, viewer)
	}
	writeHTML(w, http.StatusOK, render.HTML(h.renderer.Page(data)))
}

func (h *Handler) CreateThread(w http.ResponseWriter, r *http.Request) {
	board := chi.URLParam(r, "board")
	// only boards a page can show accept threads
	if resolved, redirect := nav.Resolve(h.room.Snapshot().Doc, board, h.nav.DefaultBoard()); redirect {
		logger.Log.Warn("thread for unknown board dropped", "board", board)
		http.Redirect(w, r, boardPath(resolved), http.StatusSeeOther)
		return
	}
	target := boardPath(board)
	id, _ := middleware.GetIdentityFromContext(r)

	file, closeFile, err := imageFile(r)
	if err != nil {
		logger.Log.Warn("unreadable image file", "error", err)
		h.redirectWithFlash(w, r, target, "Could not read the uploaded file.")
		return
	}
	defer closeFile()

	thread, err := h.board.NewThread(r.Context(), service.ThreadInput{
		Post: service.Post{
			Author:    id,
			Comment:   r.FormValue("comment"),
			ImageURL:  r.FormValue("image_url"),
			ImageFile: file,
		},
		Board:           board,
		Subject:         r.FormValue("subject"),
		RepliesDisabled: r.FormValue("disable_replies") == "true",
	})
	if err != nil {
		h.redirectWithFlash(w, r, target, userMessage(err))
		return
	}
	http.Redirect(w, r, target+"#thread-"+url.PathEscape(thread.Id), http.StatusSeeOther)
}

func (h *Handler) CreateReply(w http.ResponseWriter, r *http.Request) {
	board := chi.URLParam(r, "board")
	threadId := chi.URLParam(r, "thread")
	target := boardPath(board) + "#thread-" + url.PathEscape(threadId)
	id, _ := middleware.GetIdentityFromContext(r)

	file, closeFile, err := imageFile(r)
	if err != nil {
		logger.Log.Warn("unreadable image file", "error", err)
		h.redirectWithFlash(w, r, target, "Could not read the uploaded file.")
		return
	}
	defer closeFile()

	_, err = h.board.NewReply(r.Context(), service.ReplyInput{
		Post: service.Post{
			Author:    id,
			Comment:   r.FormValue("comment"),
			ImageURL:  r.FormValue("image_url"),
			ImageFile: file,
		},
		Board:    board,
		ThreadId: threadId,
	})
	switch {
	case errors.Is(err, internal_errors.ErrThreadNotFound):
		// the thread went away while the form was open; nothing to report
		http.Redirect(w, r, boardPath(board), http.StatusSeeOther)
	case err != nil:
		h.redirectWithFlash(w, r, target, userMessage(err))
	default:
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// imageFile returns the uploaded image_file part, or nil when none was sent.
func imageFile(r *http.Request) (*upload.File, func(), error) {
	f, header, err := r.FormFile("image_file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	if header.Size == 0 {
		f.Close()
		return nil, func() {}, nil
	}
	file := &upload.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        f,
	}
	return file, func() { f.Close() }, nil
}

// userMessage turns a service error into text that is safe to show.
func userMessage(err error) string {
	var validation *internal_errors.ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	var withStatus *internal_errors.ErrorWithStatusCode
	if errors.As(err, &withStatus) {
		return withStatus.Message
	}
	switch {
	case errors.Is(err, internal_errors.ErrUploadFailed):
		return internal_errors.ErrUploadFailed.Error()
	case errors.Is(err, internal_errors.ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, internal_errors.ErrConnectFailed):
		return internal_errors.ErrConnectFailed.Error()
	}
	logger.Log.Error("request failed", "error", err)
	return "Something went wrong. Please try again."
}
