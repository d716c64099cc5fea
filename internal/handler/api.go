package handler

import (
	"net/http"
	"time"

	"github.com/ninechan-dev/ninechan/shared/utils"
)

type documentResponse struct {
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Document  map[string]any `json:"document"`
}

// Document exposes the raw shared document, read-only.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	snap := h.room.Snapshot()
	utils.WriteJSON(w, http.StatusOK, documentResponse{
		Version:   snap.Version,
		UpdatedAt: snap.UpdatedAt,
		Document:  snap.Raw,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.room.Snapshot().Version,
	})
}
