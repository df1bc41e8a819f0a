package health

import (
	"net/http"

	"lv-exchange/internal/httputil"
	"lv-exchange/internal/storage"
)

type Handler struct {
	store storage.Store
}

func NewHandler(store storage.Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "storage unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.OkResponse{Success: true})
}
