package auth

import (
	"net/http"

	"lv-exchange/internal/httputil"
	"lv-exchange/internal/model"

	"github.com/google/uuid"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type registerRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
	APIKey string    `json:"api_key"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	u, err := h.svc.Register(r.Context(), req.Name, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, registerResponse{
		ID:     u.ID,
		Name:   u.Name,
		Role:   string(u.Role),
		APIKey: u.APIKey,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request, user model.User) {
	httputil.WriteJSON(w, http.StatusOK, user)
}
