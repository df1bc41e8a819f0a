package orders

import (
	"net/http"

	"lv-exchange/internal/httputil"
	"lv-exchange/internal/types"

	"github.com/google/uuid"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	Ticker    string `json:"ticker"`
	Direction string `json:"direction"`
	Qty       int64  `json:"qty"`
	Price     *int64 `json:"price,omitempty"`
}

type createResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req createRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	order, err := h.svc.Create(r.Context(), CreateRequest{
		UserID:    userID,
		Ticker:    req.Ticker,
		Direction: types.Direction(req.Direction),
		Qty:       req.Qty,
		Price:     req.Price,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createResponse{Success: true, OrderID: order.ID})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	out, err := h.svc.ListByUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// ListAll serves the admin view over every user's orders.
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID uuid.UUID, rawID string) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid order id"})
		return
	}
	order, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, userID uuid.UUID, rawID string) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid order id"})
		return
	}
	if err := h.svc.Cancel(r.Context(), userID, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.OkResponse{Success: true})
}

type fillRequest struct {
	OrderID uuid.UUID `json:"order_id"`
	Amount  int64     `json:"amount"`
	Price   int64     `json:"price"`
}

// Fills is the internal endpoint the matching venue reports executions to.
func (h *Handler) Fills(w http.ResponseWriter, r *http.Request) {
	var req fillRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.OrderID == uuid.Nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "order_id is required"})
		return
	}
	order, err := h.svc.Fill(r.Context(), FillRequest{OrderID: req.OrderID, Amount: req.Amount, Price: req.Price})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}
