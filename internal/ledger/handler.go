package ledger

import (
	"net/http"
	"strings"

	"lv-exchange/internal/apperr"
	"lv-exchange/internal/httputil"

	"github.com/google/uuid"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type movementRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Ticker string    `json:"ticker"`
	Amount int64     `json:"amount"`
}

func (r *movementRequest) normalize() error {
	r.Ticker = strings.ToUpper(strings.TrimSpace(r.Ticker))
	if r.UserID == uuid.Nil {
		return errMissingUser
	}
	if r.Ticker == "" {
		return errMissingTicker
	}
	if r.Amount <= 0 {
		return errBadAmount
	}
	return nil
}

var (
	errMissingUser   = apperr.Validation("user_id is required")
	errMissingTicker = apperr.Validation("ticker is required")
	errBadAmount     = apperr.Validation("amount must be positive")
)

type cellResponse struct {
	Ticker string `json:"ticker"`
	Amount int64  `json:"amount"`
}

// Balance serves a single cell; untouched cells read as zero.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request, userID uuid.UUID, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		httputil.WriteError(w, errMissingTicker)
		return
	}
	amount, err := h.svc.Balance(r.Context(), userID, ticker)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cellResponse{Ticker: ticker, Amount: amount})
}

func (h *Handler) Balances(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	balances, err := h.svc.Balances(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balances)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.normalize(); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.svc.Deposit(r.Context(), req.UserID, req.Ticker, req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.OkResponse{Success: true})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.normalize(); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.svc.Withdraw(r.Context(), req.UserID, req.Ticker, req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.OkResponse{Success: true})
}
