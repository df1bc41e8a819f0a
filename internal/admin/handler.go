package admin

import (
	"net/http"
	"regexp"
	"strings"

	"lv-exchange/internal/apperr"
	"lv-exchange/internal/httputil"
	"lv-exchange/internal/model"
	"lv-exchange/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var tickerRe = regexp.MustCompile(`^[A-Z]{2,10}$`)

// Handler covers the admin surface: instrument listing management and
// user removal.
type Handler struct {
	store storage.Store
	log   *zap.Logger
}

func NewHandler(store storage.Store, log *zap.Logger) *Handler {
	return &Handler{store: store, log: log}
}

type instrumentRequest struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

func (h *Handler) CreateInstrument(w http.ResponseWriter, r *http.Request) {
	var req instrumentRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	req.Name = strings.TrimSpace(req.Name)
	if !tickerRe.MatchString(req.Ticker) {
		httputil.WriteError(w, apperr.Validation("ticker must be 2-10 uppercase letters"))
		return
	}
	if req.Name == "" {
		httputil.WriteError(w, apperr.Validation("name is required"))
		return
	}
	err := storage.InTx(r.Context(), h.store, func(tx storage.Tx) error {
		return tx.CreateInstrument(r.Context(), model.Instrument{Ticker: req.Ticker, Name: req.Name})
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.log.Info("instrument listed", zap.String("ticker", req.Ticker))
	httputil.WriteJSON(w, http.StatusCreated, httputil.OkResponse{Success: true})
}

// DeleteInstrument delists a ticker. Balances, open orders and trade
// history referencing it are removed with it.
func (h *Handler) DeleteInstrument(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	err := storage.InTx(r.Context(), h.store, func(tx storage.Tx) error {
		return tx.DeleteInstrument(r.Context(), ticker)
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.log.Info("instrument delisted", zap.String("ticker", ticker))
	httputil.WriteJSON(w, http.StatusOK, httputil.OkResponse{Success: true})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid user id"})
		return
	}
	var removed model.User
	err = storage.InTx(r.Context(), h.store, func(tx storage.Tx) error {
		u, err := tx.DeleteUser(r.Context(), id)
		if err != nil {
			return err
		}
		removed = u
		return nil
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.log.Info("user removed", zap.String("user_id", id.String()), zap.String("name", removed.Name))
	httputil.WriteJSON(w, http.StatusOK, removed)
}
