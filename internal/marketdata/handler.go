package marketdata

import (
	"net/http"
	"strconv"
	"strings"

	"lv-exchange/internal/httputil"
)

type Handler struct {
	reader *Reader
}

func NewHandler(reader *Reader) *Handler {
	return &Handler{reader: reader}
}

func (h *Handler) Instruments(w http.ResponseWriter, r *http.Request) {
	out, err := h.reader.Instruments(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) OrderBook(w http.ResponseWriter, r *http.Request, ticker string) {
	book, err := h.reader.OrderBook(r.Context(), normalizeTicker(ticker), queryInt(r, "limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request, ticker string) {
	trades, err := h.reader.Trades(r.Context(), normalizeTicker(ticker), queryInt(r, "limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trades)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request, ticker string) {
	stats, err := h.reader.Stats(r.Context(), normalizeTicker(ticker))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func normalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
