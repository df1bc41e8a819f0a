package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"lv-exchange/internal/apperr"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type OkResponse struct {
	Success bool `json:"success"`
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps the apperr taxonomy onto HTTP statuses; anything outside
// the taxonomy is treated as an internal error.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var v apperr.Validation
	if errors.As(err, &v) {
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrUserNotFound),
		errors.Is(err, apperr.ErrInstrumentNotFound),
		errors.Is(err, apperr.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrInvalidState),
		errors.Is(err, apperr.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrTxConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
