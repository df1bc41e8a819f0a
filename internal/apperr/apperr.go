// Package apperr holds the error taxonomy shared by the ledger, order
// lifecycle and HTTP layers. Storage implementations translate driver
// errors into these before they leave the package.
package apperr

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUserNotFound       = errors.New("user not found")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidState       = errors.New("operation not valid for order state")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrTxConflict         = errors.New("transaction conflict")
)

// Validation marks request-shape problems the caller can fix.
type Validation string

func (e Validation) Error() string { return string(e) }

