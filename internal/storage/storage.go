// Package storage defines the transactional contract the ledger and order
// lifecycle services run on. Two implementations exist: Postgres (pgx,
// serializable transactions with row locks) and an in-memory store used by
// tests and the memory dev mode.
package storage

import (
	"context"
	"errors"
	"time"

	"lv-exchange/internal/apperr"
	"lv-exchange/internal/model"

	"github.com/google/uuid"
)

// Tx is one atomic unit of work. Every compound operation (create_order,
// cancel_order, deposit, withdraw, fill) runs its read-check-write sequence
// inside a single Tx; *ForUpdate reads lock the row for its duration.
type Tx interface {
	CreateUser(ctx context.Context, u model.User) error
	UserByID(ctx context.Context, id uuid.UUID) (model.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) (model.User, error)

	CreateInstrument(ctx context.Context, ins model.Instrument) error
	Instrument(ctx context.Context, ticker string) (model.Instrument, error)
	DeleteInstrument(ctx context.Context, ticker string) error

	BalanceForUpdate(ctx context.Context, userID uuid.UUID, ticker string) (amount int64, exists bool, err error)
	PutBalance(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error

	InsertOrder(ctx context.Context, o model.Order) error
	OrderForUpdate(ctx context.Context, id uuid.UUID) (model.Order, error)
	UpdateOrder(ctx context.Context, o model.Order) error

	InsertTransaction(ctx context.Context, t model.Transaction) error
	InsertOrderBookLevel(ctx context.Context, lvl model.OrderBookLevel) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store provides transactions plus the read-only side used by handlers and
// the market data reader. Reads outside a Tx see committed state only.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	UserByID(ctx context.Context, id uuid.UUID) (model.User, error)
	UserByName(ctx context.Context, name string) (model.User, error)
	UserByToken(ctx context.Context, token string) (model.User, error)

	Instruments(ctx context.Context) ([]model.Instrument, error)
	Instrument(ctx context.Context, ticker string) (model.Instrument, error)

	BalancesByUser(ctx context.Context, userID uuid.UUID) (map[string]int64, error)

	Order(ctx context.Context, id uuid.UUID) (model.Order, error)
	Orders(ctx context.Context) ([]model.Order, error)
	OrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error)

	OrderBook(ctx context.Context, ticker string, depth int) (bids, asks []model.OrderBookLevel, err error)
	Transactions(ctx context.Context, ticker string, limit int) ([]model.Transaction, error)

	Ping(ctx context.Context) error
	Close()
}

// InTx runs fn inside a single transaction, committing on success and
// rolling back on error.
func InTx(ctx context.Context, s Store, fn func(tx Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// InTxRetry retries serialization conflicts with linear backoff before
// surfacing ErrTxConflict to the caller. All other errors pass through on
// the first attempt.
func InTxRetry(ctx context.Context, s Store, attempts int, fn func(tx Tx) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = InTx(ctx, s, fn)
		if err == nil || !errors.Is(err, apperr.ErrTxConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 10 * time.Millisecond):
		}
	}
	return err
}
