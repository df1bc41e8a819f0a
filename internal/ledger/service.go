package ledger

import (
	"context"
	"time"

	"lv-exchange/internal/apperr"
	"lv-exchange/internal/events"
	"lv-exchange/internal/metrics"
	"lv-exchange/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const txAttempts = 3

// Service owns balance cells: admin deposits and withdrawals, plus the
// in-transaction reserve/release/credit primitives the order lifecycle
// is built on.
type Service struct {
	store storage.Store
	pub   events.Publisher
	log   *zap.Logger
}

func NewService(store storage.Store, pub events.Publisher, log *zap.Logger) *Service {
	return &Service{store: store, pub: pub, log: log}
}

func (s *Service) publishChange(ctx context.Context, userID uuid.UUID, ticker string, delta int64) {
	s.pub.Publish(ctx, events.Event{
		Type: events.TypeBalanceChanged,
		Data: map[string]any{"user_id": userID, "ticker": ticker, "delta": delta},
		TS:   time.Now().UTC(),
	})
}

func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return apperr.Validation("amount must be positive")
	}
	err := storage.InTxRetry(ctx, s.store, txAttempts, func(tx storage.Tx) error {
		if _, err := tx.UserByID(ctx, userID); err != nil {
			return err
		}
		if _, err := tx.Instrument(ctx, ticker); err != nil {
			return err
		}
		cur, _, err := tx.BalanceForUpdate(ctx, userID, ticker)
		if err != nil {
			return err
		}
		return tx.PutBalance(ctx, userID, ticker, cur+amount)
	})
	metrics.LedgerOps.WithLabelValues("deposit", opStatus(err)).Inc()
	if err != nil {
		return err
	}
	s.publishChange(ctx, userID, ticker, amount)
	s.log.Info("deposit applied",
		zap.String("user_id", userID.String()),
		zap.String("ticker", ticker),
		zap.Int64("amount", amount))
	return nil
}

func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return apperr.Validation("amount must be positive")
	}
	err := storage.InTxRetry(ctx, s.store, txAttempts, func(tx storage.Tx) error {
		if _, err := tx.UserByID(ctx, userID); err != nil {
			return err
		}
		if _, err := tx.Instrument(ctx, ticker); err != nil {
			return err
		}
		cur, ok, err := tx.BalanceForUpdate(ctx, userID, ticker)
		if err != nil {
			return err
		}
		if !ok || cur < amount {
			return apperr.ErrInsufficientFunds
		}
		return tx.PutBalance(ctx, userID, ticker, cur-amount)
	})
	metrics.LedgerOps.WithLabelValues("withdraw", opStatus(err)).Inc()
	if err != nil {
		return err
	}
	s.publishChange(ctx, userID, ticker, -amount)
	s.log.Info("withdrawal applied",
		zap.String("user_id", userID.String()),
		zap.String("ticker", ticker),
		zap.Int64("amount", amount))
	return nil
}

// Balances returns every cell the user holds, including zero cells left
// behind by full spends.
func (s *Service) Balances(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	return s.store.BalancesByUser(ctx, userID)
}

// Balance reads a single cell. A cell never touched reads as zero.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID, ticker string) (int64, error) {
	cells, err := s.store.BalancesByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return cells[ticker], nil
}

// ReserveTx moves amount out of the user's cell inside the caller's
// transaction. The cell is created at zero first, so a missing cell
// reads as insufficient funds rather than a lookup error.
func (s *Service) ReserveTx(ctx context.Context, tx storage.Tx, userID uuid.UUID, ticker string, amount int64) error {
	cur, ok, err := tx.BalanceForUpdate(ctx, userID, ticker)
	if err != nil {
		return err
	}
	if !ok {
		cur = 0
	}
	if cur < amount {
		return apperr.ErrInsufficientFunds
	}
	return tx.PutBalance(ctx, userID, ticker, cur-amount)
}

// ReleaseTx returns previously reserved funds to the user's cell.
func (s *Service) ReleaseTx(ctx context.Context, tx storage.Tx, userID uuid.UUID, ticker string, amount int64) error {
	if amount == 0 {
		return nil
	}
	cur, _, err := tx.BalanceForUpdate(ctx, userID, ticker)
	if err != nil {
		return err
	}
	return tx.PutBalance(ctx, userID, ticker, cur+amount)
}

// CreditTx adds trade proceeds to the user's cell, creating it on first
// touch.
func (s *Service) CreditTx(ctx context.Context, tx storage.Tx, userID uuid.UUID, ticker string, amount int64) error {
	if amount == 0 {
		return nil
	}
	cur, _, err := tx.BalanceForUpdate(ctx, userID, ticker)
	if err != nil {
		return err
	}
	return tx.PutBalance(ctx, userID, ticker, cur+amount)
}

func opStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
