package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"lv-exchange/internal/apperr"
	"lv-exchange/internal/model"
	"lv-exchange/internal/types"

	"github.com/google/uuid"
)

func newUser(name string) model.User {
	return model.User{
		ID:        uuid.New(),
		Name:      name,
		APIKey:    "key-" + name,
		Role:      types.RoleUser,
		CreatedAt: time.Now().UTC(),
	}
}

func seed(t *testing.T, m *Memory, fn func(tx Tx) error) {
	t.Helper()
	if err := InTx(context.Background(), m, fn); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestMemoryCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := newUser("alice")

	seed(t, m, func(tx Tx) error { return tx.CreateUser(ctx, u) })

	if _, err := m.UserByID(ctx, u.ID); err != nil {
		t.Fatalf("committed user not visible: %v", err)
	}

	err := InTx(ctx, m, func(tx Tx) error {
		if err := tx.PutBalance(ctx, u.ID, "MEMCOIN", 100); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error from failing unit of work")
	}
	balances, err := m.BalancesByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 0 {
		t.Fatalf("rollback leaked balance write: %v", balances)
	}
}

func TestMemoryDuplicateUserName(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := newUser("bob")
	seed(t, m, func(tx Tx) error { return tx.CreateUser(ctx, u) })

	dup := newUser("bob")
	err := InTx(ctx, m, func(tx Tx) error { return tx.CreateUser(ctx, dup) })
	if !errors.Is(err, apperr.ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}
}

func TestMemoryDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := newUser("carol")
	order := model.Order{
		ID:            uuid.New(),
		UserID:        u.ID,
		Ticker:        "MEMCOIN",
		Direction:     types.DirectionSell,
		Qty:           5,
		Status:        types.OrderStatusNew,
		ReserveTicker: "MEMCOIN",
		Reserved:      5,
		CreatedAt:     time.Now().UTC(),
	}
	seed(t, m, func(tx Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		if err := tx.CreateInstrument(ctx, model.Instrument{Ticker: "MEMCOIN", Name: "Memcoin"}); err != nil {
			return err
		}
		if err := tx.PutBalance(ctx, u.ID, "MEMCOIN", 10); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, model.Transaction{
			ID: uuid.New(), Ticker: "MEMCOIN", OrderID: order.ID, Amount: 1, Price: 2, CreatedAt: time.Now().UTC(),
		})
	})

	seed(t, m, func(tx Tx) error {
		_, err := tx.DeleteUser(ctx, u.ID)
		return err
	})

	if _, err := m.UserByToken(ctx, u.APIKey); !errors.Is(err, apperr.ErrUserNotFound) {
		t.Fatalf("token still resolves after delete: %v", err)
	}
	if orders, _ := m.OrdersByUser(ctx, u.ID); len(orders) != 0 {
		t.Fatalf("orders survived user delete: %v", orders)
	}
	if trades, _ := m.Transactions(ctx, "MEMCOIN", -1); len(trades) != 0 {
		t.Fatalf("transactions survived user delete: %v", trades)
	}
	if balances, _ := m.BalancesByUser(ctx, u.ID); len(balances) != 0 {
		t.Fatalf("balances survived user delete: %v", balances)
	}
}

func TestMemoryDeleteInstrumentCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := newUser("dave")
	seed(t, m, func(tx Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		if err := tx.CreateInstrument(ctx, model.Instrument{Ticker: "MEMCOIN", Name: "Memcoin"}); err != nil {
			return err
		}
		if err := tx.PutBalance(ctx, u.ID, "MEMCOIN", 10); err != nil {
			return err
		}
		return tx.InsertOrderBookLevel(ctx, model.OrderBookLevel{Ticker: "MEMCOIN", Price: 10, Qty: 1, IsBid: true})
	})

	seed(t, m, func(tx Tx) error { return tx.DeleteInstrument(ctx, "MEMCOIN") })

	if _, err := m.Instrument(ctx, "MEMCOIN"); !errors.Is(err, apperr.ErrInstrumentNotFound) {
		t.Fatalf("instrument still listed: %v", err)
	}
	if balances, _ := m.BalancesByUser(ctx, u.ID); len(balances) != 0 {
		t.Fatalf("balances survived delist: %v", balances)
	}
	bids, asks, err := m.OrderBook(ctx, "MEMCOIN", 10)
	if err != nil {
		t.Fatalf("orderbook: %v", err)
	}
	if len(bids) != 0 || len(asks) != 0 {
		t.Fatal("book levels survived delist")
	}
}

// Delisting an instrument also drops orders that only reserve it, so
// no order is left pointing at a ticker that no longer exists.
func TestMemoryDeleteInstrumentDropsReservingOrders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := newUser("erin")
	buy := model.Order{
		ID:            uuid.New(),
		UserID:        u.ID,
		Ticker:        "MEMCOIN",
		Direction:     types.DirectionBuy,
		Qty:           2,
		Status:        types.OrderStatusNew,
		ReserveTicker: "RUB",
		Reserved:      20,
		CreatedAt:     time.Now().UTC(),
	}
	seed(t, m, func(tx Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		for _, ins := range []model.Instrument{{Ticker: "MEMCOIN", Name: "Memcoin"}, {Ticker: "RUB", Name: "Ruble"}} {
			if err := tx.CreateInstrument(ctx, ins); err != nil {
				return err
			}
		}
		return tx.InsertOrder(ctx, buy)
	})

	seed(t, m, func(tx Tx) error { return tx.DeleteInstrument(ctx, "RUB") })

	if _, err := m.Order(ctx, buy.ID); !errors.Is(err, apperr.ErrOrderNotFound) {
		t.Fatalf("order reserving a delisted ticker survived: %v", err)
	}
	if _, err := m.Instrument(ctx, "MEMCOIN"); err != nil {
		t.Fatalf("unrelated instrument dropped: %v", err)
	}
}

func TestMemoryOrderBookSortedAndTruncated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seed(t, m, func(tx Tx) error {
		for _, lvl := range []model.OrderBookLevel{
			{Ticker: "MEMCOIN", Price: 10, Qty: 1, IsBid: true},
			{Ticker: "MEMCOIN", Price: 12, Qty: 2, IsBid: true},
			{Ticker: "MEMCOIN", Price: 11, Qty: 3, IsBid: true},
			{Ticker: "MEMCOIN", Price: 15, Qty: 4, IsBid: false},
			{Ticker: "MEMCOIN", Price: 13, Qty: 5, IsBid: false},
			{Ticker: "OTHER", Price: 1, Qty: 1, IsBid: true},
		} {
			if err := tx.InsertOrderBookLevel(ctx, lvl); err != nil {
				return err
			}
		}
		return nil
	})

	bids, asks, err := m.OrderBook(ctx, "MEMCOIN", 2)
	if err != nil {
		t.Fatalf("orderbook: %v", err)
	}
	if len(bids) != 2 || bids[0].Price != 12 || bids[1].Price != 11 {
		t.Fatalf("bad bids: %v", bids)
	}
	if len(asks) != 2 || asks[0].Price != 13 || asks[1].Price != 15 {
		t.Fatalf("bad asks: %v", asks)
	}
}

func TestInTxRetryGivesUpOnConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	calls := 0
	err := InTxRetry(ctx, m, 3, func(tx Tx) error {
		calls++
		return apperr.ErrTxConflict
	})
	if !errors.Is(err, apperr.ErrTxConflict) {
		t.Fatalf("want ErrTxConflict, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("want 3 attempts, got %d", calls)
	}
}

func TestInTxRetryDoesNotRetryOtherErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	calls := 0
	err := InTxRetry(ctx, m, 3, func(tx Tx) error {
		calls++
		return apperr.ErrInsufficientFunds
	})
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("want 1 attempt, got %d", calls)
	}
}
