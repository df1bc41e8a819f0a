package storage

import (
	"context"
	"sort"
	"sync"

	"lv-exchange/internal/apperr"
	"lv-exchange/internal/model"

	"github.com/google/uuid"
)

type cellKey struct {
	userID uuid.UUID
	ticker string
}

// Memory is a mutex-serialized in-memory store. A transaction holds the
// store lock from Begin to Commit/Rollback, so units of work are strictly
// serial, matching the isolation the Postgres implementation gets from its
// transaction level. Rollback restores a snapshot taken at Begin.
type Memory struct {
	mu          sync.Mutex
	users       map[uuid.UUID]model.User
	byName      map[string]uuid.UUID
	byToken     map[string]uuid.UUID
	instruments map[string]model.Instrument
	balances    map[cellKey]int64
	orders      map[uuid.UUID]model.Order
	orderIDs    []uuid.UUID
	trans       []model.Transaction
	levels      []model.OrderBookLevel
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[uuid.UUID]model.User),
		byName:      make(map[string]uuid.UUID),
		byToken:     make(map[string]uuid.UUID),
		instruments: make(map[string]model.Instrument),
		balances:    make(map[cellKey]int64),
		orders:      make(map[uuid.UUID]model.Order),
	}
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	return &memTx{m: m, snap: m.snapshot()}, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}

type memSnapshot struct {
	users       map[uuid.UUID]model.User
	byName      map[string]uuid.UUID
	byToken     map[string]uuid.UUID
	instruments map[string]model.Instrument
	balances    map[cellKey]int64
	orders      map[uuid.UUID]model.Order
	orderIDs    []uuid.UUID
	trans       []model.Transaction
	levels      []model.OrderBookLevel
}

func (m *Memory) snapshot() memSnapshot {
	s := memSnapshot{
		users:       make(map[uuid.UUID]model.User, len(m.users)),
		byName:      make(map[string]uuid.UUID, len(m.byName)),
		byToken:     make(map[string]uuid.UUID, len(m.byToken)),
		instruments: make(map[string]model.Instrument, len(m.instruments)),
		balances:    make(map[cellKey]int64, len(m.balances)),
		orders:      make(map[uuid.UUID]model.Order, len(m.orders)),
		orderIDs:    append([]uuid.UUID(nil), m.orderIDs...),
		trans:       append([]model.Transaction(nil), m.trans...),
		levels:      append([]model.OrderBookLevel(nil), m.levels...),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.byName {
		s.byName[k] = v
	}
	for k, v := range m.byToken {
		s.byToken[k] = v
	}
	for k, v := range m.instruments {
		s.instruments[k] = v
	}
	for k, v := range m.balances {
		s.balances[k] = v
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	return s
}

func (m *Memory) restore(s memSnapshot) {
	m.users = s.users
	m.byName = s.byName
	m.byToken = s.byToken
	m.instruments = s.instruments
	m.balances = s.balances
	m.orders = s.orders
	m.orderIDs = s.orderIDs
	m.trans = s.trans
	m.levels = s.levels
}

func (m *Memory) UserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, apperr.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) UserByName(ctx context.Context, name string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byName[name]
	if !ok {
		return model.User{}, apperr.ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *Memory) UserByToken(ctx context.Context, token string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byToken[token]
	if !ok {
		return model.User{}, apperr.ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *Memory) Instruments(ctx context.Context) ([]model.Instrument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Instrument, 0, len(m.instruments))
	for _, ins := range m.instruments {
		out = append(out, ins)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (m *Memory) Instrument(ctx context.Context, ticker string) (model.Instrument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ins, ok := m.instruments[ticker]
	if !ok {
		return model.Instrument{}, apperr.ErrInstrumentNotFound
	}
	return ins, nil
}

func (m *Memory) BalancesByUser(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for k, v := range m.balances {
		if k.userID == userID {
			out[k.ticker] = v
		}
	}
	return out, nil
}

func (m *Memory) Order(ctx context.Context, id uuid.UUID) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func (m *Memory) Orders(ctx context.Context) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0, len(m.orderIDs))
	for _, id := range m.orderIDs {
		if o, ok := m.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) OrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, id := range m.orderIDs {
		if o, ok := m.orders[id]; ok && o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) OrderBook(ctx context.Context, ticker string, depth int) ([]model.OrderBookLevel, []model.OrderBookLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bids, asks []model.OrderBookLevel
	for _, lvl := range m.levels {
		if lvl.Ticker != ticker {
			continue
		}
		if lvl.IsBid {
			bids = append(bids, lvl)
		} else {
			asks = append(asks, lvl)
		}
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	if depth >= 0 && len(bids) > depth {
		bids = bids[:depth]
	}
	if depth >= 0 && len(asks) > depth {
		asks = asks[:depth]
	}
	return bids, asks, nil
}

func (m *Memory) Transactions(ctx context.Context, ticker string, limit int) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for i := len(m.trans) - 1; i >= 0 && (limit < 0 || len(out) < limit); i-- {
		if m.trans[i].Ticker == ticker {
			out = append(out, m.trans[i])
		}
	}
	return out, nil
}

type memTx struct {
	m    *Memory
	snap memSnapshot
	done bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.m.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.m.restore(t.snap)
	t.m.mu.Unlock()
	return nil
}

func (t *memTx) CreateUser(ctx context.Context, u model.User) error {
	if _, ok := t.m.byName[u.Name]; ok {
		return apperr.ErrDuplicateKey
	}
	if _, ok := t.m.byToken[u.APIKey]; ok {
		return apperr.ErrDuplicateKey
	}
	t.m.users[u.ID] = u
	t.m.byName[u.Name] = u.ID
	t.m.byToken[u.APIKey] = u.ID
	return nil
}

func (t *memTx) UserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, ok := t.m.users[id]
	if !ok {
		return model.User{}, apperr.ErrUserNotFound
	}
	return u, nil
}

func (t *memTx) DeleteUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, ok := t.m.users[id]
	if !ok {
		return model.User{}, apperr.ErrUserNotFound
	}
	delete(t.m.users, id)
	delete(t.m.byName, u.Name)
	delete(t.m.byToken, u.APIKey)
	for k := range t.m.balances {
		if k.userID == id {
			delete(t.m.balances, k)
		}
	}
	owned := make(map[uuid.UUID]bool)
	for oid, o := range t.m.orders {
		if o.UserID == id {
			owned[oid] = true
			delete(t.m.orders, oid)
		}
	}
	t.dropTransactions(func(tr model.Transaction) bool { return owned[tr.OrderID] })
	return u, nil
}

func (t *memTx) CreateInstrument(ctx context.Context, ins model.Instrument) error {
	if _, ok := t.m.instruments[ins.Ticker]; ok {
		return apperr.ErrDuplicateKey
	}
	t.m.instruments[ins.Ticker] = ins
	return nil
}

func (t *memTx) Instrument(ctx context.Context, ticker string) (model.Instrument, error) {
	ins, ok := t.m.instruments[ticker]
	if !ok {
		return model.Instrument{}, apperr.ErrInstrumentNotFound
	}
	return ins, nil
}

// DeleteInstrument cascades like the Postgres foreign keys: balances, orders
// (with their transactions), transactions and book levels referencing the
// ticker all go.
func (t *memTx) DeleteInstrument(ctx context.Context, ticker string) error {
	if _, ok := t.m.instruments[ticker]; !ok {
		return apperr.ErrInstrumentNotFound
	}
	delete(t.m.instruments, ticker)
	for k := range t.m.balances {
		if k.ticker == ticker {
			delete(t.m.balances, k)
		}
	}
	orphaned := make(map[uuid.UUID]bool)
	for oid, o := range t.m.orders {
		if o.Ticker == ticker || o.ReserveTicker == ticker {
			orphaned[oid] = true
			delete(t.m.orders, oid)
		}
	}
	t.dropTransactions(func(tr model.Transaction) bool {
		return tr.Ticker == ticker || orphaned[tr.OrderID]
	})
	kept := t.m.levels[:0]
	for _, lvl := range t.m.levels {
		if lvl.Ticker != ticker {
			kept = append(kept, lvl)
		}
	}
	t.m.levels = kept
	return nil
}

func (t *memTx) dropTransactions(drop func(model.Transaction) bool) {
	kept := t.m.trans[:0]
	for _, tr := range t.m.trans {
		if !drop(tr) {
			kept = append(kept, tr)
		}
	}
	t.m.trans = kept
}

func (t *memTx) BalanceForUpdate(ctx context.Context, userID uuid.UUID, ticker string) (int64, bool, error) {
	amount, ok := t.m.balances[cellKey{userID, ticker}]
	return amount, ok, nil
}

func (t *memTx) PutBalance(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	t.m.balances[cellKey{userID, ticker}] = amount
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o model.Order) error {
	if _, ok := t.m.orders[o.ID]; ok {
		return apperr.ErrDuplicateKey
	}
	t.m.orders[o.ID] = o
	t.m.orderIDs = append(t.m.orderIDs, o.ID)
	return nil
}

func (t *memTx) OrderForUpdate(ctx context.Context, id uuid.UUID) (model.Order, error) {
	o, ok := t.m.orders[id]
	if !ok {
		return model.Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o model.Order) error {
	if _, ok := t.m.orders[o.ID]; !ok {
		return apperr.ErrOrderNotFound
	}
	t.m.orders[o.ID] = o
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tr model.Transaction) error {
	t.m.trans = append(t.m.trans, tr)
	return nil
}

func (t *memTx) InsertOrderBookLevel(ctx context.Context, lvl model.OrderBookLevel) error {
	t.m.levels = append(t.m.levels, lvl)
	return nil
}
