package storage

import (
	"context"
	"errors"

	"lv-exchange/internal/apperr"
	"lv-exchange/internal/model"
	"lv-exchange/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
create table if not exists users (
	id uuid primary key,
	name text not null unique,
	password_hash text not null,
	api_key text not null unique,
	role text not null default 'USER',
	created_at timestamptz not null default now()
);
create table if not exists instruments (
	ticker text primary key,
	name text not null
);
create table if not exists balances (
	user_id uuid not null references users(id) on delete cascade,
	ticker text not null references instruments(ticker) on delete cascade,
	amount bigint not null default 0 check (amount >= 0),
	primary key (user_id, ticker)
);
create table if not exists orders (
	id uuid primary key,
	user_id uuid not null references users(id) on delete cascade,
	ticker text not null references instruments(ticker) on delete cascade,
	direction text not null,
	qty bigint not null,
	price bigint,
	filled bigint not null default 0,
	status text not null default 'NEW',
	reserve_ticker text not null references instruments(ticker) on delete cascade,
	reserved bigint not null default 0,
	spent bigint not null default 0,
	created_at timestamptz not null default now()
);
create table if not exists transactions (
	id uuid primary key,
	ticker text not null references instruments(ticker) on delete cascade,
	order_id uuid not null references orders(id) on delete cascade,
	amount bigint not null,
	price bigint not null,
	created_at timestamptz not null default now()
);
create table if not exists order_book_levels (
	id bigserial primary key,
	ticker text not null references instruments(ticker) on delete cascade,
	price bigint not null,
	qty bigint not null,
	is_bid boolean not null,
	updated_at timestamptz not null default now()
);
create index if not exists idx_transactions_ticker_created on transactions (ticker, created_at desc);
create index if not exists idx_order_book_levels_ticker on order_book_levels (ticker);
`

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema applies the DDL, including the cascading foreign keys from
// users and instruments down to balances, orders and transactions.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	return err
}

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &pgTx{tx: tx}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

const userCols = "id, name, password_hash, api_key, role, created_at"

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.PasswordHash, &u.APIKey, &role, &u.CreatedAt)
	if err != nil {
		return u, err
	}
	u.Role = types.Role(role)
	return u, nil
}

func (p *Postgres) UserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, err := scanUser(p.pool.QueryRow(ctx, "select "+userCols+" from users where id = $1", id))
	return u, notFound(err, apperr.ErrUserNotFound)
}

func (p *Postgres) UserByName(ctx context.Context, name string) (model.User, error) {
	u, err := scanUser(p.pool.QueryRow(ctx, "select "+userCols+" from users where name = $1", name))
	return u, notFound(err, apperr.ErrUserNotFound)
}

func (p *Postgres) UserByToken(ctx context.Context, token string) (model.User, error) {
	u, err := scanUser(p.pool.QueryRow(ctx, "select "+userCols+" from users where api_key = $1", token))
	return u, notFound(err, apperr.ErrUserNotFound)
}

func (p *Postgres) Instruments(ctx context.Context) ([]model.Instrument, error) {
	rows, err := p.pool.Query(ctx, "select ticker, name from instruments order by ticker")
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	var out []model.Instrument
	for rows.Next() {
		var ins model.Instrument
		if err := rows.Scan(&ins.Ticker, &ins.Name); err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

func (p *Postgres) Instrument(ctx context.Context, ticker string) (model.Instrument, error) {
	var ins model.Instrument
	err := p.pool.QueryRow(ctx, "select ticker, name from instruments where ticker = $1", ticker).Scan(&ins.Ticker, &ins.Name)
	return ins, notFound(err, apperr.ErrInstrumentNotFound)
}

func (p *Postgres) BalancesByUser(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	rows, err := p.pool.Query(ctx, "select ticker, amount from balances where user_id = $1", userID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var ticker string
		var amount int64
		if err := rows.Scan(&ticker, &amount); err != nil {
			return nil, err
		}
		out[ticker] = amount
	}
	return out, rows.Err()
}

const orderCols = "id, user_id, ticker, direction, qty, price, filled, status, reserve_ticker, reserved, spent, created_at"

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var direction, status string
	err := row.Scan(&o.ID, &o.UserID, &o.Ticker, &direction, &o.Qty, &o.Price, &o.Filled, &status, &o.ReserveTicker, &o.Reserved, &o.Spent, &o.CreatedAt)
	if err != nil {
		return o, err
	}
	o.Direction = types.Direction(direction)
	o.Status = types.OrderStatus(status)
	return o, nil
}

func (p *Postgres) Order(ctx context.Context, id uuid.UUID) (model.Order, error) {
	o, err := scanOrder(p.pool.QueryRow(ctx, "select "+orderCols+" from orders where id = $1", id))
	return o, notFound(err, apperr.ErrOrderNotFound)
}

func (p *Postgres) Orders(ctx context.Context) ([]model.Order, error) {
	return p.listOrders(ctx, "select "+orderCols+" from orders order by created_at, id")
}

func (p *Postgres) OrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return p.listOrders(ctx, "select "+orderCols+" from orders where user_id = $1 order by created_at, id", userID)
}

func (p *Postgres) listOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) OrderBook(ctx context.Context, ticker string, depth int) ([]model.OrderBookLevel, []model.OrderBookLevel, error) {
	bids, err := p.listLevels(ctx, "select ticker, price, qty, is_bid from order_book_levels where ticker = $1 and is_bid order by price desc limit $2", ticker, depth)
	if err != nil {
		return nil, nil, err
	}
	asks, err := p.listLevels(ctx, "select ticker, price, qty, is_bid from order_book_levels where ticker = $1 and not is_bid order by price asc limit $2", ticker, depth)
	if err != nil {
		return nil, nil, err
	}
	return bids, asks, nil
}

func (p *Postgres) listLevels(ctx context.Context, query string, args ...any) ([]model.OrderBookLevel, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	var out []model.OrderBookLevel
	for rows.Next() {
		var lvl model.OrderBookLevel
		if err := rows.Scan(&lvl.Ticker, &lvl.Price, &lvl.Qty, &lvl.IsBid); err != nil {
			return nil, err
		}
		out = append(out, lvl)
	}
	return out, rows.Err()
}

func (p *Postgres) Transactions(ctx context.Context, ticker string, limit int) ([]model.Transaction, error) {
	rows, err := p.pool.Query(ctx, "select id, ticker, order_id, amount, price, created_at from transactions where ticker = $1 order by created_at desc, id desc limit $2", ticker, limit)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.Ticker, &t.OrderID, &t.Amount, &t.Price, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	return mapPgErr(t.tx.Commit(ctx))
}

func (t *pgTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func (t *pgTx) CreateUser(ctx context.Context, u model.User) error {
	_, err := t.tx.Exec(ctx, "insert into users (id, name, password_hash, api_key, role, created_at) values ($1,$2,$3,$4,$5,$6)",
		u.ID, u.Name, u.PasswordHash, u.APIKey, string(u.Role), u.CreatedAt)
	return mapPgErr(err)
}

func (t *pgTx) UserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, "select "+userCols+" from users where id = $1", id))
	return u, notFound(err, apperr.ErrUserNotFound)
}

func (t *pgTx) DeleteUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, "select "+userCols+" from users where id = $1 for update", id))
	if err != nil {
		return u, notFound(err, apperr.ErrUserNotFound)
	}
	// Transactions are owned by orders (delete cascades through orders).
	_, err = t.tx.Exec(ctx, "delete from users where id = $1", id)
	return u, mapPgErr(err)
}

func (t *pgTx) CreateInstrument(ctx context.Context, ins model.Instrument) error {
	_, err := t.tx.Exec(ctx, "insert into instruments (ticker, name) values ($1,$2)", ins.Ticker, ins.Name)
	return mapPgErr(err)
}

func (t *pgTx) Instrument(ctx context.Context, ticker string) (model.Instrument, error) {
	var ins model.Instrument
	err := t.tx.QueryRow(ctx, "select ticker, name from instruments where ticker = $1", ticker).Scan(&ins.Ticker, &ins.Name)
	return ins, notFound(err, apperr.ErrInstrumentNotFound)
}

func (t *pgTx) DeleteInstrument(ctx context.Context, ticker string) error {
	tag, err := t.tx.Exec(ctx, "delete from instruments where ticker = $1", ticker)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrInstrumentNotFound
	}
	return nil
}

func (t *pgTx) BalanceForUpdate(ctx context.Context, userID uuid.UUID, ticker string) (int64, bool, error) {
	var amount int64
	err := t.tx.QueryRow(ctx, "select amount from balances where user_id = $1 and ticker = $2 for update", userID, ticker).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, mapPgErr(err)
	}
	return amount, true, nil
}

func (t *pgTx) PutBalance(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	_, err := t.tx.Exec(ctx, `
		insert into balances (user_id, ticker, amount) values ($1,$2,$3)
		on conflict (user_id, ticker) do update set amount = excluded.amount
	`, userID, ticker, amount)
	return mapPgErr(err)
}

func (t *pgTx) InsertOrder(ctx context.Context, o model.Order) error {
	_, err := t.tx.Exec(ctx, `
		insert into orders (id, user_id, ticker, direction, qty, price, filled, status, reserve_ticker, reserved, spent, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, o.ID, o.UserID, o.Ticker, string(o.Direction), o.Qty, o.Price, o.Filled, string(o.Status), o.ReserveTicker, o.Reserved, o.Spent, o.CreatedAt)
	return mapPgErr(err)
}

func (t *pgTx) OrderForUpdate(ctx context.Context, id uuid.UUID) (model.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, "select "+orderCols+" from orders where id = $1 for update", id))
	return o, notFound(err, apperr.ErrOrderNotFound)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o model.Order) error {
	_, err := t.tx.Exec(ctx, "update orders set filled = $1, status = $2, spent = $3 where id = $4",
		o.Filled, string(o.Status), o.Spent, o.ID)
	return mapPgErr(err)
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr model.Transaction) error {
	_, err := t.tx.Exec(ctx, "insert into transactions (id, ticker, order_id, amount, price, created_at) values ($1,$2,$3,$4,$5,$6)",
		tr.ID, tr.Ticker, tr.OrderID, tr.Amount, tr.Price, tr.CreatedAt)
	return mapPgErr(err)
}

func (t *pgTx) InsertOrderBookLevel(ctx context.Context, lvl model.OrderBookLevel) error {
	_, err := t.tx.Exec(ctx, "insert into order_book_levels (ticker, price, qty, is_bid) values ($1,$2,$3,$4)",
		lvl.Ticker, lvl.Price, lvl.Qty, lvl.IsBid)
	return mapPgErr(err)
}

// mapPgErr translates driver errors into the apperr taxonomy: serialization
// failures and deadlocks become ErrTxConflict (retryable), unique violations
// become ErrDuplicateKey.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return apperr.ErrTxConflict
		case "23505":
			return apperr.ErrDuplicateKey
		}
	}
	return err
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return mapPgErr(err)
}

