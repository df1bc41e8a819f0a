package model

import (
	"time"

	"lv-exchange/internal/types"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	APIKey       string     `json:"api_key"`
	Role         types.Role `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Instrument struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// Balance is a (user, instrument) cell. Amount never goes below zero.
type Balance struct {
	UserID uuid.UUID `json:"user_id"`
	Ticker string    `json:"ticker"`
	Amount int64     `json:"amount"`
}

// Order rows are mutated only through the lifecycle service. ReserveTicker,
// Reserved and Spent track the funds held at creation so cancellation can
// release exactly the unspent remainder.
type Order struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"user_id"`
	Ticker        string            `json:"ticker"`
	Direction     types.Direction   `json:"direction"`
	Qty           int64             `json:"qty"`
	Price         *int64            `json:"price,omitempty"`
	Filled        int64             `json:"filled"`
	Status        types.OrderStatus `json:"status"`
	ReserveTicker string            `json:"reserve_ticker"`
	Reserved      int64             `json:"reserved"`
	Spent         int64             `json:"spent"`
	CreatedAt     time.Time         `json:"timestamp"`
}

// Transaction is an append-only trade record owned by an order.
type Transaction struct {
	ID        uuid.UUID `json:"id"`
	Ticker    string    `json:"ticker"`
	OrderID   uuid.UUID `json:"order_id"`
	Amount    int64     `json:"amount"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"timestamp"`
}

// OrderBookLevel is aggregated resting liquidity written by the external
// matching/aggregation process; this core only reads it.
type OrderBookLevel struct {
	Ticker string `json:"ticker"`
	Price  int64  `json:"price"`
	Qty    int64  `json:"qty"`
	IsBid  bool   `json:"is_bid"`
}
