package events

import (
	"context"
	"time"
)

const (
	TypeOrderCreated   = "order.created"
	TypeOrderCancelled = "order.cancelled"
	TypeTradeSettled   = "trade.settled"
	TypeBalanceChanged = "balance.changed"
)

type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	TS   time.Time `json:"ts"`
}

// Publisher delivers domain events to downstream consumers. Delivery is
// best effort: a slow or failing sink must not block the writing
// transaction's caller.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

type Noop struct{}

func (Noop) Publish(ctx context.Context, evt Event) {}

type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) {
	for _, p := range m {
		p.Publish(ctx, evt)
	}
}
