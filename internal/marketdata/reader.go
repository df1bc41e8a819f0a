package marketdata

import (
	"context"

	"lv-exchange/internal/model"
	"lv-exchange/internal/storage"

	"github.com/shopspring/decimal"
)

const (
	defaultDepth      = 50
	defaultTradeLimit = 100
)

// Reader serves the public market data surface straight from storage.
type Reader struct {
	store storage.Store
}

func NewReader(store storage.Store) *Reader {
	return &Reader{store: store}
}

func (r *Reader) Instruments(ctx context.Context) ([]model.Instrument, error) {
	return r.store.Instruments(ctx)
}

type OrderBook struct {
	Ticker string                 `json:"ticker"`
	Bids   []model.OrderBookLevel `json:"bid_levels"`
	Asks   []model.OrderBookLevel `json:"ask_levels"`
}

func (r *Reader) OrderBook(ctx context.Context, ticker string, depth int) (OrderBook, error) {
	if depth <= 0 {
		depth = defaultDepth
	}
	if _, err := r.store.Instrument(ctx, ticker); err != nil {
		return OrderBook{}, err
	}
	bids, asks, err := r.store.OrderBook(ctx, ticker, depth)
	if err != nil {
		return OrderBook{}, err
	}
	return OrderBook{Ticker: ticker, Bids: bids, Asks: asks}, nil
}

func (r *Reader) Trades(ctx context.Context, ticker string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	if _, err := r.store.Instrument(ctx, ticker); err != nil {
		return nil, err
	}
	return r.store.Transactions(ctx, ticker, limit)
}

type Stats struct {
	Ticker    string          `json:"ticker"`
	LastPrice *int64          `json:"last_price"`
	Volume    int64           `json:"volume"`
	VWAP      decimal.Decimal `json:"vwap"`
	Trades    int             `json:"trades"`
}

// Stats aggregates the most recent trades into a volume-weighted summary.
func (r *Reader) Stats(ctx context.Context, ticker string) (Stats, error) {
	trades, err := r.Trades(ctx, ticker, defaultTradeLimit)
	if err != nil {
		return Stats{}, err
	}
	out := Stats{Ticker: ticker, Trades: len(trades)}
	if len(trades) == 0 {
		return out, nil
	}
	// Trades come back newest first.
	out.LastPrice = &trades[0].Price
	notional := decimal.Zero
	for _, t := range trades {
		out.Volume += t.Amount
		notional = notional.Add(decimal.NewFromInt(t.Amount).Mul(decimal.NewFromInt(t.Price)))
	}
	if out.Volume > 0 {
		out.VWAP = notional.Div(decimal.NewFromInt(out.Volume)).Round(4)
	}
	return out, nil
}
