package orders

import (
	"context"
	"math"
	"strings"
	"time"

	"lv-exchange/internal/apperr"
	"lv-exchange/internal/events"
	"lv-exchange/internal/ledger"
	"lv-exchange/internal/metrics"
	"lv-exchange/internal/model"
	"lv-exchange/internal/storage"
	"lv-exchange/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const txAttempts = 3

type Service struct {
	store  storage.Store
	ledger *ledger.Service
	pub    events.Publisher
	cash   string
	log    *zap.Logger
}

func NewService(store storage.Store, ledgerSvc *ledger.Service, pub events.Publisher, cashTicker string, log *zap.Logger) *Service {
	return &Service{store: store, ledger: ledgerSvc, pub: pub, cash: cashTicker, log: log}
}

type CreateRequest struct {
	UserID    uuid.UUID
	Ticker    string
	Direction types.Direction
	Qty       int64
	Price     *int64
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Order, error) {
	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	if req.Ticker == "" {
		return model.Order{}, apperr.Validation("ticker is required")
	}
	if !req.Direction.Valid() {
		return model.Order{}, apperr.Validation("invalid direction")
	}
	if req.Qty <= 0 {
		return model.Order{}, apperr.Validation("qty must be positive")
	}
	if req.Price != nil && *req.Price <= 0 {
		return model.Order{}, apperr.Validation("price must be positive")
	}

	order := model.Order{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Ticker:    req.Ticker,
		Direction: req.Direction,
		Qty:       req.Qty,
		Price:     req.Price,
		Status:    types.OrderStatusNew,
		CreatedAt: time.Now().UTC(),
	}
	switch req.Direction {
	case types.DirectionSell:
		order.ReserveTicker = req.Ticker
		order.Reserved = req.Qty
	case types.DirectionBuy:
		order.ReserveTicker = s.cash
		if req.Price != nil {
			// Both factors are positive here; reject products that
			// would wrap around and corrupt the reservation.
			if req.Qty > math.MaxInt64 / *req.Price {
				return model.Order{}, apperr.Validation("order notional is too large")
			}
			order.Reserved = *req.Price * req.Qty
		} else {
			order.Reserved = req.Qty
		}
	}

	err := storage.InTxRetry(ctx, s.store, txAttempts, func(tx storage.Tx) error {
		if _, err := tx.UserByID(ctx, req.UserID); err != nil {
			return err
		}
		if _, err := tx.Instrument(ctx, req.Ticker); err != nil {
			return err
		}
		if err := s.ledger.ReserveTx(ctx, tx, req.UserID, order.ReserveTicker, order.Reserved); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	metrics.OrdersTotal.WithLabelValues("create", opStatus(err)).Inc()
	if err != nil {
		return model.Order{}, err
	}

	s.pub.Publish(ctx, events.Event{Type: events.TypeOrderCreated, Data: order, TS: order.CreatedAt})
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("ticker", order.Ticker),
		zap.String("direction", string(order.Direction)),
		zap.Int64("qty", order.Qty))
	return order, nil
}

// Cancel releases the unspent part of the order's reservation and marks
// it cancelled. Cancelling an already cancelled order succeeds without
// touching anything; a fully executed order cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, userID, orderID uuid.UUID) error {
	var cancelled model.Order
	var already bool
	err := storage.InTxRetry(ctx, s.store, txAttempts, func(tx storage.Tx) error {
		already = false
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return apperr.ErrOrderNotFound
		}
		if o.Status == types.OrderStatusCancelled {
			already = true
			return nil
		}
		if o.Status == types.OrderStatusExecuted {
			return apperr.ErrInvalidState
		}
		if remaining := o.Reserved - o.Spent; remaining > 0 {
			if err := s.ledger.ReleaseTx(ctx, tx, o.UserID, o.ReserveTicker, remaining); err != nil {
				return err
			}
		}
		o.Status = types.OrderStatusCancelled
		cancelled = o
		return tx.UpdateOrder(ctx, o)
	})
	metrics.OrdersTotal.WithLabelValues("cancel", opStatus(err)).Inc()
	if err != nil || already {
		return err
	}
	s.pub.Publish(ctx, events.Event{Type: events.TypeOrderCancelled, Data: cancelled, TS: time.Now().UTC()})
	return nil
}

type FillRequest struct {
	OrderID uuid.UUID
	Amount  int64
	Price   int64
}

// Fill applies one execution report from the matching venue: it records
// the trade, advances the order, settles both legs against the ledger
// and releases any leftover reservation once the order is done.
func (s *Service) Fill(ctx context.Context, req FillRequest) (model.Order, error) {
	if req.Amount <= 0 {
		return model.Order{}, apperr.Validation("amount must be positive")
	}
	if req.Price <= 0 {
		return model.Order{}, apperr.Validation("price must be positive")
	}
	// Both the BUY cost and the SELL proceeds are amount*price.
	if req.Amount > math.MaxInt64/req.Price {
		return model.Order{}, apperr.Validation("fill notional is too large")
	}
	var updated model.Order
	err := storage.InTxRetry(ctx, s.store, txAttempts, func(tx storage.Tx) error {
		o, err := tx.OrderForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return apperr.ErrInvalidState
		}
		if req.Amount > o.Qty-o.Filled {
			return apperr.ErrInvalidState
		}

		var cost, creditAmount int64
		var creditTicker string
		switch o.Direction {
		case types.DirectionSell:
			cost = req.Amount
			creditTicker = s.cash
			creditAmount = req.Amount * req.Price
		case types.DirectionBuy:
			cost = req.Amount * req.Price
			creditTicker = o.Ticker
			creditAmount = req.Amount
		}
		if cost > o.Reserved-o.Spent {
			return apperr.ErrInsufficientFunds
		}

		now := time.Now().UTC()
		if err := tx.InsertTransaction(ctx, model.Transaction{
			ID:        uuid.New(),
			Ticker:    o.Ticker,
			OrderID:   o.ID,
			Amount:    req.Amount,
			Price:     req.Price,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := s.ledger.CreditTx(ctx, tx, o.UserID, creditTicker, creditAmount); err != nil {
			return err
		}

		o.Filled += req.Amount
		o.Spent += cost
		o.Status = types.StatusFor(o.Filled, o.Qty)
		if o.Status == types.OrderStatusExecuted {
			if remaining := o.Reserved - o.Spent; remaining > 0 {
				if err := s.ledger.ReleaseTx(ctx, tx, o.UserID, o.ReserveTicker, remaining); err != nil {
					return err
				}
				o.Spent = o.Reserved
			}
		}
		updated = o
		return tx.UpdateOrder(ctx, o)
	})
	metrics.FillsTotal.WithLabelValues(opStatus(err)).Inc()
	if err != nil {
		return model.Order{}, err
	}

	s.pub.Publish(ctx, events.Event{
		Type: events.TypeTradeSettled,
		Data: map[string]any{
			"order_id": updated.ID,
			"ticker":   updated.Ticker,
			"amount":   req.Amount,
			"price":    req.Price,
			"status":   updated.Status,
		},
		TS: time.Now().UTC(),
	})
	s.log.Info("fill applied",
		zap.String("order_id", updated.ID.String()),
		zap.Int64("amount", req.Amount),
		zap.Int64("price", req.Price),
		zap.String("status", string(updated.Status)))
	return updated, nil
}

func (s *Service) Get(ctx context.Context, userID, orderID uuid.UUID) (model.Order, error) {
	o, err := s.store.Order(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if o.UserID != userID {
		return model.Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return s.store.OrdersByUser(ctx, userID)
}

func (s *Service) List(ctx context.Context) ([]model.Order, error) {
	return s.store.Orders(ctx)
}

func opStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
