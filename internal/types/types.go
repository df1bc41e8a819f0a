package types

type Direction string

type OrderStatus string

type Role string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

const (
	OrderStatusNew               OrderStatus = "NEW"
	OrderStatusPartiallyExecuted OrderStatus = "PARTIALLY_EXECUTED"
	OrderStatusExecuted          OrderStatus = "EXECUTED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// StatusFor derives the non-cancelled status from fill progress.
func StatusFor(filled, qty int64) OrderStatus {
	switch {
	case filled >= qty:
		return OrderStatusExecuted
	case filled > 0:
		return OrderStatusPartiallyExecuted
	default:
		return OrderStatusNew
	}
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusExecuted || s == OrderStatusCancelled
}
