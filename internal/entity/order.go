package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderKind string
type OrderStatus string

const (
	OrderKindStopLoss   OrderKind = "stop-loss"
	OrderKindTakeProfit OrderKind = "take-profit"

	OrderStatusActive    OrderStatus = "active"
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (k OrderKind) Valid() bool {
	return k == OrderKindStopLoss || k == OrderKindTakeProfit
}

// Terminal reports whether no further status transition is permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusExecuted || s == OrderStatusCancelled
}

type Order struct {
	ID           int64           `db:"id" json:"id"`
	UserID       int64           `db:"user_id" json:"user_id"`
	Kind         OrderKind       `db:"kind" json:"type"`
	TriggerPrice decimal.Decimal `db:"trigger_price" json:"trigger_price"`
	Status       OrderStatus     `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

func (o Order) TableName() string {
	return "orders"
}

// Matches evaluates the trigger predicate against a reference price.
// The boundary is inclusive for both kinds.
func (o Order) Matches(referencePrice decimal.Decimal) bool {
	switch o.Kind {
	case OrderKindStopLoss:
		return referencePrice.LessThanOrEqual(o.TriggerPrice)
	case OrderKindTakeProfit:
		return referencePrice.GreaterThanOrEqual(o.TriggerPrice)
	default:
		return false
	}
}
