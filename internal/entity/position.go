package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Position struct {
	ID         int64           `db:"id" json:"id"`
	UserID     int64           `db:"user_id" json:"user_id"`
	Token      string          `db:"token" json:"token"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	EntryPrice decimal.Decimal `db:"entry_price" json:"entry_price"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

func (p Position) TableName() string {
	return "positions"
}

// Closed positions keep their row for the audit trail, quantity drops to zero.
func (p Position) Closed() bool {
	return p.Quantity.LessThanOrEqual(decimal.Zero)
}
