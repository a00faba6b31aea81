package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation is one tick from a price feed. It is not persisted and
// carries no identity beyond its place in the feed's sequence.
type PriceObservation struct {
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}
