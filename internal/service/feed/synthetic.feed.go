package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/shopspring/decimal"
)

// SyntheticSource is a seeded random walk around a base price. The same
// seed yields the same sequence, which keeps engine tests reproducible
// without a live quote source.
type SyntheticSource struct {
	mu         sync.Mutex
	instrument string
	price      decimal.Decimal
	stepPct    decimal.Decimal
	rng        *rand.Rand
}

func NewSyntheticSource(instrument string, basePrice, stepPercent decimal.Decimal, seed int64) *SyntheticSource {
	if basePrice.LessThanOrEqual(decimal.Zero) {
		basePrice = decimal.NewFromInt(5000)
	}
	if stepPercent.LessThanOrEqual(decimal.Zero) || stepPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		stepPercent = decimal.NewFromFloat(0.5)
	}

	return &SyntheticSource{
		instrument: instrument,
		price:      basePrice,
		stepPct:    stepPercent,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (s *SyntheticSource) Instrument() string {
	return s.instrument
}

func (s *SyntheticSource) Fetch(_ context.Context) (entity.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// drift in [-step%, +step%] of the current price
	drift := (s.rng.Float64()*2 - 1) * s.stepPct.InexactFloat64() / 100
	factor := decimal.NewFromFloat(1 + drift)
	s.price = s.price.Mul(factor).Round(8)

	return entity.PriceObservation{
		Instrument: s.instrument,
		Price:      s.price,
		ObservedAt: time.Now().UTC(),
	}, nil
}
