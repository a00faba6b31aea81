package bootstrap

import (
	"context"
	"testing"

	"github.com/krobus00/order-trigger-service/internal/config"
	"github.com/krobus00/order-trigger-service/internal/service/feed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFeedSourceSynthetic(t *testing.T) {
	source := buildFeedSource(config.FeedConfig{
		Source:      "synthetic",
		Instrument:  "btcusdt",
		Seed:        42,
		BasePrice:   "100",
		StepPercent: "0.5",
	})

	synthetic, ok := source.(*feed.SyntheticSource)
	require.True(t, ok, "expected a synthetic source, got %T", source)
	assert.Equal(t, "btcusdt", synthetic.Instrument())

	obs, err := synthetic.Fetch(context.Background())
	require.NoError(t, err)

	// configured base 100 with a 0.5% step keeps the first tick near 100
	assert.True(t, obs.Price.GreaterThanOrEqual(decimal.RequireFromString("99.5")), "price %s", obs.Price)
	assert.True(t, obs.Price.LessThanOrEqual(decimal.RequireFromString("100.5")), "price %s", obs.Price)
}

func TestBuildFeedSourceDefaultsToBinance(t *testing.T) {
	source := buildFeedSource(config.FeedConfig{Source: "binance"})

	_, ok := source.(*feed.BinanceSource)
	require.True(t, ok, "expected a binance source, got %T", source)
	assert.Equal(t, "BTCUSDT", source.Instrument())
}

func TestParseFeedDecimal(t *testing.T) {
	assert.True(t, parseFeedDecimal("5000", "feed.base_price").Equal(decimal.NewFromInt(5000)))
	assert.True(t, parseFeedDecimal(" 0.5 ", "feed.step_percent").Equal(decimal.RequireFromString("0.5")))
	assert.True(t, parseFeedDecimal("", "feed.base_price").IsZero())
	assert.True(t, parseFeedDecimal("not-a-number", "feed.base_price").IsZero())
}
