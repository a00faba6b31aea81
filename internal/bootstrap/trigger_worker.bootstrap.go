package bootstrap

import (
	"context"
	"strings"

	"github.com/krobus00/order-trigger-service/internal/config"
	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/krobus00/order-trigger-service/internal/infrastructure"
	"github.com/krobus00/order-trigger-service/internal/repository"
	"github.com/krobus00/order-trigger-service/internal/service/feed"
	"github.com/krobus00/order-trigger-service/internal/service/position"
	"github.com/krobus00/order-trigger-service/internal/service/pricecache"
	"github.com/krobus00/order-trigger-service/internal/service/trigger"
	"github.com/krobus00/order-trigger-service/internal/util"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// StartTriggerWorker runs the periodic evaluation driver: one price poller
// per tracked instrument feeding evaluation passes. Execution events go out
// on the execution stream for the gateway's broadcaster.
func StartTriggerWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tradingDB, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["trading"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, tradingDB, config.Env.Database["trading"].PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	priceCache, err := pricecache.NewRedisStore(config.Env.Redis["price_cache"].CacheDSN)
	util.ContinueOrFatal(err)

	orderRepo := repository.NewOrderRepository(tradingDB)
	positionRepo := repository.NewPositionRepository(tradingDB)

	positionService := position.NewService(positionRepo, priceCache)
	executionSink := trigger.NewJetstreamSink(js)
	triggerService := trigger.NewService(orderRepo, positionService, executionSink)

	publishers := []entity.Publisher{executionSink}
	for _, v := range publishers {
		err = v.JetstreamEventInit(ctx)
		util.ContinueOrFatal(err)
	}

	source := buildFeedSource(config.Env.Feed)

	// each tick refreshes the reference-price cache before the pass so the
	// position reader resolves this tick's price
	handler := func(ctx context.Context, observation entity.PriceObservation) error {
		if err := priceCache.Save(ctx, observation); err != nil {
			logrus.Errorf("failed to cache price observation: %v", err)
		}

		return triggerService.EvaluatePass(ctx, observation)
	}

	poller := feed.NewPoller(source, handler, config.Env.Feed.PollInterval, config.Env.Feed.TickTimeout)

	go func() {
		if err := poller.Run(ctx); err != nil {
			logrus.Error(err)
		}
	}()

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"price poller": func(ctx context.Context) error {
			cancel()
			return nil
		},
		"trading database": func(ctx context.Context) error {
			return tradingDB.Close()
		},
		"price cache": func(ctx context.Context) error {
			return priceCache.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}

func buildFeedSource(cfg config.FeedConfig) feed.Source {
	instrument := strings.TrimSpace(cfg.Instrument)
	if instrument == "" {
		instrument = "BTCUSDT"
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "synthetic":
		logrus.WithFields(logrus.Fields{
			"instrument": instrument,
			"seed":       cfg.Seed,
		}).Info("using synthetic price feed")
		return feed.NewSyntheticSource(instrument, parseFeedDecimal(cfg.BasePrice, "feed.base_price"), parseFeedDecimal(cfg.StepPercent, "feed.step_percent"), cfg.Seed)
	default:
		return feed.NewBinanceSource(instrument, cfg.BaseURL)
	}
}

// parseFeedDecimal returns zero on blank or invalid input so the synthetic
// source falls back to its own defaults.
func parseFeedDecimal(raw, key string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		logrus.Warnf("invalid %s %q, using default: %v", key, raw, err)
		return decimal.Zero
	}

	return value
}
