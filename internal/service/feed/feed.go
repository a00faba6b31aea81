package feed

import (
	"context"
	"errors"
	"time"

	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/sirupsen/logrus"
)

// Source produces one price observation per call for a single instrument.
type Source interface {
	Instrument() string
	Fetch(ctx context.Context) (entity.PriceObservation, error)
}

// Handler consumes one observation. It is invoked synchronously from the
// poller loop, so at most one tick is in flight per poller.
type Handler func(ctx context.Context, observation entity.PriceObservation) error

const (
	defaultPollInterval = 1 * time.Second
	defaultTickTimeout  = 5 * time.Second
)

// Poller drives a Source on a fixed interval. A failed or slow tick is
// logged and skipped; the cadence comes from the ticker, not from tick
// completion, so slow ticks cannot accumulate unbounded drift.
type Poller struct {
	source      Source
	handler     Handler
	interval    time.Duration
	tickTimeout time.Duration
}

func NewPoller(source Source, handler Handler, interval, tickTimeout time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if tickTimeout <= 0 {
		tickTimeout = defaultTickTimeout
	}

	return &Poller{
		source:      source,
		handler:     handler,
		interval:    interval,
		tickTimeout: tickTimeout,
	}
}

func (p *Poller) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"instrument":   p.source.Instrument(),
		"interval":     p.interval.String(),
		"tick_timeout": p.tickTimeout.String(),
	}).Info("price poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.WithField("instrument", p.source.Instrument()).Info("price poller stopped")
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, p.tickTimeout)
	defer cancel()

	observation, err := p.source.Fetch(tickCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logrus.WithField("instrument", p.source.Instrument()).Warnf("tick skipped: %v", err)
		return
	}

	if err := p.handler(tickCtx, observation); err != nil {
		logrus.WithFields(logrus.Fields{
			"instrument": observation.Instrument,
			"price":      observation.Price.String(),
		}).Errorf("tick handler failed: %v", err)
	}
}
