package rates

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultInterval is how often the rate is refreshed.
const DefaultInterval = 60 * time.Second

// Poller refreshes the rate once immediately and then on every tick.
// Failures are logged and the last applied rate stays in place.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	apply    func(context.Context, decimal.Decimal) error
	log      zerolog.Logger
}

// NewPoller returns a poller that hands every fetched rate to apply.
func NewPoller(f Fetcher, interval time.Duration, apply func(context.Context, decimal.Decimal) error, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:  f,
		interval: interval,
		apply:    apply,
		log:      log.With().Str("component", "rates").Logger(),
	}
}

// Run blocks until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	rate, err := p.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn().Err(err).Msg("rate refresh failed")
		}
		return
	}
	if err := p.apply(ctx, rate); err != nil {
		p.log.Warn().Err(err).Str("rate", rate.String()).Msg("rate not applied")
		return
	}
	p.log.Debug().Str("rate", rate.String()).Msg("rate refreshed")
}
