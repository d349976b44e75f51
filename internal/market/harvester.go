package market

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Sink receives each polled bar — typically a tick-substrate writer or a
// bus publisher. Returning an error only logs; it never stops the poll
// loop.
type Sink func(ctx context.Context, bar Bar) error

// Harvester runs one Source's per-symbol polling loop, per §4.16: on each
// tick it fetches the latest bar for every symbol and hands it to sink,
// respecting the source's own rate limiter and, for non-crypto sources,
// market hours.
type Harvester struct {
	source   Source
	symbols  []string
	interval time.Duration
	limiter  *rate.Limiter
	sink     Sink
}

// NewHarvester builds a Harvester polling source for symbols every
// interval, with fetches throttled to callsPerMinute.
func NewHarvester(source Source, symbols []string, interval time.Duration, callsPerMinute int, sink Sink) *Harvester {
	return &Harvester{
		source:   source,
		symbols:  symbols,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), 1),
		sink:     sink,
	}
}

// Run blocks, polling every interval until ctx is canceled. The first poll
// runs immediately.
func (h *Harvester) Run(ctx context.Context) error {
	h.pollAll(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.pollAll(ctx)
		}
	}
}

func (h *Harvester) pollAll(ctx context.Context) {
	if !h.source.IsCrypto() && !IsOpenForPolling(time.Now()) {
		return
	}

	for _, symbol := range h.symbols {
		if err := h.limiter.Wait(ctx); err != nil {
			return // context canceled
		}

		bar, err := h.source.FetchLatestBar(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("source", h.source.Name()).Str("symbol", symbol).Msg("harvester: fetch failed")
			continue
		}

		if err := h.sink(ctx, bar); err != nil {
			log.Error().Err(err).Str("source", h.source.Name()).Str("symbol", symbol).Msg("harvester: sink failed")
		}
	}
}
