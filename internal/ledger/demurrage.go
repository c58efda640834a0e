package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DemurrageTicker runs RunDemurrage on a fixed interval. A cycle is not
// one database transaction: each wallet's burn commits in its own
// transaction (see RunDemurrage). Every background loop in SOMS
// wraps its body in a catch-all and sleeps before retrying rather than
// letting one bad cycle take the loop down.
type DemurrageTicker struct {
	ledger   *Ledger
	logger   zerolog.Logger
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDemurrageTicker creates a ticker running every interval (default
// DEMURRAGE_INTERVAL = 86400s if interval <= 0).
func NewDemurrageTicker(l *Ledger, logger zerolog.Logger, interval time.Duration) *DemurrageTicker {
	if interval <= 0 {
		interval = 86400 * time.Second
	}
	return &DemurrageTicker{
		ledger:   l,
		logger:   logger.With().Str("component", "demurrage_ticker").Logger(),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the background ticker loop.
func (dt *DemurrageTicker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	dt.cancel = cancel
	dt.logger.Info().Dur("interval", dt.interval).Msg("starting demurrage ticker")
	go dt.loop(ctx)
}

// Stop gracefully shuts down the ticker.
func (dt *DemurrageTicker) Stop() {
	if dt.cancel != nil {
		dt.cancel()
	}
	<-dt.done
	dt.logger.Info().Msg("demurrage ticker stopped")
}

func (dt *DemurrageTicker) loop(ctx context.Context) {
	defer close(dt.done)
	ticker := time.NewTicker(dt.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dt.runOnce()
		}
	}
}

func (dt *DemurrageTicker) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			dt.logger.Error().Interface("panic", r).Msg("demurrage cycle panicked, recovering")
		}
	}()

	affected, burned, err := dt.ledger.RunDemurrage()
	if err != nil {
		dt.logger.Error().Err(err).Msg("demurrage cycle failed")
		return
	}
	dt.logger.Info().Int("wallets_affected", affected).Int64("total_burned", burned).Msg("demurrage cycle complete")
}
