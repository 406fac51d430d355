// Package poll runs the periodic refetch that backs up the realtime channel.
// Polling is the delivery path of last resort: it always converges the local
// view even when every socket frame was lost.
package poll

import (
	"context"
	"log/slog"
	"time"
)

// Poller invokes fetch on a fixed interval. A gate may suppress ticks (the
// dashboard only polls while its socket is down); Kick forces an immediate
// sweep regardless of the ticker, used right after a connection drops.
type Poller struct {
	interval time.Duration
	fetch    func(ctx context.Context) error
	gate     func() bool
	logger   *slog.Logger
	kick     chan struct{}
}

// New builds a poller. A nil gate means every tick fetches.
func New(interval time.Duration, fetch func(ctx context.Context) error, gate func() bool, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		interval: interval,
		fetch:    fetch,
		gate:     gate,
		logger:   logger.With(slog.String("component", "poll")),
		kick:     make(chan struct{}, 1),
	}
}

// Kick schedules an immediate sweep. Multiple kicks before the sweep runs
// coalesce into one.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. Fetch failures are logged and the loop
// keeps going; the next tick retries.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.gate != nil && !p.gate() {
				continue
			}
		case <-p.kick:
		}

		if err := p.fetch(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("Poll sweep failed", slog.Any("error", err))
		}
	}
}
