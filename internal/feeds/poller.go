package feeds

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Poller runs a fetch immediately and then on every tick until its context
// ends. Fetch errors are reported and polling continues.
type Poller struct {
	Interval time.Duration
	OnError  func(error)
	Logger   *slog.Logger
}

// Run blocks until ctx is done. A non-positive interval fetches once.
func (p *Poller) Run(ctx context.Context, fetch func(context.Context) error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p.do(ctx, logger, fetch)
	if p.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("poller stopped")
			return
		case <-ticker.C:
			p.do(ctx, logger, fetch)
		}
	}
}

func (p *Poller) do(ctx context.Context, logger *slog.Logger, fetch func(context.Context) error) {
	err := fetch(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	logger.Warn("feed poll failed", "error", err)
	if p.OnError != nil {
		p.OnError(err)
	}
}
