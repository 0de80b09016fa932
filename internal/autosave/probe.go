package autosave

import (
	"context"
	"log/slog"
	"time"
)

// CheckFunc reports whether the remote store is reachable. A nil error
// means online.
type CheckFunc func(ctx context.Context) error

// Prober feeds a Connectivity by calling a health check at a fixed
// interval. The first check runs immediately.
type Prober struct {
	conn     *Connectivity
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProber creates a Prober. timeout bounds each check; zero means the
// interval is used.
func NewProber(conn *Connectivity, check CheckFunc, interval, timeout time.Duration, logger *slog.Logger) *Prober {
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}

	return &Prober{
		conn:     conn,
		check:    check,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run probes until ctx is canceled. It always returns nil so it can run
// inside an errgroup without tearing the group down.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.probeOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Prober) probeOnce(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(checkCtx)
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		p.logger.Debug("connectivity probe failed", slog.String("error", err.Error()))
	}

	p.conn.Set(err == nil)
}
