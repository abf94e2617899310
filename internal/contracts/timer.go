package contracts

import (
	"context"
	"log/slog"
	"time"
)

// Timer periodically cancels contracts whose funding never arrived.
type Timer struct {
	service  *Service
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewTimer creates a funding-timeout sweeper. timeout is how long a
// contract may stay unfunded before it is cancelled.
func NewTimer(service *Service, timeout time.Duration, logger *slog.Logger) *Timer {
	return &Timer{
		service:  service,
		interval: 60 * time.Second,
		timeout:  timeout,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			if n := t.service.CancelStaleUnfunded(ctx, t.timeout); n > 0 {
				t.logger.Info("cancelled stale unfunded contracts", "count", n)
			}
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}
