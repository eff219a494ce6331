package credits

import (
	"context"
	"log/slog"
	"time"
)

// ResetTimer periodically resets credits for licenses past their reset date.
type ResetTimer struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewResetTimer creates a new monthly-reset timer.
func NewResetTimer(service *Service, interval time.Duration, logger *slog.Logger) *ResetTimer {
	return &ResetTimer{
		service:  service,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the reset loop. Call in a goroutine.
func (t *ResetTimer) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.runResets(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *ResetTimer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *ResetTimer) runResets(ctx context.Context) {
	count, err := t.service.ResetAll(ctx)
	if err != nil {
		t.logger.Warn("failed to run credit resets", "error", err)
		return
	}
	if count > 0 {
		t.logger.Info("credit resets processed", "count", count)
	}
}
