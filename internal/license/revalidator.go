package license

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Revalidator periodically confirms the license with the remote service
// and runs OnInvalid when the service rejects it.
type Revalidator struct {
	svc       *Service
	interval  time.Duration
	onInvalid func(ctx context.Context)
	logger    *slog.Logger

	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewRevalidator(svc *Service, interval time.Duration, onInvalid func(ctx context.Context), logger *slog.Logger) *Revalidator {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Revalidator{
		svc:       svc,
		interval:  interval,
		onInvalid: onInvalid,
		logger:    logger,
		quit:      make(chan struct{}),
	}
}

func (r *Revalidator) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.quit:
				return
			case <-ticker.C:
				r.Check(ctx)
			}
		}
	}()
}

func (r *Revalidator) Stop() {
	r.once.Do(func() { close(r.quit) })
	r.wg.Wait()
}

// Check runs one revalidation. An unreachable service is logged and
// retried on the next tick; only an explicit rejection deactivates.
func (r *Revalidator) Check(ctx context.Context) {
	if !r.svc.Gate(ctx) {
		return
	}
	valid, err := r.svc.ValidateErr(ctx)
	if err != nil {
		if errors.Is(err, ErrRemoteUnavailable) {
			r.logger.Warn("license revalidation skipped", "error", err)
			return
		}
		r.logger.Error("license revalidation failed", "error", err)
		return
	}
	if valid {
		return
	}
	r.logger.Warn("license rejected by remote service, deactivating")
	if r.onInvalid != nil {
		r.onInvalid(ctx)
	}
}
