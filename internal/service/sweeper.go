package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
)

// Sweeper periodically expires overdue stock reservations, restoring their
// stock, and purges aged-out idempotency records.
type Sweeper struct {
	inventory   repository.InventoryRepository
	idempotency repository.IdempotencyRepository
	interval    time.Duration
	logger      *zap.Logger
	stop        chan struct{}
	done        chan struct{}
}

// NewSweeper creates a new reservation sweeper.
func NewSweeper(
	inventory repository.InventoryRepository,
	idempotency repository.IdempotencyRepository,
	interval time.Duration,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		inventory:   inventory,
		idempotency: idempotency,
		interval:    interval,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("reservation sweeper started",
			zap.Duration("interval", s.interval),
		)

		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for the inflight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
	s.logger.Info("reservation sweeper stopped")
}

func (s *Sweeper) sweep(ctx context.Context) {
	swept, err := s.inventory.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("reservation sweep failed", zap.Error(err))
	} else if swept > 0 {
		metrics.RecordSwept(swept)
	}

	if _, err := s.idempotency.PurgeExpired(ctx); err != nil {
		s.logger.Error("idempotency purge failed", zap.Error(err))
	}
}
