package idempotency

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ExpiredDeleter removes expired records and abandoned reservations in bulk
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now, staleBefore time.Time) (int64, error)
}

// Sweeper periodically deletes expired idempotency records
type Sweeper struct {
	store          ExpiredDeleter
	pendingTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
	cron           *cron.Cron
}

// NewSweeper creates a sweeper over store
func NewSweeper(store ExpiredDeleter, pendingTimeout time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:          store,
		pendingTimeout: pendingTimeout,
		now:            time.Now,
		logger:         logger,
	}
}

// Sweep runs one deletion pass
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.store.DeleteExpired(ctx, now, now.Add(-s.pendingTimeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired idempotency records swept", zap.Int64("deleted", n))
	}
	return n, nil
}

// Start schedules Sweep on the cron spec (for example "@every 1h")
func (s *Sweeper) Start(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("idempotency sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.logger.Info("idempotency sweeper started", zap.String("schedule", spec))
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
