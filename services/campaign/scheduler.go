package campaign

import (
	"context"
	"time"

	"kolmarket/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler runs the deadline sweep on a fixed interval.
type Scheduler struct {
	service *Service
	every   time.Duration
	cancel  context.CancelFunc
}

func NewScheduler(svc *Service, cfg *config.Config) *Scheduler {
	every := cfg.Marketplace.ExpirySweepEvery
	if every <= 0 {
		every = time.Hour
	}
	return &Scheduler{service: svc, every: every}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if s.cancel != nil {
				s.cancel()
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started campaign expiry scheduler",
		zap.Duration("interval", s.every),
	)

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	start := time.Now()

	swept, err := s.service.ExpireSweep(ctx)
	if err != nil {
		zap.L().Error("[Scheduler] expiry sweep failed", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] expiry sweep finished",
		zap.Int("expired", swept),
		zap.Duration("duration", time.Since(start)),
	)
}
