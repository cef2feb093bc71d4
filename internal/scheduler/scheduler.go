package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/clock"
	creditdomain "github.com/smallbiznis/tally/internal/credit/domain"
	obsmetrics "github.com/smallbiznis/tally/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrInvalidConfig reports missing scheduler dependencies.
var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log       *zap.Logger
	CreditSvc creditdomain.Service
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    Config `optional:"true"`
}

// Scheduler runs the periodic credit-expiration sweep. Everything else
// in the system is synchronous with its caller.
type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	creditSvc creditdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.CreditSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		creditSvc: p.CreditSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout: the next tick picks the work up.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one sweep pass.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, "expire_credits", s.cfg.JobTimeout, s.ExpireCreditsJob)
}

// RunForever ticks until the context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ExpireCreditsJob transitions overdue active balances to expired.
func (s *Scheduler) ExpireCreditsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "expire_credits")
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	expired, err := s.creditSvc.ExpireCredits(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "credit expiration sweep failed", "expire_credits", err)
		return err
	}
	run.AddProcessed(expired)
	obsmetrics.Scheduler().AddBatchProcessed("expire_credits", "credit_balances", expired)
	if expired > 0 {
		s.logger(ctx).Info("credits expired",
			zap.String("job", run.job),
			zap.String("run_id", run.runID),
			zap.Int("expired_count", expired),
		)
	}
	return nil
}
