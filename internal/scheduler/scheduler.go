package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	leakdomain "github.com/smallbiznis/carebill/internal/leak/domain"
	"github.com/smallbiznis/carebill/internal/lock"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	reconciliationdomain "github.com/smallbiznis/carebill/internal/reconciliation/domain"
	"github.com/smallbiznis/carebill/internal/scheduler/guard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobLeakSweep           = "leak_sweep"
	JobDailyReconciliation = "daily_reconciliation"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log               *zap.Logger
	GenID             *snowflake.Node
	Clock             clock.Clock
	Cfg               config.Config
	Config            Config `optional:"true"`
	LeakSvc           leakdomain.Service
	ReconciliationSvc reconciliationdomain.Service
	Policy            *config.BillingPolicyHolder `optional:"true"`
	Locker            *lock.Locker                `optional:"true"`
}

type Scheduler struct {
	log               *zap.Logger
	cfg               Config
	loc               *time.Location
	genID             *snowflake.Node
	clock             clock.Clock
	leakSvc           leakdomain.Service
	reconciliationSvc reconciliationdomain.Service
	policy            *config.BillingPolicyHolder
	locker            *lock.Locker
	nextDue           map[string]time.Time
}

type job struct {
	name     string
	interval time.Duration
	run      func(context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.LeakSvc == nil || p.ReconciliationSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:               p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:               p.Config.withDefaults(),
		loc:               p.Cfg.Location(),
		genID:             p.GenID,
		clock:             p.Clock,
		leakSvc:           p.LeakSvc,
		reconciliationSvc: p.ReconciliationSvc,
		policy:            p.Policy,
		locker:            p.Locker,
		nextDue:           map[string]time.Time{},
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobLeakSweep, s.cfg.LeakSweepInterval, s.LeakSweepJob},
		{JobDailyReconciliation, s.cfg.ReconciliationInterval, s.DailyReconciliationJob},
	}
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
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()

	ran, err := s.locker.Do(ctx, lockKey(name), s.cfg.LockTTL, func(ctx context.Context) error {
		if owner {
			s.logJobStart(ctx, run)
		}
		schedMetrics.IncJobRun(name)
		return fn(ctx)
	})
	if err == nil && !ran {
		schedMetrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
		log.Info("scheduler.job.skipped", zap.String("reason", obsmetrics.SchedulerSkipReasonLockHeld))
		return nil
	}

	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner && ran {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout: the next run picks up where this one stopped
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

// RunOnce runs every enabled job a single time regardless of its interval.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.JobTimeout, j.run))
	}
	return err
}

// RunDue runs the enabled jobs whose interval has elapsed since their last run.
func (s *Scheduler) RunDue(parent context.Context) error {
	now := s.clock.Now()
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		if due, ok := s.nextDue[j.name]; ok && now.Before(due) {
			continue
		}
		s.nextDue[j.name] = now.Add(j.interval)
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.JobTimeout, j.run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunDue(ctx); err != nil {
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

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job runs in this process
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// LeakSweepJob checks every fulfillment inside the policy lookback window.
func (s *Scheduler) LeakSweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobLeakSweep)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	now := s.clock.Now()
	lookback := s.policy.Get().LeakSweepLookback
	result, err := s.leakSvc.Sweep(ctx, actor.System(), now.Add(-lookback), now)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.leak_sweep.failed", JobLeakSweep, err)
		return err
	}

	run.AddProcessed(result.Scanned)
	obsmetrics.Scheduler().AddBatchProcessed(JobLeakSweep, "fulfillment_event", result.Scanned)
	if result.Detected > 0 {
		s.logger(ctx).Warn("scheduler.leak_sweep.detected",
			zap.Int("detected", result.Detected),
			zap.Int("already_flagged", result.AlreadyFlagged),
			zap.Int("scanned", result.Scanned),
		)
	}
	return nil
}

// DailyReconciliationJob prepares, or refreshes, the DRAFT report for the
// previous business day. Days a person has finalized or cancelled are left
// alone.
func (s *Scheduler) DailyReconciliationJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobDailyReconciliation)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	now := s.clock.Now().In(s.loc)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	date := todayStart.AddDate(0, 0, -1).Format(reconciliationdomain.DateLayout)

	var existingStatus string
	existing, err := s.reconciliationSvc.GetByDate(ctx, date)
	switch {
	case err == nil:
		existingStatus = existing.Status
	case errors.Is(err, reconciliationdomain.ErrReconciliationNotFound):
	default:
		s.logSchedulerError(ctx, run, "scheduler.reconciliation.lookup.failed", JobDailyReconciliation, err,
			zap.String("date", date),
		)
		return err
	}

	if err := guard.EnsureDayCanReconcile(existingStatus, todayStart, now); err != nil {
		if guard.IsSkip(err) {
			obsmetrics.Scheduler().IncJobSkipped(JobDailyReconciliation, err.Error())
			s.logger(ctx).Info("scheduler.reconciliation.skipped",
				zap.String("date", date),
				zap.String("reason", err.Error()),
			)
			return nil
		}
		return err
	}

	rec, err := s.reconciliationSvc.Create(ctx, actor.System(), reconciliationdomain.CreateRequest{
		Date:                date,
		CloseOpenEncounters: s.cfg.CloseOpenEncounters,
	})
	if err != nil {
		// a person finalized the day between the lookup and the write
		if errors.Is(err, reconciliationdomain.ErrAlreadyFinalized) {
			obsmetrics.Scheduler().IncJobSkipped(JobDailyReconciliation, guard.ErrDayAlreadyFinalized.Error())
			return nil
		}
		s.logSchedulerError(ctx, run, "scheduler.reconciliation.failed", JobDailyReconciliation, err,
			zap.String("date", date),
		)
		return err
	}

	run.AddProcessed(1)
	obsmetrics.Scheduler().AddBatchProcessed(JobDailyReconciliation, "daily_reconciliation", 1)
	s.logger(ctx).Info("scheduler.reconciliation.prepared",
		zap.String("date", date),
		zap.String("reconciliation_id", rec.ID.String()),
		zap.Bool("has_mismatches", rec.HasMismatches),
	)
	return nil
}

func lockKey(job string) string {
	return "scheduler:" + job
}
