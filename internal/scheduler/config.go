package scheduler

import (
	"time"

	"github.com/smallbiznis/carebill/internal/config"
)

// Config controls how often each job is due and how long it may run.
type Config struct {
	RunInterval            time.Duration
	LeakSweepInterval      time.Duration
	ReconciliationInterval time.Duration
	JobTimeout             time.Duration
	LockTTL                time.Duration
	CloseOpenEncounters    bool
	EnabledJobs            []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:            time.Minute,
		LeakSweepInterval:      15 * time.Minute,
		ReconciliationInterval: time.Hour,
		JobTimeout:             5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		LeakSweepInterval:      cfg.Scheduler.LeakSweepInterval,
		ReconciliationInterval: cfg.Scheduler.ReconciliationInterval,
		JobTimeout:             cfg.Scheduler.JobTimeout,
		CloseOpenEncounters:    cfg.Scheduler.CloseOpenEncounters,
		EnabledJobs:            cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.LeakSweepInterval <= 0 {
		c.LeakSweepInterval = defaults.LeakSweepInterval
	}
	if c.ReconciliationInterval <= 0 {
		c.ReconciliationInterval = defaults.ReconciliationInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	// the lock must outlive a job that runs to its deadline
	if c.LockTTL <= c.JobTimeout {
		c.LockTTL = c.JobTimeout + time.Minute
	}
	return c
}
