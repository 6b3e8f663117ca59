package scheduler

import (
	"time"

	appconfig "github.com/lakeshoreswim/clubhouse/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval  time.Duration
	BatchSize    int
	NotifyWindow time.Duration
	JobTimeout   time.Duration
	LockTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Hour,
		BatchSize:    50,
		NotifyWindow: 14 * 24 * time.Hour,
		JobTimeout:   5 * time.Minute,
		LockTTL:      10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.NotifyWindow <= 0 {
		c.NotifyWindow = defaults.NotifyWindow
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

func ProvideConfig(cfg appconfig.Config) Config {
	out := DefaultConfig()
	if cfg.NotifyWindowDays > 0 {
		out.NotifyWindow = time.Duration(cfg.NotifyWindowDays) * 24 * time.Hour
	}
	return out
}
