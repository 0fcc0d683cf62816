package config

import (
	logx "xpost/pkg/logx"
)

// LogFields summarizes effective settings for a debug line. Secrets never
// appear here.
func (s Settings) LogFields() []logx.Field {
	return []logx.Field{
		logx.String("dir", s.Dir),
		logx.String("default_tz", s.DefaultTZ),
		logx.Duration("lead_time", s.LeadTime),
		logx.String("journal.driver", s.JournalDriver),
		logx.Duration("lock.wait", s.LockWait),
		logx.Bool("lock.reclaim_stale", s.ReclaimStale),
		logx.Int("delivery.max_attempts", s.MaxAttempts),
		logx.Int("posting.max_attempts", s.PostMaxAttempts),
		logx.Int("posting.rate_per_min", s.PostRatePerMin),
		logx.Bool("notify.telegram", s.Telegram.Enabled),
	}
}

// LogConfig maps the logging section onto logx. Console output goes to stderr.
func (s Settings) LogConfig(level string) logx.Config {
	if level == "" {
		level = s.LogLevel
	}
	return logx.Config{
		Level:   level,
		Console: true,
		Stderr:  true,
		File:    logx.FileConfig{Enabled: s.LogFile != "", Path: s.LogFile},
	}
}
