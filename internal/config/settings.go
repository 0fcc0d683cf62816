package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	ScheduleFile = "schedule.json"
	JournalFile  = "journal.jsonl"
	SQLiteFile   = "journal.db"
	LockFile     = "runner.lock"
	CronLogFile  = "cron.log"
	ConfigYAML   = "config.yaml"
	ConfigJSON   = "config.json"

	DefaultLockWait    = 10 * time.Second
	DefaultLeadTime    = 5 * time.Minute
	DefaultMaxAttempts = 3
)

// Settings is the resolved configuration: defaults applied and durations parsed.
type Settings struct {
	Dir string

	DefaultTZ string
	LeadTime  time.Duration

	LogLevel string
	LogFile  string // empty when file logging is off

	LockWait     time.Duration
	ReclaimStale bool

	JournalDriver      string
	JournalPath        string
	JournalBusyTimeout time.Duration

	PostEndpoint     string
	PostTimeout      time.Duration
	PostMaxAttempts  int
	PostRetryWait    time.Duration
	PostRetryMaxWait time.Duration
	PostRatePerMin   int

	// MaxAttempts bounds automatic re-delivery; 0 means unlimited.
	MaxAttempts int

	ProofreadModel   string
	ProofreadBaseURL string
	ProofreadTimeout time.Duration

	Telegram TelegramNotify

	DaemonSpec   string
	DaemonSpread bool
	DaemonPprof  string
	CronSpec     string
}

func (s Settings) SchedulePath() string { return filepath.Join(s.Dir, ScheduleFile) }
func (s Settings) LockPath() string     { return filepath.Join(s.Dir, LockFile) }
func (s Settings) CronLogPath() string  { return filepath.Join(s.Dir, CronLogFile) }

// Resolve validates f and fills defaults.
func (f File) Resolve(dir string) (Settings, error) {
	s := Settings{
		Dir:              dir,
		DefaultTZ:        strings.TrimSpace(f.DefaultTZ),
		LogLevel:         strings.TrimSpace(f.Logging.Level),
		ReclaimStale:     f.Lock.ReclaimStale,
		PostEndpoint:     strings.TrimSpace(f.Posting.Endpoint),
		PostMaxAttempts:  f.Posting.MaxAttempts,
		PostRatePerMin:   f.Posting.RatePerMin,
		MaxAttempts:      DefaultMaxAttempts,
		ProofreadModel:   strings.TrimSpace(f.Proofread.Model),
		ProofreadBaseURL: strings.TrimSpace(f.Proofread.BaseURL),
		Telegram:         f.Notify.Telegram,
		DaemonSpec:       strings.TrimSpace(f.Daemon.Spec),
		DaemonSpread:     f.Daemon.Spread,
		DaemonPprof:      strings.TrimSpace(f.Daemon.Pprof),
		CronSpec:         strings.TrimSpace(f.Cron.Spec),
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if f.Logging.File.Enabled {
		s.LogFile = strings.TrimSpace(f.Logging.File.Path)
		if s.LogFile == "" {
			s.LogFile = filepath.Join(dir, "xpost.log")
		}
	}
	if n := f.Delivery.MaxAttempts; n != nil {
		s.MaxAttempts = max(*n, 0)
	}
	if s.PostMaxAttempts < 0 || s.PostRatePerMin < 0 {
		return Settings{}, fmt.Errorf("posting: max_attempts and rate_per_min must be >= 0")
	}

	var err error
	if s.LeadTime, err = ParseDurationOrDefault("lead_time", f.LeadTime, DefaultLeadTime); err != nil {
		return Settings{}, err
	}
	if s.LockWait, err = ParseDurationOrDefault("lock.wait", f.Lock.Wait, DefaultLockWait); err != nil {
		return Settings{}, err
	}
	if s.JournalBusyTimeout, err = ParseDurationField("journal.busy_timeout", f.Journal.BusyTimeout); err != nil {
		return Settings{}, err
	}
	if s.PostTimeout, err = ParseDurationField("posting.timeout", f.Posting.Timeout); err != nil {
		return Settings{}, err
	}
	if s.PostRetryWait, err = ParseDurationField("posting.retry_wait", f.Posting.RetryWait); err != nil {
		return Settings{}, err
	}
	if s.PostRetryMaxWait, err = ParseDurationField("posting.retry_max_wait", f.Posting.RetryMaxWait); err != nil {
		return Settings{}, err
	}
	if s.ProofreadTimeout, err = ParseDurationField("proofread.timeout", f.Proofread.Timeout); err != nil {
		return Settings{}, err
	}

	switch d := strings.ToLower(strings.TrimSpace(f.Journal.Driver)); d {
	case "", "jsonl", "file":
		s.JournalDriver = "jsonl"
		s.JournalPath = pathOr(f.Journal.Path, filepath.Join(dir, JournalFile))
	case "sqlite", "sqlite3":
		s.JournalDriver = "sqlite"
		s.JournalPath = pathOr(f.Journal.Path, filepath.Join(dir, SQLiteFile))
	default:
		return Settings{}, fmt.Errorf("journal.driver: unknown driver %q (want jsonl or sqlite)", f.Journal.Driver)
	}

	if s.Telegram.Enabled && s.Telegram.ChatID == 0 {
		return Settings{}, fmt.Errorf("notify.telegram: chat_id is required when enabled")
	}
	return s, nil
}

func pathOr(p, def string) string {
	if p = strings.TrimSpace(p); p != "" {
		return p
	}
	return def
}

// ParseDurationField parses an optional non-negative duration; empty is zero.
func ParseDurationField(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for zero.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
