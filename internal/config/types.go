package config

// File is the on-disk shape of config.yaml (or config.json). Durations are Go
// duration strings ("10s", "5m"); empty or zero means "use the default".
type File struct {
	DefaultTZ string `json:"default_tz,omitempty"`
	LeadTime  string `json:"lead_time,omitempty"`

	Logging   LoggingConfig   `json:"logging"`
	Lock      LockConfig      `json:"lock"`
	Journal   JournalConfig   `json:"journal"`
	Posting   PostingConfig   `json:"posting"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Proofread ProofreadConfig `json:"proofread"`
	Notify    NotifyConfig    `json:"notify"`
	Daemon    DaemonConfig    `json:"daemon"`
	Cron      CronConfig      `json:"cron"`
}

type LoggingConfig struct {
	Level string      `json:"level,omitempty"`
	File  LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LockConfig struct {
	// Wait bounds how long lifecycle writes poll for the runner lock.
	Wait string `json:"wait,omitempty"`
	// ReclaimStale removes a lock whose owner process is gone.
	ReclaimStale bool `json:"reclaim_stale,omitempty"`
}

// JournalConfig selects the journal backend.
//
//	journal: { driver: sqlite, busy_timeout: 5s }
type JournalConfig struct {
	Driver      string `json:"driver,omitempty"` // jsonl (default) | sqlite
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type PostingConfig struct {
	Endpoint     string `json:"endpoint,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
	MaxAttempts  int    `json:"max_attempts,omitempty"`
	RetryWait    string `json:"retry_wait,omitempty"`
	RetryMaxWait string `json:"retry_max_wait,omitempty"`
	RatePerMin   int    `json:"rate_per_min,omitempty"`
}

type DeliveryConfig struct {
	// MaxAttempts caps automatic re-delivery of failed jobs. Unset means
	// DefaultMaxAttempts, 0 disables the cap.
	MaxAttempts *int `json:"max_attempts,omitempty"`
}

type ProofreadConfig struct {
	Model   string `json:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type NotifyConfig struct {
	Telegram TelegramNotify `json:"telegram"`
}

type TelegramNotify struct {
	Enabled  bool   `json:"enabled"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	URL      string `json:"url,omitempty"`
}

type DaemonConfig struct {
	Spec   string `json:"spec,omitempty"`
	Spread bool   `json:"spread,omitempty"`
	// Pprof is a listen address for /debug/pprof; empty keeps it off.
	Pprof string `json:"pprof,omitempty"`
}

type CronConfig struct {
	Spec string `json:"spec,omitempty"`
}
