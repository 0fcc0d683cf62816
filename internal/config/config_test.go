package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mustLoad(t *testing.T, dir string) Settings {
	t.Helper()
	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := mustLoad(t, dir)

	checks := []struct {
		name      string
		got, want any
	}{
		{"Dir", s.Dir, dir},
		{"LeadTime", s.LeadTime, DefaultLeadTime},
		{"LockWait", s.LockWait, DefaultLockWait},
		{"MaxAttempts", s.MaxAttempts, DefaultMaxAttempts},
		{"JournalDriver", s.JournalDriver, "jsonl"},
		{"JournalPath", s.JournalPath, filepath.Join(dir, JournalFile)},
		{"SchedulePath", s.SchedulePath(), filepath.Join(dir, ScheduleFile)},
		{"LockPath", s.LockPath(), filepath.Join(dir, LockFile)},
		{"LogLevel", s.LogLevel, "info"},
		{"LogFile", s.LogFile, ""},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigYAML), `
default_tz: Europe/Berlin
lead_time: 2m
logging:
  level: debug
  file: { enabled: true }
lock:
  wait: 3s
  reclaim_stale: true
journal:
  driver: sqlite
  busy_timeout: 1s
posting:
  max_attempts: 4
  retry_wait: 500ms
  rate_per_min: 10
delivery:
  max_attempts: 5
notify:
  telegram: { enabled: true, chat_id: -100123, thread_id: 7 }
daemon:
  spec: "@every 30s"
`)
	s := mustLoad(t, dir)

	checks := []struct {
		name      string
		got, want any
	}{
		{"DefaultTZ", s.DefaultTZ, "Europe/Berlin"},
		{"LeadTime", s.LeadTime, 2 * time.Minute},
		{"LogFile", s.LogFile, filepath.Join(dir, "xpost.log")},
		{"LockWait", s.LockWait, 3 * time.Second},
		{"ReclaimStale", s.ReclaimStale, true},
		{"JournalDriver", s.JournalDriver, "sqlite"},
		{"JournalPath", s.JournalPath, filepath.Join(dir, SQLiteFile)},
		{"JournalBusyTimeout", s.JournalBusyTimeout, time.Second},
		{"PostMaxAttempts", s.PostMaxAttempts, 4},
		{"PostRetryWait", s.PostRetryWait, 500 * time.Millisecond},
		{"MaxAttempts", s.MaxAttempts, 5},
		{"Telegram.ChatID", s.Telegram.ChatID, int64(-100123)},
		{"Telegram.ThreadID", s.Telegram.ThreadID, 7},
		{"DaemonSpec", s.DaemonSpec, "@every 30s"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v (%T), want %v (%T)", c.name, c.got, c.got, c.want, c.want)
		}
	}
}

func TestDeliveryMaxAttempts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want int
	}{
		{"unset", "delivery: {}\n", DefaultMaxAttempts},
		{"explicit", "delivery: { max_attempts: 2 }\n", 2},
		{"zero is unlimited", "delivery: { max_attempts: 0 }\n", 0},
		{"negative is unlimited", "delivery: { max_attempts: -1 }\n", 0},
		{"json zero", `{"delivery":{"max_attempts":0}}`, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			name := ConfigYAML
			if strings.HasPrefix(tt.body, "{") {
				name = ConfigJSON
			}
			writeFile(t, filepath.Join(dir, name), tt.body)
			if got := mustLoad(t, dir).MaxAttempts; got != tt.want {
				t.Fatalf("MaxAttempts = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "bogus: 1\n"},
		{"bad duration", "lead_time: soon\n"},
		{"negative", "lock: { wait: -1s }\n"},
		{"unknown driver", "journal: { driver: postgres }\n"},
		{"chat missing", "notify: { telegram: { enabled: true } }\n"},
		{"not yaml", "a: [1,\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, ConfigYAML), tt.body)
			if _, err := Load(dir); err == nil {
				t.Fatalf("Load(%q) succeeded", tt.body)
			}
		})
	}
}

func TestLoadJSONAndEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigJSON), `{"default_tz":"UTC"}`)
	if s := mustLoad(t, dir); s.DefaultTZ != "UTC" {
		t.Fatalf("DefaultTZ = %q", s.DefaultTZ)
	}

	dir = t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigYAML), "# nothing yet\n")
	mustLoad(t, dir)

	_, err := Parse("c.json", []byte(`{} {}`))
	if err == nil || !strings.Contains(err.Error(), "trailing data") {
		t.Fatalf("Parse error = %v, want trailing data", err)
	}
}

func TestResolveDir(t *testing.T) {
	explicit := filepath.Join(t.TempDir(), "explicit")
	d, err := ResolveDir(explicit)
	if err != nil || d != explicit {
		t.Fatalf("ResolveDir(explicit) = %q, %v", d, err)
	}
	if fi, err := os.Stat(explicit); err != nil || !fi.IsDir() {
		t.Fatalf("%s not created: %v", explicit, err)
	}

	fromEnv := filepath.Join(t.TempDir(), "env")
	t.Setenv(DirEnv, fromEnv)
	d, err = ResolveDir("")
	if err != nil || d != fromEnv {
		t.Fatalf("ResolveDir from env = %q, %v", d, err)
	}
}

func TestDotEnvNeverOverrides(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(root, ".env"), "API_KEY=from-file\nX_BEARER_TOKEN=bearer-file\n")

	if got := FindDotEnv(nested); got != filepath.Join(root, ".env") {
		t.Fatalf("FindDotEnv = %q", got)
	}

	t.Chdir(nested)
	t.Setenv("API_KEY", "from-env")
	t.Setenv("X_BEARER_TOKEN", "")
	if err := os.Unsetenv("X_BEARER_TOKEN"); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}

	loaded, err := LoadDotEnv("")
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded = %v, want one key", loaded)
	}

	c := CredentialsFromEnv()
	if c.APIKey != "from-env" || c.BearerToken != "bearer-file" {
		t.Fatalf("credentials = %q, %q", c.APIKey, c.BearerToken)
	}
}
