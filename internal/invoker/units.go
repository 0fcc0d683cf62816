package invoker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	ServiceUnit = "xpost-run.service"
	TimerUnit   = "xpost-run.timer"

	DefaultOnCalendar = "minutely"
)

// Units describes the user service/timer pair that drives run-once.
type Units struct {
	Exe        string
	ConfigDir  string
	LogPath    string
	OnCalendar string
}

func (u Units) Service() string {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	b.WriteString("Description=xpost scheduled post delivery\n")
	b.WriteString("\n[Service]\n")
	b.WriteString("Type=oneshot\n")
	fmt.Fprintf(&b, "ExecStart=%s --config-dir %s run-once\n", systemdQuote(u.Exe), systemdQuote(u.ConfigDir))
	if u.LogPath != "" {
		fmt.Fprintf(&b, "StandardOutput=append:%s\n", u.LogPath)
		fmt.Fprintf(&b, "StandardError=append:%s\n", u.LogPath)
	}
	return b.String()
}

func (u Units) Timer() string {
	cal := strings.TrimSpace(u.OnCalendar)
	if cal == "" {
		cal = DefaultOnCalendar
	}
	var b strings.Builder
	b.WriteString("[Unit]\n")
	b.WriteString("Description=Run xpost run-once periodically\n")
	b.WriteString("\n[Timer]\n")
	fmt.Fprintf(&b, "OnCalendar=%s\n", cal)
	b.WriteString("AccuracySec=1s\n")
	b.WriteString("Persistent=true\n")
	fmt.Fprintf(&b, "Unit=%s\n", ServiceUnit)
	b.WriteString("\n[Install]\n")
	b.WriteString("WantedBy=timers.target\n")
	return b.String()
}

// UserUnitDir returns $XDG_CONFIG_HOME/systemd/user (or ~/.config/systemd/user).
func UserUnitDir() (string, error) {
	if x := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); x != "" {
		return filepath.Join(x, "systemd", "user"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "systemd", "user"), nil
}

// WriteFiles writes both unit files into dir and returns their paths.
func (u Units) WriteFiles(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	files := []struct{ name, body string }{
		{ServiceUnit, u.Service()},
		{TimerUnit, u.Timer()},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		if err := os.WriteFile(p, []byte(f.body), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// RemoveFiles deletes both unit files from dir; missing files are ignored.
func RemoveFiles(dir string) error {
	for _, name := range []string{TimerUnit, ServiceUnit} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func systemdQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// TimerStatus is the observed state of the timer unit.
type TimerStatus struct {
	Installed   bool   `json:"installed"`
	Enabled     bool   `json:"enabled"`
	ActiveState string `json:"active_state,omitempty"`
	SubState    string `json:"sub_state,omitempty"`
	NextElapse  string `json:"next_elapse,omitempty"`
	UnitDir     string `json:"unit_dir"`
}
