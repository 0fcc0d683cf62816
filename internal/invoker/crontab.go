package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/robfig/cron/v3"
)

// CronTag marks the line this tool owns.
const CronTag = "# xpost: run-once"

// DefaultCronSpec runs every minute.
const DefaultCronSpec = "* * * * *"

var ErrNoCrontab = errors.New("crontab command not found on this system")

// CrontabIO reads and replaces the user's crontab.
type CrontabIO interface {
	Read(ctx context.Context) ([]string, error)
	Write(ctx context.Context, lines []string) error
}

// ExecCrontab shells out to crontab(1).
type ExecCrontab struct{}

func (ExecCrontab) Read(ctx context.Context) ([]string, error) {
	if _, err := exec.LookPath("crontab"); err != nil {
		return nil, ErrNoCrontab
	}
	out, err := exec.CommandContext(ctx, "crontab", "-l").Output()
	if err != nil {
		// "no crontab for <user>" exits 1: treat as empty.
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return nil, nil
		}
		return nil, err
	}
	return splitLines(string(out)), nil
}

func (ExecCrontab) Write(ctx context.Context, lines []string) error {
	if _, err := exec.LookPath("crontab"); err != nil {
		return ErrNoCrontab
	}
	text := strings.Join(lines, "\n")
	if text != "" {
		text += "\n"
	}
	cmd := exec.CommandContext(ctx, "crontab", "-")
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("write crontab: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func splitLines(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if ln == "" {
			continue
		}
		out = append(out, ln)
	}
	return out
}

// CronLine builds the crontab entry. spec must be a standard 5-field
// expression or descriptor.
func CronLine(spec, exe, configDir, logPath string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultCronSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	if strings.HasPrefix(spec, "@every") {
		return "", fmt.Errorf("crontab does not support %q; use a 5-field spec", spec)
	}
	return fmt.Sprintf("%s %s --config-dir %s run-once >> %s 2>&1 %s",
		spec, shellQuote(exe), shellQuote(configDir), shellQuote(logPath), CronTag), nil
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t'\"\\$`;&|<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Crontab manages the tagged line.
type Crontab struct {
	IO CrontabIO
}

func (c Crontab) io() CrontabIO {
	if c.IO == nil {
		return ExecCrontab{}
	}
	return c.IO
}

// On installs line, replacing any previous tagged entry.
func (c Crontab) On(ctx context.Context, line string) error {
	lines, err := c.io().Read(ctx)
	if err != nil {
		return err
	}
	kept := withoutTagged(lines)
	kept = append(kept, line)
	return c.io().Write(ctx, kept)
}

// Off removes tagged entries and reports how many were removed.
func (c Crontab) Off(ctx context.Context) (int, error) {
	lines, err := c.io().Read(ctx)
	if err != nil {
		return 0, err
	}
	kept := withoutTagged(lines)
	removed := len(lines) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, c.io().Write(ctx, kept)
}

// Status returns the installed line, if any.
func (c Crontab) Status(ctx context.Context) (bool, string, error) {
	lines, err := c.io().Read(ctx)
	if err != nil {
		return false, "", err
	}
	for _, ln := range lines {
		if strings.HasSuffix(strings.TrimSpace(ln), CronTag) {
			return true, ln, nil
		}
	}
	return false, "", nil
}

func withoutTagged(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		if strings.Contains(ln, CronTag) {
			continue
		}
		out = append(out, ln)
	}
	return out
}
