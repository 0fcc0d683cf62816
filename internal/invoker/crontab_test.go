package invoker

import (
	"context"
	"slices"
	"strings"
	"testing"
)

type memCrontab struct {
	lines  []string
	writes int
}

func (m *memCrontab) Read(context.Context) ([]string, error) {
	return append([]string(nil), m.lines...), nil
}

func (m *memCrontab) Write(_ context.Context, lines []string) error {
	m.writes++
	m.lines = append([]string(nil), lines...)
	return nil
}

func TestCronLine(t *testing.T) {
	t.Parallel()
	line, err := CronLine("", "/usr/local/bin/xpost", "/home/me/.xpost", "/home/me/.xpost/cron.log")
	if err != nil {
		t.Fatalf("CronLine: %v", err)
	}
	want := "* * * * * /usr/local/bin/xpost --config-dir /home/me/.xpost run-once >> /home/me/.xpost/cron.log 2>&1 # xpost: run-once"
	if line != want {
		t.Fatalf("CronLine =\n%s\nwant\n%s", line, want)
	}

	line, err = CronLine("*/5 * * * *", "/opt/my tools/xpost", "/d", "/d/cron.log")
	if err != nil {
		t.Fatalf("CronLine: %v", err)
	}
	if !strings.HasPrefix(line, "*/5 * * * * '/opt/my tools/xpost' ") {
		t.Fatalf("executable not quoted: %s", line)
	}

	for _, spec := range []string{"61 * * * *", "@every 1m"} {
		if _, err := CronLine(spec, "x", "d", "l"); err == nil {
			t.Fatalf("CronLine(%q) accepted", spec)
		}
	}
}

func TestCrontabOnOffStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := &memCrontab{lines: []string{"0 3 * * * backup.sh", "* * * * * old " + CronTag}}
	ct := Crontab{IO: mem}

	ok, line, err := ct.Status(ctx)
	if err != nil || !ok || !strings.Contains(line, "old") {
		t.Fatalf("Status = %v, %q, %v", ok, line, err)
	}

	if err := ct.On(ctx, "* * * * * new "+CronTag); err != nil {
		t.Fatalf("On: %v", err)
	}
	if want := []string{"0 3 * * * backup.sh", "* * * * * new " + CronTag}; !slices.Equal(mem.lines, want) {
		t.Fatalf("lines after On = %q, want %q", mem.lines, want)
	}

	n, err := ct.Off(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Off = %d, %v", n, err)
	}
	if want := []string{"0 3 * * * backup.sh"}; !slices.Equal(mem.lines, want) {
		t.Fatalf("lines after Off = %q, want %q", mem.lines, want)
	}

	// A second Off finds nothing and leaves the crontab unwritten.
	writes := mem.writes
	if n, err = ct.Off(ctx); err != nil || n != 0 {
		t.Fatalf("second Off = %d, %v", n, err)
	}
	if mem.writes != writes {
		t.Fatalf("second Off rewrote the crontab")
	}

	if ok, _, err = ct.Status(ctx); err != nil || ok {
		t.Fatalf("Status after Off = %v, %v", ok, err)
	}
}
