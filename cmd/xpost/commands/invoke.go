package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"xpost/internal/invoker"
	logx "xpost/pkg/logx"
)

func executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

// CronOnAction installs (or replaces) the tagged crontab entry that runs
// run-once every minute.
func CronOnAction(ctx context.Context, _ *cli.Command) error {
	app := appFrom(ctx)
	exe, err := executable()
	if err != nil {
		return err
	}
	line, err := invoker.CronLine(app.Settings.CronSpec, exe, app.Settings.Dir, app.Settings.CronLogPath())
	if err != nil {
		return usageErrorf("cron.spec: %v", err)
	}
	if err := (invoker.Crontab{}).On(ctx, line); err != nil {
		return err
	}
	app.Log.Info("cron entry installed", logx.String("line", line))
	if app.JSON {
		return printJSON(app.Out, map[string]any{"ok": true, "line": line})
	}
	fmt.Fprintf(app.Out, "cron installed: %s\n", line)
	return nil
}

func CronOffAction(ctx context.Context, _ *cli.Command) error {
	app := appFrom(ctx)
	n, err := (invoker.Crontab{}).Off(ctx)
	if err != nil {
		return err
	}
	if app.JSON {
		return printJSON(app.Out, map[string]any{"ok": true, "removed": n})
	}
	fmt.Fprintf(app.Out, "cron removed entries: %d\n", n)
	return nil
}

func CronStatusAction(ctx context.Context, _ *cli.Command) error {
	app := appFrom(ctx)
	present, line, err := (invoker.Crontab{}).Status(ctx)
	if err != nil {
		return err
	}
	if app.JSON {
		return printJSON(app.Out, map[string]any{"present": present, "line": line})
	}
	if present {
		fmt.Fprintf(app.Out, "cron: present -> %s\n", line)
	} else {
		fmt.Fprintln(app.Out, "cron: not installed")
	}
	return nil
}

func (a *AppContext) timer() (invoker.Timer, error) {
	exe, err := executable()
	if err != nil {
		return invoker.Timer{}, err
	}
	return invoker.Timer{Units: invoker.Units{
		Exe:       exe,
		ConfigDir: a.Settings.Dir,
		LogPath:   a.Settings.CronLogPath(),
	}}, nil
}

// TimerOnAction installs and starts the systemd user timer.
func TimerOnAction(ctx context.Context, _ *cli.Command) error {
	app := appFrom(ctx)
	t, err := app.timer()
	if err != nil {
		return err
	}
	if err := t.On(ctx); err != nil {
		return fmt.Errorf("timer on: %w", err)
	}
	app.Log.Info("systemd timer enabled", logx.String("unit", invoker.TimerUnit))
	if app.JSON {
		return printJSON(app.Out, map[string]any{"ok": true, "unit": invoker.TimerUnit})
	}
	fmt.Fprintf(app.Out, "timer enabled: %s\n", invoker.TimerUnit)
	return nil
}

func TimerOffAction(ctx context.Context, _ *cli.Command) error {
	app := appFrom(ctx)
	t, err := app.timer()
	if err != nil {
		return err
	}
	if err := t.Off(ctx); err != nil {
		return fmt.Errorf("timer off: %w", err)
	}
	if app.JSON {
		return printJSON(app.Out, map[string]any{"ok": true, "unit": invoker.TimerUnit})
	}
	fmt.Fprintf(app.Out, "timer removed: %s\n", invoker.TimerUnit)
	return nil
}

func TimerStatusAction(ctx context.Context, _ *cli.Command) error {
	app := appFrom(ctx)
	t, err := app.timer()
	if err != nil {
		return err
	}
	st, err := t.Status(ctx)
	if err != nil {
		return fmt.Errorf("timer status: %w", err)
	}
	if app.JSON {
		return printJSON(app.Out, st)
	}
	if !st.Installed {
		fmt.Fprintln(app.Out, "timer: not installed")
		return nil
	}
	fmt.Fprintf(app.Out, "timer: %s enabled=%s state=%s/%s\n", invoker.TimerUnit, yesNo(st.Enabled), st.ActiveState, st.SubState)
	if st.NextElapse != "" {
		fmt.Fprintf(app.Out, "next: %s\n", st.NextElapse)
	}
	fmt.Fprintf(app.Out, "units: %s\n", st.UnitDir)
	return nil
}
