//go:build linux

package invoker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Timer manages the user timer over the session D-Bus.
type Timer struct {
	Units   Units
	UnitDir string
}

func (t Timer) dir() (string, error) {
	if t.UnitDir != "" {
		return t.UnitDir, nil
	}
	return UserUnitDir()
}

// On writes the unit files, reloads the user manager, enables and starts the timer.
func (t Timer) On(ctx context.Context) error {
	dir, err := t.dir()
	if err != nil {
		return err
	}
	if _, err := t.Units.WriteFiles(dir); err != nil {
		return err
	}

	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("connect user systemd: %w", err)
	}
	defer conn.Close()

	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{filepath.Join(dir, TimerUnit)}, false, true); err != nil {
		return fmt.Errorf("enable %s: %w", TimerUnit, err)
	}
	done := make(chan string, 1)
	if _, err := conn.StartUnitContext(ctx, TimerUnit, "replace", done); err != nil {
		return fmt.Errorf("start %s: %w", TimerUnit, err)
	}
	select {
	case res := <-done:
		if res != "done" {
			return fmt.Errorf("start %s: job %s", TimerUnit, res)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Off stops and disables the timer, then removes the unit files.
func (t Timer) Off(ctx context.Context) error {
	dir, err := t.dir()
	if err != nil {
		return err
	}

	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("connect user systemd: %w", err)
	}
	defer conn.Close()

	if _, err := conn.StopUnitContext(ctx, TimerUnit, "replace", nil); err != nil && !isNoSuchUnitErr(err) {
		return fmt.Errorf("stop %s: %w", TimerUnit, err)
	}
	if _, err := conn.DisableUnitFilesContext(ctx, []string{TimerUnit}, false); err != nil && !isNoSuchUnitErr(err) {
		return fmt.Errorf("disable %s: %w", TimerUnit, err)
	}
	if err := RemoveFiles(dir); err != nil {
		return err
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	return nil
}

func (t Timer) Status(ctx context.Context) (TimerStatus, error) {
	dir, err := t.dir()
	if err != nil {
		return TimerStatus{}, err
	}
	st := TimerStatus{UnitDir: dir}

	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return st, fmt.Errorf("connect user systemd: %w", err)
	}
	defer conn.Close()

	files, err := conn.ListUnitFilesByPatternsContext(ctx, nil, []string{TimerUnit})
	if err != nil {
		return st, fmt.Errorf("list unit files: %w", err)
	}
	for _, f := range files {
		if f.Path == TimerUnit || strings.HasSuffix(f.Path, "/"+TimerUnit) {
			st.Installed = true
			st.Enabled = f.Type == "enabled"
			break
		}
	}
	if !st.Installed {
		return st, nil
	}

	props, err := conn.GetUnitPropertiesContext(ctx, TimerUnit)
	if err != nil {
		return st, nil
	}
	st.ActiveState, _ = getStringProperty(props, "ActiveState")
	st.SubState, _ = getStringProperty(props, "SubState")

	if tp, err := conn.GetUnitTypePropertiesContext(ctx, TimerUnit, "Timer"); err == nil {
		if us, ok := tp["NextElapseUSecRealtime"].(uint64); ok && us > 0 {
			st.NextElapse = time.UnixMicro(int64(us)).Format(time.RFC3339)
		}
	}
	return st, nil
}

func getStringProperty(props map[string]interface{}, key string) (string, bool) {
	if val, ok := props[key].(string); ok {
		return val, true
	}
	return "", false
}

func isNoSuchUnitErr(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not loaded") || strings.Contains(es, "does not exist")
}
