package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"xpost/internal/invoker"
	"xpost/internal/lock"
	"xpost/internal/model"
	"xpost/internal/runner"
	logx "xpost/pkg/logx"
)

// RunOnceAction posts every due job. It is what cron, the systemd timer and
// the daemon invoke.
func RunOnceAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	r, err := app.Runner()
	if err != nil {
		return err
	}
	res, runErr := r.RunOnce(ctx)
	if !res.OK {
		if res.Reason == runner.ReasonRunnerActive {
			if app.JSON {
				_ = printJSON(app.Out, res)
			} else {
				fmt.Fprintln(cmd.Root().ErrWriter, "runner already active")
			}
			return silentExit(ExitUsage)
		}
		_ = printJSON(app.Out, res)
		if runErr != nil {
			return runErr
		}
		return silentExit(ExitFailure)
	}
	if app.JSON {
		return printJSON(app.Out, res)
	}

	w := app.Out
	fmt.Fprintf(w, "checked=%d posted=%d failed=%d\n", res.Checked, len(res.Posted), len(res.Failed))
	if len(res.Posted)+len(res.Failed) == 0 {
		return nil
	}
	snap, err := app.Store.Load(ctx)
	if err != nil {
		return err
	}
	for _, id := range res.Posted {
		var url, text string
		if i := snap.Find(id); i >= 0 {
			url = tweetURL(snap.Jobs[i].TweetID())
			text = snap.Jobs[i].Text
		}
		fmt.Fprintf(w, "posted id=%s url=%s text=%s\n", id, url, snippet(text, 120))
	}
	for _, id := range res.Failed {
		msg, text := "unknown error", ""
		if i := snap.Find(id); i >= 0 {
			if e := snap.Jobs[i].Error(); e != "" {
				msg = e
			}
			text = snap.Jobs[i].Text
		}
		fmt.Fprintf(w, "failed id=%s error=%s text=%s\n", id, msg, snippet(text, 120))
	}
	return nil
}

type runnerStatus struct {
	Running       bool   `json:"running"`
	Stale         bool   `json:"stale,omitempty"`
	Corrupt       bool   `json:"corrupt,omitempty"`
	PID           int    `json:"pid,omitempty"`
	Hostname      string `json:"hostname,omitempty"`
	StartedAt     string `json:"started_at,omitempty"`
	LastHeartbeat string `json:"last_heartbeat,omitempty"`
	LockPath      string `json:"lock_path"`
}

func toRunnerStatus(st lock.Status, path string) runnerStatus {
	out := runnerStatus{Running: st.Running, Stale: st.Stale, Corrupt: st.Corrupt, LockPath: path}
	if st.Record != nil {
		out.PID = st.Record.PID
		out.Hostname = st.Record.Hostname
		out.StartedAt = st.Record.StartedAt
		out.LastHeartbeat = st.Record.LastHeartbeat
	}
	return out
}

// StatusAction reports the runner lock and, with --clear-stale, removes a
// lock left by a dead process.
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	st, err := app.Locks.Status()
	if err != nil {
		return err
	}
	if cmd.Bool("clear-stale") && st.Stale {
		if err := app.Locks.Release(); err != nil {
			return err
		}
		fields := []logx.Field{logx.Bool("corrupt", st.Corrupt)}
		if st.Record != nil {
			fields = append(fields, logx.Int("pid", st.Record.PID))
		}
		app.Log.Info("stale runner lock removed", fields...)
		st = lock.Status{}
	}
	out := toRunnerStatus(st, app.Locks.Path())
	if app.JSON {
		return printJSON(app.Out, out)
	}
	zone := app.displayTZ(cmd.String("tz"), "")
	switch {
	case out.Corrupt && out.Running:
		fmt.Fprintln(app.Out, "runner: lock file unreadable (possibly being written)")
	case out.Corrupt:
		fmt.Fprintln(app.Out, "runner: stale lock (unreadable file); run `xpost status --clear-stale`")
	case out.Running:
		fmt.Fprintf(app.Out, "runner: running pid=%d host=%s started_at=%s last_heartbeat=%s\n",
			out.PID, out.Hostname, localISO(out.StartedAt, zone), localISO(out.LastHeartbeat, zone))
	case out.Stale:
		fmt.Fprintf(app.Out, "runner: stale lock pid=%d (process gone); run `xpost status --clear-stale`\n", out.PID)
	default:
		fmt.Fprintln(app.Out, "runner: not running")
	}
	return nil
}

// PostAction publishes immediately and journals the delivery.
func PostAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	text := textArg(cmd)
	if strings.TrimSpace(text) == "" {
		return usageErrorf("--text is required")
	}
	if app.JSON && !cmd.Bool("yes") {
		return usageErrorf("--json mode requires --yes")
	}
	if !cmd.Bool("yes") {
		fmt.Fprintln(app.Out, "About to post:")
		fmt.Fprintln(app.Out, rule)
		fmt.Fprintln(app.Out, text)
		fmt.Fprintln(app.Out, rule)
	}
	ok, err := confirm("Post now", cmd.Bool("yes"))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(app.Out, "aborted")
		return nil
	}

	r, err := app.Runner()
	if err != nil {
		return err
	}
	d, raw, err := r.PostNow(ctx, text)
	if err != nil {
		if d.TweetID == "" {
			return fmt.Errorf("post failed: %w", err)
		}
		return err
	}
	if app.JSON {
		return printJSON(app.Out, struct {
			Delivery model.Delivery `json:"delivery"`
			Response json.RawMessage `json:"response,omitempty"`
		}{d, raw})
	}
	fmt.Fprintf(app.Out, "posted: %s (id=%s)\n", tweetURL(d.TweetID), d.ID)
	return nil
}

// DaemonAction runs run-once on a cron schedule in this process until
// SIGINT/SIGTERM.
func DaemonAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	spec := cmd.String("spec")
	if spec == "" {
		spec = app.Settings.DaemonSpec
	}
	if _, err := invoker.ParseDaemonSpec(spec); err != nil {
		return cli.Exit(err.Error(), ExitUsage)
	}
	r, err := app.Runner()
	if err != nil {
		return err
	}
	if addr := firstNonEmpty(cmd.String("pprof"), app.Settings.DaemonPprof); addr != "" {
		dbg, err := invoker.StartDebugServer(addr, app.Log)
		if err != nil {
			return fmt.Errorf("pprof listen: %w", err)
		}
		defer dbg.Stop()
	}
	d := invoker.NewDaemon(func(ctx context.Context) error {
		res, err := r.RunOnce(ctx)
		if err != nil {
			return err
		}
		if res.Reason == runner.ReasonRunnerActive {
			app.Log.Debug("another runner is active; tick skipped")
		}
		return nil
	}, invoker.DaemonOptions{
		Spec:     spec,
		Location: time.Local,
		Spread:   app.Settings.DaemonSpread,
		Log:      app.Log,
	})
	app.Log.Info("daemon running", logx.Int("pid", os.Getpid()), logx.String("dir", app.Settings.Dir))
	return d.Serve(ctx)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
