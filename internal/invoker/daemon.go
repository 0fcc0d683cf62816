package invoker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "xpost/pkg/logx"
)

const DefaultDaemonSpec = "@every 1m"

var ErrDaemonRunning = errors.New("daemon already running")

var daemonParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseDaemonSpec accepts 5 or 6 field expressions and descriptors such as
// "@every 30s" or "@hourly".
func ParseDaemonSpec(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultDaemonSpec
	}
	s, err := daemonParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid daemon spec %q: %w", spec, err)
	}
	return s, nil
}

// DaemonOptions configures the in-process invoker.
type DaemonOptions struct {
	Spec     string
	Location *time.Location
	// Spread randomizes the first tick of interval specs.
	Spread bool
	Log    logx.Logger
	Rand   *rand.Rand
}

// Daemon calls run on a cron schedule until its context is cancelled. A tick
// that fires while the previous run is still active is skipped.
type Daemon struct {
	opts    DaemonOptions
	run     func(ctx context.Context) error
	log     logx.Logger
	running atomic.Bool

	ticks   atomic.Int64
	skipped atomic.Int64
}

func NewDaemon(run func(ctx context.Context) error, opts DaemonOptions) *Daemon {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Daemon{opts: opts, run: run, log: log.With(logx.String("comp", "daemon"))}
}

// Ticks returns how many runs were started and how many ticks were skipped.
func (d *Daemon) Ticks() (started, skipped int64) {
	return d.ticks.Load(), d.skipped.Load()
}

// Serve blocks until ctx is done, then waits for an in-flight run to finish.
func (d *Daemon) Serve(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrDaemonRunning
	}
	defer d.running.Store(false)

	sched, err := ParseDaemonSpec(d.opts.Spec)
	if err != nil {
		return err
	}
	if d.opts.Spread {
		rng := d.opts.Rand
		if rng == nil {
			rng = newSpreadRand()
		}
		var jitter time.Duration
		sched, jitter = withStartupSpread(sched, time.Now().In(d.opts.Location), rng)
		if jitter > 0 {
			d.log.Debug("first tick delayed", logx.Duration("jitter", jitter))
		}
	}

	c := cron.New(
		cron.WithParser(daemonParser),
		cron.WithLocation(d.opts.Location),
		cron.WithChain(cron.Recover(cronLogger{d.log})),
	)

	var busy atomic.Bool
	c.Schedule(sched, cron.FuncJob(func() {
		if !busy.CompareAndSwap(false, true) {
			d.skipped.Add(1)
			d.log.Debug("tick skipped; previous run still active")
			return
		}
		defer busy.Store(false)
		d.ticks.Add(1)
		if err := d.run(ctx); err != nil && ctx.Err() == nil {
			d.log.Warn("run-once failed", logx.Err(err))
		}
	}))

	d.log.Info("daemon started", logx.String("spec", specOrDefault(d.opts.Spec)))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	d.log.Info("daemon stopped")
	return nil
}

func specOrDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return DefaultDaemonSpec
	}
	return strings.TrimSpace(s)
}

// cronLogger adapts logx to the cron.Logger interface.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error(msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
