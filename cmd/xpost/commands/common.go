package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"xpost/internal/config"
	"xpost/internal/jobs"
	"xpost/internal/lock"
	"xpost/internal/notify"
	"xpost/internal/poster"
	"xpost/internal/runner"
	"xpost/internal/storage"
	"xpost/internal/timespec"
	logx "xpost/pkg/logx"
)

// AppContext holds what a command needs: settings, logger and the lazily
// opened stores.
type AppContext struct {
	Settings config.Settings
	Creds    config.Credentials
	Log      logx.Logger
	Out      io.Writer
	JSON     bool

	Resolver *timespec.Resolver
	Store    *storage.ScheduleStore
	Locks    *lock.Manager

	logSvc  *logx.Service
	journal storage.Journal
	now     func() time.Time
}

type ctxKey struct{}

// setup runs before every command: it resolves the config directory, loads
// .env and config.yaml, and builds the logger.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	dir, err := config.ResolveDir(cmd.String("config-dir"))
	if err != nil {
		return ctx, fmt.Errorf("config dir: %w", err)
	}
	// Until config.yaml is read only the console logger is available.
	boot := logx.NewConsole(cmd.String("log-level"))
	envFiles, envErr := config.LoadDotEnv(dir)
	if envErr != nil {
		boot.Warn("failed to load .env", logx.Err(envErr))
	}
	settings, err := config.Load(dir)
	if err != nil {
		return ctx, err
	}
	if tz := cmd.String("default-tz"); tz != "" {
		settings.DefaultTZ = tz
	}

	svc, log := logx.New(settings.LogConfig(cmd.String("log-level")))
	log.Debug("config loaded", append(settings.LogFields(), logx.Strings("env_files", envFiles))...)

	app := &AppContext{
		Settings: settings,
		Creds:    config.CredentialsFromEnv(),
		Log:      log,
		Out:      cmd.Root().Writer,
		JSON:     cmd.Bool("json"),
		Resolver: timespec.New(settings.DefaultTZ, settings.LeadTime, nil),
		Store:    storage.NewScheduleStore(settings.SchedulePath(), log),
		Locks: lock.New(settings.LockPath(), lock.Options{
			ReclaimStale: settings.ReclaimStale,
			Log:          log,
		}),
		logSvc: svc,
	}
	if app.Out == nil {
		app.Out = os.Stdout
	}
	root := cmd.Root()
	if root.Metadata == nil {
		root.Metadata = map[string]any{}
	}
	root.Metadata["app"] = app
	return context.WithValue(ctx, ctxKey{}, app), nil
}

func teardown(_ context.Context, cmd *cli.Command) error {
	if app, ok := cmd.Root().Metadata["app"].(*AppContext); ok {
		app.Close()
	}
	return nil
}

// appFrom returns the AppContext installed by setup.
func appFrom(ctx context.Context) *AppContext {
	app, _ := ctx.Value(ctxKey{}).(*AppContext)
	return app
}

func (a *AppContext) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.Log.Warn("journal close failed", logx.Err(err))
		}
		a.journal = nil
	}
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
}

func (a *AppContext) Journal() (storage.Journal, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	j, err := storage.OpenJournal(storage.Config{
		Driver:      a.Settings.JournalDriver,
		Path:        a.Settings.JournalPath,
		BusyTimeout: a.Settings.JournalBusyTimeout,
	}, a.Log)
	if err != nil {
		return nil, err
	}
	a.journal = j
	return j, nil
}

func (a *AppContext) Jobs() *jobs.Service {
	return jobs.New(a.Store, a.Locks, a.Resolver, jobs.Options{
		LockWait: a.Settings.LockWait,
		Log:      a.Log,
		Now:      a.now,
	})
}

func (a *AppContext) PosterCredentials() poster.Credentials {
	c := a.Creds
	return poster.Credentials{
		APIKey:            c.APIKey,
		APISecret:         c.APISecret,
		AccessToken:       c.AccessToken,
		AccessTokenSecret: c.AccessTokenSecret,
		BearerToken:       c.BearerToken,
		ClientID:          c.ClientID,
		ClientSecret:      c.ClientSecret,
	}
}

func (a *AppContext) Poster() *poster.Client {
	s := a.Settings
	return poster.New(poster.Config{
		Endpoint:     s.PostEndpoint,
		Timeout:      s.PostTimeout,
		MaxAttempts:  s.PostMaxAttempts,
		RetryWait:    s.PostRetryWait,
		RetryMaxWait: s.PostRetryMaxWait,
		RatePerMin:   s.PostRatePerMin,
	}, a.PosterCredentials(), a.Log)
}

// Notifier is nil unless Telegram alerts are enabled and a token is present.
func (a *AppContext) Notifier() runner.Notifier {
	tg := a.Settings.Telegram
	if !tg.Enabled {
		return nil
	}
	sender, err := notify.NewBotSender(notify.TelegramConfig{Token: a.Creds.TelegramToken, URL: tg.URL})
	if err != nil {
		a.Log.Warn("telegram notify disabled", logx.Err(err))
		return nil
	}
	host, _ := os.Hostname()
	return notify.New(sender, tg.ChatID, tg.ThreadID, host, a.Log)
}

func (a *AppContext) Runner() (*runner.Runner, error) {
	j, err := a.Journal()
	if err != nil {
		return nil, err
	}
	return runner.New(a.Store, j, a.Locks, a.Poster(), runner.Options{
		MaxAttempts: a.Settings.MaxAttempts,
		Notifier:    a.Notifier(),
		Log:         a.Log,
		Now:         a.now,
	}), nil
}

// displayTZ is the zone used for rendering: --tz, else the job's own zone,
// else the default.
func (a *AppContext) displayTZ(flag, jobTZ string) string {
	if flag != "" {
		return flag
	}
	if jobTZ != "" {
		return jobTZ
	}
	return a.Resolver.DisplayTZ()
}

func (a *AppContext) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}
