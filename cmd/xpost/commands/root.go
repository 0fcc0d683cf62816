package commands

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

func tzFlag() cli.Flag {
	return &cli.StringFlag{Name: "tz", Usage: "display timezone (IANA name or alias)"}
}

func textFlag() cli.Flag {
	return &cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "post text"}
}

func yesFlag() cli.Flag {
	return &cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the confirmation prompt"}
}

func idFlag() cli.Flag {
	return &cli.StringFlag{Name: "id", Usage: "job id"}
}

// Root builds the command tree. Output goes to stdout/stderr.
func Root() *cli.Command {
	return NewRoot(os.Stdin, os.Stdout, os.Stderr)
}

// NewRoot builds the command tree with explicit streams.
func NewRoot(in io.Reader, out, errOut io.Writer) *cli.Command {
	root := &cli.Command{
		Name:      "xpost",
		Usage:     "schedule and deliver posts to X",
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Usage: "state and config directory (default $XPOST_DIR or ~/.xpost)"},
			&cli.BoolFlag{Name: "json", Usage: "machine-readable output"},
			&cli.StringFlag{Name: "log-level", Usage: "override logging.level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "default-tz", Usage: "override default_tz for this invocation"},
		},
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			{
				Name:      "schedule",
				Usage:     "schedule a post",
				ArgsUsage: "[text]",
				Flags: []cli.Flag{
					textFlag(),
					&cli.StringFlag{Name: "at", Usage: `when to post: "2025-03-01 09:00", "tomorrow 9am", "2h", "1d EU morning"`},
					&cli.StringFlag{Name: "tz", Usage: "timezone the time is written in"},
					yesFlag(),
				},
				Action: ScheduleAction,
			},
			{
				Name:  "list",
				Usage: "list scheduled posts",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "since", Usage: "only jobs at or after this time"},
					&cli.StringFlag{Name: "status", Usage: "filter by status (pending, in_progress, posted, failed)"},
					tzFlag(),
				},
				Action: ListAction,
			},
			{
				Name:      "show",
				Usage:     "show one job or immediate post",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{idFlag(), tzFlag()},
				Action:    ShowAction,
			},
			{
				Name:      "update",
				Usage:     "change text or time of a job",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					idFlag(),
					textFlag(),
					&cli.StringFlag{Name: "at", Usage: "new time"},
					&cli.StringFlag{Name: "tz", Usage: "timezone of the new time"},
				},
				Action: UpdateAction,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "delete a job",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{idFlag()},
				Action:    RemoveAction,
			},
			{
				Name:      "retry",
				Usage:     "reset a failed job to pending",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{idFlag()},
				Action:    RetryAction,
			},
			{
				Name:   "run-once",
				Usage:  "post every due job and exit",
				Action: RunOnceAction,
			},
			{
				Name:  "status",
				Usage: "show the runner lock state",
				Flags: []cli.Flag{
					tzFlag(),
					&cli.BoolFlag{Name: "clear-stale", Usage: "remove the lock file when its holder is gone"},
				},
				Action: StatusAction,
			},
			{
				Name:      "post",
				Usage:     "post immediately",
				ArgsUsage: "[text]",
				Flags:     []cli.Flag{textFlag(), yesFlag()},
				Action:    PostAction,
			},
			{
				Name:  "history",
				Usage: "show deliveries and runs from the journal",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "since", Value: "7d", Usage: `lookback ("7d", "12h") or a timestamp`},
					&cli.BoolFlag{Name: "all", Usage: "include runs that found nothing due"},
					tzFlag(),
				},
				Action: HistoryAction,
			},
			{
				Name:      "tweet",
				Usage:     "look up the post behind an id",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{idFlag()},
				Action:    TweetAction,
			},
			{
				Name:   "auth",
				Usage:  "report which X credentials are configured",
				Action: AuthAction,
			},
			{
				Name:  "cron",
				Usage: "manage the crontab entry that invokes run-once",
				Commands: []*cli.Command{
					{Name: "on", Usage: "install the entry", Action: CronOnAction},
					{Name: "off", Usage: "remove the entry", Action: CronOffAction},
					{Name: "status", Usage: "show the entry", Action: CronStatusAction},
				},
			},
			{
				Name:  "timer",
				Usage: "manage the systemd user timer that invokes run-once",
				Commands: []*cli.Command{
					{Name: "on", Usage: "install and start the timer", Action: TimerOnAction},
					{Name: "off", Usage: "stop and remove the timer", Action: TimerOffAction},
					{Name: "status", Usage: "show the timer state", Action: TimerStatusAction},
				},
			},
			{
				Name:  "daemon",
				Usage: "run run-once on a schedule in the foreground",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "spec", Usage: `cron spec ("@every 1m", "*/5 * * * *")`},
					&cli.StringFlag{Name: "pprof", Usage: "serve /debug/pprof on this address"},
				},
				Action: DaemonAction,
			},
			{
				Name:  "logs",
				Usage: "show recent runs and the runner log",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "log file (default the cron log in the config dir)"},
					&cli.IntFlag{Name: "lines", Value: 50, Usage: "log lines to show"},
					&cli.IntFlag{Name: "lookback", Value: 10, Usage: "minutes of run history to show"},
					&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "keep printing new log lines"},
					tzFlag(),
				},
				Action: LogsAction,
			},
			{
				Name:      "proofread",
				Usage:     "rewrite a draft with an OpenAI model",
				ArgsUsage: "[text]",
				Flags: []cli.Flag{
					textFlag(),
					&cli.StringFlag{Name: "model", Usage: "model name"},
				},
				Action: ProofreadAction,
			},
			{
				Name:  "windows",
				Usage: "show posting-window coverage for the coming days",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Value: 10, Usage: "days to show (1-60)"},
					tzFlag(),
				},
				Action: WindowsAction,
			},
		},
	}
	withSetup(root)
	return root
}

// withSetup installs setup/teardown on every leaf so that root flags given
// after the subcommand name are already parsed when setup runs.
func withSetup(cmd *cli.Command) {
	for _, sub := range cmd.Commands {
		withSetup(sub)
	}
	if cmd.Action != nil && len(cmd.Commands) == 0 {
		cmd.Before = setup
		cmd.After = teardown
	}
}
