package commands

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"xpost/internal/jobs"
	"xpost/internal/lock"
	"xpost/internal/timespec"
)

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// usageErrorf marks bad invocations (missing or invalid arguments).
func usageErrorf(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), ExitUsage)
}

// silentExit ends the command with code after output was already printed.
func silentExit(code int) error {
	return cli.Exit("", code)
}

// ExitCode maps an error returned by the command tree to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	switch {
	case errors.Is(err, lock.ErrLockHeld),
		errors.Is(err, timespec.ErrInvalidTimeSpec),
		errors.Is(err, timespec.ErrTooSoon),
		errors.Is(err, jobs.ErrEmptyText),
		errors.Is(err, errNeedsYes):
		return ExitUsage
	default:
		return ExitFailure
	}
}
