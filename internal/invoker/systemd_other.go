//go:build !linux

package invoker

import (
	"context"
	"errors"
)

var ErrUnsupported = errors.New("invoker: systemd timers are only supported on linux")

type Timer struct {
	Units   Units
	UnitDir string
}

func (Timer) On(context.Context) error  { return ErrUnsupported }
func (Timer) Off(context.Context) error { return ErrUnsupported }

func (Timer) Status(context.Context) (TimerStatus, error) {
	return TimerStatus{}, ErrUnsupported
}
