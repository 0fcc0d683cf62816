package timespec

import "errors"

var (
	ErrInvalidTimeSpec = errors.New("invalid time spec")
	ErrTooSoon         = errors.New("scheduled time is too soon")
)
