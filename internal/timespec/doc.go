// Package timespec turns human time expressions into UTC instants.
//
// Supported forms:
//
//   - durations from now: "2h", "30m", "1d"
//   - named days: "today 18:00", "tomorrow 9am"
//
// and, after an optional "{N}d " day-offset prefix:
//
//   - posting windows: "EU morning", "nyc evening", "2d asia morning"
//   - wall clock shorthand: "09:30", "9pm"
//   - absolute date-times: "2099-01-01 00:00", "2030-03-04T10:00:00+02:00", "March 4 2030 9am"
//
// Window instants are drawn uniformly at second granularity so a queue of posts
// aimed at the same window does not land on the same minute.
package timespec
