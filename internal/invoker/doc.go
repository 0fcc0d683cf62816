// Package invoker installs the periodic run-once trigger.
//
// Three mechanisms are supported:
//   - a tagged crontab line
//   - a systemd user timer (linux)
//   - an in-process daemon driven by robfig/cron
package invoker
