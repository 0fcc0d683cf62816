// Package storage persists the schedule and the delivery journal.
//
// The schedule is one JSON document rewritten atomically on every save. The
// journal is append-only and comes in two flavours:
//   - "file":   JSON Lines, fsynced after each entry (default)
//   - "sqlite": a single local database file with the same contract
package storage
