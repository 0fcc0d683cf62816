package storage

import (
	"errors"
	"strings"

	logx "xpost/pkg/logx"
)

// OpenJournal initializes the configured journal backend.
func OpenJournal(cfg Config, log logx.Logger) (Journal, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file", "jsonl":
		return openFileJournal(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLiteJournal(cfg, log)
	default:
		return nil, wrapErr("open", cfg.Path, errors.New("unknown journal driver: "+driver))
	}
}
