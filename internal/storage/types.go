package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xpost/internal/model"
)

var ErrClosed = errors.New("storage closed")

// Config configures the journal backend.
//
// Driver values:
//   - "file":   JSON Lines journal (default)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Journal is the append-only record of deliveries and run summaries.
type Journal interface {
	Append(ctx context.Context, e model.Entry) error
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Delivery, error)
	FindByID(ctx context.Context, id string) (*model.Delivery, error)
	// ReadSince returns entries with posted_at >= cutoff (all when cutoff is zero),
	// ordered by posted_at; entries without a timestamp sort first.
	ReadSince(ctx context.Context, cutoff time.Time) ([]model.Entry, error)
	Close() error
}

// StorageError wraps every file or database failure.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func wrapErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Path: path, Err: err}
}

// IsStorageError reports whether err came from this package.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
