package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"xpost/internal/model"
	logx "xpost/pkg/logx"
)

const maxJournalLine = 1 << 20

// fileJournal is the JSON Lines backend.
//
// Every Append opens the file with O_APPEND, writes one line and fsyncs, so
// concurrent writers from other processes interleave whole lines.
type fileJournal struct {
	path string
	log  logx.Logger

	mu     sync.Mutex
	closed bool
}

func openFileJournal(cfg Config, log logx.Logger) (Journal, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, wrapErr("open", "", errors.New("journal path is required for file driver"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, wrapErr("mkdir", filepath.Dir(path), err)
	}
	return &fileJournal{path: path, log: log}, nil
}

func (j *fileJournal) Close() error {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	return nil
}

func (j *fileJournal) Append(ctx context.Context, e model.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := model.EncodeEntry(e)
	if err != nil {
		return wrapErr("encode", j.path, err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return wrapErr("append", j.path, ErrClosed)
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return wrapErr("open", j.path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return wrapErr("append", j.path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return wrapErr("fsync", j.path, err)
	}
	return wrapErr("close", j.path, f.Close())
}

// scan calls fn for every decodable line until fn returns false.
func (j *fileJournal) scan(ctx context.Context, fn func(model.Entry) bool) error {
	f, err := os.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return wrapErr("open", j.path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	for n := 1; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		b, tooLong, rerr := readLine(r, maxJournalLine)
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return wrapErr("read", j.path, rerr)
		}
		b = bytes.TrimSpace(b)
		switch {
		case tooLong:
			j.log.Debug("skipping oversized journal line", logx.Int("line", n))
		case len(b) == 0:
		default:
			e, err := model.DecodeEntry(b)
			if err != nil {
				j.log.Debug("skipping undecodable journal line", logx.Int("line", n), logx.Err(err))
				break
			}
			if !fn(e) {
				return nil
			}
		}
		if rerr != nil {
			return nil
		}
	}
}

// readLine returns the next line without its size bounded by the reader's
// buffer. Lines longer than limit are consumed and reported as tooLong.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}

func (j *fileJournal) FindByIdempotencyKey(ctx context.Context, key string) (*model.Delivery, error) {
	if strings.TrimSpace(key) == "" {
		return nil, nil
	}
	var found *model.Delivery
	err := j.scan(ctx, func(e model.Entry) bool {
		if d, ok := e.(model.Delivery); ok && d.Key() == key {
			found = &d
			return false
		}
		return true
	})
	return found, err
}

func (j *fileJournal) FindByID(ctx context.Context, id string) (*model.Delivery, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var found *model.Delivery
	err := j.scan(ctx, func(e model.Entry) bool {
		if d, ok := e.(model.Delivery); ok && d.ID == id {
			found = &d
			return false
		}
		return true
	})
	return found, err
}

func (j *fileJournal) ReadSince(ctx context.Context, cutoff time.Time) ([]model.Entry, error) {
	var out []model.Entry
	err := j.scan(ctx, func(e model.Entry) bool {
		if keepSince(e, cutoff) {
			out = append(out, e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sortEntries(out)
	return out, nil
}

// keepSince drops entries whose timestamp parses and is before cutoff.
func keepSince(e model.Entry, cutoff time.Time) bool {
	if cutoff.IsZero() {
		return true
	}
	ts := e.Timestamp()
	if ts == "" {
		return true
	}
	t, err := model.ParseISO(ts)
	if err != nil {
		return true
	}
	return !t.Before(cutoff)
}

func sortEntries(es []model.Entry) {
	sort.SliceStable(es, func(a, b int) bool { return es[a].Timestamp() < es[b].Timestamp() })
}
