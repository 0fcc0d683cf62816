// Package logtail prints the end of a log file and follows it across rotation.
package logtail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "xpost/pkg/logx"
)

// Tail returns the last n lines of path. A missing file yields no lines.
func Tail(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return ring, err
	}
	return ring, nil
}

type FollowOptions struct {
	// FromStart copies existing content before following; otherwise only new
	// bytes are written.
	FromStart bool
	// Poll is the fallback re-check interval for missed events.
	Poll time.Duration
	Log  logx.Logger
}

// Follow copies appended data from path to w until ctx is done. When the file is
// renamed, removed, recreated or truncated it is reopened from the start.
func Follow(ctx context.Context, path string, w io.Writer, opts FollowOptions) error {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	poll := opts.Poll
	if poll <= 0 {
		poll = time.Second
	}
	t := &tailer{path: path, w: w, log: log}
	if err := t.open(!opts.FromStart); err != nil {
		return err
	}
	defer t.close()
	if err := t.drain(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff = min(backoff*2, restartBackoffMax)
		}
		return wait
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		fw, err := fsnotify.NewWatcher()
		if err == nil {
			if err = fw.Add(dir); err != nil {
				_ = fw.Close()
			}
		}
		if err != nil {
			log.Warn("log watch init failed", logx.Err(err), logx.String("dir", dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}
		backoff = restartBackoffBase

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = fw.Close()
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					broken = true
					break
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					// Finish the old file before switching.
					_ = t.drain()
					t.reopenIfRotated()
				}
				if err := t.drain(); err != nil {
					log.Debug("log read failed", logx.Err(err))
				}
			case err, ok := <-fw.Errors:
				if !ok {
					broken = true
					break
				}
				if err != nil {
					log.Debug("log watch error", logx.Err(err))
					if strings.Contains(strings.ToLower(err.Error()), "closed") {
						broken = true
					}
				}
			case <-ticker.C:
				t.reopenIfRotated()
				if err := t.drain(); err != nil {
					log.Debug("log read failed", logx.Err(err))
				}
			}
		}
		_ = fw.Close()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(nextWait()):
		}
	}
}

type tailer struct {
	path string
	w    io.Writer
	log  logx.Logger

	f       *os.File
	info    os.FileInfo
	offset  int64
	partial []byte
}

func (t *tailer) open(seekEnd bool) error {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	t.f, t.info, t.offset, t.partial = f, st, 0, nil
	if seekEnd {
		t.offset = st.Size()
	}
	return nil
}

func (t *tailer) close() {
	if t.f != nil {
		_ = t.f.Close()
		t.f = nil
	}
}

// reopenIfRotated switches to a new file at path when the inode changed.
func (t *tailer) reopenIfRotated() {
	st, err := os.Stat(t.path)
	if err != nil {
		return
	}
	if t.f != nil && os.SameFile(st, t.info) {
		return
	}
	t.flushPartial()
	t.close()
	if err := t.open(false); err != nil {
		t.log.Debug("log reopen failed", logx.Err(err))
		return
	}
	t.log.Debug("log rotated; reopened", logx.String("path", t.path))
}

// drain writes complete lines appended since the last read.
func (t *tailer) drain() error {
	if t.f == nil {
		return nil
	}
	st, err := t.f.Stat()
	if err != nil {
		return err
	}
	if st.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}
	if st.Size() == t.offset {
		return nil
	}
	buf := make([]byte, st.Size()-t.offset)
	n, err := t.f.ReadAt(buf, t.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	t.offset += int64(n)
	data := append(t.partial, buf[:n]...)
	idx := bytes.LastIndexByte(data, '\n')
	if idx < 0 {
		t.partial = data
		return nil
	}
	t.partial = append([]byte(nil), data[idx+1:]...)
	_, err = t.w.Write(data[:idx+1])
	return err
}

func (t *tailer) flushPartial() {
	if len(t.partial) == 0 {
		return
	}
	_, _ = t.w.Write(append(t.partial, '\n'))
	t.partial = nil
}
