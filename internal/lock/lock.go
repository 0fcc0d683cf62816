// Package lock provides the single-runner process lock.
//
// The lock is a file created with O_CREAT|O_EXCL holding the owner's pid,
// hostname and heartbeat. A crashed owner leaves the file behind; Status
// reports such a lock as stale and Manager.Release clears it.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"xpost/internal/model"
	logx "xpost/pkg/logx"
)

var (
	ErrLockHeld = errors.New("runner lock is held by another process")
	// ErrCorrupt means the lock file exists but holds no usable owner record.
	ErrCorrupt = errors.New("lock file corrupt")
)

// corruptGrace is how old an unreadable lock file must be before it is
// treated as abandoned; a younger one may still be mid-write.
const corruptGrace = 5 * time.Second

// Record is the on-disk lock content.
type Record struct {
	PID           int    `json:"pid"`
	Hostname      string `json:"hostname"`
	StartedAt     string `json:"started_at"`
	LastHeartbeat string `json:"last_heartbeat"`
}

// Info describes a lock owned by someone else.
type Info struct {
	Record
	// Alive is false only when the owner is on this host and its pid is gone,
	// or when the file held no usable record for longer than corruptGrace.
	Alive bool
	// Corrupt is set when the file could not be decoded or had no pid.
	Corrupt bool
}

// Status is the observable lock state.
type Status struct {
	Running bool
	Record  *Record
	Stale   bool
	Corrupt bool
}

// Options tunes a Manager.
type Options struct {
	// ReclaimStale lets Acquire remove a lock left by a dead process on this host.
	ReclaimStale bool
	// PollInterval is the retry step for AcquireWait; 0 means 200ms.
	PollInterval time.Duration
	Log          logx.Logger
	Now          func() time.Time
}

type Manager struct {
	path string
	opts Options
	log  logx.Logger
}

func New(path string, opts Options) *Manager {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	return &Manager{path: path, opts: opts, log: log.With(logx.String("component", "lock"))}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) now() time.Time {
	if m.opts.Now != nil {
		return m.opts.Now()
	}
	return time.Now()
}

// Held is an acquired lock.
type Held struct {
	m   *Manager
	rec Record
}

func (h *Held) Record() Record { return h.rec }

// Acquire tries once to take the lock. When it is held by someone else it
// returns a nil Held and the current owner.
func (m *Manager) Acquire() (*Held, *Info, error) {
	h, info, err := m.tryCreate()
	if err != nil || h != nil {
		return h, info, err
	}
	if !m.opts.ReclaimStale || info == nil || info.Alive {
		return nil, info, nil
	}
	reclaimed, err := m.reclaim(*info)
	if err != nil {
		return nil, info, err
	}
	if !reclaimed {
		return nil, info, nil
	}
	m.log.Warn("reclaimed stale runner lock", logx.Bool("corrupt", info.Corrupt),
		logx.Int("dead_pid", info.PID), logx.String("started_at", info.StartedAt))
	return m.tryCreate()
}

// AcquireWait polls Acquire until it succeeds, wait elapses or ctx ends.
func (m *Manager) AcquireWait(ctx context.Context, wait time.Duration) (*Held, error) {
	deadline := time.Now().Add(wait)
	for {
		h, info, err := m.Acquire()
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
		if wait <= 0 || !time.Now().Before(deadline) {
			return nil, heldError(info)
		}
		t := time.NewTimer(m.opts.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func heldError(info *Info) error {
	if info == nil {
		return ErrLockHeld
	}
	return fmt.Errorf("%w (pid %d on %s since %s)", ErrLockHeld, info.PID, info.Hostname, info.StartedAt)
}

func (m *Manager) tryCreate() (*Held, *Info, error) {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("lock dir: %w", err)
	}
	host, _ := os.Hostname()
	ts := model.FormatISO(m.now())
	rec := Record{PID: os.Getpid(), Hostname: host, StartedAt: ts, LastHeartbeat: ts}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		cur, rerr := m.Read()
		if errors.Is(rerr, ErrCorrupt) {
			return nil, &Info{Corrupt: true, Alive: !m.abandoned()}, nil
		}
		if rerr != nil || cur == nil {
			// Unreadable or vanished between create and read: report as held.
			return nil, &Info{Alive: true}, nil
		}
		return nil, &Info{Record: *cur, Alive: m.alive(*cur)}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create lock: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(m.path)
		return nil, nil, fmt.Errorf("write lock: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(m.path)
		return nil, nil, fmt.Errorf("sync lock: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(m.path)
		return nil, nil, fmt.Errorf("close lock: %w", err)
	}
	return &Held{m: m, rec: rec}, nil, nil
}

// reclaim removes the lock file if it is still in the state info describes
// and that state is still dead.
func (m *Manager) reclaim(info Info) (bool, error) {
	unlock, err := flockFile(m.path + ".reclaim")
	if err != nil {
		return false, fmt.Errorf("reclaim guard: %w", err)
	}
	defer unlock()

	cur, err := m.Read()
	switch {
	case errors.Is(err, ErrCorrupt):
		if !info.Corrupt || !m.abandoned() {
			return false, nil
		}
	case err != nil || cur == nil:
		// Gone already: a plain retry will tell.
		return cur == nil && err == nil, nil
	case info.Corrupt || *cur != info.Record || m.alive(*cur):
		return false, nil
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove stale lock: %w", err)
	}
	return true, nil
}

func (m *Manager) alive(rec Record) bool {
	host, _ := os.Hostname()
	if rec.Hostname != "" && host != "" && rec.Hostname != host {
		// Cannot probe another machine.
		return true
	}
	return pidAlive(rec.PID)
}

// Read returns the current lock record, or nil when there is no lock.
func (m *Manager) Read() (*Record, error) {
	b, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.PID <= 0 {
		return nil, fmt.Errorf("%w: no pid", ErrCorrupt)
	}
	return &rec, nil
}

// abandoned reports whether the lock file was last written more than
// corruptGrace ago.
func (m *Manager) abandoned() bool {
	st, err := os.Stat(m.path)
	if err != nil {
		return false
	}
	return time.Since(st.ModTime()) >= corruptGrace
}

// Status reports whether a live runner holds the lock. A corrupt file is
// Running while it may still be mid-write and Stale afterwards.
func (m *Manager) Status() (Status, error) {
	rec, err := m.Read()
	if errors.Is(err, ErrCorrupt) {
		gone := m.abandoned()
		return Status{Running: !gone, Stale: gone, Corrupt: true}, nil
	}
	if err != nil {
		return Status{}, err
	}
	if rec == nil {
		return Status{}, nil
	}
	alive := m.alive(*rec)
	return Status{Running: alive, Record: rec, Stale: !alive}, nil
}

// Release removes the lock file regardless of owner. Missing is fine.
func (m *Manager) Release() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Heartbeat refreshes last_heartbeat if the lock still belongs to this owner.
func (h *Held) Heartbeat() error {
	if h == nil {
		return nil
	}
	cur, err := h.m.Read()
	if err != nil || cur == nil {
		return err
	}
	if cur.PID != h.rec.PID {
		return nil
	}
	cur.LastHeartbeat = model.FormatISO(h.m.now())
	b, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	tmp := h.m.path + ".hb"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, h.m.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	h.rec = *cur
	return nil
}

// Release drops the lock. Safe to call more than once.
func (h *Held) Release() error {
	if h == nil {
		return nil
	}
	return h.m.Release()
}
