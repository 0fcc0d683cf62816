package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"xpost/internal/model"
	logx "xpost/pkg/logx"
)

// ScheduleStore keeps the job set as one JSON document.
//
// Save writes a temp file in the same directory, fsyncs it and renames it over
// the target, so readers see either the old or the new document.
type ScheduleStore struct {
	path string
	log  logx.Logger

	// afterTempWrite runs between the temp write and the rename (tests).
	afterTempWrite func(tmp string) error
}

func NewScheduleStore(path string, log logx.Logger) *ScheduleStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ScheduleStore{path: path, log: log}
}

func (s *ScheduleStore) Path() string { return s.path }

// Load reads the snapshot. A missing file is an empty schedule; a document
// that does not parse is an error.
func (s *ScheduleStore) Load(ctx context.Context) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Snapshot{Jobs: []model.Job{}}, nil
	}
	if err != nil {
		return model.Snapshot{}, wrapErr("read", s.path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return model.Snapshot{Jobs: []model.Job{}}, nil
	}
	var snap model.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return model.Snapshot{}, wrapErr("decode", s.path, err)
	}
	if snap.Jobs == nil {
		snap.Jobs = []model.Job{}
	}
	return snap, nil
}

// Save replaces the snapshot atomically.
func (s *ScheduleStore) Save(ctx context.Context, snap model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Jobs == nil {
		snap.Jobs = []model.Job{}
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return wrapErr("encode", s.path, err)
	}
	b = append(b, '\n')
	return writeFileAtomic(s.path, b, 0o600, s.afterTempWrite)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode, hook func(string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return wrapErr("mkdir", dir, err)
	}

	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return wrapErr("create temp", dir, err)
	}
	tmp := f.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return wrapErr("write", tmp, err)
	}
	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		return wrapErr("chmod", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return wrapErr("fsync", tmp, err)
	}
	if err := f.Close(); err != nil {
		return wrapErr("close", tmp, err)
	}
	if hook != nil {
		if err := hook(tmp); err != nil {
			return wrapErr("write", path, err)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		return wrapErr("rename", path, err)
	}
	renamed = true
	syncDir(dir)
	return nil
}

// syncDir makes the rename durable. Not every platform supports fsync on a
// directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
