// Package jobs is the lifecycle API over the schedule: create, list, get,
// update, remove and retry.
//
// Writes take the runner lock (with a bounded wait) so they never interleave
// with a run-once batch rewriting the same snapshot.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"xpost/internal/lock"
	"xpost/internal/model"
	"xpost/internal/timespec"
	logx "xpost/pkg/logx"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrEmptyText    = errors.New("post text is empty")
	ErrInvalidState = errors.New("job is not in a state that allows this")
)

// Store is the snapshot persistence the service needs.
type Store interface {
	Load(ctx context.Context) (model.Snapshot, error)
	Save(ctx context.Context, snap model.Snapshot) error
}

// Locker serializes writers.
type Locker interface {
	AcquireWait(ctx context.Context, wait time.Duration) (*lock.Held, error)
}

type Options struct {
	// LockWait bounds how long a write waits for a running batch.
	LockWait time.Duration
	Log      logx.Logger
	Now      func() time.Time
}

type Service struct {
	store    Store
	locker   Locker
	resolver *timespec.Resolver
	opts     Options
	log      logx.Logger
}

func New(store Store, locker Locker, resolver *timespec.Resolver, opts Options) *Service {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if resolver == nil {
		resolver = &timespec.Resolver{}
	}
	return &Service{store: store, locker: locker, resolver: resolver, opts: opts, log: log.With(logx.String("component", "jobs"))}
}

func (s *Service) now() time.Time {
	if s.opts.Now != nil {
		return s.opts.Now().UTC()
	}
	return time.Now().UTC()
}

// UpdateParams carries optional changes; nil fields are left alone.
type UpdateParams struct {
	Text *string
	At   *string
	TZ   *string
}

// withLock runs fn while holding the runner lock.
func (s *Service) withLock(ctx context.Context, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	h, err := s.locker.AcquireWait(ctx, s.opts.LockWait)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := h.Release(); rerr != nil {
			s.log.Warn("release lock failed", logx.Err(rerr))
		}
	}()
	return fn()
}

// Create schedules a new post.
func (s *Service) Create(ctx context.Context, text, at, tz string) (model.Job, error) {
	if strings.TrimSpace(text) == "" {
		return model.Job{}, ErrEmptyText
	}
	res, err := s.resolver.ResolveForScheduling(at, tz)
	if err != nil {
		return model.Job{}, err
	}
	return s.create(ctx, text, res)
}

// Preview resolves at/tz the way Create would, without storing anything.
func (s *Service) Preview(at, tz string) (timespec.Resolution, error) {
	return s.resolver.ResolveForScheduling(at, tz)
}

// CreateResolved stores a job for a previously previewed resolution. The lead
// time is checked again since the preview may be stale.
func (s *Service) CreateResolved(ctx context.Context, text string, res timespec.Resolution) (model.Job, error) {
	if strings.TrimSpace(text) == "" {
		return model.Job{}, ErrEmptyText
	}
	if err := s.resolver.CheckLead(res.UTC); err != nil {
		return model.Job{}, err
	}
	return s.create(ctx, text, res)
}

func (s *Service) create(ctx context.Context, text string, res timespec.Resolution) (model.Job, error) {
	now := model.NewInstant(s.now())
	job := model.Job{
		ID:           model.NewJobID(),
		Text:         text,
		TimeUTC:      model.NewInstant(res.UTC),
		TZ:           res.TZ,
		Status:       model.StatusPending,
		AttemptCount: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	job.Rekey()

	err := s.withLock(ctx, func() error {
		snap, err := s.store.Load(ctx)
		if err != nil {
			return err
		}
		snap.Jobs = append(snap.Jobs, job)
		return s.store.Save(ctx, snap)
	})
	if err != nil {
		return model.Job{}, err
	}
	s.log.Info("job scheduled",
		logx.String("job_id", job.ID),
		logx.String("time_utc", job.TimeUTC.String()),
		logx.String("kind", string(res.Kind)))
	return job, nil
}

// List returns jobs ordered by scheduled time. since filters by time_utc and
// accepts "{N}{s|m|h|d}" or an absolute time; empty returns everything.
func (s *Service) List(ctx context.Context, since string) ([]model.Job, error) {
	cutoff, err := s.resolver.ResolveSince(since)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Job, 0, len(snap.Jobs))
	for _, j := range snap.Jobs {
		if !cutoff.IsZero() && j.TimeUTC.Before(cutoff) {
			continue
		}
		out = append(out, j)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].TimeUTC.Before(out[b].TimeUTC.Time) })
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Job, bool, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return model.Job{}, false, err
	}
	if i := snap.Find(id); i >= 0 {
		return snap.Jobs[i], true, nil
	}
	return model.Job{}, false, nil
}

// Update applies p to the job. A new time without a zone is anchored to the
// configured default zone rather than the job's previous one.
func (s *Service) Update(ctx context.Context, id string, p UpdateParams) (model.Job, error) {
	if p.Text != nil && strings.TrimSpace(*p.Text) == "" {
		return model.Job{}, ErrEmptyText
	}

	var res timespec.Resolution
	if p.At != nil {
		tz := ""
		if p.TZ != nil {
			tz = *p.TZ
		}
		var err error
		res, err = s.resolver.ResolveForScheduling(*p.At, tz)
		if err != nil {
			return model.Job{}, err
		}
		if tz == "" {
			res.TZ = s.resolver.DisplayTZ()
		}
	}

	var out model.Job
	err := s.withLock(ctx, func() error {
		snap, err := s.store.Load(ctx)
		if err != nil {
			return err
		}
		i := snap.Find(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		j := &snap.Jobs[i]
		if j.Status == model.StatusPosted || j.Status == model.StatusInProgress {
			return fmt.Errorf("%w: %s is %s", ErrInvalidState, id, j.Status)
		}
		if p.Text != nil {
			j.Text = *p.Text
		}
		if p.At != nil {
			j.TimeUTC = model.NewInstant(res.UTC)
			j.TZ = res.TZ
		} else if p.TZ != nil && strings.TrimSpace(*p.TZ) != "" {
			// Display zone only.
			j.TZ = strings.TrimSpace(*p.TZ)
		}
		j.Rekey()
		j.UpdatedAt = model.NewInstant(s.now())
		out = *j
		return s.store.Save(ctx, snap)
	})
	if err != nil {
		return model.Job{}, err
	}
	s.log.Info("job updated", logx.String("job_id", id), logx.String("time_utc", out.TimeUTC.String()))
	return out, nil
}

// Remove deletes the job; it reports whether anything was removed.
func (s *Service) Remove(ctx context.Context, id string) (bool, error) {
	removed := false
	err := s.withLock(ctx, func() error {
		snap, err := s.store.Load(ctx)
		if err != nil {
			return err
		}
		kept := snap.Jobs[:0]
		for _, j := range snap.Jobs {
			if j.ID == id {
				removed = true
				continue
			}
			kept = append(kept, j)
		}
		if !removed {
			return nil
		}
		snap.Jobs = kept
		return s.store.Save(ctx, snap)
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.log.Info("job removed", logx.String("job_id", id))
	}
	return removed, nil
}

// Retry puts a failed (or interrupted in_progress) job back to pending so the
// next run picks it up regardless of the attempt cap.
func (s *Service) Retry(ctx context.Context, id string) (model.Job, error) {
	var out model.Job
	err := s.withLock(ctx, func() error {
		snap, err := s.store.Load(ctx)
		if err != nil {
			return err
		}
		i := snap.Find(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		j := &snap.Jobs[i]
		if j.Status != model.StatusFailed && j.Status != model.StatusInProgress {
			return fmt.Errorf("%w: %s is %s", ErrInvalidState, id, j.Status)
		}
		j.Status = model.StatusPending
		j.LastError = nil
		j.UpdatedAt = model.NewInstant(s.now())
		out = *j
		return s.store.Save(ctx, snap)
	})
	if err != nil {
		return model.Job{}, err
	}
	s.log.Info("job reset to pending", logx.String("job_id", id), logx.Int("attempts", out.AttemptCount))
	return out, nil
}
