// Package runner is the delivery engine: one run-once batch posts every due
// job under the runner lock, journaling each delivery before marking the job.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"xpost/internal/lock"
	"xpost/internal/model"
	"xpost/internal/storage"
	logx "xpost/pkg/logx"
)

const (
	ReasonRunnerActive = "runner_active"
	ReasonLockError    = "lock_error"
	ReasonStorageError = "storage_error"
)

// DefaultMaxAttempts caps automatic retries of failed jobs.
const DefaultMaxAttempts = 3

// Poster publishes a post and returns the remote id.
type Poster interface {
	Post(ctx context.Context, text string) (id string, raw json.RawMessage, err error)
}

// Notifier is told about runs that had failures.
type Notifier interface {
	RunFailed(ctx context.Context, sum model.RunSummary, failed []model.Job) error
}

// Store is the snapshot persistence the runner needs.
type Store interface {
	Load(ctx context.Context) (model.Snapshot, error)
	Save(ctx context.Context, snap model.Snapshot) error
}

// Locker hands out the runner lock.
type Locker interface {
	Acquire() (*lock.Held, *lock.Info, error)
	Status() (lock.Status, error)
}

type Options struct {
	// MaxAttempts bounds automatic retries of failed jobs; 0 means unlimited.
	MaxAttempts int
	Notifier    Notifier
	Log         logx.Logger
	Now         func() time.Time
}

// Result summarizes one invocation.
type Result struct {
	OK        bool       `json:"ok"`
	Reason    string     `json:"reason,omitempty"`
	Holder    *lock.Info `json:"info,omitempty"`
	Checked   int        `json:"checked"`
	Posted    []string   `json:"posted"`
	Failed    []string   `json:"failed"`
	Recovered []string   `json:"recovered,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type Runner struct {
	store   Store
	journal storage.Journal
	locks   Locker
	poster  Poster
	opts    Options
	log     logx.Logger
}

func New(store Store, journal storage.Journal, locks Locker, poster Poster, opts Options) *Runner {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	return &Runner{
		store:   store,
		journal: journal,
		locks:   locks,
		poster:  poster,
		opts:    opts,
		log:     log.With(logx.String("component", "runner")),
	}
}

func (r *Runner) now() time.Time {
	if r.opts.Now != nil {
		return r.opts.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Runner) stamp() string { return model.FormatISO(r.now()) }

// RunOnce posts every due job. Lock contention is a normal result
// (Reason == ReasonRunnerActive); persistence failures are returned as errors.
func (r *Runner) RunOnce(ctx context.Context) (res Result, err error) {
	held, info, err := r.locks.Acquire()
	if err != nil {
		r.log.Error("acquire runner lock failed", logx.Err(err))
		return Result{OK: false, Reason: ReasonLockError, Message: err.Error()}, err
	}
	if held == nil {
		r.log.Info("runner already active", logx.Any("holder", info))
		return Result{OK: false, Reason: ReasonRunnerActive, Holder: info}, nil
	}
	defer func() {
		if rerr := held.Release(); rerr != nil {
			r.log.Warn("release runner lock failed", logx.Err(rerr))
		}
	}()

	startedAt := r.stamp()
	r.heartbeat(held)

	snap, err := r.store.Load(ctx)
	if err != nil {
		r.log.Error("load schedule failed", logx.Err(err))
		return Result{Reason: ReasonStorageError, Message: err.Error()}, err
	}

	now := r.now()
	due := make([]int, 0)
	for i := range snap.Jobs {
		if snap.Jobs[i].Due(now, r.opts.MaxAttempts) {
			due = append(due, i)
		}
	}

	res = Result{Checked: len(due), Posted: []string{}, Failed: []string{}}
	var failedJobs []model.Job
	var fatal error

	for _, i := range due {
		if ctx.Err() != nil {
			r.log.Warn("run interrupted", logx.Err(ctx.Err()))
			break
		}
		j := &snap.Jobs[i]
		ok, err := r.deliver(ctx, j)
		r.heartbeat(held)
		if err != nil {
			fatal = err
			break
		}
		if ok {
			res.Posted = append(res.Posted, j.ID)
		} else {
			res.Failed = append(res.Failed, j.ID)
			failedJobs = append(failedJobs, *j)
		}
	}

	// Progress is persisted even when the caller cancelled.
	saveCtx := context.WithoutCancel(ctx)
	if err := r.store.Save(saveCtx, snap); err != nil {
		r.log.Error("save schedule failed", logx.Err(err))
		return Result{Reason: ReasonStorageError, Checked: res.Checked, Posted: res.Posted, Failed: res.Failed, Message: err.Error()}, errors.Join(fatal, err)
	}
	if fatal != nil {
		r.log.Error("journal append failed", logx.Err(fatal))
		res.Reason = ReasonStorageError
		res.Message = fatal.Error()
		return res, fatal
	}

	res.OK = true
	res.Message = fmt.Sprintf("posted=%d failed=%d checked=%d", len(res.Posted), len(res.Failed), res.Checked)
	sum := model.RunSummary{
		StartedAt:   startedAt,
		PostedAt:    r.stamp(),
		OK:          true,
		Checked:     res.Checked,
		PostedCount: len(res.Posted),
		FailedCount: len(res.Failed),
		PostedIDs:   res.Posted,
		FailedIDs:   res.Failed,
		Message:     res.Message,
		Skipped:     res.Checked == 0,
	}
	if err := r.journal.Append(saveCtx, sum); err != nil {
		r.log.Error("append run summary failed", logx.Err(err))
		res.OK = false
		res.Reason = ReasonStorageError
		return res, err
	}
	r.heartbeat(held)

	fields := []logx.Field{
		logx.Int("checked", res.Checked),
		logx.Int("posted", len(res.Posted)),
		logx.Int("failed", len(res.Failed)),
	}
	if res.Checked == 0 {
		r.log.Debug("run finished", fields...)
	} else {
		r.log.Info("run finished", fields...)
	}

	if len(failedJobs) > 0 && r.opts.Notifier != nil {
		if err := r.opts.Notifier.RunFailed(saveCtx, sum, failedJobs); err != nil {
			r.log.Warn("failure notification not sent", logx.Err(err))
		}
	}
	return res, nil
}

// deliver handles one due job. It returns whether the job ended up posted; a
// non-nil error is a journal failure and aborts the batch.
func (r *Runner) deliver(ctx context.Context, j *model.Job) (bool, error) {
	log := r.log.With(logx.String("job_id", j.ID))

	if j.IdempotencyKey != "" {
		rec, err := r.journal.FindByIdempotencyKey(ctx, j.IdempotencyKey)
		if err != nil {
			return false, err
		}
		if rec != nil && rec.TweetID != "" {
			j.Status = model.StatusPosted
			j.PostedTweetID = model.Ptr(rec.TweetID)
			j.LastError = nil
			j.UpdatedAt = model.NewInstant(r.now())
			log.Info("job already delivered; marked from journal", logx.String("tweet_id", rec.TweetID))
			return true, nil
		}
	}

	j.Status = model.StatusInProgress
	j.AttemptCount++
	j.UpdatedAt = model.NewInstant(r.now())

	tweetID, _, err := r.poster.Post(ctx, j.Text)
	if err != nil {
		j.Status = model.StatusFailed
		j.LastError = model.Ptr(err.Error())
		j.UpdatedAt = model.NewInstant(r.now())
		log.Warn("post failed", logx.Int("attempt", j.AttemptCount), logx.Err(err))
		return false, nil
	}

	key := j.IdempotencyKey
	d := model.Delivery{
		ID:             j.ID,
		IdempotencyKey: &key,
		TweetID:        tweetID,
		PostedAt:       r.stamp(),
		Source:         model.SourceScheduled,
		Text:           j.Text,
	}
	jerr := r.journal.Append(context.WithoutCancel(ctx), d)

	// The post went out either way; recording it keeps the next run from repeating it.
	j.Status = model.StatusPosted
	j.PostedTweetID = model.Ptr(tweetID)
	j.LastError = nil
	j.UpdatedAt = model.NewInstant(r.now())
	if jerr != nil {
		return true, fmt.Errorf("journal delivery of %s: %w", j.ID, jerr)
	}
	log.Info("posted", logx.String("tweet_id", tweetID), logx.Int("attempt", j.AttemptCount))
	return true, nil
}

func (r *Runner) heartbeat(h *lock.Held) {
	if err := h.Heartbeat(); err != nil {
		r.log.Debug("heartbeat failed", logx.Err(err))
	}
}

// PostNow publishes text immediately and journals it with a fresh id and no
// idempotency key.
func (r *Runner) PostNow(ctx context.Context, text string) (model.Delivery, json.RawMessage, error) {
	tweetID, raw, err := r.poster.Post(ctx, text)
	if err != nil {
		return model.Delivery{}, nil, err
	}
	d := model.Delivery{
		ID:       model.NewJobID(),
		TweetID:  tweetID,
		PostedAt: r.stamp(),
		Source:   model.SourceImmediate,
		Text:     text,
	}
	if err := r.journal.Append(context.WithoutCancel(ctx), d); err != nil {
		return d, raw, fmt.Errorf("posted %s but journaling failed: %w", tweetID, err)
	}
	r.log.Info("posted immediately", logx.String("tweet_id", tweetID))
	return d, raw, nil
}

// Status reports the runner lock state.
func (r *Runner) Status() (lock.Status, error) {
	return r.locks.Status()
}
