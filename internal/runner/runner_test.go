package runner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xpost/internal/lock"
	"xpost/internal/model"
	"xpost/internal/storage"
	logx "xpost/pkg/logx"
)

type mockPoster struct {
	mu     sync.Mutex
	calls  []string
	PostFn func(ctx context.Context, text string) (string, json.RawMessage, error)
}

func (m *mockPoster) Post(ctx context.Context, text string) (string, json.RawMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	n := len(m.calls)
	m.mu.Unlock()
	if m.PostFn != nil {
		return m.PostFn(ctx, text)
	}
	id := "1000" + string(rune('0'+n))
	return id, json.RawMessage(`{"data":{"id":"` + id + `"}}`), nil
}

func (m *mockPoster) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockNotifier struct {
	sums   []model.RunSummary
	failed [][]model.Job
}

func (m *mockNotifier) RunFailed(_ context.Context, sum model.RunSummary, failed []model.Job) error {
	m.sums = append(m.sums, sum)
	m.failed = append(m.failed, failed)
	return nil
}

type env struct {
	dir     string
	store   *storage.ScheduleStore
	journal storage.Journal
	locks   *lock.Manager
	poster  *mockPoster
	now     time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	j, err := storage.OpenJournal(storage.Config{Driver: "file", Path: filepath.Join(dir, "journal.jsonl")}, logx.Nop())
	require.NoError(t, err)
	return &env{
		dir:     dir,
		store:   storage.NewScheduleStore(filepath.Join(dir, "schedule.json"), logx.Nop()),
		journal: j,
		locks:   lock.New(filepath.Join(dir, "runner.lock"), lock.Options{}),
		poster:  &mockPoster{},
		now:     time.Date(2030, 6, 10, 12, 0, 0, 0, time.UTC),
	}
}

func (e *env) runner(opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = func() time.Time { return e.now }
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return New(e.store, e.journal, e.locks, e.poster, opts)
}

func (e *env) seed(t *testing.T, jobs ...model.Job) {
	t.Helper()
	require.NoError(t, e.store.Save(context.Background(), model.Snapshot{Jobs: jobs}))
}

func (e *env) jobs(t *testing.T) []model.Job {
	t.Helper()
	snap, err := e.store.Load(context.Background())
	require.NoError(t, err)
	return snap.Jobs
}

func (e *env) entries(t *testing.T) (deliveries []model.Delivery, runs []model.RunSummary) {
	t.Helper()
	all, err := e.journal.ReadSince(context.Background(), time.Time{})
	require.NoError(t, err)
	for _, en := range all {
		switch v := en.(type) {
		case model.Delivery:
			deliveries = append(deliveries, v)
		case model.RunSummary:
			runs = append(runs, v)
		}
	}
	return deliveries, runs
}

func job(id, text string, at time.Time) model.Job {
	j := model.Job{ID: id, Text: text, TimeUTC: model.NewInstant(at), TZ: "UTC", Status: model.StatusPending}
	j.Rekey()
	return j
}

func TestRunOnceFutureJobIsNotDue(t *testing.T) {
	e := newEnv(t)
	e.seed(t, job("aaaaaaaaaaaa", "Hello", time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)))

	res, err := e.runner(Options{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Zero(t, res.Checked)
	assert.Zero(t, e.poster.Calls())

	assert.Equal(t, model.StatusPending, e.jobs(t)[0].Status)
	deliveries, runs := e.entries(t)
	assert.Empty(t, deliveries)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Skipped)
}

func TestRunOnceBackdatedJobIsPosted(t *testing.T) {
	e := newEnv(t)
	e.seed(t, job("aaaaaaaaaaaa", "Hello", e.now.Add(-time.Minute)))

	res, err := e.runner(Options{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, []string{"aaaaaaaaaaaa"}, res.Posted)

	got := e.jobs(t)[0]
	assert.Equal(t, model.StatusPosted, got.Status)
	assert.Equal(t, "10001", got.TweetID())
	assert.Equal(t, 1, got.AttemptCount)
	assert.Nil(t, got.LastError)

	deliveries, runs := e.entries(t)
	require.Len(t, deliveries, 1)
	assert.Equal(t, got.IdempotencyKey, deliveries[0].Key())
	assert.Equal(t, model.SourceScheduled, deliveries[0].Source)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Skipped)
	assert.Equal(t, 1, runs[0].PostedCount)

	_, err = os.Stat(e.locks.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist), "lock must be released")
}

func TestRunOnceTwinJobsPostOnce(t *testing.T) {
	e := newEnv(t)
	at := e.now.Add(-time.Minute)
	e.seed(t, job("aaaaaaaaaaaa", "Same", at), job("bbbbbbbbbbbb", "Same", at))

	res, err := e.runner(Options{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, e.poster.Calls())
	assert.ElementsMatch(t, []string{"aaaaaaaaaaaa", "bbbbbbbbbbbb"}, res.Posted)

	jobs := e.jobs(t)
	assert.Equal(t, jobs[0].TweetID(), jobs[1].TweetID())
	assert.Equal(t, 0, jobs[1].AttemptCount)

	deliveries, _ := e.entries(t)
	assert.Len(t, deliveries, 1)
}

func TestRunOnceReplaysJournaledDelivery(t *testing.T) {
	e := newEnv(t)
	j := job("aaaaaaaaaaaa", "Hello", e.now.Add(-time.Minute))
	e.seed(t, j)
	// A previous run crashed after journaling but before saving the snapshot.
	key := j.IdempotencyKey
	require.NoError(t, e.journal.Append(context.Background(), model.Delivery{ID: j.ID, IdempotencyKey: &key, TweetID: "777", PostedAt: "2030-06-10T11:59:30+00:00", Source: model.SourceScheduled, Text: j.Text}))

	for i := 0; i < 2; i++ {
		_, err := e.runner(Options{}).RunOnce(context.Background())
		require.NoError(t, err)
	}
	assert.Zero(t, e.poster.Calls())
	got := e.jobs(t)[0]
	assert.Equal(t, model.StatusPosted, got.Status)
	assert.Equal(t, "777", got.TweetID())

	deliveries, _ := e.entries(t)
	assert.Len(t, deliveries, 1)
}

func TestRunOnceMutualExclusion(t *testing.T) {
	e := newEnv(t)
	e.seed(t, job("aaaaaaaaaaaa", "Hello", e.now.Add(-time.Minute)))
	before, err := os.ReadFile(e.store.Path())
	require.NoError(t, err)

	h, _, err := e.locks.Acquire()
	require.NoError(t, err)
	require.NotNil(t, h)
	defer h.Release()

	res, err := e.runner(Options{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonRunnerActive, res.Reason)
	require.NotNil(t, res.Holder)
	assert.Equal(t, os.Getpid(), res.Holder.PID)

	after, err := os.ReadFile(e.store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = os.Stat(filepath.Join(e.dir, "journal.jsonl"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Zero(t, e.poster.Calls())
}

func TestRunOnceFailureRetriesUntilCap(t *testing.T) {
	e := newEnv(t)
	e.poster.PostFn = func(context.Context, string) (string, json.RawMessage, error) {
		return "", nil, errors.New("HTTP 503: over capacity")
	}
	notifier := &mockNotifier{}
	e.seed(t, job("aaaaaaaaaaaa", "Hello", e.now.Add(-time.Minute)))

	r := e.runner(Options{MaxAttempts: 2, Notifier: notifier})
	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []string{"aaaaaaaaaaaa"}, res.Failed)

	got := e.jobs(t)[0]
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, "HTTP 503: over capacity", got.Error())
	require.Len(t, notifier.failed, 1)
	assert.Equal(t, "aaaaaaaaaaaa", notifier.failed[0][0].ID)

	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, e.jobs(t)[0].AttemptCount)

	res, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
	assert.Equal(t, 2, e.poster.Calls())
}

type failingJournal struct {
	storage.Journal
}

func (f failingJournal) Append(ctx context.Context, e model.Entry) error {
	if _, ok := e.(model.Delivery); ok {
		return &storage.StorageError{Op: "append", Err: errors.New("disk full")}
	}
	return f.Journal.Append(ctx, e)
}

func TestRunOnceJournalFailureIsFatal(t *testing.T) {
	e := newEnv(t)
	e.seed(t,
		job("aaaaaaaaaaaa", "one", e.now.Add(-2*time.Minute)),
		job("bbbbbbbbbbbb", "two", e.now.Add(-time.Minute)),
	)
	r := New(e.store, failingJournal{e.journal}, e.locks, e.poster, Options{Now: func() time.Time { return e.now }})

	res, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, storage.IsStorageError(err))
	assert.False(t, res.OK)
	assert.Equal(t, ReasonStorageError, res.Reason)
	assert.Equal(t, 1, e.poster.Calls(), "batch stops at the first journal failure")

	jobs := e.jobs(t)
	assert.Equal(t, model.StatusPosted, jobs[0].Status)
	assert.Equal(t, model.StatusPending, jobs[1].Status)

	_, statErr := os.Stat(e.locks.Path())
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestPostNowJournalsImmediateDelivery(t *testing.T) {
	e := newEnv(t)
	d, raw, err := e.runner(Options{}).PostNow(context.Background(), "right now")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, model.SourceImmediate, d.Source)
	assert.Nil(t, d.IdempotencyKey)

	deliveries, _ := e.entries(t)
	require.Len(t, deliveries, 1)
	assert.Equal(t, d.ID, deliveries[0].ID)
	assert.Equal(t, "right now", deliveries[0].Text)
}
