package invoker

import (
	"hash/fnv"
	"math/rand"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// startupSpreadSchedule overrides the first activation, then delegates to base.
type startupSpreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *startupSpreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// withStartupSpread delays the first tick of an interval schedule by a random
// offset below min(every, 30s) so several hosts sharing one schedule file do not
// contend for the lock in the same second. Other schedules are returned as is.
func withStartupSpread(sched cron.Schedule, now time.Time, rng *rand.Rand) (cron.Schedule, time.Duration) {
	cd, ok := sched.(cron.ConstantDelaySchedule)
	if !ok || cd.Delay <= 0 {
		return sched, 0
	}
	spreadMax := cd.Delay
	if spreadMax > maxStartupSpread {
		spreadMax = maxStartupSpread
	}
	jitter := time.Duration(rng.Int63n(int64(spreadMax)))
	return &startupSpreadSchedule{base: sched, first: now.Add(jitter)}, jitter
}

func newSpreadRand() *rand.Rand {
	host, _ := os.Hostname()
	seed := time.Now().UnixNano() ^ int64(fnv64a(host)) ^ int64(os.Getpid())
	return rand.New(rand.NewSource(seed))
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
