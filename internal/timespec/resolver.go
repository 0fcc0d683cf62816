package timespec

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
)

// DefaultLeadTime is the minimum distance between now and a newly scheduled post.
const DefaultLeadTime = 5 * time.Minute

// minWindowRemainder is the smallest usable tail of a window before rolling to
// the next day's occurrence.
const minWindowRemainder = 60 * time.Second

// Kind records which grammar matched.
type Kind string

const (
	KindWindow   Kind = "window"
	KindClock    Kind = "clock"
	KindRelative Kind = "relative"
	KindAbsolute Kind = "absolute"
)

// Resolution is the outcome of resolving a time expression.
type Resolution struct {
	UTC  time.Time
	TZ   string
	Kind Kind
	// Window is set for KindWindow.
	Window *Window
}

// Resolver resolves time expressions against a clock.
//
// The zero value is usable: it reads the wall clock, uses DefaultTZ and
// DefaultLeadTime, and seeds its own random source.
type Resolver struct {
	// DefaultTZ is the zone for input without an explicit override.
	DefaultTZ string
	// LeadTime is the scheduling margin; 0 means DefaultLeadTime.
	LeadTime time.Duration
	// Now overrides the clock (tests).
	Now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Resolver; rng may be nil.
func New(defaultTZ string, leadTime time.Duration, rng *rand.Rand) *Resolver {
	return &Resolver{DefaultTZ: defaultTZ, LeadTime: leadTime, rng: rng}
}

var (
	reDayOffset = regexp.MustCompile(`(?i)^\s*(\d+)\s*d\s+(.+?)\s*$`)
	reClock     = regexp.MustCompile(`(?i)^\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*$`)
	reRelative  = regexp.MustCompile(`(?i)^\s*(\d+)\s*([smhd])\s*$`)
	reNamedDay  = regexp.MustCompile(`(?i)^\s*(today|tomorrow)\s+(.+?)\s*$`)
)

const maxRelative = 3650 * 24 * time.Hour

var relativeUnits = map[string]time.Duration{"s": time.Second, "m": time.Minute, "h": time.Hour, "d": 24 * time.Hour}

// parseRelative matches "{N}{s|m|h|d}".
func parseRelative(s string) (time.Duration, bool, error) {
	m := reRelative.FindStringSubmatch(s)
	if m == nil {
		return 0, false, nil
	}
	unit := relativeUnits[strings.ToLower(m[2])]
	n, err := strconv.Atoi(m[1])
	if err != nil || time.Duration(n) > maxRelative/unit {
		return 0, true, fmt.Errorf("%w: bad duration %q", ErrInvalidTimeSpec, s)
	}
	return time.Duration(n) * unit, true, nil
}

// parseClock matches "18:00", "9am" and "9:30pm". A bare hour needs am/pm.
func parseClock(s string) (hh, mm int, ok bool, err error) {
	m := reClock.FindStringSubmatch(s)
	if m == nil || (m[2] == "" && m[3] == "") {
		return 0, 0, false, nil
	}
	hh, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		mm, _ = strconv.Atoi(m[2])
	}
	switch strings.ToLower(m[3]) {
	case "am", "pm":
		if hh < 1 || hh > 12 {
			return 0, 0, true, fmt.Errorf("%w: invalid clock time %q", ErrInvalidTimeSpec, s)
		}
		hh %= 12
		if strings.EqualFold(m[3], "pm") {
			hh += 12
		}
	}
	if hh > 23 || mm > 59 {
		return 0, 0, true, fmt.Errorf("%w: invalid clock time %q", ErrInvalidTimeSpec, s)
	}
	return hh, mm, true, nil
}

func (r *Resolver) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) lead() time.Duration {
	if r == nil || r.LeadTime <= 0 {
		return DefaultLeadTime
	}
	return r.LeadTime
}

func (r *Resolver) zoneName(override string) string {
	if s := strings.TrimSpace(override); s != "" {
		return s
	}
	if r != nil && strings.TrimSpace(r.DefaultTZ) != "" {
		return strings.TrimSpace(r.DefaultTZ)
	}
	return DefaultTZ
}

// DisplayTZ is the zone name used when no override is given.
func (r *Resolver) DisplayTZ() string { return r.zoneName("") }

func (r *Resolver) int63n(n int64) int64 {
	if n <= 1 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng == nil {
		host, _ := os.Hostname()
		h := fnv.New64a()
		_, _ = h.Write([]byte(host))
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(h.Sum64()) ^ int64(os.Getpid())))
	}
	return r.rng.Int63n(n)
}

// Resolve turns spec into a UTC instant. tzOverride, when non-empty, is the
// zone for interpreting wall-clock input.
func (r *Resolver) Resolve(spec, tzOverride string) (Resolution, error) {
	return r.resolveAt(spec, tzOverride, r.now())
}

// ResolveForScheduling is Resolve plus the lead time check.
func (r *Resolver) ResolveForScheduling(spec, tzOverride string) (Resolution, error) {
	now := r.now()
	res, err := r.resolveAt(spec, tzOverride, now)
	if err != nil {
		return Resolution{}, err
	}
	if err := r.checkLead(res.UTC, now); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// CheckLead reports ErrTooSoon when t is earlier than now plus the lead time.
func (r *Resolver) CheckLead(t time.Time) error { return r.checkLead(t, r.now()) }

func (r *Resolver) checkLead(t, now time.Time) error {
	if earliest := now.Add(r.lead()); t.Before(earliest) {
		return fmt.Errorf("%w: %s is before %s", ErrTooSoon,
			t.UTC().Format(time.RFC3339), earliest.UTC().Format(time.RFC3339))
	}
	return nil
}

func (r *Resolver) resolveAt(spec, tzOverride string, now time.Time) (Resolution, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Resolution{}, fmt.Errorf("%w: empty", ErrInvalidTimeSpec)
	}

	if d, ok, err := parseRelative(raw); ok {
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{UTC: now.Add(d).UTC().Truncate(time.Second), TZ: r.zoneName(tzOverride), Kind: KindRelative}, nil
	}

	days := 0
	rest := raw
	if m := reDayOffset.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > 3650 {
			return Resolution{}, fmt.Errorf("%w: bad day offset %q", ErrInvalidTimeSpec, m[1])
		}
		days, rest = n, m[2]
	}

	tzName := r.zoneName(tzOverride)
	loc := LoadZone(tzName)

	if w, ok := LookupWindow(rest); ok {
		var explicit *time.Location
		if strings.TrimSpace(tzOverride) != "" {
			explicit = loc
		}
		at, err := r.pickInWindow(w, days, explicit, now)
		if err != nil {
			return Resolution{}, err
		}
		used := tzName
		if explicit == nil {
			used = w.Region.Zone
		}
		return Resolution{UTC: at.UTC(), TZ: used, Kind: KindWindow, Window: &w}, nil
	}

	if m := reNamedDay.FindStringSubmatch(rest); m != nil && days == 0 {
		hh, mm, ok, err := parseClock(m[2])
		if err != nil {
			return Resolution{}, err
		}
		if !ok {
			return Resolution{}, fmt.Errorf("%w: %q needs a clock time", ErrInvalidTimeSpec, raw)
		}
		local := now.In(loc)
		target := time.Date(local.Year(), local.Month(), local.Day(), hh, mm, 0, 0, loc)
		if strings.EqualFold(m[1], "tomorrow") {
			target = time.Date(local.Year(), local.Month(), local.Day()+1, hh, mm, 0, 0, loc)
		}
		return Resolution{UTC: target.UTC(), TZ: tzName, Kind: KindClock}, nil
	}

	hh, mm, ok, err := parseClock(rest)
	if err != nil {
		return Resolution{}, err
	}
	if ok {
		local := now.In(loc)
		target := time.Date(local.Year(), local.Month(), local.Day(), hh, mm, 0, 0, loc)
		if !target.After(local) {
			target = target.AddDate(0, 0, 1)
		}
		if days >= 2 {
			target = target.AddDate(0, 0, days-1)
		}
		return Resolution{UTC: target.UTC(), TZ: tzName, Kind: KindClock}, nil
	}

	t, err := dateparse.ParseIn(rest, loc)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %q: %v", ErrInvalidTimeSpec, raw, err)
	}
	if days > 0 {
		t = t.AddDate(0, 0, days)
	}
	return Resolution{UTC: t.UTC(), TZ: tzName, Kind: KindAbsolute}, nil
}

// pickInWindow draws a random second inside the chosen window occurrence.
//
// With explicit == nil the occurrence is the window-zone day today+days. With an
// explicit caller zone the occurrence is clipped to the caller's local day
// today+days instead.
func (r *Resolver) pickInWindow(w Window, days int, explicit *time.Location, now time.Time) (time.Time, error) {
	floor := now.Add(r.lead())
	wloc := w.Location()

	if explicit == nil || sameZone(explicit, wloc) {
		day := midnight(now, wloc).AddDate(0, 0, days)
		for i := 0; i < 3; i++ {
			start, end := w.OnDayOf(day.Add(12 * time.Hour))
			earliest := start
			if earliest.Before(floor) {
				earliest = floor
			}
			if at, ok := r.draw(earliest, end); ok {
				return at, nil
			}
			day = day.AddDate(0, 0, 1)
		}
		return time.Time{}, fmt.Errorf("%w: no usable %s window", ErrInvalidTimeSpec, w)
	}

	// Caller-day clipping; roll forward a day when nothing usable is left.
	localDay := midnight(now, explicit).AddDate(0, 0, days)
	for i := 0; i < 3; i++ {
		dayStart := localDay
		dayEnd := localDay.AddDate(0, 0, 1)
		for _, probe := range []time.Time{dayStart.Add(-24 * time.Hour), dayStart, dayEnd} {
			start, end := w.OnDayOf(probe.Add(12 * time.Hour))
			if start.Before(dayStart) {
				start = dayStart
			}
			if end.After(dayEnd) {
				end = dayEnd
			}
			if start.Before(floor) {
				start = floor
			}
			if at, ok := r.draw(start, end); ok {
				return at, nil
			}
		}
		localDay = dayEnd
	}
	return time.Time{}, fmt.Errorf("%w: no usable %s window", ErrInvalidTimeSpec, w)
}

// draw returns a uniformly random whole second in [lo, hi), or false when less
// than minWindowRemainder is available.
func (r *Resolver) draw(lo, hi time.Time) (time.Time, bool) {
	if whole := lo.Truncate(time.Second); !whole.Equal(lo) {
		lo = whole.Add(time.Second)
	}
	if hi.Sub(lo) < minWindowRemainder {
		return time.Time{}, false
	}
	span := int64(hi.Sub(lo) / time.Second)
	return lo.Add(time.Duration(r.int63n(span)) * time.Second), true
}

// ResolveSince parses a history cutoff: "{N}{s|m|h|d}" relative to now, or an
// absolute time (UTC when naive). Empty input returns the zero time.
func (r *Resolver) ResolveSince(spec string) (time.Time, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return time.Time{}, nil
	}
	now := r.now()
	if d, ok, err := parseRelative(spec); ok {
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(-d).UTC(), nil
	}
	t, err := dateparse.ParseIn(spec, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidTimeSpec, spec, err)
	}
	return t.UTC(), nil
}
