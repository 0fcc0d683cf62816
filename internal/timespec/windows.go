package timespec

import (
	"strings"
	"time"
	"unicode"
)

// Region is a named audience with its own wall clock.
type Region struct {
	Name    string
	Zone    string
	Aliases []string
}

// Slot is a time-of-day interval [Start, End) in minutes after local midnight.
type Slot struct {
	Name       string
	Start, End int
}

// Window is one region's slot, e.g. "EU morning".
type Window struct {
	Region Region
	Slot   Slot
}

var regions = []Region{
	{Name: "EU", Zone: "Europe/Berlin", Aliases: []string{"eu", "europe", "berlin", "cet"}},
	{Name: "NY", Zone: "America/New_York", Aliases: []string{"ny", "nyc", "newyork", "us east", "useast", "est"}},
	{Name: "CA", Zone: "America/Los_Angeles", Aliases: []string{"ca", "la", "sf", "california", "uswest", "us west", "pst"}},
	{Name: "Asia", Zone: "Asia/Hong_Kong", Aliases: []string{"asia", "hk", "hongkong", "apac", "hkt"}},
}

func hm(h, m int) int { return h*60 + m }

// catalog is the curated set of posting windows in display order. Hours are
// local to the window's region.
var catalog = []Window{
	{Region: regions[1], Slot: Slot{Name: "evening", Start: hm(18, 0), End: hm(21, 0)}},
	{Region: regions[2], Slot: Slot{Name: "evening", Start: hm(18, 0), End: hm(22, 0)}},
	{Region: regions[3], Slot: Slot{Name: "morning", Start: hm(13, 0), End: hm(16, 0)}},
	{Region: regions[0], Slot: Slot{Name: "morning", Start: hm(8, 0), End: hm(11, 0)}},
	{Region: regions[0], Slot: Slot{Name: "noon", Start: hm(13, 0), End: hm(14, 0)}},
	{Region: regions[1], Slot: Slot{Name: "morning", Start: hm(8, 0), End: hm(11, 0)}},
	{Region: regions[2], Slot: Slot{Name: "morning", Start: hm(8, 0), End: hm(12, 0)}},
	{Region: regions[2], Slot: Slot{Name: "noon", Start: hm(12, 0), End: hm(15, 0)}},
}

var regionIndex = func() map[string]Region {
	m := make(map[string]Region)
	for _, r := range regions {
		m[normalizeLabel(r.Name)] = r
		for _, a := range r.Aliases {
			m[normalizeLabel(a)] = r
		}
	}
	return m
}()

// normalizeLabel lowercases and drops everything but letters and digits.
func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Windows returns the posting windows in display order.
func Windows() []Window { return append([]Window(nil), catalog...) }

// LookupRegion resolves a region name or alias.
func LookupRegion(name string) (Region, bool) {
	r, ok := regionIndex[normalizeLabel(name)]
	return r, ok
}

// LookupWindow resolves "<region> <slot>", e.g. "us east evening".
func LookupWindow(label string) (Window, bool) {
	fields := strings.Fields(strings.TrimSpace(label))
	if len(fields) < 2 {
		return Window{}, false
	}
	slotName := strings.ToLower(fields[len(fields)-1])
	r, ok := LookupRegion(strings.Join(fields[:len(fields)-1], " "))
	if !ok {
		return Window{}, false
	}
	for _, w := range catalog {
		if w.Region.Name == r.Name && w.Slot.Name == slotName {
			return w, true
		}
	}
	return Window{}, false
}

func (w Window) String() string { return w.Region.Name + " " + w.Slot.Name }

func (w Window) Location() *time.Location { return LoadZone(w.Region.Zone) }

// On returns the window occurrence on the given calendar day of the window's zone.
func (w Window) On(year int, month time.Month, day int) (start, end time.Time) {
	loc := w.Location()
	start = time.Date(year, month, day, w.Slot.Start/60, w.Slot.Start%60, 0, 0, loc)
	end = time.Date(year, month, day, w.Slot.End/60, w.Slot.End%60, 0, 0, loc)
	return start, end
}

// OnDayOf returns the occurrence on t's calendar day in the window's zone.
func (w Window) OnDayOf(t time.Time) (start, end time.Time) {
	y, m, d := t.In(w.Location()).Date()
	return w.On(y, m, d)
}

// Contains reports whether t falls inside the occurrence on its own local day.
func (w Window) Contains(t time.Time) bool {
	start, end := w.OnDayOf(t)
	return !t.Before(start) && t.Before(end)
}
