package timespec

import (
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultTZ is used when neither an override nor a configured zone is given.
const DefaultTZ = "HKT"

var zoneAliases = map[string]string{
	"hkt": "Asia/Hong_Kong",
	"utc": "UTC",
	"z":   "UTC",
	"gmt": "UTC",
}

// LoadZone resolves a zone name. Unknown names fall back to UTC.
func LoadZone(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTZ
	}
	if alias, ok := zoneAliases[strings.ToLower(name)]; ok {
		name = alias
	}
	loc, err := time.LoadLocation(name)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// KnownZone reports whether name resolves to a real zone rather than the UTC fallback.
func KnownZone(name string) bool {
	name = strings.TrimSpace(name)
	if _, ok := zoneAliases[strings.ToLower(name)]; ok {
		return true
	}
	_, err := time.LoadLocation(name)
	return err == nil && name != ""
}

func sameZone(a, b *time.Location) bool {
	return a.String() == b.String()
}

// midnight returns 00:00 of t's calendar day in loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
