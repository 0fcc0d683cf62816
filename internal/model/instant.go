package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// isoLayout renders an explicit numeric offset ("+00:00") rather than "Z" so stored
// timestamps keep the shape older schedule files already have.
const isoLayout = "2006-01-02T15:04:05.999999-07:00"

// FormatISO renders t in UTC with an explicit +00:00 offset.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseISO accepts RFC 3339 timestamps with or without fractional seconds, and
// naive timestamps (treated as UTC).
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// Instant is a UTC timestamp that serializes as ISO-8601 with an explicit offset.
type Instant struct {
	time.Time
}

func NewInstant(t time.Time) Instant { return Instant{Time: t.UTC()} }

func (i Instant) String() string {
	if i.IsZero() {
		return ""
	}
	return FormatISO(i.Time)
}

func (i Instant) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(FormatISO(i.Time))
}

func (i *Instant) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*i = Instant{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*i = Instant{}
		return nil
	}
	t, err := ParseISO(s)
	if err != nil {
		return err
	}
	*i = Instant{Time: t}
	return nil
}
