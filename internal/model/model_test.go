package model

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestIdempotencyKeyDeterministic(t *testing.T) {
	t.Parallel()
	at := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	a := IdempotencyKey("Hello", at)
	b := IdempotencyKey("Hello", at.In(time.FixedZone("HKT", 8*3600)))
	if a != b {
		t.Fatalf("key depends on zone: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("len(key) = %d, want 64", len(a))
	}
	if IdempotencyKey("Hello!", at) == a {
		t.Fatal("different text produced the same key")
	}
	if IdempotencyKey("Hello", at.Add(time.Second)) == a {
		t.Fatal("different time produced the same key")
	}
}

func TestNewJobID(t *testing.T) {
	t.Parallel()
	re := regexp.MustCompile(`^[0-9a-f]{12}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewJobID()
		if !re.MatchString(id) {
			t.Fatalf("bad id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestJobJSONShape(t *testing.T) {
	t.Parallel()
	at := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	j := Job{ID: "abc123abc123", Text: "Hello", TimeUTC: NewInstant(at), TZ: "UTC", Status: StatusPending}
	j.Rekey()
	b, err := json.Marshal(j)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"time_utc":"2099-01-01T00:00:00+00:00"`, `"last_error":null`, `"posted_tweet_id":null`, `"status":"pending"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %s in %s", want, s)
		}
	}

	var back Job
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.TimeUTC.Equal(at) || back.IdempotencyKey != j.IdempotencyKey {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestJobDue(t *testing.T) {
	t.Parallel()
	now := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	past := NewInstant(now.Add(-time.Minute))
	future := NewInstant(now.Add(time.Minute))

	tests := []struct {
		name string
		job  Job
		max  int
		want bool
	}{
		{"pending past", Job{TimeUTC: past, Status: StatusPending}, 3, true},
		{"pending exactly now", Job{TimeUTC: NewInstant(now), Status: StatusPending}, 3, true},
		{"pending future", Job{TimeUTC: future, Status: StatusPending}, 3, false},
		{"posted", Job{TimeUTC: past, Status: StatusPosted}, 3, false},
		{"in progress", Job{TimeUTC: past, Status: StatusInProgress}, 3, false},
		{"failed under cap", Job{TimeUTC: past, Status: StatusFailed, AttemptCount: 2}, 3, true},
		{"failed at cap", Job{TimeUTC: past, Status: StatusFailed, AttemptCount: 3}, 3, false},
		{"failed unlimited", Job{TimeUTC: past, Status: StatusFailed, AttemptCount: 50}, 0, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.job.Due(now, tt.max); got != tt.want {
				t.Fatalf("Due = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseISOVariants(t *testing.T) {
	t.Parallel()
	want := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, in := range []string{"2030-01-02T03:04:05+00:00", "2030-01-02T03:04:05Z", "2030-01-02T11:04:05+08:00", "2030-01-02T03:04:05", "2030-01-02 03:04:05"} {
		got, err := ParseISO(in)
		if err != nil {
			t.Fatalf("ParseISO(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseISO(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseISO("yesterday"); err == nil {
		t.Fatal("expected error")
	}
}

func TestEntryEncodeDecode(t *testing.T) {
	t.Parallel()
	run := RunSummary{StartedAt: "a", PostedAt: "b", OK: true, Skipped: true, Message: "no due jobs"}
	b, err := EncodeEntry(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(b), `"type":"run"`) || !strings.Contains(string(b), `"posted_ids":[]`) {
		t.Fatalf("unexpected run line %s", b)
	}
	e, err := DecodeEntry(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, ok := e.(RunSummary); !ok || !got.Skipped || got.Message != "no due jobs" {
		t.Fatalf("decoded %#v", e)
	}

	e, err = DecodeEntry([]byte(`{"id":"x","idempotency_key":null,"tweet_id":"9","posted_at":"p","source":"immediate","text":"hi","extra":1}`))
	if err != nil {
		t.Fatalf("decode delivery: %v", err)
	}
	d, ok := e.(Delivery)
	if !ok || d.Key() != "" || d.TweetID != "9" || d.Source != SourceImmediate {
		t.Fatalf("decoded %#v", e)
	}

	if _, err := DecodeEntry([]byte("{not json")); err == nil {
		t.Fatal("expected error for broken line")
	}
}
