package model

import (
	"encoding/json"
	"fmt"
)

const (
	SourceScheduled = "scheduled"
	SourceImmediate = "immediate"

	entryTypeRun = "run"
)

// Entry is one immutable journal record: either a Delivery or a RunSummary.
type Entry interface {
	// Timestamp is the posted_at value used for ordering; "" when unknown.
	Timestamp() string
	isEntry()
}

// Delivery records a successful post.
type Delivery struct {
	ID             string  `json:"id"`
	IdempotencyKey *string `json:"idempotency_key"`
	TweetID        string  `json:"tweet_id"`
	PostedAt       string  `json:"posted_at"`
	Source         string  `json:"source"`
	Text           string  `json:"text"`
}

func (d Delivery) Timestamp() string { return d.PostedAt }
func (Delivery) isEntry()            {}

func (d Delivery) Key() string {
	if d.IdempotencyKey == nil {
		return ""
	}
	return *d.IdempotencyKey
}

// RunSummary records one run-once batch.
type RunSummary struct {
	StartedAt   string   `json:"started_at"`
	PostedAt    string   `json:"posted_at"`
	OK          bool     `json:"ok"`
	Checked     int      `json:"checked"`
	PostedCount int      `json:"posted_count"`
	FailedCount int      `json:"failed_count"`
	PostedIDs   []string `json:"posted_ids"`
	FailedIDs   []string `json:"failed_ids"`
	Message     string   `json:"message"`
	Skipped     bool     `json:"skipped"`
}

func (r RunSummary) Timestamp() string { return r.PostedAt }
func (RunSummary) isEntry()            {}

func (r RunSummary) MarshalJSON() ([]byte, error) {
	type plain RunSummary
	if r.PostedIDs == nil {
		r.PostedIDs = []string{}
	}
	if r.FailedIDs == nil {
		r.FailedIDs = []string{}
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{Type: entryTypeRun, plain: plain(r)})
}

// EncodeEntry serializes an entry as a single JSON line (no trailing newline).
func EncodeEntry(e Entry) ([]byte, error) {
	switch v := e.(type) {
	case Delivery, RunSummary:
		return json.Marshal(v)
	case *Delivery:
		return json.Marshal(*v)
	case *RunSummary:
		return json.Marshal(*v)
	default:
		return nil, fmt.Errorf("unknown journal entry %T", e)
	}
}

// DecodeEntry parses one journal line. Unknown fields are ignored.
func DecodeEntry(b []byte) (Entry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, err
	}
	if head.Type == entryTypeRun {
		var r RunSummary
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, err
		}
		return r, nil
	}
	var d Delivery
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return d, nil
}
