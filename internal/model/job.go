package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of a Job.
//
// pending -> in_progress -> posted | failed. failed is not terminal: the next
// run-once may pick the job up again.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPosted     Status = "posted"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPosted, StatusFailed:
		return true
	}
	return false
}

// Job is one scheduled post.
type Job struct {
	ID             string  `json:"id"`
	Text           string  `json:"text"`
	TimeUTC        Instant `json:"time_utc"`
	TZ             string  `json:"tz"`
	Status         Status  `json:"status"`
	AttemptCount   int     `json:"attempt_count"`
	LastError      *string `json:"last_error"`
	PostedTweetID  *string `json:"posted_tweet_id"`
	IdempotencyKey string  `json:"idempotency_key"`
	CreatedAt      Instant `json:"created_at"`
	UpdatedAt      Instant `json:"updated_at"`
}

// NewJobID returns a 12 hex-char identifier.
func NewJobID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// IdempotencyKey hashes (text, time_utc) exactly as the time is stored.
func IdempotencyKey(text string, timeUTC time.Time) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte("|"))
	h.Write([]byte(FormatISO(timeUTC)))
	return hex.EncodeToString(h.Sum(nil))
}

// Rekey recomputes the idempotency key from the current text and time.
func (j *Job) Rekey() {
	j.IdempotencyKey = IdempotencyKey(j.Text, j.TimeUTC.Time)
}

// Due reports whether the job should be attempted at now.
// maxAttempts bounds automatic retries of failed jobs; 0 means unlimited.
func (j Job) Due(now time.Time, maxAttempts int) bool {
	if j.TimeUTC.IsZero() || j.TimeUTC.After(now) {
		return false
	}
	switch j.Status {
	case StatusPending:
		return true
	case StatusFailed:
		return maxAttempts <= 0 || j.AttemptCount < maxAttempts
	}
	return false
}

func (j Job) TweetID() string {
	if j.PostedTweetID == nil {
		return ""
	}
	return *j.PostedTweetID
}

func (j Job) Error() string {
	if j.LastError == nil {
		return ""
	}
	return *j.LastError
}

// Ptr is a small helper for the nullable string fields.
func Ptr(s string) *string { return &s }

// Snapshot is the whole schedule document.
type Snapshot struct {
	Jobs []Job `json:"jobs"`
}

// Find returns the index of the job with id, or -1.
func (s *Snapshot) Find(id string) int {
	for i := range s.Jobs {
		if s.Jobs[i].ID == id {
			return i
		}
	}
	return -1
}
