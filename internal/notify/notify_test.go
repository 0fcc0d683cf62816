package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xpost/internal/model"
	logx "xpost/pkg/logx"
)

type captureSender struct {
	chatID   int64
	threadID int
	text     string
	err      error
}

func (c *captureSender) Send(_ context.Context, chatID int64, threadID int, text string) error {
	c.chatID, c.threadID, c.text = chatID, threadID, text
	return c.err
}

func failedJob(id string, attempts int, msg string) model.Job {
	return model.Job{ID: id, Status: model.StatusFailed, AttemptCount: attempts, LastError: model.Ptr(msg)}
}

func TestFormatRunFailed(t *testing.T) {
	sum := model.RunSummary{StartedAt: "2030-01-01T00:00:00+00:00", Checked: 3, PostedCount: 1, FailedCount: 2}
	text := FormatRunFailed("box1", sum, []model.Job{
		failedJob("aaa", 1, "API error 403:\n  duplicate content"),
		failedJob("bbb", 3, ""),
	})

	lines := strings.Split(text, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "xpost: run had failures on box1", lines[0])
	assert.Equal(t, "checked=3 posted=1 failed=2", lines[1])
	assert.Equal(t, "- aaa (attempt 1): API error 403: duplicate content", lines[3])
	assert.Equal(t, "- bbb (attempt 3): unknown error", lines[4])
}

func TestFormatRunFailedCapsList(t *testing.T) {
	var jobs []model.Job
	for i := 0; i < maxListed+3; i++ {
		jobs = append(jobs, failedJob(fmt.Sprintf("j%02d", i), 1, "boom"))
	}
	text := FormatRunFailed("", model.RunSummary{FailedCount: len(jobs)}, jobs)
	assert.True(t, strings.HasSuffix(text, "... and 3 more"), text)
	assert.NotContains(t, text, "j10")
}

func TestNotifierUsesSender(t *testing.T) {
	s := &captureSender{}
	n := New(s, -100123, 9, "box", logx.Nop())
	require.NoError(t, n.RunFailed(context.Background(), model.RunSummary{FailedCount: 1}, []model.Job{failedJob("x", 1, "e")}))
	assert.EqualValues(t, -100123, s.chatID)
	assert.Equal(t, 9, s.threadID)
	assert.Contains(t, s.text, "- x (attempt 1): e")

	s.err = errors.New("network down")
	assert.ErrorContains(t, n.RunFailed(context.Background(), model.RunSummary{}, nil), "network down")
}

func TestBotSenderPostsSendMessage(t *testing.T) {
	var gotPath string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":1,"chat":{"id":42,"type":"private"},"text":"hi"}}`)
	}))
	defer srv.Close()

	s, err := NewBotSender(TelegramConfig{Token: "123:abc", URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), 42, 0, "hi"))
	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.EqualValues(t, "42", got["chat_id"])
	assert.Equal(t, "hi", got["text"])
}

func TestNewBotSenderRequiresToken(t *testing.T) {
	_, err := NewBotSender(TelegramConfig{})
	assert.ErrorIs(t, err, ErrNoToken)
}
