package proofread

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresKey(t *testing.T) {
	c, err := New(Config{})
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
	assert.Nil(t, c)

	c, err = New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())
}

func TestRewrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(b, &req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[0].Content, "Never use em dashes")
		assert.Equal(t, "this are draft", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  This is a draft.  "}}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL + "/", Timeout: 5 * time.Second, MaxRetries: 1})
	require.NoError(t, err)

	out, err := c.Rewrite(context.Background(), "  this are draft ")
	require.NoError(t, err)
	assert.Equal(t, "This is a draft.", out)

	_, err = c.Rewrite(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyDraft)
}

func TestCounts(t *testing.T) {
	w, c := Counts("héllo  wörld")
	assert.Equal(t, 2, w)
	assert.Equal(t, 12, c)
}
