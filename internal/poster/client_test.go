package poster

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "xpost/pkg/logx"
)

var testCreds = Credentials{APIKey: "ck", APISecret: "cs", AccessToken: "at", AccessTokenSecret: "as"}

func testConfig(url string) Config {
	return Config{Endpoint: url, Timeout: 5 * time.Second, MaxAttempts: 3, RetryWait: time.Millisecond, RetryMaxWait: 5 * time.Millisecond}
}

func TestPostSuccessIsSigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tweets", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "), r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		var body map[string]string
		require.NoError(t, json.Unmarshal(b, &body))
		assert.Equal(t, "Hello", body["text"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1234","text":"Hello"}}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), testCreds, logx.Nop())
	id, raw, err := c.Post(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "1234", id)
	assert.Contains(t, string(raw), `"id":"1234"`)
}

func TestPostRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"title":"Service Unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"99"}}`))
	}))
	defer srv.Close()

	id, _, err := New(testConfig(srv.URL), testCreds, logx.Nop()).Post(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "99", id)
	assert.EqualValues(t, 2, calls.Load())
}

func TestPostGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"title":"Bad Gateway","detail":"upstream"}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxAttempts = 2
	_, _, err := New(cfg, testCreds, logx.Nop()).Post(context.Background(), "x")
	ae, ok := IsAPIError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, 502, ae.Status)
	assert.True(t, ae.Retryable())
	assert.Equal(t, "API error 502: Bad Gateway: upstream", err.Error())
	assert.EqualValues(t, 2, calls.Load())
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"message":"You are not allowed to create a Tweet with duplicate content."}]}`))
	}))
	defer srv.Close()

	_, _, err := New(testConfig(srv.URL), testCreds, logx.Nop()).Post(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate content")
	assert.EqualValues(t, 1, calls.Load())
}

func TestPostMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	_, _, err := New(testConfig(srv.URL), testCreds, logx.Nop()).Post(context.Background(), "x")
	ae, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "response missing post id", ae.Message)
}

func TestPostCredentialErrors(t *testing.T) {
	_, _, err := New(Config{}, Credentials{}, logx.Nop()).Post(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrMissingCredentials))

	_, _, err = New(Config{}, Credentials{BearerToken: "tok"}, logx.Nop()).Post(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrBearerReadOnly))

	_, err = New(Config{}, Credentials{}, logx.Nop()).Get(context.Background(), "1")
	assert.True(t, errors.Is(err, ErrNoLookupAuth))
}

func TestGetFallsBackToBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets/555", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"id":"555","text":"hi"}}`))
	}))
	defer srv.Close()

	raw, err := New(testConfig(srv.URL), Credentials{BearerToken: "tok"}, logx.Nop()).Get(context.Background(), "555")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"text":"hi"`)
}

func TestSummarizeError(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"errors":[{"message":"m","detail":"d"}]}`, "d"},
		{`{"errors":[{"message":"m"}]}`, "m"},
		{`{"title":"Unauthorized","detail":"Unauthorized"}`, "Unauthorized: Unauthorized"},
		{`{"detail":"Too Many Requests"}`, "Too Many Requests"},
		{`not json`, ""},
		{``, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SummarizeError([]byte(tt.body)), tt.body)
	}
}

func TestAuthStatus(t *testing.T) {
	st := Status(DefaultEndpoint, Credentials{APIKey: "k", BearerToken: "b"})
	assert.Equal(t, "https://api.x.com/2/tweets", st.Endpoint)
	assert.False(t, st.OAuth1Complete)
	assert.True(t, st.OAuth1["API_KEY"])
	assert.False(t, st.OAuth1["ACCESS_TOKEN"])
	assert.True(t, st.BearerPresent)
	assert.Contains(t, st.Notes[0], "incomplete")

	st = Status(DefaultEndpoint, testCreds)
	assert.True(t, st.OAuth1Complete)
}
