// Package poster is the X API v2 client used for publishing and lookups.
package poster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	logx "xpost/pkg/logx"
)

const DefaultEndpoint = "https://api.x.com/2"

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	Endpoint     string
	Timeout      time.Duration
	MaxAttempts  int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	// RatePerMin throttles outgoing requests; 0 disables throttling.
	RatePerMin int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = DefaultEndpoint
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	if c.RetryWait <= 0 {
		c.RetryWait = time.Second
	}
	if c.RetryMaxWait <= 0 {
		c.RetryMaxWait = 30 * time.Second
	}
	return c
}

// Client talks to the X API. Posting is signed with OAuth 1.0a; lookups use
// OAuth 1.0a when available and the app bearer token otherwise.
type Client struct {
	cfg     Config
	creds   Credentials
	user    *resty.Client
	app     *resty.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, creds Credentials, log logx.Logger) *Client {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{cfg: cfg, creds: creds, log: log.With(logx.String("component", "poster"))}

	if creds.OAuth1Complete() {
		oc := oauth1.NewConfig(creds.APIKey, creds.APISecret)
		hc := oc.Client(oauth1.NoContext, oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret))
		c.user = c.configure(resty.NewWithClient(hc))
	}
	if strings.TrimSpace(creds.BearerToken) != "" {
		c.app = c.configure(resty.New()).SetAuthToken(creds.BearerToken)
	}

	c.limiter = rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMin > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), 1)
	}
	return c
}

func (c *Client) configure(r *resty.Client) *resty.Client {
	return r.
		SetBaseURL(c.cfg.Endpoint).
		SetTimeout(c.cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(c.cfg.MaxAttempts-1).
		SetRetryWaitTime(c.cfg.RetryWait).
		SetRetryMaxWaitTime(c.cfg.RetryMaxWait).
		SetRetryAfter(retryAfter).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && retryableStatus(resp.StatusCode())
		}).
		AddRetryHook(func(resp *resty.Response, err error) {
			fields := []logx.Field{logx.Err(err)}
			if resp != nil {
				fields = append(fields, logx.Int("status", resp.StatusCode()))
			}
			c.log.Debug("retrying X API request", fields...)
		})
}

// retryAfter honours the X rate-limit reset header on 429; 0 keeps resty's
// exponential backoff.
func retryAfter(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
	if resp == nil || resp.StatusCode() != http.StatusTooManyRequests {
		return 0, nil
	}
	if v := resp.Header().Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second, nil
		}
	}
	if v := resp.Header().Get("x-rate-limit-reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(unix, 0)); d > 0 {
				return d, nil
			}
		}
	}
	return 0, nil
}

type postResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Post publishes text and returns the new post id and the raw response.
func (c *Client) Post(ctx context.Context, text string) (string, json.RawMessage, error) {
	if c.user == nil {
		if c.app != nil {
			return "", nil, ErrBearerReadOnly
		}
		return "", nil, ErrMissingCredentials
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", nil, err
	}

	resp, err := c.user.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"text": text}).
		Post("/tweets")
	if err != nil {
		return "", nil, fmt.Errorf("post: %w", err)
	}
	raw := json.RawMessage(resp.Body())
	if !resp.IsSuccess() {
		return "", raw, &APIError{Status: resp.StatusCode(), Body: raw}
	}
	var pr postResponse
	if err := json.Unmarshal(raw, &pr); err != nil || pr.Data.ID == "" {
		return "", raw, &APIError{Status: resp.StatusCode(), Body: raw, Message: "response missing post id"}
	}
	return pr.Data.ID, raw, nil
}

// Get fetches one post by id.
func (c *Client) Get(ctx context.Context, id string) (json.RawMessage, error) {
	rc := c.user
	if rc == nil {
		rc = c.app
	}
	if rc == nil {
		return nil, ErrNoLookupAuth
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := rc.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetQueryParam("tweet.fields", "created_at,public_metrics").
		Get("/tweets/{id}")
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	raw := json.RawMessage(resp.Body())
	if !resp.IsSuccess() {
		return raw, &APIError{Status: resp.StatusCode(), Body: raw}
	}
	return raw, nil
}

// URL is the public link for a post id.
func URL(id string) string { return "https://x.com/i/web/status/" + id }
