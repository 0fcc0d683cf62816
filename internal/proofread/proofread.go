// Package proofread rewrites drafts with an OpenAI chat model.
package proofread

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	DefaultModel   = "gpt-5-mini"
	DefaultTimeout = 60 * time.Second

	// MaxPostChars is the X limit for a standard post.
	MaxPostChars = 280
)

var (
	ErrAPIKeyNotSet = errors.New("OPENAI_API_KEY not set")
	ErrEmptyDraft   = errors.New("draft is empty")
	ErrNoChoices    = errors.New("no completion choices returned")
)

const systemPrompt = "You are a world-class editor for X (Twitter) posts. " +
	"The user will provide a draft. Your task:\n" +
	"- Correct grammar and fix unnatural expressions.\n" +
	"- Make it punchy and concise for X.\n" +
	"- Preserve the draft's structure and stylistic feel as much as possible.\n" +
	"- Never use em dashes (—); prefer commas, periods, or hyphens instead.\n" +
	"Output only the improved text, no commentary."

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// MaxRetries is passed to the SDK, which retries 429 and 5xx itself.
	MaxRetries int
}

type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAPIKeyNotSet
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{client: openai.NewClient(opts...), model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (c *Client) Model() string { return c.model }

// Rewrite returns the edited draft.
func (c *Client) Rewrite(ctx context.Context, draft string) (string, error) {
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return "", ErrEmptyDraft
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(draft),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// Counts returns whitespace-separated words and characters (runes).
func Counts(text string) (words, chars int) {
	return len(strings.Fields(text)), utf8.RuneCountInString(text)
}
