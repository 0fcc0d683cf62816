package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"xpost/internal/model"
	logx "xpost/pkg/logx"
)

var ErrNoToken = errors.New("telegram token is empty")

// maxListed caps the per-job lines in one message.
const maxListed = 10

// Sender delivers a plain-text message to a chat (optionally a forum thread).
type Sender interface {
	Send(ctx context.Context, chatID int64, threadID int, text string) error
}

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// URL overrides the Bot API endpoint.
	URL     string
	Timeout time.Duration
}

// BotSender is a Sender backed by telebot.
type BotSender struct {
	bot *tele.Bot
}

func NewBotSender(cfg TelegramConfig) (*BotSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNoToken
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &BotSender{bot: b}, nil
}

func (s *BotSender) Send(ctx context.Context, chatID int64, threadID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opt := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: threadID}
	_, err := s.bot.Send(&tele.Chat{ID: chatID}, text, opt)
	return err
}

// Notifier formats run failures and hands them to a Sender.
type Notifier struct {
	sender   Sender
	chatID   int64
	threadID int
	host     string
	log      logx.Logger
}

func New(sender Sender, chatID int64, threadID int, host string, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{sender: sender, chatID: chatID, threadID: threadID, host: host, log: log.With(logx.String("comp", "notify"))}
}

func (n *Notifier) RunFailed(ctx context.Context, sum model.RunSummary, failed []model.Job) error {
	if n == nil || n.sender == nil {
		return nil
	}
	text := FormatRunFailed(n.host, sum, failed)
	if err := n.sender.Send(ctx, n.chatID, n.threadID, text); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	n.log.Debug("failure notification sent", logx.Int("failed", len(failed)))
	return nil
}

// FormatRunFailed renders the alert body.
func FormatRunFailed(host string, sum model.RunSummary, failed []model.Job) string {
	var b strings.Builder
	b.WriteString("xpost: run had failures")
	if host != "" {
		fmt.Fprintf(&b, " on %s", host)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "checked=%d posted=%d failed=%d\n", sum.Checked, sum.PostedCount, sum.FailedCount)
	if sum.StartedAt != "" {
		fmt.Fprintf(&b, "started: %s\n", sum.StartedAt)
	}
	for i, j := range failed {
		if i == maxListed {
			fmt.Fprintf(&b, "... and %d more\n", len(failed)-maxListed)
			break
		}
		fmt.Fprintf(&b, "- %s (attempt %d): %s\n", j.ID, j.AttemptCount, oneLine(j.Error(), 160))
	}
	return strings.TrimRight(b.String(), "\n")
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "unknown error"
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
