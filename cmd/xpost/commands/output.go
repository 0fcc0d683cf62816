package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"xpost/internal/model"
	"xpost/internal/poster"
	"xpost/internal/timespec"
)

const rule = "────────────────────────────────────────"

var errNeedsYes = errors.New("confirmation required: pass --yes")

func printJSON(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func newTable(w io.Writer, header ...any) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.Header(header...)
	return t
}

// localTime renders t in zone as "2006-01-02 15:04:05".
func localTime(t time.Time, zone string) string {
	if t.IsZero() {
		return ""
	}
	return t.In(timespec.LoadZone(zone)).Format("2006-01-02 15:04:05")
}

func localISO(s, zone string) string {
	if s == "" {
		return ""
	}
	t, err := model.ParseISO(s)
	if err != nil {
		return s
	}
	return localTime(t, zone)
}

// humanizeDelta renders a future offset ("in 2 hours 5 minutes").
func humanizeDelta(d time.Duration) string {
	total := int64(d / time.Second)
	if total <= 0 {
		return "now"
	}
	minutes := total / 60
	hours, minutes := minutes/60, minutes%60
	days, hours := hours/24, hours%24
	plural := func(n int64, unit string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if days == 0 && minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 {
		parts = append(parts, "<1 minute")
	}
	return "in " + strings.Join(parts, " ")
}

// snippet returns the first line of text cut to width runes.
func snippet(text string, width int) string {
	first, _, _ := strings.Cut(text, "\n")
	r := []rune(first)
	if len(r) > width {
		return string(r[:width]) + "..."
	}
	return first
}

func clip(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

func tweetURL(id string) string {
	if id == "" {
		return ""
	}
	return poster.URL(id)
}

// confirm asks a yes/no question on the terminal. Without a terminal it
// refuses so cron-driven invocations never hang.
func confirm(label string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return false, errNeedsYes
	}
	p := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func jobInfo(j model.Job) string {
	switch j.Status {
	case model.StatusPosted:
		return tweetURL(j.TweetID())
	case model.StatusFailed:
		return clip(j.Error(), 80)
	}
	return ""
}
