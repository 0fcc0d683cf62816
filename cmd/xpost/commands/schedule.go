package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"xpost/internal/jobs"
	"xpost/internal/model"
	"xpost/internal/proofread"
)

// textArg returns --text, else the positional words joined by spaces.
func textArg(cmd *cli.Command) string {
	if t := cmd.String("text"); t != "" {
		return t
	}
	return strings.Join(cmd.Args().Slice(), " ")
}

func idArg(cmd *cli.Command) (string, error) {
	id := strings.TrimSpace(cmd.Args().First())
	if id == "" {
		id = strings.TrimSpace(cmd.String("id"))
	}
	if id == "" {
		return "", usageErrorf("job id is required")
	}
	return id, nil
}

// ScheduleAction previews a new job and stores it after confirmation.
func ScheduleAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	text := textArg(cmd)
	at := cmd.String("at")
	tz := cmd.String("tz")
	if strings.TrimSpace(text) == "" || strings.TrimSpace(at) == "" {
		return usageErrorf("--text and --at are required")
	}
	if app.JSON && !cmd.Bool("yes") {
		return usageErrorf("--json mode requires --yes")
	}

	svc := app.Jobs()
	res, err := svc.Preview(at, tz)
	if err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		words, chars := proofread.Counts(text)
		w := app.Out
		fmt.Fprintln(w, "About to schedule:")
		fmt.Fprintf(w, "  at:     %s (tz=%s) -> utc:%s\n", localTime(res.UTC, res.TZ), res.TZ, model.FormatISO(res.UTC))
		if res.Window != nil {
			fmt.Fprintf(w, "  window: %s\n", res.Window.String())
		}
		fmt.Fprintf(w, "  when:   %s\n", humanizeDelta(res.UTC.Sub(app.clock())))
		fmt.Fprintf(w, "  length: words=%d chars=%d\n", words, chars)
		if chars > proofread.MaxPostChars {
			fmt.Fprintf(w, "  warning: longer than %d characters\n", proofread.MaxPostChars)
		}
		fmt.Fprintln(w, "  text:")
		fmt.Fprintln(w, rule)
		fmt.Fprintln(w, text)
		fmt.Fprintln(w, rule)
	}
	ok, err := confirm("Proceed to add this schedule", cmd.Bool("yes"))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(app.Out, "aborted")
		return nil
	}

	job, err := svc.CreateResolved(ctx, text, res)
	if err != nil {
		return err
	}
	if app.JSON {
		return printJSON(app.Out, job)
	}
	fmt.Fprintf(app.Out, "scheduled: id=%s at_local=%s tz=%s\n", job.ID, localTime(job.TimeUTC.Time, job.TZ), job.TZ)
	return nil
}

// ListAction prints jobs ordered by scheduled time.
func ListAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	list, err := app.Jobs().List(ctx, cmd.String("since"))
	if err != nil {
		return err
	}
	if st := cmd.String("status"); st != "" {
		if !model.Status(st).Valid() {
			return usageErrorf("unknown status %q", st)
		}
		kept := list[:0]
		for _, j := range list {
			if string(j.Status) == st {
				kept = append(kept, j)
			}
		}
		list = kept
	}
	if app.JSON {
		if list == nil {
			list = []model.Job{}
		}
		return printJSON(app.Out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(app.Out, "no jobs")
		return nil
	}
	tzFlag := cmd.String("tz")
	label := tzFlag
	if label == "" {
		label = "job tz"
	}
	t := newTable(app.Out, "ID", "STATUS", "WHEN ("+label+")", "TZ", "INFO")
	for _, j := range list {
		zone := app.displayTZ(tzFlag, j.TZ)
		_ = t.Append(j.ID, string(j.Status), localTime(j.TimeUTC.Time, zone), zone, jobInfo(j))
	}
	return t.Render()
}

type detail struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Source  string `json:"source,omitempty"`
	At      string `json:"at,omitempty"`
	TZ      string `json:"tz,omitempty"`
	When    string `json:"when,omitempty"`
	TweetID string `json:"tweet_id,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
	Text    string `json:"text"`
	Words   int    `json:"words"`
	Chars   int    `json:"chars"`
}

// ShowAction prints one job; ids not in the schedule are looked up in the
// journal (immediate posts live only there).
func ShowAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	id, err := idArg(cmd)
	if err != nil {
		return err
	}

	var out detail
	job, ok, err := app.Jobs().Get(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		zone := app.displayTZ(cmd.String("tz"), job.TZ)
		out = detail{
			ID:      job.ID,
			Status:  string(job.Status),
			Source:  model.SourceScheduled,
			At:      localTime(job.TimeUTC.Time, zone),
			TZ:      zone,
			TweetID: job.TweetID(),
			Error:   job.Error(),
			Text:    job.Text,
		}
		if job.Status == model.StatusPending {
			out.When = humanizeDelta(job.TimeUTC.Sub(app.clock()))
		}
	} else {
		journal, err := app.Journal()
		if err != nil {
			return err
		}
		d, err := journal.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
		}
		zone := app.displayTZ(cmd.String("tz"), "")
		out = detail{
			ID:      d.ID,
			Status:  string(model.StatusPosted),
			Source:  d.Source,
			At:      localISO(d.PostedAt, zone),
			TZ:      zone,
			TweetID: d.TweetID,
			Text:    d.Text,
		}
	}
	out.URL = tweetURL(out.TweetID)
	out.Words, out.Chars = proofread.Counts(out.Text)

	if app.JSON {
		return printJSON(app.Out, out)
	}
	w := app.Out
	fmt.Fprintf(w, "ID: %s  Status: %s  Source: %s\n", out.ID, out.Status, out.Source)
	if out.At != "" {
		fmt.Fprintf(w, "at(%s): %s\n", out.TZ, out.At)
	}
	if out.When != "" {
		fmt.Fprintf(w, "when: %s\n", out.When)
	}
	if out.Error != "" {
		fmt.Fprintf(w, "error: %s\n", out.Error)
	}
	fmt.Fprintf(w, "length: words=%d chars=%d\n", out.Words, out.Chars)
	if out.URL != "" {
		fmt.Fprintf(w, "URL: %s\n", out.URL)
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, out.Text)
	return nil
}

func UpdateAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	id, err := idArg(cmd)
	if err != nil {
		return err
	}
	var p jobs.UpdateParams
	if cmd.IsSet("text") {
		t := cmd.String("text")
		p.Text = &t
	}
	if cmd.IsSet("at") {
		at := cmd.String("at")
		p.At = &at
	}
	if cmd.IsSet("tz") {
		tz := cmd.String("tz")
		p.TZ = &tz
	}
	if p.Text == nil && p.At == nil && p.TZ == nil {
		return usageErrorf("--at, --text or --tz is required")
	}
	job, err := app.Jobs().Update(ctx, id, p)
	if err != nil {
		return err
	}
	if app.JSON {
		return printJSON(app.Out, job)
	}
	fmt.Fprintf(app.Out, "updated: id=%s at=%s tz=%s\n", job.ID, job.TimeUTC.String(), job.TZ)
	return nil
}

func RemoveAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	id, err := idArg(cmd)
	if err != nil {
		return err
	}
	removed, err := app.Jobs().Remove(ctx, id)
	if err != nil {
		return err
	}
	if app.JSON {
		if err := printJSON(app.Out, map[string]any{"id": id, "removed": removed}); err != nil {
			return err
		}
	} else if removed {
		fmt.Fprintln(app.Out, "removed")
	}
	if !removed {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	return nil
}

func RetryAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	id, err := idArg(cmd)
	if err != nil {
		return err
	}
	job, err := app.Jobs().Retry(ctx, id)
	if errors.Is(err, jobs.ErrInvalidState) {
		return cli.Exit(err.Error(), ExitUsage)
	}
	if err != nil {
		return err
	}
	if app.JSON {
		return printJSON(app.Out, job)
	}
	fmt.Fprintf(app.Out, "retry queued: id=%s attempts=%d\n", job.ID, job.AttemptCount)
	return nil
}
