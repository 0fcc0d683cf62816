package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/urfave/cli/v3"

	"xpost/internal/logtail"
	"xpost/internal/model"
	"xpost/internal/timespec"
)

type historyOut struct {
	Runs       []model.RunSummary `json:"runs"`
	Deliveries []model.Delivery   `json:"deliveries"`
}

func (a *AppContext) readHistory(ctx context.Context, since string, all bool) (historyOut, error) {
	out := historyOut{Runs: []model.RunSummary{}, Deliveries: []model.Delivery{}}
	cutoff, err := a.Resolver.ResolveSince(since)
	if err != nil {
		return out, err
	}
	j, err := a.Journal()
	if err != nil {
		return out, err
	}
	entries, err := j.ReadSince(ctx, cutoff)
	if err != nil {
		return out, err
	}
	for _, e := range entries {
		switch v := e.(type) {
		case model.RunSummary:
			if v.Skipped && !all {
				continue
			}
			out.Runs = append(out.Runs, v)
		case model.Delivery:
			out.Deliveries = append(out.Deliveries, v)
		}
	}
	return out, nil
}

// HistoryAction prints journaled deliveries and run summaries.
func HistoryAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	h, err := app.readHistory(ctx, cmd.String("since"), cmd.Bool("all"))
	if err != nil {
		return err
	}
	if app.JSON {
		return printJSON(app.Out, h)
	}
	zone := app.displayTZ(cmd.String("tz"), "")
	w := app.Out

	fmt.Fprintln(w, "Runs")
	fmt.Fprintln(w, rule)
	if len(h.Runs) == 0 {
		fmt.Fprintln(w, "(none)")
	}
	for _, r := range h.Runs {
		fmt.Fprintf(w, "%s | %s\n", localISO(r.PostedAt, zone), r.Message)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Deliveries")
	fmt.Fprintln(w, rule)
	if len(h.Deliveries) == 0 {
		fmt.Fprintln(w, "(none)")
		return nil
	}
	t := newTable(w, "WHEN ("+zone+")", "SOURCE", "ID", "URL", "TEXT")
	for _, d := range h.Deliveries {
		_ = t.Append(localISO(d.PostedAt, zone), d.Source, d.ID, tweetURL(d.TweetID), snippet(d.Text, 40))
	}
	return t.Render()
}

// LogsAction shows recent run summaries and the tail of cron.log, then keeps
// following the log with --follow.
func LogsAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	path := cmd.String("path")
	if path == "" {
		path = app.Settings.CronLogPath()
	}
	zone := app.displayTZ(cmd.String("tz"), "")
	w := app.Out

	if lookback := cmd.Int("lookback"); lookback > 0 {
		h, err := app.readHistory(ctx, fmt.Sprintf("%dm", lookback), false)
		if err != nil {
			return err
		}
		for _, r := range h.Runs {
			fmt.Fprintf(w, "%s | %s\n", localISO(r.PostedAt, zone), r.Message)
		}
	}

	lines, err := logtail.Tail(path, int(cmd.Int("lines")))
	if err != nil {
		return err
	}
	for _, ln := range lines {
		fmt.Fprintln(w, ln)
	}
	if !cmd.Bool("follow") {
		return nil
	}
	return logtail.Follow(ctx, path, w, logtail.FollowOptions{Log: app.Log})
}

// WindowsAction prints a grid of prime-time windows by day showing which ones
// already have a pending post.
func WindowsAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	days := int(cmd.Int("days"))
	if days <= 0 || days > 60 {
		return usageErrorf("--days must be between 1 and 60")
	}
	snap, err := app.Store.Load(ctx)
	if err != nil {
		return err
	}
	zone := app.displayTZ(cmd.String("tz"), "")
	grid := buildCoverage(snap.Jobs, timespec.LoadZone(zone), app.clock(), app.Settings.LeadTime, days)
	if app.JSON {
		return printJSON(app.Out, grid)
	}
	renderCoverage(app.Out, grid)
	return nil
}

type coverageCell struct {
	State string   `json:"state"` // scheduled | empty | past
	Jobs  []string `json:"jobs,omitempty"`
}

type coverageRow struct {
	Window string         `json:"window"`
	Cells  []coverageCell `json:"cells"`
}

type coverage struct {
	Days []string      `json:"days"`
	Rows []coverageRow `json:"rows"`
}

func buildCoverage(jobs []model.Job, loc *time.Location, now time.Time, lead time.Duration, days int) coverage {
	pending := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Status == model.StatusPending && !j.TimeUTC.IsZero() {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(a, b int) bool { return pending[a].TimeUTC.Before(pending[b].TimeUTC.Time) })

	local := now.In(loc)
	var cov coverage
	dates := make([]time.Time, days)
	for i := range dates {
		dates[i] = time.Date(local.Year(), local.Month(), local.Day()+i, 0, 0, 0, 0, loc)
		cov.Days = append(cov.Days, fmt.Sprintf("%s (%dd)", dates[i].Format("01-02"), i))
	}
	for _, w := range timespec.Windows() {
		row := coverageRow{Window: w.String()}
		for _, d := range dates {
			start, end := w.On(d.Year(), d.Month(), d.Day())
			cell := coverageCell{State: "empty"}
			for _, j := range pending {
				t := j.TimeUTC.Time
				if !t.Before(start) && t.Before(end) {
					cell.Jobs = append(cell.Jobs, j.ID)
				}
			}
			switch {
			case len(cell.Jobs) > 0:
				cell.State = "scheduled"
			case !end.After(now.Add(lead)):
				cell.State = "past"
			}
			row.Cells = append(row.Cells, cell)
		}
		cov.Rows = append(cov.Rows, row)
	}
	return cov
}

var coverageSymbols = map[string]string{"scheduled": "■", "empty": "□", "past": "·"}

func renderCoverage(w io.Writer, cov coverage) {
	header := []any{"Window"}
	for _, d := range cov.Days {
		header = append(header, d)
	}
	t := newTable(w, header...)
	for _, r := range cov.Rows {
		cells := []any{r.Window}
		for _, c := range r.Cells {
			cells = append(cells, coverageSymbols[c.State])
		}
		_ = t.Append(cells...)
	}
	_ = t.Render()
	fmt.Fprintf(w, "Legend: %s=scheduled  %s=empty  %s=past\n",
		coverageSymbols["scheduled"], coverageSymbols["empty"], coverageSymbols["past"])
}
