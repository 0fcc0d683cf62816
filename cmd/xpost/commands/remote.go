package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"xpost/internal/jobs"
	"xpost/internal/model"
	"xpost/internal/poster"
	"xpost/internal/proofread"
)

// TweetAction looks up the remote post behind an internal id (scheduled job
// or immediate delivery). A bare numeric id is treated as a post id.
func TweetAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	id, err := idArg(cmd)
	if err != nil {
		return err
	}

	tweetID, source, err := app.resolveTweetID(ctx, id)
	if err != nil {
		return err
	}
	if tweetID == "" {
		return nil
	}

	raw, err := app.Poster().Get(ctx, tweetID)
	if err != nil {
		if app.JSON {
			_ = printJSON(app.Out, map[string]any{"ok": false, "error": err.Error()})
			return silentExit(ExitFailure)
		}
		return fmt.Errorf("lookup failed: %w", err)
	}
	if app.JSON {
		return printJSON(app.Out, raw)
	}
	var resp struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	_ = json.Unmarshal(raw, &resp)
	if resp.Data.ID != "" {
		tweetID = resp.Data.ID
	}
	w := app.Out
	fmt.Fprintf(w, "Internal ID: %s  Source: %s\n", id, source)
	fmt.Fprintf(w, "Tweet ID: %s\n", tweetID)
	fmt.Fprintf(w, "URL: %s\n", tweetURL(tweetID))
	fmt.Fprintf(w, "Text:\n%s\n", resp.Data.Text)
	return nil
}

// resolveTweetID returns "" (and prints why) for a job that has not been posted.
func (a *AppContext) resolveTweetID(ctx context.Context, id string) (tweetID, source string, err error) {
	job, ok, err := a.Jobs().Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	if ok {
		if tid := job.TweetID(); tid != "" {
			return tid, model.SourceScheduled, nil
		}
		msg := job.Error()
		switch {
		case job.Status == model.StatusPending:
			msg = "not posted yet"
		case msg == "":
			msg = "no tweet id"
		}
		if a.JSON {
			return "", "", printJSON(a.Out, job)
		}
		fmt.Fprintln(a.Out, msg)
		return "", "", nil
	}

	j, err := a.Journal()
	if err != nil {
		return "", "", err
	}
	d, err := j.FindByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	if d != nil {
		if d.TweetID == "" {
			return "", "", fmt.Errorf("no tweet id recorded for %s", id)
		}
		return d.TweetID, d.Source, nil
	}
	if isDigits(id) {
		return id, "remote", nil
	}
	return "", "", fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// AuthAction reports which credentials are configured. No network call.
func AuthAction(ctx context.Context, _ *cli.Command) error {
	app := appFrom(ctx)
	endpoint := app.Settings.PostEndpoint
	if endpoint == "" {
		endpoint = poster.DefaultEndpoint
	}
	st := poster.Status(endpoint, app.PosterCredentials())
	if app.JSON {
		return printJSON(app.Out, st)
	}
	w := app.Out
	fmt.Fprintln(w, "Auth configuration")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "endpoint: %s\n", st.Endpoint)
	fmt.Fprintln(w, "oauth1:")
	for _, k := range []string{"API_KEY", "API_SECRET", "ACCESS_TOKEN", "ACCESS_TOKEN_SECRET"} {
		mark := "missing"
		if st.OAuth1[k] {
			mark = "present"
		}
		fmt.Fprintf(w, "  %s: %s\n", k, mark)
	}
	fmt.Fprintf(w, "oauth1_complete: %t\n", st.OAuth1Complete)
	fmt.Fprintf(w, "bearer_present: %s\n", yesNo(st.BearerPresent))
	fmt.Fprintf(w, "oauth2_client_present: %s\n", yesNo(st.OAuth2ClientPresent))
	if len(st.Notes) > 0 {
		fmt.Fprintln(w, "notes:")
		for _, n := range st.Notes {
			fmt.Fprintf(w, "  - %s\n", n)
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ProofreadAction rewrites a draft for X. The draft comes from --text,
// positional words, or stdin.
func ProofreadAction(ctx context.Context, cmd *cli.Command) error {
	app := appFrom(ctx)
	draft := strings.TrimSpace(textArg(cmd))
	if draft == "" && cmd.Root().Reader != nil && !isatty.IsTerminal(os.Stdin.Fd()) {
		b, err := io.ReadAll(cmd.Root().Reader)
		if err != nil {
			return err
		}
		draft = strings.TrimSpace(string(b))
	}
	if draft == "" {
		return usageErrorf("--text is required (or provide via stdin)")
	}

	modelName := cmd.String("model")
	if modelName == "" {
		modelName = app.Settings.ProofreadModel
	}
	client, err := proofread.New(proofread.Config{
		APIKey:  app.Creds.OpenAIKey,
		Model:   modelName,
		BaseURL: app.Settings.ProofreadBaseURL,
		Timeout: app.Settings.ProofreadTimeout,
	})
	if err != nil {
		return err
	}
	out, err := client.Rewrite(ctx, draft)
	if err != nil {
		if app.JSON {
			_ = printJSON(app.Out, map[string]any{"ok": false, "error": err.Error()})
			return silentExit(ExitFailure)
		}
		return fmt.Errorf("proofread failed: %w", err)
	}
	words, chars := proofread.Counts(out)
	if app.JSON {
		return printJSON(app.Out, map[string]any{"ok": true, "text": out, "words": words, "chars": chars, "model": client.Model()})
	}
	w := app.Out
	fmt.Fprintln(w, "Proofread Draft")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, out)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "words=%d chars=%d", words, chars)
	if chars > proofread.MaxPostChars {
		fmt.Fprintf(w, " (over %d)", proofread.MaxPostChars)
	}
	fmt.Fprintln(w)
	return nil
}
