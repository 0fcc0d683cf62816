package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"xpost/internal/model"
	logx "xpost/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const (
	kindDelivery = "delivery"
	kindRun      = "run"
)

type sqliteJournal struct {
	db   *sql.DB
	path string
	log  logx.Logger
}

func openSQLiteJournal(cfg Config, log logx.Logger) (Journal, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, wrapErr("open", "", errors.New("sqlite path is required"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, wrapErr("mkdir", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapErr("open", path, err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	// Every append must survive a crash right after it returns.
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	j := &sqliteJournal{db: db, path: path, log: log}
	if err := j.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *sqliteJournal) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return wrapErr("migrate", j.path, err)
	}
	_, err = j.db.ExecContext(ctx, string(b))
	return wrapErr("migrate", j.path, err)
}

func (j *sqliteJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return wrapErr("close", j.path, j.db.Close())
}

func (j *sqliteJournal) Append(ctx context.Context, e model.Entry) error {
	body, err := model.EncodeEntry(e)
	if err != nil {
		return wrapErr("encode", j.path, err)
	}
	kind, id, key, tweetID := kindRun, "", "", ""
	switch v := e.(type) {
	case model.Delivery:
		kind, id, key, tweetID = kindDelivery, v.ID, v.Key(), v.TweetID
	case *model.Delivery:
		kind, id, key, tweetID = kindDelivery, v.ID, v.Key(), v.TweetID
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO journal(kind, id, idem_key, tweet_id, posted_at, body) VALUES(?,?,?,?,?,?)`,
		kind, nullStr(id), nullStr(key), nullStr(tweetID), nullStr(e.Timestamp()), string(body),
	)
	return wrapErr("append", j.path, err)
}

func (j *sqliteJournal) findOne(ctx context.Context, column, value string) (*model.Delivery, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var body string
	err := j.db.QueryRowContext(ctx,
		`SELECT body FROM journal WHERE kind = ? AND `+column+` = ? ORDER BY seq LIMIT 1`,
		kindDelivery, value,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("query", j.path, err)
	}
	e, err := model.DecodeEntry([]byte(body))
	if err != nil {
		return nil, nil
	}
	d, ok := e.(model.Delivery)
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (j *sqliteJournal) FindByIdempotencyKey(ctx context.Context, key string) (*model.Delivery, error) {
	return j.findOne(ctx, "idem_key", key)
}

func (j *sqliteJournal) FindByID(ctx context.Context, id string) (*model.Delivery, error) {
	return j.findOne(ctx, "id", id)
}

func (j *sqliteJournal) ReadSince(ctx context.Context, cutoff time.Time) ([]model.Entry, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT body FROM journal ORDER BY seq`)
	if err != nil {
		return nil, wrapErr("query", j.path, err)
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, wrapErr("scan", j.path, err)
		}
		e, err := model.DecodeEntry([]byte(body))
		if err != nil {
			continue
		}
		if keepSince(e, cutoff) {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("query", j.path, err)
	}
	sortEntries(out)
	return out, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
