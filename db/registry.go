package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Registry stores which subreddit follows which stream, plus the kv
// heartbeats of the background jobs. Names are stored lower-case.
type Registry struct {
	DB *sql.DB
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) queryStrings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AllFollows returns every stream followed by at least one subreddit.
func (r *Registry) AllFollows(ctx context.Context) ([]string, error) {
	out, err := r.queryStrings(ctx, `SELECT DISTINCT stream FROM stream_follows ORDER BY stream`)
	if err != nil {
		return nil, fmt.Errorf("all follows: %w", err)
	}
	return out, nil
}

// SubredditsFollowing returns the subreddits following stream.
func (r *Registry) SubredditsFollowing(ctx context.Context, stream string) ([]string, error) {
	out, err := r.queryStrings(ctx, `SELECT subreddit FROM stream_follows WHERE stream=$1 ORDER BY subreddit`, normalize(stream))
	if err != nil {
		return nil, fmt.Errorf("subreddits following %s: %w", stream, err)
	}
	return out, nil
}

// SubredditFollows returns the streams subreddit follows, alphabetically.
func (r *Registry) SubredditFollows(ctx context.Context, subreddit string) ([]string, error) {
	out, err := r.queryStrings(ctx, `SELECT stream FROM stream_follows WHERE subreddit=$1 ORDER BY stream`, normalize(subreddit))
	if err != nil {
		return nil, fmt.Errorf("follows of %s: %w", subreddit, err)
	}
	return out, nil
}

// AddFollow makes subreddit follow stream. Adding an existing follow is a
// no-op; it reports whether a row was inserted.
func (r *Registry) AddFollow(ctx context.Context, subreddit, stream string) (bool, error) {
	sub, st := normalize(subreddit), normalize(stream)
	if sub == "" || st == "" {
		return false, errors.New("subreddit and stream are required")
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO stream_follows (subreddit, stream) VALUES ($1,$2) ON CONFLICT DO NOTHING`, sub, st)
	if err != nil {
		return false, fmt.Errorf("add follow: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveFollow drops a follow and reports whether it existed.
func (r *Registry) RemoveFollow(ctx context.Context, subreddit, stream string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM stream_follows WHERE subreddit=$1 AND stream=$2`, normalize(subreddit), normalize(stream))
	if err != nil {
		return false, fmt.Errorf("remove follow: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Touch records the current time under key.
func (r *Registry) Touch(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ($1, to_char(NOW() AT TIME ZONE 'UTC','YYYY-MM-DD"T"HH24:MI:SS.MS"Z"'), NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key)
	return err
}

// LastTouched returns when key was last touched; ok is false if never.
func (r *Registry) LastTouched(ctx context.Context, key string) (t time.Time, ok bool, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT updated_at FROM kv WHERE key=$1`, key).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
