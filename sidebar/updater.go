package sidebar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Volcyy/nerodia/streams"
	"github.com/Volcyy/nerodia/telemetry"
)

// Registry answers which subreddits follow which streams.
type Registry interface {
	SubredditsFollowing(ctx context.Context, stream string) ([]string, error)
	SubredditFollows(ctx context.Context, subreddit string) ([]string, error)
}

// Documents reads and writes subreddit sidebars.
type Documents interface {
	ReadSidebar(ctx context.Context, subreddit string) (string, error)
	WriteSidebar(ctx context.Context, subreddit, text string) error
}

// Updater rewrites the sidebars affected by a stream's status change.
type Updater struct {
	Registry Registry
	Docs     Documents
	States   *streams.StateStore
	// Header defaults to DefaultHeader.
	Header string
}

// HandleStreamUpdate syncs the sidebar of every subreddit following stream.
// A failing subreddit does not stop the others; all failures are returned
// joined.
func (u *Updater) HandleStreamUpdate(ctx context.Context, stream string) error {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "sidebar"), slog.String("stream", stream))
	subs, err := u.Registry.SubredditsFollowing(ctx, stream)
	if err != nil {
		return fmt.Errorf("subscribers of %s: %w", stream, err)
	}
	logger.Info("stream status update", slog.Int("subreddits", len(subs)))

	var errs []error
	for _, sub := range subs {
		if err := u.Sync(ctx, sub); err != nil {
			logger.Warn("sidebar sync failed", slog.String("subreddit", sub), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("%s: %w", sub, err))
		}
	}
	return errors.Join(errs...)
}

// Sync recomputes the stream list of one subreddit and writes the sidebar
// back if it changed. Subreddits whose sidebar has no header are skipped.
func (u *Updater) Sync(ctx context.Context, subreddit string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "sidebar.sync", attribute.String("subreddit", subreddit))
	start := time.Now()
	defer func() {
		if telemetry.SidebarSyncDuration != nil {
			telemetry.SidebarSyncDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			telemetry.Inc(telemetry.SidebarUpdateFailures)
		}
		telemetry.EndSpan(span, err)
	}()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "sidebar"), slog.String("subreddit", subreddit))

	follows, err := u.Registry.SubredditFollows(ctx, subreddit)
	if err != nil {
		return fmt.Errorf("follows: %w", err)
	}
	sorted := append([]string(nil), follows...)
	sort.Strings(sorted)
	online := u.States.OnlineSubset(sorted)

	current, err := u.Docs.ReadSidebar(ctx, subreddit)
	if err != nil {
		return fmt.Errorf("read sidebar: %w", err)
	}
	header := u.Header
	if header == "" {
		header = DefaultHeader
	}
	updated, configured := Synchronize(current, header, online)
	if !configured {
		logger.Info("subreddit follows streams but its sidebar has no header", slog.String("header", header))
		return nil
	}
	if updated == current {
		logger.Debug("sidebar already up to date")
		return nil
	}
	if err := u.Docs.WriteSidebar(ctx, subreddit, updated); err != nil {
		return fmt.Errorf("write sidebar: %w", err)
	}
	telemetry.Inc(telemetry.SidebarUpdates)
	logger.Info("sidebar updated", slog.Int("online", len(online)))
	return nil
}
