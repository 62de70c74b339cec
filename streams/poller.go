package streams

import (
	"context"
	"log/slog"
	"time"

	"github.com/Volcyy/nerodia/events"
	"github.com/Volcyy/nerodia/telemetry"
)

// FollowSource lists every stream followed by at least one subreddit.
type FollowSource interface {
	AllFollows(ctx context.Context) ([]string, error)
}

// LiveChecker reports whether a stream is broadcasting.
type LiveChecker interface {
	IsOnline(ctx context.Context, stream string) (bool, error)
}

// Heartbeat records that a job completed a round.
type Heartbeat interface {
	Touch(ctx context.Context, key string) error
}

// HeartbeatKey is the kv key the poller touches after each round.
const HeartbeatKey = "job_stream_poll_last"

// Poller detects online/offline transitions of followed streams and enqueues
// a StreamStatusChanged event for each one.
type Poller struct {
	Follows FollowSource
	Checker LiveChecker
	States  *StateStore
	Queue   *events.Queue
	// Heartbeat is optional.
	Heartbeat Heartbeat

	// StreamDelay is the pause between two stream checks, RoundDelay the
	// pause between two rounds.
	StreamDelay time.Duration
	RoundDelay  time.Duration
}

// Run polls until ctx is cancelled. Cancellation is checked between streams
// and between rounds; it always returns nil.
func (p *Poller) Run(ctx context.Context) error {
	logger := slog.Default().With(slog.String("component", "stream_poller"))
	logger.Info("stream poller starting", slog.Duration("stream_delay", p.StreamDelay), slog.Duration("round_delay", p.RoundDelay))
	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("stream poll round failed", slog.Any("err", err))
		}
		if !sleep(ctx, p.RoundDelay) {
			logger.Info("stream poller stopped")
			return nil
		}
	}
}

// PollOnce runs a single round over the current follow list. A failed check
// is logged and the stream skipped, leaving its stored state untouched. The
// returned error only reports a failure to fetch the follow list.
func (p *Poller) PollOnce(ctx context.Context) error {
	logger := slog.Default().With(slog.String("component", "stream_poller"))
	start := time.Now()

	follows, err := p.Follows.AllFollows(ctx)
	if err != nil {
		return err
	}

	transitions := 0
	for i, stream := range follows {
		if ctx.Err() != nil {
			return nil
		}
		if i > 0 && !sleep(ctx, p.StreamDelay) {
			return nil
		}
		online, err := p.Checker.IsOnline(ctx, stream)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			telemetry.Inc(telemetry.StreamCheckFailures)
			logger.Warn("stream status check failed", slog.String("stream", stream), slog.Any("err", err))
			continue
		}
		if p.States.Observe(stream, online) {
			transitions++
			telemetry.Inc(telemetry.StreamTransitions)
			logger.Info("stream status changed", slog.String("stream", stream), slog.Bool("online", online))
			p.Queue.Enqueue(events.StreamStatusChanged(stream))
		}
	}

	telemetry.SetStreamsOnline(len(p.States.OnlineSubset(follows)))
	if telemetry.StreamPollDuration != nil {
		telemetry.StreamPollDuration.Observe(time.Since(start).Seconds())
	}
	if p.Heartbeat != nil {
		if err := p.Heartbeat.Touch(ctx, HeartbeatKey); err != nil {
			logger.Debug("heartbeat write failed", slog.Any("err", err))
		}
	}
	logger.Debug("stream poll round complete", slog.Int("streams", len(follows)), slog.Int("transitions", transitions), slog.Duration("duration", time.Since(start)))
	return nil
}

// sleep waits for d or until ctx is done, reporting false in the latter case.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
