// Package inbox polls the bot's Reddit inbox and handles what arrives there:
// account verification messages and moderator invites.
package inbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Volcyy/nerodia/events"
	"github.com/Volcyy/nerodia/reddit"
	"github.com/Volcyy/nerodia/telemetry"
)

// Inbox is the messaging side of the Reddit client.
type Inbox interface {
	FetchUnread(ctx context.Context) ([]reddit.Message, error)
	MarkRead(ctx context.Context, msgs ...reddit.Message) error
	Reply(ctx context.Context, msg reddit.Message, text string) error
	AcceptModInvite(ctx context.Context, subreddit string) error
}

// Heartbeat records that a job completed a round.
type Heartbeat interface {
	Touch(ctx context.Context, key string) error
}

// HeartbeatKey is the kv key the poller touches after each round.
const HeartbeatKey = "job_inbox_poll_last"

// Poller fetches unread messages and enqueues one InboundMessage event per
// message. Messages stay unread until HandleMessage processed them; while a
// message is queued it is not enqueued again by later rounds.
type Poller struct {
	Inbox Inbox
	Queue *events.Queue
	Links Linker
	// Heartbeat is optional.
	Heartbeat Heartbeat
	Interval  time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
}

// Run polls until ctx is cancelled; it always returns nil.
func (p *Poller) Run(ctx context.Context) error {
	logger := slog.Default().With(slog.String("component", "inbox_poller"))
	logger.Info("inbox poller starting", slog.Duration("interval", p.Interval))
	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			telemetry.Inc(telemetry.InboxFailures)
			logger.Warn("inbox poll failed", slog.Any("err", err))
		}
		t := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			logger.Info("inbox poller stopped")
			return nil
		case <-t.C:
		}
	}
}

// PollOnce fetches the unread messages once and enqueues the new ones in the
// order Reddit returned them.
func (p *Poller) PollOnce(ctx context.Context) error {
	msgs, err := p.Inbox.FetchUnread(ctx)
	if err != nil {
		return err
	}
	logger := slog.Default().With(slog.String("component", "inbox_poller"))
	for _, msg := range msgs {
		if !p.claim(msg.Name) {
			continue
		}
		telemetry.Inc(telemetry.InboxMessages)
		logger.Debug("new message", slog.String("id", msg.Name), slog.String("author", msg.Author), slog.String("subject", msg.Subject))
		p.Queue.Enqueue(events.InboundMessage(msg))
	}
	if p.Heartbeat != nil {
		if err := p.Heartbeat.Touch(ctx, HeartbeatKey); err != nil {
			logger.Debug("heartbeat write failed", slog.Any("err", err))
		}
	}
	return nil
}

// claim marks name as in flight, reporting false if it already was.
func (p *Poller) claim(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		p.pending = make(map[string]struct{})
	}
	if _, ok := p.pending[name]; ok {
		return false
	}
	p.pending[name] = struct{}{}
	return true
}

func (p *Poller) release(name string) {
	p.mu.Lock()
	delete(p.pending, name)
	p.mu.Unlock()
}

// InFlight returns the number of messages enqueued but not yet handled.
func (p *Poller) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
