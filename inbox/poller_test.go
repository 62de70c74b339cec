package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/Volcyy/nerodia/events"
	"github.com/Volcyy/nerodia/reddit"
)

type keyRecorder struct{ keys chan string }

func (k keyRecorder) Touch(_ context.Context, key string) error {
	select {
	case k.keys <- key:
	default:
	}
	return nil
}

func TestRunPollsUntilCancelled(t *testing.T) {
	box := newFakeInbox(reddit.Message{Name: "t4_1"})
	hb := keyRecorder{keys: make(chan string, 16)}
	p := &Poller{Inbox: box, Queue: events.NewQueue(), Heartbeat: hb, Interval: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case key := <-hb.keys:
		if key != HeartbeatKey {
			t.Errorf("heartbeat key = %q", key)
		}
	case <-time.After(time.Second):
		t.Fatal("no poll round completed")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	if p.Queue.Len() != 1 {
		t.Errorf("queue length = %d, want the message exactly once", p.Queue.Len())
	}
}
