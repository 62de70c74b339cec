// Package worker runs the event consumer and ties the producers and the
// consumer together under one lifecycle.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Volcyy/nerodia/events"
	"github.com/Volcyy/nerodia/reddit"
	"github.com/Volcyy/nerodia/telemetry"
)

// StreamHandler reacts to a stream going online or offline.
type StreamHandler interface {
	HandleStreamUpdate(ctx context.Context, stream string) error
}

// MessageHandler processes one inbox message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg reddit.Message) error
}

// Consumer drains the queue on a single goroutine and dispatches every event
// in arrival order. Handler errors are logged; they never stop the loop.
type Consumer struct {
	Queue    *events.Queue
	Streams  StreamHandler
	Messages MessageHandler
}

// Run dispatches events until it dequeues the Shutdown sentinel or ctx is
// cancelled. Events queued behind the sentinel are left in the queue.
func (c *Consumer) Run(ctx context.Context) error {
	logger := slog.Default().With(slog.String("component", "consumer"))
	logger.Info("consumer ready")
	for {
		ev, err := c.Queue.Dequeue(ctx)
		if err != nil {
			logger.Info("consumer stopped", slog.Any("reason", err))
			return nil
		}
		if ev.Kind == events.KindShutdown {
			logger.Info("consumer stopped", slog.Int("left_in_queue", c.Queue.Len()))
			return nil
		}
		c.dispatch(ctx, ev)
	}
}

func (c *Consumer) dispatch(ctx context.Context, ev events.Event) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "consumer."+ev.Kind.String(), attribute.String("event.kind", ev.Kind.String()))
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "consumer"), slog.String("kind", ev.Kind.String()))

	var err error
	switch ev.Kind {
	case events.KindStreamStatusChanged:
		logger.Info("stream status updated", slog.String("stream", ev.Stream))
		if c.Streams != nil {
			err = c.Streams.HandleStreamUpdate(ctx, ev.Stream)
		}
	case events.KindInboundMessage:
		logger.Info("new message", slog.String("id", ev.Message.Name), slog.String("author", ev.Message.Author))
		if c.Messages != nil {
			err = c.Messages.HandleMessage(ctx, ev.Message)
		}
	default:
		err = fmt.Errorf("unknown event kind %d", int(ev.Kind))
	}
	if err != nil {
		logger.Warn("event handler failed", slog.Any("err", err))
	}
	telemetry.RecordProcessed(ev.Kind.String())
	telemetry.EndSpan(span, err)
}
