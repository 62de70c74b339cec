package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Volcyy/nerodia/events"
)

// Runner is a long-running producer. Run must return once ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Lifecycle starts the producers and the consumer and stops them together.
type Lifecycle struct {
	Queue     *events.Queue
	Producers map[string]Runner
	Consumer  *Consumer
}

// Run starts every worker and blocks until ctx is cancelled and all of them
// have returned. On cancellation the producers see their context end, then
// Shutdown is enqueued so the consumer finishes the events already queued
// before exiting. The consumer's own context is not cancelled.
func (l *Lifecycle) Run(ctx context.Context) error {
	logger := slog.Default().With(slog.String("component", "lifecycle"))

	producerCtx, cancelProducers := context.WithCancel(ctx)
	defer cancelProducers()

	var producers errgroup.Group
	for name, p := range l.Producers {
		name, p := name, p
		producers.Go(func() error {
			logger.Info("worker starting", slog.String("worker", name))
			err := p.Run(producerCtx)
			logger.Info("worker stopped", slog.String("worker", name))
			return err
		})
	}

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- l.Consumer.Run(context.WithoutCancel(ctx))
	}()

	<-ctx.Done()
	logger.Info("stopping workers")
	cancelProducers()
	perr := producers.Wait()
	// Producers have stopped, so nothing lands behind the sentinel.
	l.Queue.Enqueue(events.Shutdown())
	cerr := <-consumerDone
	logger.Info("all workers stopped")
	if perr != nil {
		return perr
	}
	return cerr
}
