// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Event pipeline
	EventsEnqueued  *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	EventQueueDepth prometheus.Gauge

	// Stream poller
	StreamTransitions   prometheus.Counter
	StreamCheckFailures prometheus.Counter
	StreamsOnline       prometheus.Gauge
	StreamPollDuration  prometheus.Observer

	// Inbox poller
	InboxMessages prometheus.Counter
	InboxFailures prometheus.Counter

	// Sidebar
	SidebarUpdates        prometheus.Counter
	SidebarUpdateFailures prometheus.Counter
	SidebarSyncDuration   prometheus.Observer
)

// Init registers metrics (idempotent). Helpers below are no-ops until it ran.
func Init() {
	once.Do(func() {
		EventsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{Name: "nerodia_events_enqueued_total", Help: "Events put on the queue by kind"}, []string{"kind"})
		EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "nerodia_events_processed_total", Help: "Events dispatched by the consumer by kind"}, []string{"kind"})
		EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{Name: "nerodia_event_queue_depth", Help: "Events waiting for the consumer"})
		StreamTransitions = promauto.NewCounter(prometheus.CounterOpts{Name: "nerodia_stream_transitions_total", Help: "Observed online/offline transitions"})
		StreamCheckFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "nerodia_stream_check_failures_total", Help: "Failed live-status checks"})
		StreamsOnline = promauto.NewGauge(prometheus.GaugeOpts{Name: "nerodia_streams_online", Help: "Followed streams currently online"})
		StreamPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "nerodia_stream_poll_round_duration_seconds", Help: "Duration of one stream polling round", Buckets: prometheus.DefBuckets})
		InboxMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "nerodia_inbox_messages_total", Help: "Unread inbox messages picked up"})
		InboxFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "nerodia_inbox_failures_total", Help: "Failed inbox fetches or message handlers"})
		SidebarUpdates = promauto.NewCounter(prometheus.CounterOpts{Name: "nerodia_sidebar_updates_total", Help: "Sidebars rewritten"})
		SidebarUpdateFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "nerodia_sidebar_update_failures_total", Help: "Failed sidebar reads or writes"})
		SidebarSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "nerodia_sidebar_sync_duration_seconds", Help: "Duration of one subreddit sidebar sync", Buckets: prometheus.DefBuckets})
	})
}

// RecordEnqueued counts an enqueued event and records the new depth.
func RecordEnqueued(kind string, depth int) {
	if EventsEnqueued != nil {
		EventsEnqueued.WithLabelValues(kind).Inc()
	}
	SetQueueDepth(depth)
}

// RecordProcessed counts an event dispatched by the consumer.
func RecordProcessed(kind string) {
	if EventsProcessed != nil {
		EventsProcessed.WithLabelValues(kind).Inc()
	}
}

// SetQueueDepth records the current number of queued events.
func SetQueueDepth(n int) {
	if EventQueueDepth != nil {
		EventQueueDepth.Set(float64(n))
	}
}

// SetStreamsOnline records how many followed streams are live.
func SetStreamsOnline(n int) {
	if StreamsOnline != nil {
		StreamsOnline.Set(float64(n))
	}
}

// Inc increments c if it was registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
