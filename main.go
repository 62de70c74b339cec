// Command nerodia runs the stream-to-sidebar bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs migrations.
//   - Verifies the Reddit and Twitch credentials once at startup.
//   - Starts the stream poller and the inbox poller, which feed a single
//     event consumer that rewrites sidebars and answers inbox messages.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics, the
//     account-linking endpoints and admin follow management.
//
// Shutdown is graceful on SIGINT/SIGTERM: pollers stop first, then the
// consumer drains the events already queued.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Volcyy/nerodia/config"
	"github.com/Volcyy/nerodia/db"
	"github.com/Volcyy/nerodia/events"
	"github.com/Volcyy/nerodia/inbox"
	"github.com/Volcyy/nerodia/linking"
	"github.com/Volcyy/nerodia/reddit"
	"github.com/Volcyy/nerodia/server"
	"github.com/Volcyy/nerodia/sidebar"
	"github.com/Volcyy/nerodia/streams"
	"github.com/Volcyy/nerodia/telemetry"
	"github.com/Volcyy/nerodia/twitchapi"
	"github.com/Volcyy/nerodia/worker"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	setupLogging()

	if err := run(); err != nil {
		slog.Error("nerodia exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

// run wires the bot and blocks until SIGINT/SIGTERM. It never exits the
// process itself, so its deferred shutdowns always run.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if err := cfg.ValidateRedditReady(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateTwitchReady(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(cfg.OTLPEndpoint, "nerodia", version)
	if err != nil {
		return fmt.Errorf("tracing initialization: %w", err)
	}
	defer shutdownTracing()

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; the idempotent embedded schema is the fallback.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded schema",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			return fmt.Errorf("migrate db: %w", err)
		}
	}
	registry := &db.Registry{DB: database}

	httpClient := &http.Client{Timeout: 15 * time.Second}

	// Credentials are checked once; a bot that cannot log in must not start.
	appTokens := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret, HTTPClient: httpClient}
	helix := &twitchapi.HelixClient{AppTokenSource: appTokens, ClientID: cfg.TwitchClientID, HTTPClient: httpClient}
	redditClient := reddit.New(reddit.Config{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		UserAgent:    cfg.RedditUserAgent,
		Timeout:      15 * time.Second,
	}, nil)
	botName, err := checkCredentials(context.Background(), appTokens, redditClient)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	states := streams.NewStateStore()
	queue := events.NewQueue()
	links := linking.NewRegistry(cfg.VerifyTimeout)

	updater := &sidebar.Updater{Registry: registry, Docs: redditClient, States: states, Header: cfg.SidebarHeader}
	inboxPoller := &inbox.Poller{
		Inbox:     redditClient,
		Queue:     queue,
		Links:     links,
		Heartbeat: registry,
		Interval:  cfg.InboxPollInterval,
	}
	streamPoller := &streams.Poller{
		Follows:     registry,
		Checker:     helix,
		States:      states,
		Queue:       queue,
		Heartbeat:   registry,
		StreamDelay: cfg.StreamCheckDelay,
		RoundDelay:  cfg.StreamPollInterval,
	}
	lifecycle := &worker.Lifecycle{
		Queue: queue,
		Producers: map[string]worker.Runner{
			"stream_poller": streamPoller,
			"inbox_poller":  inboxPoller,
		},
		Consumer: &worker.Consumer{Queue: queue, Streams: updater, Messages: inboxPoller},
	}

	go func() {
		deps := server.Deps{
			DB:               database,
			Heartbeats:       registry,
			Follows:          registry,
			Sidebars:         updater,
			States:           states,
			Queue:            queue,
			Links:            links,
			BotName:          botName,
			HeartbeatKeys:    []string{streams.HeartbeatKey, inbox.HeartbeatKey},
			MaxHeartbeatAge:  cfg.ReadyMaxHeartbeatAge,
			LinkPollInterval: time.Second,
		}
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	if err := lifecycle.Run(ctx); err != nil {
		return fmt.Errorf("workers: %w", err)
	}
	slog.Info("shut down")
	return nil
}

// appTokenGetter fetches a Twitch app access token.
type appTokenGetter interface {
	Get(ctx context.Context) (string, error)
}

// identity reports the logged-in Reddit account.
type identity interface {
	Me(ctx context.Context) (string, error)
}

// checkCredentials fetches a Twitch app token and the Reddit identity. It
// returns the bot's Reddit name.
func checkCredentials(ctx context.Context, appTokens appTokenGetter, rc identity) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	tok, err := appTokens.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("twitch app token fetch: %w", err)
	}
	if len(tok) > 6 {
		slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
	}

	name, err := rc.Me(ctx)
	if err != nil {
		return "", fmt.Errorf("reddit login: %w", err)
	}
	slog.Info("reddit login succeeded", slog.String("user", name))
	return name, nil
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}
