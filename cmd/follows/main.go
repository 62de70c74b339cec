// Command follows manages the subscriber registry: which streams each
// subreddit's sidebar lists.
//
// Usage:
//
//	follows add <subreddit> <stream>
//	follows remove <subreddit> <stream>
//	follows list [subreddit]
//
// Environment Variables:
//
//	DB_DSN: Database connection string
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Volcyy/nerodia/config"
	"github.com/Volcyy/nerodia/db"
)

// Store is the registry surface the commands use.
type Store interface {
	AllFollows(ctx context.Context) ([]string, error)
	SubredditFollows(ctx context.Context, subreddit string) ([]string, error)
	AddFollow(ctx context.Context, subreddit, stream string) (bool, error)
	RemoveFollow(ctx context.Context, subreddit, stream string) (bool, error)
}

var errUsage = errors.New("usage: follows add|remove <subreddit> <stream> | follows list [subreddit]")

func main() {
	_ = godotenv.Load(".env")
	timeout := flag.Duration("timeout", 30*time.Second, "Give up after this long")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := db.Migrate(ctx, database); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}

	if err := run(ctx, &db.Registry{DB: database}, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, store Store, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch cmd, rest := args[0], args[1:]; cmd {
	case "add":
		if len(rest) != 2 {
			return errUsage
		}
		added, err := store.AddFollow(ctx, rest[0], rest[1])
		if err != nil {
			return fmt.Errorf("add follow: %w", err)
		}
		if !added {
			fmt.Fprintf(out, "/r/%s already follows %s\n", rest[0], rest[1])
			return nil
		}
		fmt.Fprintf(out, "/r/%s now follows %s\n", rest[0], rest[1])
	case "remove":
		if len(rest) != 2 {
			return errUsage
		}
		removed, err := store.RemoveFollow(ctx, rest[0], rest[1])
		if err != nil {
			return fmt.Errorf("remove follow: %w", err)
		}
		if !removed {
			return fmt.Errorf("/r/%s does not follow %s", rest[0], rest[1])
		}
		fmt.Fprintf(out, "/r/%s no longer follows %s\n", rest[0], rest[1])
	case "list":
		var (
			follows []string
			err     error
		)
		switch len(rest) {
		case 0:
			follows, err = store.AllFollows(ctx)
		case 1:
			follows, err = store.SubredditFollows(ctx, rest[0])
		default:
			return errUsage
		}
		if err != nil {
			return fmt.Errorf("list follows: %w", err)
		}
		if len(follows) > 0 {
			fmt.Fprintln(out, strings.Join(follows, "\n"))
		}
	default:
		return errUsage
	}
	return nil
}
