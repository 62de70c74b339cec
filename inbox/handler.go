package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Volcyy/nerodia/apierr"
	"github.com/Volcyy/nerodia/reddit"
	"github.com/Volcyy/nerodia/telemetry"
)

// Linker is the part of the account-linking registry verification needs.
type Linker interface {
	MatchToken(token string) (userID string, ok bool)
	MarkVerified(userID, redditName string)
}

// MessageKind is what a message is, judged by subject and body.
type MessageKind int

const (
	KindOther MessageKind = iota
	KindVerification
	KindModInvite
)

func (k MessageKind) String() string {
	switch k {
	case KindVerification:
		return "verification"
	case KindModInvite:
		return "mod_invite"
	default:
		return "other"
	}
}

const (
	verificationSubject = "verification"
	// Reddit's moderator invite messages open with this.
	modInvitePrefix = "**gadzooks!"

	replyVerified = "You have connected your accounts successfully!"
)

// Classify sorts msg by its subject and body prefix.
func Classify(msg reddit.Message) MessageKind {
	switch {
	case msg.Subject == verificationSubject:
		return KindVerification
	case strings.HasPrefix(msg.Body, modInvitePrefix):
		return KindModInvite
	default:
		return KindOther
	}
}

// HandleMessage processes one inbound message and then marks it read. If
// handling failed with a retryable error the message is left unread so a
// later round picks it up again.
func (p *Poller) HandleMessage(ctx context.Context, msg reddit.Message) error {
	defer p.release(msg.Name)
	kind := Classify(msg)
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "inbox"),
		slog.String("id", msg.Name),
		slog.String("kind", kind.String()),
	)

	var err error
	switch kind {
	case KindVerification:
		err = p.verify(ctx, msg, logger)
	case KindModInvite:
		err = p.acceptInvite(ctx, msg, logger)
	default:
		from := msg.Author
		if from == "" {
			from = "/r/" + msg.Subreddit
		}
		logger.Info("ignoring message", slog.String("from", from), slog.String("subject", msg.Subject))
	}
	if err != nil {
		telemetry.Inc(telemetry.InboxFailures)
		if apierr.IsRetryable(err) {
			logger.Warn("message handling failed; leaving unread", slog.Any("err", err))
			return err
		}
		logger.Warn("message handling failed", slog.Any("err", err))
	}

	if markErr := p.Inbox.MarkRead(ctx, msg); markErr != nil {
		return fmt.Errorf("mark read %s: %w", msg.Name, markErr)
	}
	return err
}

// verify links the sender's Reddit account to the user a pending token was
// issued to and tells the sender how it went.
func (p *Poller) verify(ctx context.Context, msg reddit.Message, logger *slog.Logger) error {
	userID, ok := p.Links.MatchToken(msg.Body)
	if !ok {
		logger.Info("verification with unknown token", slog.String("author", msg.Author))
		return p.Inbox.Reply(ctx, msg, unknownTokenReply(msg.Body))
	}
	// The token stays pending until the confirmation is out, so a redelivered
	// message after a retryable reply failure still matches it.
	err := p.Inbox.Reply(ctx, msg, replyVerified)
	if err != nil && apierr.IsRetryable(err) {
		return err
	}
	p.Links.MarkVerified(userID, msg.Author)
	logger.Info("account verified", slog.String("user_id", userID), slog.String("author", msg.Author))
	return err
}

func unknownTokenReply(body string) string {
	return "> " + body + "\n\nFailed to connect accounts: Unknown token."
}

func (p *Poller) acceptInvite(ctx context.Context, msg reddit.Message, logger *slog.Logger) error {
	if err := p.Inbox.AcceptModInvite(ctx, msg.Subreddit); err != nil {
		return fmt.Errorf("accept invite to %s: %w", msg.Subreddit, err)
	}
	logger.Info("accepted moderator invitation", slog.String("subreddit", msg.Subreddit))
	return nil
}
