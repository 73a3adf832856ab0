// Package notify delivers the out-of-band messages produced by the auth
// flows: account confirmation links and password reset links. Transport is
// the caller's concern; implement [Notifier] to plug in mail, SMS or a queue.
package notify

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/logging"
)

// Kind identifies the message template.
type Kind string

const (
	KindEmailVerification Kind = "email-verification"
	KindPasswordReset     Kind = "password-reset"
)

// Message is one outbound notification. Link carries the one-time code and
// must be treated as a secret by transports.
type Message struct {
	Kind      Kind
	To        string
	Name      string
	Subject   string
	Link      string
	ExpiresAt time.Time
}

// Notifier sends messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Subject returns the default subject line for a message kind.
func Subject(kind Kind) string {
	switch kind {
	case KindEmailVerification:
		return "Confirm your account"
	case KindPasswordReset:
		return "Reset your password"
	default:
		return "Notification"
	}
}

// LogNotifier writes messages to a logger instead of delivering them. It is
// the development default. Links are logged in full, so never use it where
// logs leave the machine.
type LogNotifier struct {
	log logging.Logger
}

// NewLogNotifier returns a [LogNotifier]. A nil logger uses slog.Default().
func NewLogNotifier(log logging.Logger) *LogNotifier {
	if log == nil {
		log = logging.NewSlogLogger(nil)
	}
	return &LogNotifier{log: log.With("source", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.log.Info(ctx, "notification",
		"kind", string(msg.Kind),
		"to", msg.To,
		"subject", msg.Subject,
		"link", msg.Link,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
