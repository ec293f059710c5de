// Package notifier sends best-effort chat notifications for the
// lifecycle events the state machine cares about. Failures are always
// recoverable (errkind.Notifier) and swallowed by the caller — the
// state machine must never stall or abort because a notification
// could not be delivered.
package notifier

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/launchwatch/monitor/internal/errkind"
)

// Notifier is the external chat-bot collaborator; actual delivery
// (webhook, bot API) is out of scope here — only the interface the
// state machine consumes lives in this package.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Noop is a Notifier that does nothing, used when no chat webhook is
// configured.
type Noop struct{}

func (Noop) Notify(context.Context, string) error { return nil }

// Logging wraps an underlying Notifier, logging and swallowing any
// error it returns so callers never need their own error handling for
// notification failures.
type Logging struct {
	Underlying Notifier
	Log        zerolog.Logger
}

// Notify delivers message, logging (never propagating) any failure.
func (l *Logging) Notify(ctx context.Context, message string) {
	if l.Underlying == nil {
		return
	}
	if err := l.Underlying.Notify(ctx, message); err != nil {
		l.Log.Warn().Err(errkind.NewNotifier(err)).Msg("notification delivery failed")
	}
}
