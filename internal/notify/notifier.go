// Package notify delivers operator alerts over one or more channels
// (Telegram, Discord). Alerts are filtered by event type so operators only
// receive what they asked for; delivery failures never affect trading.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types emitted by the engine.
const (
	EventPairOpened = "pair_opened"
	EventPairClosed = "pair_closed"
	EventSingleLeg  = "single_leg"
	EventFatalError = "fatal_error"
)

// Sender is one notification channel. The event type is passed through so a
// sender can shape its payload per event (severity markers, embed colors).
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, event, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// eventTag maps an event type to the marker rendered ahead of the title in
// text-based channels.
func eventTag(event string) string {
	switch event {
	case EventPairOpened:
		return "[OPEN]"
	case EventPairClosed:
		return "[CLOSE]"
	case EventSingleLeg:
		return "[SINGLE LEG]"
	case EventFatalError:
		return "[FATAL]"
	default:
		return ""
	}
}

// Notifier dispatches notifications to its senders, filtered by event type.
// An empty event list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only events
// listed in events are forwarded; an empty list allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders when the event type is allowed.
// A nil Notifier is a no-op so callers never have to nil-check.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, event, title, message)
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, event, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, event, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
