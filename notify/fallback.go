package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keyfate/keyfate/interfaces"
)

// ErrNoChannel is returned when no configured channel can reach the user.
var ErrNoChannel = errors.New("no notification channel available for user")

// Fallback tries channels in a fixed preference order and stops at the
// first success, so each firing produces at most one delivery. A channel is
// only attempted when the resolver knows a matching contact point for the
// user.
type Fallback struct {
	channels []interfaces.Channel
	resolver interfaces.ContactResolver
	log      *slog.Logger
}

// NewFallback creates a fallback sender. Channel order is the preference
// order.
func NewFallback(resolver interfaces.ContactResolver, log *slog.Logger, channels ...interfaces.Channel) *Fallback {
	return &Fallback{
		channels: channels,
		resolver: resolver,
		log:      log,
	}
}

// Send delivers the notification to the user over the first channel that
// accepts it. It returns the kind of the channel that delivered and the
// channel's message id. When every candidate fails, the last failure is
// returned; when the user has no contact point for any channel, ErrNoChannel.
func (f *Fallback) Send(ctx context.Context, userID string, n interfaces.Notification) (interfaces.ChannelKind, string, error) {
	contacts, err := f.resolver.Resolve(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve contacts for user %s: %w", userID, err)
	}

	byKind := make(map[interfaces.ChannelKind]interfaces.ContactPoint, len(contacts))
	for _, contact := range contacts {
		if _, seen := byKind[contact.Kind]; !seen {
			byKind[contact.Kind] = contact
		}
	}

	var lastErr error
	for _, channel := range f.channels {
		contact, ok := byKind[channel.Kind()]
		if !ok {
			continue
		}

		attempt := n
		attempt.To = contact
		messageID, err := channel.Send(ctx, attempt)
		if err != nil {
			f.log.Warn("Notification channel failed, trying next",
				slog.String("channel", string(channel.Kind())),
				slog.String("user_id", userID),
				slog.String("err", err.Error()))
			lastErr = err
			continue
		}
		return channel.Kind(), messageID, nil
	}

	if lastErr != nil {
		return "", "", lastErr
	}
	return "", "", ErrNoChannel
}
