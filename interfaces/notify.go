package interfaces

import "context"

// ChannelKind names a notification channel variant. The set is closed:
// channels are tried in a fixed preference order rather than resolved
// dynamically.
type ChannelKind string

const (
	ChannelEmail   ChannelKind = "email"
	ChannelWebhook ChannelKind = "webhook"
)

// ContactPoint is one way of reaching a user through a specific channel.
type ContactPoint struct {
	Kind    ChannelKind
	Address string
}

// Notification is the structured content of one reminder delivery. Final
// transport-level rendering (template HTML and the like) is the channel's
// concern.
type Notification struct {
	To         ContactPoint
	Subject    string
	Body       string
	CheckInURL string
}

// Channel delivers a notification through one transport. Send returns the
// transport's message identifier on success.
type Channel interface {
	Kind() ChannelKind
	Send(ctx context.Context, n Notification) (messageID string, err error)
}

// ContactResolver maps a user to their contact points in preference order.
type ContactResolver interface {
	Resolve(ctx context.Context, userID string) ([]ContactPoint, error)
}
