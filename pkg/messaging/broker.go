package messaging

import (
	"context"
)

// Broker is the event-subscription boundary: publish a payload on a channel,
// or receive the raw payload stream for a channel. Implementations own
// reconnection; subscribers only see a closed channel on shutdown.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Subscription channel names. Per-entity feeds append the entity ID.
const (
	ChannelNotifications = "notifications"
	ChannelConversations = "conversations"
	ChannelEvents        = "events"
)

// UserChannel returns the per-user notification feed channel.
func UserChannel(userID string) string {
	return ChannelNotifications + ":" + userID
}

// ConversationChannel returns the per-conversation live feed channel.
func ConversationChannel(conversationID string) string {
	return ChannelConversations + ":" + conversationID
}
