package providers

import (
	"context"

	"github.com/gesa-research/pald-backend/internal/domain/entities"
)

// JobEventBus broadcasts job lifecycle events to interested subscribers
// (monitoring, DLQ tooling). Publishing is best effort; the worker never
// fails a job because an event could not be delivered.
type JobEventBus interface {
	// Publish publishes an event to all subscribers of a channel.
	Publish(ctx context.Context, channel string, event *entities.JobEvent) error

	// Subscribe subscribes to events on a channel.
	Subscribe(ctx context.Context, channel string) (<-chan *entities.JobEvent, error)

	// Unsubscribe unsubscribes from a channel.
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions.
	Close() error
}

// Event channels for job lifecycle notifications.
const (
	// EventChannelJobUpdates carries every job resolution.
	EventChannelJobUpdates = "bias_jobs:updates"

	// EventChannelSessionPrefix is the prefix for per-session channels.
	EventChannelSessionPrefix = "bias_jobs:session:"
)

// GetSessionChannel returns the channel name for one study session.
func GetSessionChannel(sessionID string) string {
	return EventChannelSessionPrefix + sessionID
}
