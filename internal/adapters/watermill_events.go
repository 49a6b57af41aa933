package adapters

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

const (
	TopicHeartbeatReceived = "liveness.heartbeat_received"

	eventMetadataKey = "event"
)

// NewEventBus returns the in-process pub/sub used for module events.
func NewEventBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
}

// WatermillEvents publishes module events on a watermill publisher.
// It implements ports.EventPublisher.
type WatermillEvents struct {
	pub message.Publisher
}

func NewWatermillEvents(pub message.Publisher) *WatermillEvents {
	return &WatermillEvents{pub: pub}
}

func (e *WatermillEvents) HeartbeatReceived(id domain.AuthorityId) error {
	msg := message.NewMessage(watermill.NewUUID(), append([]byte{}, id[:]...))
	msg.Metadata.Set(eventMetadataKey, "HeartbeatReceived")
	if err := e.pub.Publish(TopicHeartbeatReceived, msg); err != nil {
		return fmt.Errorf("publish HeartbeatReceived: %w", err)
	}
	return nil
}

// ConsumeHeartbeats calls fn for every HeartbeatReceived event until ctx is
// done. Malformed payloads are acked and dropped.
func ConsumeHeartbeats(ctx context.Context, sub message.Subscriber, fn func(domain.AuthorityId)) error {
	msgs, err := sub.Subscribe(ctx, TopicHeartbeatReceived)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicHeartbeatReceived, err)
	}
	go func() {
		for msg := range msgs {
			if len(msg.Payload) == domain.AuthorityIdSize {
				var id domain.AuthorityId
				copy(id[:], msg.Payload)
				fn(id)
			}
			msg.Ack()
		}
	}()
	return nil
}
