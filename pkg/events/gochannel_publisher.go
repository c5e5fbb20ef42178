package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// GoChannelPublisher keeps events in-process. It stands in for NATS when no broker
// is configured, so lifecycle events still reach local subscribers.
type GoChannelPublisher struct {
	pubSub *gochannel.GoChannel
	topic  string
}

func NewGoChannelPublisher(pubSub *gochannel.GoChannel, topic string) *GoChannelPublisher {
	return &GoChannelPublisher{pubSub: pubSub, topic: topic}
}

// NewGoChannel returns a gochannel pub/sub with a quiet std logger.
func NewGoChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
}

func (p *GoChannelPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(map[string]interface{}{
		"type":        event.EventType(),
		"data":        event.Payload(),
		"occurred_at": event.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set("event_type", event.EventType())
	msg.SetContext(ctx)
	if err := p.pubSub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", p.topic, err)
	}
	return nil
}

// Subscribe exposes the topic to in-process consumers.
func (p *GoChannelPublisher) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return p.pubSub.Subscribe(ctx, p.topic)
}
