package service

import (
	"context"
	"encoding/json"
	"time"

	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

const consumerModule = "EventConsumer"

// EventSource is the in-process bus lifecycle events are first published to.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService records session lifecycle events and relays them to the broker.
type consumerService struct {
	source EventSource
	relay  events.Publisher
	logger logger.ILogger
}

// NewConsumerService builds the consumer. relay may be nil, in which case events are only logged.
func NewConsumerService(source EventSource, relay events.Publisher, log logger.ILogger) IConsumerService {
	return &consumerService{source: source, relay: relay, logger: log}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

type busEvent struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	// Lifecycle events are informational; every message is acked, failures are only logged.
	defer msg.Ack()

	var evt busEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal event", map[string]interface{}{"message_uuid": msg.UUID, "error": err.Error()})
		return
	}

	cs.logger.Info(consumerModule, "Session event", map[string]interface{}{
		"type":        evt.Type,
		"session_id":  evt.Data["session_id"],
		"user_id":     evt.Data["user_id"],
		"reason":      evt.Data["reason"],
		"occurred_at": evt.OccurredAt,
	})

	if cs.relay == nil {
		return
	}
	relayCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := cs.relay.Publish(relayCtx, events.BaseEvent{Type: evt.Type, Data: evt.Data, OccurredAt: evt.OccurredAt})
	if err != nil {
		cs.logger.Warn(consumerModule, "Failed to relay event", map[string]interface{}{"type": evt.Type, "error": err.Error()})
	}
}
