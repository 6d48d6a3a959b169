package channelfilter

import (
	"context"
	"time"

	"switchyard/internal/broker"
	"switchyard/pkg/models"
)

// ConfigEventProducer announces channel filter changes on the config
// topic. Events are keyed by integration so one integration's changes
// stay ordered.
type ConfigEventProducer struct {
	producer broker.Producer
	topic    string
}

func NewConfigEventProducer(producer broker.Producer, topic string) *ConfigEventProducer {
	return &ConfigEventProducer{
		producer: producer,
		topic:    topic,
	}
}

func (p *ConfigEventProducer) PublishChannelFilterEvent(ctx context.Context, action, integrationID, channelFilterID, changedBy string) error {
	return p.publish(ctx, models.ConfigUpdateEvent{
		EventType:       models.EventTypeChannelFilterUpdated,
		IntegrationID:   integrationID,
		ChannelFilterID: channelFilterID,
		Action:          action,
		Timestamp:       time.Now().UTC(),
		ChangedBy:       changedBy,
	})
}

func (p *ConfigEventProducer) PublishIntegrationEvent(ctx context.Context, action, integrationID, changedBy string) error {
	return p.publish(ctx, models.ConfigUpdateEvent{
		EventType:     models.EventTypeIntegrationUpdated,
		IntegrationID: integrationID,
		Action:        action,
		Timestamp:     time.Now().UTC(),
		ChangedBy:     changedBy,
	})
}

func (p *ConfigEventProducer) publish(ctx context.Context, event models.ConfigUpdateEvent) error {
	if p == nil || p.producer == nil || p.topic == "" {
		return nil
	}
	return p.producer.Publish(ctx, p.topic, event.IntegrationID, event)
}
