// Package config_handler applies channel filter change events to a running
// routing service.
package config_handler

import (
	"context"

	"switchyard/internal/broker"
	"switchyard/internal/logger"
	"switchyard/pkg/models"
)

type Reloader interface {
	Reload(ctx context.Context, skipJitter ...bool) error
}

type Invalidator interface {
	Invalidate(integrationID string)
}

// Target is what a routing service exposes to config events.
type Target interface {
	Reloader
	Invalidator
}

type Handler struct {
	target Target
	logger logger.Logger
}

func NewHandler(target Target, log logger.Logger) *Handler {
	return &Handler{
		target: target,
		logger: log,
	}
}

// HandleMessage decodes a ConfigUpdateEvent and applies it. Malformed or
// unknown events are logged and dropped so they never block the topic.
func (h *Handler) HandleMessage(ctx context.Context, msg broker.Message) error {
	var event models.ConfigUpdateEvent
	if err := msg.Decode(&event); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to decode config event", "error", err, "key", msg.Key)
		return nil
	}
	return h.HandleConfigUpdateEvent(ctx, event)
}

func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, event models.ConfigUpdateEvent) error {
	switch event.EventType {
	case models.EventTypeChannelFilterUpdated, models.EventTypeIntegrationUpdated:
	default:
		h.logger.WarnwCtx(ctx, "Ignoring config event with unknown event_type",
			"event_type", event.EventType,
		)
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"event_type", event.EventType,
		"action", event.Action,
		"integration_id", event.IntegrationID,
		"channel_filter_id", event.ChannelFilterID,
	)

	if event.Action == models.ActionReload || event.IntegrationID == "" {
		if err := h.target.Reload(ctx, true); err != nil {
			h.logger.ErrorwCtx(ctx, "Failed to reload channel filters after config update", "error", err)
			return err
		}
		return nil
	}

	h.target.Invalidate(event.IntegrationID)
	return nil
}
