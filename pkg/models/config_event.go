package models

import "time"

type ConfigUpdateEvent struct {
	EventType       string                 `json:"event_type"`
	IntegrationID   string                 `json:"integration_id"`
	ChannelFilterID string                 `json:"channel_filter_id,omitempty"`
	Action          string                 `json:"action"`
	Timestamp       time.Time              `json:"timestamp"`
	ChangedBy       string                 `json:"changed_by,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeChannelFilterUpdated = "channel_filter_updated"
	EventTypeIntegrationUpdated   = "integration_updated"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionMove   = "move"
	ActionReload = "reload"
)
