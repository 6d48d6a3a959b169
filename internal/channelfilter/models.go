package channelfilter

import (
	"time"

	"switchyard/internal/filterstore"
	"switchyard/internal/routing"
	"switchyard/pkg/models"
)

type CreateIntegrationRequest struct {
	IntegrationID     string `json:"integration_id" binding:"required"`
	EscalationChainID string `json:"escalation_chain_id"`
}

type CreateRequest struct {
	IntegrationID        string                            `json:"integration_id" binding:"required"`
	FilteringTermType    models.FilteringTermType          `json:"filtering_term_type"`
	FilteringTerm        *string                           `json:"filtering_term"`
	FilteringLabels      []models.LabelPair                `json:"filtering_labels"`
	InsertIndex          *int                              `json:"insert_index"`
	EscalationChainID    string                            `json:"escalation_chain_id"`
	SlackChannelID       string                            `json:"slack_channel_id"`
	TelegramChannelID    string                            `json:"telegram_channel_id"`
	NotifyInSlack        *bool                             `json:"notify_in_slack"`
	NotifyInTelegram     *bool                             `json:"notify_in_telegram"`
	NotificationBackends map[string]map[string]interface{} `json:"notification_backends"`
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	FilteringTermType    *models.FilteringTermType         `json:"filtering_term_type"`
	FilteringTerm        *string                           `json:"filtering_term"`
	FilteringLabels      *[]models.LabelPair               `json:"filtering_labels"`
	EscalationChainID    *string                           `json:"escalation_chain_id"`
	SlackChannelID       *string                           `json:"slack_channel_id"`
	TelegramChannelID    *string                           `json:"telegram_channel_id"`
	NotifyInSlack        *bool                             `json:"notify_in_slack"`
	NotifyInTelegram     *bool                             `json:"notify_in_telegram"`
	NotificationBackends map[string]map[string]interface{} `json:"notification_backends"`
}

// Response is a channel filter as returned by the API.
type Response struct {
	filterstore.ChannelFilter
	FilteringTermAsJinja2 *string `json:"filtering_term_as_jinja2"`
}

type RouteRequest struct {
	Payload map[string]interface{} `json:"payload" binding:"required"`
	Labels  map[string]string      `json:"labels"`
}

type RouteResponse struct {
	ChannelFilter Response                `json:"channel_filter"`
	Matched       bool                    `json:"matched"`
	Evaluated     []routing.FilterOutcome `json:"evaluated"`
}

type AuditLog struct {
	ID              string                 `json:"id" bson:"_id"`
	ChannelFilterID string                 `json:"channel_filter_id" bson:"channel_filter_id"`
	IntegrationID   string                 `json:"integration_id" bson:"integration_id"`
	Action          string                 `json:"action" bson:"action"`
	OldValue        map[string]interface{} `json:"old_value,omitempty" bson:"old_value,omitempty"`
	NewValue        map[string]interface{} `json:"new_value,omitempty" bson:"new_value,omitempty"`
	ChangedBy       string                 `json:"changed_by" bson:"changed_by"`
	IPAddress       string                 `json:"ip_address,omitempty" bson:"ip_address,omitempty"`
	Timestamp       time.Time              `json:"timestamp" bson:"timestamp"`
}
