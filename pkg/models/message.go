package models

import "time"

// AlertEnvelope is the unit flowing through the alerts topic.
type AlertEnvelope struct {
	ID            string                 `json:"id"`
	IntegrationID string                 `json:"integration_id"`
	ReceivedAt    time.Time              `json:"received_at"`
	Payload       map[string]interface{} `json:"payload"`
	Labels        map[string]string      `json:"labels,omitempty"`
	Metadata      Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID string       `json:"trace_id,omitempty"`
	Routing *RoutingInfo `json:"routing,omitempty"`
}

type RoutingInfo struct {
	ChannelFilterID   string    `json:"channel_filter_id"`
	IsDefault         bool      `json:"is_default"`
	EscalationChainID string    `json:"escalation_chain_id,omitempty"`
	RoutedAt          time.Time `json:"routed_at"`
}
