package models

import "time"

type AlertEnvelopeBuilder struct {
	envelope *AlertEnvelope
}

func NewAlertEnvelopeBuilder() *AlertEnvelopeBuilder {
	return &AlertEnvelopeBuilder{
		envelope: &AlertEnvelope{
			Payload:  make(map[string]interface{}),
			Metadata: Metadata{},
		},
	}
}

func (b *AlertEnvelopeBuilder) WithID(id string) *AlertEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *AlertEnvelopeBuilder) WithIntegrationID(integrationID string) *AlertEnvelopeBuilder {
	b.envelope.IntegrationID = integrationID
	return b
}

func (b *AlertEnvelopeBuilder) WithReceivedAt(receivedAt time.Time) *AlertEnvelopeBuilder {
	b.envelope.ReceivedAt = receivedAt
	return b
}

func (b *AlertEnvelopeBuilder) WithPayload(payload map[string]interface{}) *AlertEnvelopeBuilder {
	b.envelope.Payload = payload
	return b
}

func (b *AlertEnvelopeBuilder) WithLabels(labels map[string]string) *AlertEnvelopeBuilder {
	b.envelope.Labels = labels
	return b
}

func (b *AlertEnvelopeBuilder) WithTraceID(traceID string) *AlertEnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

func (b *AlertEnvelopeBuilder) Build() *AlertEnvelope {
	if b.envelope.ReceivedAt.IsZero() {
		b.envelope.ReceivedAt = time.Now()
	}
	return b.envelope
}
