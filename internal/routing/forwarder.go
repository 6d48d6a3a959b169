package routing

import (
	"context"
	"fmt"
	"time"

	"switchyard/internal/broker"
	"switchyard/internal/logger"
	"switchyard/pkg/logging"
	"switchyard/pkg/models"
	"switchyard/pkg/retry"
)

// Forwarder routes alerts read from the input topic and republishes them
// with metadata.routing set.
type Forwarder struct {
	service     *Service
	producer    broker.Producer
	outputTopic string
	logger      logger.Logger
}

func NewForwarder(service *Service, producer broker.Producer, outputTopic string, log logger.Logger) *Forwarder {
	return &Forwarder{
		service:     service,
		producer:    producer,
		outputTopic: outputTopic,
		logger:      log.Named("forwarder"),
	}
}

// HandleMessage is a broker.HandlerFunc. Malformed alerts, unknown
// integrations and integrity failures are fatal and go to the DLQ.
func (f *Forwarder) HandleMessage(ctx context.Context, msg broker.Message) error {
	var alert models.AlertEnvelope
	if err := msg.Decode(&alert); err != nil {
		return retry.NewFatalError(err)
	}
	if err := models.ValidateAlertEnvelope(&alert); err != nil {
		return retry.NewFatalError(err)
	}
	if alert.Metadata.TraceID != "" {
		ctx = logging.WithTraceID(ctx, alert.Metadata.TraceID)
	}

	result, err := f.service.Route(ctx, &alert)
	if err != nil {
		f.logger.ErrorwCtx(ctx, "Failed to route alert", "alert_id", alert.ID, "error", err)
		return err
	}

	alert.Metadata.Routing = &models.RoutingInfo{
		ChannelFilterID:   result.Filter.ID,
		IsDefault:         result.Filter.IsDefault,
		EscalationChainID: result.Filter.EscalationChainID,
		RoutedAt:          time.Now().UTC(),
	}

	if err := f.producer.Publish(ctx, f.outputTopic, alert.IntegrationID, alert); err != nil {
		return fmt.Errorf("failed to publish routed alert: %w", err)
	}

	f.logger.DebugwCtx(ctx, "Alert routed",
		"alert_id", alert.ID,
		"channel_filter_id", result.Filter.ID,
		"matched", result.Matched,
	)
	return nil
}
