package routing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/broker"
	"switchyard/internal/logger"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/models"
	"switchyard/pkg/retry"
)

type capturedMessage struct {
	topic string
	key   string
	alert models.AlertEnvelope
}

type captureProducer struct {
	sent []capturedMessage
	err  error
}

func (p *captureProducer) Publish(_ context.Context, topic, key string, value interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, capturedMessage{topic: topic, key: key, alert: value.(models.AlertEnvelope)})
	return nil
}

func (p *captureProducer) Close() error { return nil }

func alertMessage(t *testing.T, alert models.AlertEnvelope) broker.Message {
	t.Helper()
	value, err := json.Marshal(alert)
	require.NoError(t, err)
	return broker.Message{Topic: "alerts", Key: alert.IntegrationID, Value: value}
}

func TestForwarderStampsRouting(t *testing.T) {
	f := newFixture(t, logger.NopLogger())
	db := f.appendFilter(t, models.TermTypeRegex, "database")
	producer := &captureProducer{}
	fw := NewForwarder(f.service, producer, "routed_alerts", logger.NopLogger())

	matched := *alert(map[string]interface{}{"service": "database"}, nil)
	require.NoError(t, fw.HandleMessage(context.Background(), alertMessage(t, matched)))

	other := *alert(map[string]interface{}{"service": "web"}, nil)
	require.NoError(t, fw.HandleMessage(context.Background(), alertMessage(t, other)))

	require.Len(t, producer.sent, 2)
	first := producer.sent[0]
	assert.Equal(t, "routed_alerts", first.topic)
	assert.Equal(t, "int-1", first.key)
	require.NotNil(t, first.alert.Metadata.Routing)
	assert.Equal(t, db.ID, first.alert.Metadata.Routing.ChannelFilterID)
	assert.False(t, first.alert.Metadata.Routing.IsDefault)
	assert.False(t, first.alert.Metadata.Routing.RoutedAt.IsZero())

	second := producer.sent[1].alert.Metadata.Routing
	require.NotNil(t, second)
	assert.Equal(t, f.def.ID, second.ChannelFilterID)
	assert.True(t, second.IsDefault)
	assert.Equal(t, "chain-default", second.EscalationChainID)
}

func TestForwarderFatalErrors(t *testing.T) {
	f := newFixture(t, logger.NopLogger())
	producer := &captureProducer{}
	fw := NewForwarder(f.service, producer, "routed_alerts", logger.NopLogger())

	err := fw.HandleMessage(context.Background(), broker.Message{Topic: "alerts", Value: []byte("{broken")})
	require.Error(t, err)
	var fatal retry.FatalError
	assert.True(t, errors.As(err, &fatal) && fatal.IsFatal())

	unknown := *alert(map[string]interface{}{}, nil)
	unknown.IntegrationID = "missing"
	err = fw.HandleMessage(context.Background(), alertMessage(t, unknown))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, errors.As(err, &fatal) && fatal.IsFatal())

	anonymous := *alert(map[string]interface{}{"service": "database"}, nil)
	anonymous.ID = ""
	err = fw.HandleMessage(context.Background(), alertMessage(t, anonymous))
	require.Error(t, err)
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "id", vErr.Field)
	assert.True(t, errors.As(err, &fatal) && fatal.IsFatal())

	assert.Empty(t, producer.sent)
}

func TestForwarderPublishFailureIsRetryable(t *testing.T) {
	f := newFixture(t, logger.NopLogger())
	fw := NewForwarder(f.service, &captureProducer{err: errors.New("broker down")}, "routed_alerts", logger.NopLogger())

	err := fw.HandleMessage(context.Background(), alertMessage(t, *alert(map[string]interface{}{}, nil)))
	require.Error(t, err)
	var fatal retry.FatalError
	assert.False(t, errors.As(err, &fatal))
}

func TestForwarderKeepsIntegerLiterals(t *testing.T) {
	f := newFixture(t, logger.NopLogger())
	count := f.appendFilter(t, models.TermTypeRegex, `"count": 1}`)
	priority := f.appendFilter(t, models.TermTypeLabels, "", models.LabelPair{Key: "priority", Value: "1"})
	producer := &captureProducer{}
	fw := NewForwarder(f.service, producer, "routed_alerts", logger.NopLogger())

	raw := []string{
		`{"id": "a-1", "integration_id": "int-1", "payload": {"count": 1}}`,
		`{"id": "a-2", "integration_id": "int-1", "payload": {"labels": {"priority": 1}}}`,
		`{"id": "a-3", "integration_id": "int-1", "payload": {"big": 9007199254740993}}`,
	}
	for _, value := range raw {
		msg := broker.Message{Topic: "alerts", Key: "int-1", Value: []byte(value)}
		require.NoError(t, fw.HandleMessage(context.Background(), msg))
	}

	require.Len(t, producer.sent, 3)
	assert.Equal(t, count.ID, producer.sent[0].alert.Metadata.Routing.ChannelFilterID)
	assert.Equal(t, priority.ID, producer.sent[1].alert.Metadata.Routing.ChannelFilterID)

	forwarded, err := json.Marshal(producer.sent[2].alert.Payload)
	require.NoError(t, err)
	assert.Equal(t, `{"big":9007199254740993}`, string(forwarded))
}
