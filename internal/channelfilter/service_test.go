package channelfilter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/config"
	"switchyard/internal/filterstore"
	"switchyard/internal/logger"
	"switchyard/internal/routing"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/logging"
	"switchyard/pkg/models"
	"switchyard/pkg/template"
)

type published struct {
	topic string
	key   string
	event models.ConfigUpdateEvent
}

type recordingProducer struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *recordingProducer) Publish(_ context.Context, topic, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{topic: topic, key: key, event: value.(models.ConfigUpdateEvent)})
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	for i, m := range p.messages {
		out[i] = m.event.Action
	}
	return out
}

type fixture struct {
	store    *filterstore.MemoryStore
	audit    *MemoryAuditRepository
	producer *recordingProducer
	router   *routing.Service
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := template.NewEngine(template.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{
		store:    filterstore.NewMemoryStore(),
		audit:    NewMemoryAuditRepository(),
		producer: &recordingProducer{},
	}
	f.router = routing.NewService(f.store, engine, config.RoutingConfig{}, logger.NopLogger())
	f.service = NewService(f.store, NewValidator(engine), logger.NopLogger(),
		WithAudit(f.audit),
		WithConfigEvents(NewConfigEventProducer(f.producer, "config_updates")),
		WithRouter(f.router),
	)
	return f
}

func (f *fixture) integration(t *testing.T, id string) *filterstore.ChannelFilter {
	t.Helper()
	def, err := f.service.CreateIntegration(context.Background(), CreateIntegrationRequest{IntegrationID: id, EscalationChainID: "chain-default"})
	require.NoError(t, err)
	return def
}

func (f *fixture) regex(t *testing.T, integrationID, term string, index *int) *filterstore.ChannelFilter {
	t.Helper()
	cf, err := f.service.Create(context.Background(), CreateRequest{
		IntegrationID:     integrationID,
		FilteringTermType: models.TermTypeRegex,
		FilteringTerm:     &term,
		InsertIndex:       index,
	})
	require.NoError(t, err)
	return cf
}

func (f *fixture) orderOf(t *testing.T, integrationID string) []string {
	t.Helper()
	filters, err := f.service.List(context.Background(), integrationID)
	require.NoError(t, err)
	ids := make([]string, len(filters))
	for i, cf := range filters {
		require.Equal(t, i, cf.Order)
		ids[i] = cf.ID
	}
	return ids
}

func intPtr(i int) *int { return &i }

func TestCreateIntegration(t *testing.T) {
	f := newFixture(t)
	def := f.integration(t, "int-1")

	assert.True(t, def.IsDefault)
	assert.Equal(t, 0, def.Order)
	assert.Equal(t, "chain-default", def.EscalationChainID)

	_, err := f.service.CreateIntegration(context.Background(), CreateIntegrationRequest{IntegrationID: "int-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.True(t, errors.Is(err, filterstore.ErrOwnerExists))

	_, err = f.service.CreateIntegration(context.Background(), CreateIntegrationRequest{})
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateInsertsAtTopByDefault(t *testing.T) {
	f := newFixture(t)
	def := f.integration(t, "int-1")

	first := f.regex(t, "int-1", "first", nil)
	second := f.regex(t, "int-1", "second", nil)
	last := f.regex(t, "int-1", "last", intPtr(100))

	assert.Equal(t, 0, second.Order)
	assert.Equal(t, []string{second.ID, first.ID, last.ID, def.ID}, f.orderOf(t, "int-1"))
	assert.True(t, last.NotifyInSlack)
	assert.False(t, last.NotifyInTelegram)
}

func TestCreateRejectsInvalidFilter(t *testing.T) {
	f := newFixture(t)
	def := f.integration(t, "int-1")

	_, err := f.service.Create(context.Background(), CreateRequest{
		IntegrationID:     "int-1",
		FilteringTermType: models.TermTypeRegex,
		FilteringTerm:     strPtr("(unclosed"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, msgRegexIncorrect, detailMessage(t, err))
	assert.Equal(t, []string{def.ID}, f.orderOf(t, "int-1"))
}

func TestCreateRequiresTerm(t *testing.T) {
	f := newFixture(t)
	def := f.integration(t, "int-1")

	for _, termType := range []models.FilteringTermType{models.TermTypeRegex, models.TermTypeJinja2, models.TermTypeUnset} {
		_, err := f.service.Create(context.Background(), CreateRequest{
			IntegrationID:     "int-1",
			FilteringTermType: termType,
		})
		require.Error(t, err, termType)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, msgTermRequired, detailMessage(t, err))
	}
	assert.Equal(t, []string{def.ID}, f.orderOf(t, "int-1"))
}

func TestCreateUnknownIntegration(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), CreateRequest{
		IntegrationID:     "missing",
		FilteringTermType: models.TermTypeRegex,
		FilteringTerm:     strPtr("x"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	f.integration(t, "int-1")
	cf := f.regex(t, "int-1", "db", nil)

	updated, err := f.service.Update(context.Background(), cf.ID, UpdateRequest{EscalationChainID: strPtr("chain-db")})
	require.NoError(t, err)
	assert.Equal(t, "chain-db", updated.EscalationChainID)
	assert.Equal(t, "db", updated.FilteringTerm)

	jinja := models.TermTypeJinja2
	updated, err = f.service.Update(context.Background(), cf.ID, UpdateRequest{
		FilteringTermType: &jinja,
		FilteringTerm:     strPtr("{{ payload.team == 'db' }}"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TermTypeJinja2, updated.FilteringTermType)
}

func TestUpdateValidatesMergedFilter(t *testing.T) {
	f := newFixture(t)
	f.integration(t, "int-1")
	cf := f.regex(t, "int-1", "db", nil)

	// The new term is checked against the stored regex type.
	_, err := f.service.Update(context.Background(), cf.ID, UpdateRequest{FilteringTerm: strPtr("[a-")})
	require.Error(t, err)
	assert.Equal(t, msgRegexIncorrect, detailMessage(t, err))

	_, err = f.service.Update(context.Background(), cf.ID, UpdateRequest{FilteringTerm: strPtr("")})
	require.Error(t, err)
	assert.Equal(t, msgTermRequired, detailMessage(t, err))

	labels := models.TermTypeLabels
	_, err = f.service.Update(context.Background(), cf.ID, UpdateRequest{FilteringTermType: &labels})
	require.Error(t, err)
	assert.Equal(t, msgLabelsRequired, detailMessage(t, err))

	stored, err := f.service.Get(context.Background(), cf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TermTypeRegex, stored.FilteringTermType)
}

func TestUpdateDefaultFilter(t *testing.T) {
	f := newFixture(t)
	def := f.integration(t, "int-1")

	_, err := f.service.Update(context.Background(), def.ID, UpdateRequest{FilteringTerm: strPtr("anything")})
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequest(err))
	assert.Equal(t, msgDefaultImmutable, detailMessage(t, err))

	updated, err := f.service.Update(context.Background(), def.ID, UpdateRequest{EscalationChainID: strPtr("chain-other")})
	require.NoError(t, err)
	assert.Equal(t, "chain-other", updated.EscalationChainID)
	assert.True(t, updated.IsDefault)
}

func TestMoveToPosition(t *testing.T) {
	f := newFixture(t)
	def := f.integration(t, "int-1")
	a := f.regex(t, "int-1", "a", intPtr(0))
	b := f.regex(t, "int-1", "b", intPtr(1))
	c := f.regex(t, "int-1", "c", intPtr(2))

	moved, err := f.service.MoveToPosition(context.Background(), c.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, moved.Order)
	assert.Equal(t, []string{c.ID, a.ID, b.ID, def.ID}, f.orderOf(t, "int-1"))

	moved, err = f.service.MoveToPosition(context.Background(), c.ID, 99)
	require.NoError(t, err)
	assert.Equal(t, 2, moved.Order)

	_, err = f.service.MoveToPosition(context.Background(), def.ID, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, filterstore.ErrCannotMoveDefault))
	assert.Equal(t, http.StatusBadRequest, apperrors.ToHTTPStatus(err))
	assert.Equal(t, "CANNOT_MOVE_DEFAULT", apperrors.ToErrorResponse(err)["error_code"])
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	def := f.integration(t, "int-1")
	a := f.regex(t, "int-1", "a", nil)
	b := f.regex(t, "int-1", "b", nil)

	require.NoError(t, f.service.Delete(context.Background(), b.ID))
	assert.Equal(t, []string{a.ID, def.ID}, f.orderOf(t, "int-1"))

	err := f.service.Delete(context.Background(), def.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperrors.ToHTTPStatus(err))
	assert.Equal(t, "CANNOT_REMOVE_DEFAULT", apperrors.ToErrorResponse(err)["error_code"])

	err = f.service.Delete(context.Background(), b.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestConvertToTemplate(t *testing.T) {
	f := newFixture(t)
	f.integration(t, "int-1")
	cf := f.regex(t, "int-1", "crit(ical)?", nil)

	converted, err := f.service.ConvertToTemplate(context.Background(), cf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TermTypeJinja2, converted.FilteringTermType)
	assert.Contains(t, converted.FilteringTerm, "regex_search")

	result, err := f.service.Route(context.Background(), "int-1", RouteRequest{
		Payload: map[string]interface{}{"severity": "critical"},
	})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, cf.ID, result.Filter.ID)

	_, err = f.service.ConvertToTemplate(context.Background(), cf.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestRouteSeesWritesImmediately(t *testing.T) {
	f := newFixture(t)
	def := f.integration(t, "int-1")
	payload := map[string]interface{}{"service": "database"}

	result, err := f.service.Route(context.Background(), "int-1", RouteRequest{Payload: payload})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, def.ID, result.Filter.ID)

	cf := f.regex(t, "int-1", "database", nil)

	result, err = f.service.Route(context.Background(), "int-1", RouteRequest{Payload: payload})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, cf.ID, result.Filter.ID)
	require.Len(t, result.Evaluated, 1)

	_, err = f.service.Route(context.Background(), "missing", RouteRequest{Payload: payload})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	f.integration(t, "int-1")

	ctx := WithClientIP(logging.WithActorID(context.Background(), "user-7"), "10.0.0.1")
	term := "db"
	cf, err := f.service.Create(ctx, CreateRequest{IntegrationID: "int-1", FilteringTermType: models.TermTypeRegex, FilteringTerm: &term})
	require.NoError(t, err)
	_, err = f.service.Update(ctx, cf.ID, UpdateRequest{EscalationChainID: strPtr("chain-db")})
	require.NoError(t, err)

	logs, err := f.service.AuditLogs(context.Background(), cf.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, AuditActionUpdate, logs[0].Action)
	assert.Equal(t, "user-7", logs[0].ChangedBy)
	assert.Equal(t, "10.0.0.1", logs[0].IPAddress)
	assert.Equal(t, "chain-db", logs[0].NewValue["escalation_chain_id"])
	assert.NotContains(t, logs[0].OldValue, "escalation_chain_id")

	assert.Equal(t, AuditActionCreate, logs[1].Action)
	assert.Nil(t, logs[1].OldValue)

	logs, err = f.service.AuditLogs(context.Background(), cf.ID, 1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestAuditLogsDisabled(t *testing.T) {
	engine, err := template.NewEngine(template.DefaultConfig())
	require.NoError(t, err)
	s := NewService(filterstore.NewMemoryStore(), NewValidator(engine), logger.NopLogger())

	_, err = s.AuditLogs(context.Background(), "any", 10)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperrors.ToHTTPStatus(err))
}

func TestConfigEvents(t *testing.T) {
	f := newFixture(t)
	f.integration(t, "int-1")
	cf := f.regex(t, "int-1", "a", nil)
	_, err := f.service.MoveToPosition(context.Background(), cf.ID, 0)
	require.NoError(t, err)
	require.NoError(t, f.service.Delete(context.Background(), cf.ID))

	assert.Equal(t, []string{models.ActionCreate, models.ActionCreate, models.ActionMove, models.ActionDelete}, f.producer.actions())

	f.producer.mu.Lock()
	defer f.producer.mu.Unlock()
	assert.Equal(t, models.EventTypeIntegrationUpdated, f.producer.messages[0].event.EventType)
	for _, m := range f.producer.messages[1:] {
		assert.Equal(t, "config_updates", m.topic)
		assert.Equal(t, "int-1", m.key)
		assert.Equal(t, models.EventTypeChannelFilterUpdated, m.event.EventType)
		assert.Equal(t, cf.ID, m.event.ChannelFilterID)
		assert.Equal(t, "system", m.event.ChangedBy)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.integration(t, "int-1")
	f.producer.err = errors.New("broker down")

	cf := f.regex(t, "int-1", "a", nil)
	assert.NotEmpty(t, cf.ID)
}
