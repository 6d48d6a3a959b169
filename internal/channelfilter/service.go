// Package channelfilter manages the channel filters of integrations:
// validated writes, ordering moves, audit entries and config events.
package channelfilter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"switchyard/internal/constants"
	"switchyard/internal/filterstore"
	"switchyard/internal/logger"
	"switchyard/internal/routing"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/logging"
	"switchyard/pkg/matcher"
	"switchyard/pkg/metrics"
	"switchyard/pkg/models"
)

var (
	ErrCannotRemoveDefault = apperrors.NewError("CANNOT_REMOVE_DEFAULT", "default channel filter cannot be removed", http.StatusBadRequest)
	ErrCannotMoveDefault   = apperrors.NewError("CANNOT_MOVE_DEFAULT", "default channel filter cannot be moved", http.StatusBadRequest)
)

// Router evaluates alerts against the current filters. The service drops
// an integration's cached filters after every write.
type Router interface {
	Explain(ctx context.Context, alert *models.AlertEnvelope) (routing.MatchResult, error)
	Invalidate(integrationID string)
}

type Service struct {
	store     filterstore.Store
	validator *Validator
	router    Router
	audit     AuditRepository
	events    *ConfigEventProducer
	logger    logger.Logger
}

type ServiceOption func(*Service)

func WithAudit(repo AuditRepository) ServiceOption {
	return func(s *Service) {
		s.audit = repo
	}
}

func WithConfigEvents(producer *ConfigEventProducer) ServiceOption {
	return func(s *Service) {
		s.events = producer
	}
}

func WithRouter(router Router) ServiceOption {
	return func(s *Service) {
		s.router = router
	}
}

func NewService(store filterstore.Store, validator *Validator, log logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		validator: validator,
		logger:    log.Named("channelfilter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateIntegration registers an integration with its default filter.
func (s *Service) CreateIntegration(ctx context.Context, req CreateIntegrationRequest) (*filterstore.ChannelFilter, error) {
	if req.IntegrationID == "" {
		return nil, validationError("integration_id is required", nil)
	}
	ctx = logging.WithIntegrationID(ctx, req.IntegrationID)

	def := &filterstore.ChannelFilter{EscalationChainID: req.EscalationChainID}
	if err := s.store.CreateOwner(ctx, req.IntegrationID, def); err != nil {
		metrics.IncStoreMutation("create_owner", "error")
		return nil, mapStoreError(err, req.IntegrationID)
	}
	metrics.IncStoreMutation("create_owner", "success")

	s.afterWrite(ctx, AuditActionCreate, def, nil)
	if s.events != nil {
		if err := s.events.PublishIntegrationEvent(ctx, models.ActionCreate, req.IntegrationID, changedBy(ctx)); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to publish config event", "error", err)
		}
	}

	s.logger.InfowCtx(ctx, "Integration created", "channel_filter_id", def.ID)
	out := def.Clone()
	return &out, nil
}

// Create adds a non-default filter at InsertIndex, or at the top when no
// index is given.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*filterstore.ChannelFilter, error) {
	if req.IntegrationID == "" {
		return nil, validationError("integration_id is required", nil)
	}
	ctx = logging.WithIntegrationID(ctx, req.IntegrationID)

	if err := s.validator.Validate(req.FilteringTermType, req.FilteringTerm, req.FilteringLabels); err != nil {
		return nil, err
	}

	filter := &filterstore.ChannelFilter{
		IntegrationID:        req.IntegrationID,
		FilteringTermType:    req.FilteringTermType,
		FilteringLabels:      req.FilteringLabels,
		EscalationChainID:    req.EscalationChainID,
		SlackChannelID:       req.SlackChannelID,
		TelegramChannelID:    req.TelegramChannelID,
		NotifyInSlack:        boolValue(req.NotifyInSlack, true),
		NotifyInTelegram:     boolValue(req.NotifyInTelegram, false),
		NotificationBackends: req.NotificationBackends,
	}
	if req.FilteringTerm != nil {
		filter.FilteringTerm = *req.FilteringTerm
	}

	index := 0
	if req.InsertIndex != nil {
		index = *req.InsertIndex
	}

	if err := s.store.InsertAt(ctx, filter, index); err != nil {
		metrics.IncStoreMutation("insert", "error")
		return nil, mapStoreError(err, req.IntegrationID)
	}
	metrics.IncStoreMutation("insert", "success")

	s.afterWrite(ctx, AuditActionCreate, filter, nil)
	s.publish(ctx, models.ActionCreate, filter)

	return s.Get(ctx, filter.ID)
}

func (s *Service) List(ctx context.Context, integrationID string) ([]filterstore.ChannelFilter, error) {
	filters, err := s.store.List(ctx, integrationID)
	if err != nil {
		return nil, mapStoreError(err, integrationID)
	}
	return filters, nil
}

func (s *Service) Get(ctx context.Context, id string) (*filterstore.ChannelFilter, error) {
	filter, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, id)
	}
	return filter, nil
}

// Update applies a partial update. The matcher fields of the default
// filter cannot be changed.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*filterstore.ChannelFilter, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithIntegrationID(ctx, existing.IntegrationID)

	if existing.IsDefault && (req.FilteringTerm != nil || req.FilteringTermType != nil || req.FilteringLabels != nil) {
		return nil, apperrors.ErrBadRequest.WithDetail("message", msgDefaultImmutable)
	}

	updated := existing.Clone()
	applyUpdate(&updated, req)

	if !updated.IsDefault {
		var term *string
		if updated.FilteringTermType != models.TermTypeLabels || updated.FilteringTerm != "" {
			term = &updated.FilteringTerm
		}
		if err := s.validator.Validate(updated.FilteringTermType, term, updated.FilteringLabels); err != nil {
			return nil, err
		}
	}

	if err := s.store.Update(ctx, &updated); err != nil {
		metrics.IncStoreMutation("update", "error")
		return nil, mapStoreError(err, id)
	}
	metrics.IncStoreMutation("update", "success")

	s.afterWrite(ctx, AuditActionUpdate, &updated, existing)
	s.publish(ctx, models.ActionUpdate, &updated)

	return s.Get(ctx, id)
}

// ConvertToTemplate rewrites a regex filter as the equivalent routing
// template.
func (s *Service) ConvertToTemplate(ctx context.Context, id string) (*filterstore.ChannelFilter, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithIntegrationID(ctx, existing.IntegrationID)

	if existing.FilteringTermType != models.TermTypeRegex {
		return nil, apperrors.ErrBadRequest.WithDetail("message", "Only regex filtering term type is supported")
	}

	updated := existing.Clone()
	updated.FilteringTerm = matcher.PreviewAsTemplate(specOf(existing))
	updated.FilteringTermType = models.TermTypeJinja2
	if err := s.validator.Validate(updated.FilteringTermType, &updated.FilteringTerm, nil); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, &updated); err != nil {
		metrics.IncStoreMutation("update", "error")
		return nil, mapStoreError(err, id)
	}
	metrics.IncStoreMutation("update", "success")

	s.afterWrite(ctx, AuditActionConvert, &updated, existing)
	s.publish(ctx, models.ActionUpdate, &updated)

	return s.Get(ctx, id)
}

// MoveToPosition moves a non-default filter; position is clamped to the
// non-default range.
func (s *Service) MoveToPosition(ctx context.Context, id string, position int) (*filterstore.ChannelFilter, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithIntegrationID(ctx, existing.IntegrationID)

	if err := s.store.MoveTo(ctx, id, position); err != nil {
		metrics.IncStoreMutation("move", "error")
		return nil, mapStoreError(err, id)
	}
	metrics.IncStoreMutation("move", "success")

	moved, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, AuditActionMove, moved, existing)
	s.publish(ctx, models.ActionMove, moved)
	return moved, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	ctx = logging.WithIntegrationID(ctx, existing.IntegrationID)

	if err := s.store.Remove(ctx, id); err != nil {
		metrics.IncStoreMutation("remove", "error")
		return mapStoreError(err, id)
	}
	metrics.IncStoreMutation("remove", "success")

	s.afterWrite(ctx, AuditActionDelete, nil, existing)
	s.publish(ctx, models.ActionDelete, existing)
	return nil
}

func (s *Service) AuditLogs(ctx context.Context, id string, limit int) ([]AuditLog, error) {
	if s.audit == nil {
		return nil, apperrors.ErrInternal.WithDetail("message", "audit logging not enabled")
	}
	if limit <= 0 || limit > constants.MaxAuditLimit {
		limit = constants.DefaultAuditLimit
	}
	logs, err := s.audit.List(ctx, id, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal)
	}
	return logs, nil
}

// Route evaluates a payload against every filter of the integration
// without side effects.
func (s *Service) Route(ctx context.Context, integrationID string, req RouteRequest) (routing.MatchResult, error) {
	if s.router == nil {
		return routing.MatchResult{}, apperrors.ErrInternal.WithDetail("message", "routing not enabled")
	}
	alert := &models.AlertEnvelope{
		ID:            uuid.New().String(),
		IntegrationID: integrationID,
		ReceivedAt:    time.Now().UTC(),
		Payload:       req.Payload,
		Labels:        req.Labels,
	}
	return s.router.Explain(ctx, alert)
}

func (s *Service) afterWrite(ctx context.Context, action string, current, previous *filterstore.ChannelFilter) {
	integrationID := ""
	filterID := ""
	switch {
	case current != nil:
		integrationID, filterID = current.IntegrationID, current.ID
	case previous != nil:
		integrationID, filterID = previous.IntegrationID, previous.ID
	}

	if s.router != nil {
		s.router.Invalidate(integrationID)
	}

	if s.audit == nil {
		return
	}
	entry := &AuditLog{
		ChannelFilterID: filterID,
		IntegrationID:   integrationID,
		Action:          action,
		OldValue:        filterToMap(previous),
		NewValue:        filterToMap(current),
		ChangedBy:       changedBy(ctx),
		IPAddress:       ClientIP(ctx),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to record audit entry",
			"channel_filter_id", filterID,
			"action", action,
			"error", err,
		)
	}
}

func (s *Service) publish(ctx context.Context, action string, filter *filterstore.ChannelFilter) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishChannelFilterEvent(ctx, action, filter.IntegrationID, filter.ID, changedBy(ctx)); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish config event",
			"channel_filter_id", filter.ID,
			"action", action,
			"error", err,
		)
	}
}

func applyUpdate(filter *filterstore.ChannelFilter, req UpdateRequest) {
	if req.FilteringTermType != nil {
		filter.FilteringTermType = *req.FilteringTermType
	}
	if req.FilteringTerm != nil {
		filter.FilteringTerm = *req.FilteringTerm
	}
	if req.FilteringLabels != nil {
		filter.FilteringLabels = *req.FilteringLabels
	}
	if req.EscalationChainID != nil {
		filter.EscalationChainID = *req.EscalationChainID
	}
	if req.SlackChannelID != nil {
		filter.SlackChannelID = *req.SlackChannelID
	}
	if req.TelegramChannelID != nil {
		filter.TelegramChannelID = *req.TelegramChannelID
	}
	if req.NotifyInSlack != nil {
		filter.NotifyInSlack = *req.NotifyInSlack
	}
	if req.NotifyInTelegram != nil {
		filter.NotifyInTelegram = *req.NotifyInTelegram
	}
	if req.NotificationBackends != nil {
		filter.NotificationBackends = req.NotificationBackends
	}
}

func mapStoreError(err error, id string) error {
	switch {
	case errors.Is(err, filterstore.ErrNotFound), errors.Is(err, filterstore.ErrOwnerNotFound):
		return apperrors.ErrNotFound.WithCause(err).WithDetail("id", id)
	case errors.Is(err, filterstore.ErrOwnerExists), errors.Is(err, filterstore.ErrFilterExists):
		return apperrors.ErrConflict.WithCause(err).WithDetail("id", id)
	case errors.Is(err, filterstore.ErrCannotRemoveDefault):
		return ErrCannotRemoveDefault.WithCause(err)
	case errors.Is(err, filterstore.ErrCannotMoveDefault):
		return ErrCannotMoveDefault.WithCause(err)
	case errors.Is(err, filterstore.ErrVersionConflict):
		return apperrors.ErrConflict.WithCause(err).WithDetail("message", "channel filters were modified concurrently, retry")
	case errors.Is(err, filterstore.ErrInvalidOrdering), errors.Is(err, filterstore.ErrDefaultExists):
		return apperrors.ErrIntegrity.WithCause(err)
	}
	return apperrors.Wrap(err, apperrors.ErrInternal)
}

func filterToMap(filter *filterstore.ChannelFilter) map[string]interface{} {
	if filter == nil {
		return nil
	}
	data, err := json.Marshal(filter)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func specOf(filter *filterstore.ChannelFilter) matcher.Spec {
	return matcher.Spec{
		TermType: filter.FilteringTermType,
		Term:     filter.FilteringTerm,
		Labels:   filter.FilteringLabels,
	}
}

func boolValue(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

type contextKey string

const clientIPKey contextKey = "client_ip"

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

func changedBy(ctx context.Context) string {
	if actor := logging.GetActorID(ctx); actor != "" {
		return actor
	}
	return "system"
}
