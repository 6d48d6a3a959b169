// Package routing selects the channel filter an alert is routed to.
//
// Filters of an integration are evaluated in ascending order and the first
// accepting matcher wins. When none accepts, the default filter is used.
// Matcher failures are logged and count as a non-match; a missing default
// filter is an integrity error.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"switchyard/internal/config"
	"switchyard/internal/filterstore"
	"switchyard/internal/logger"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/logging"
	"switchyard/pkg/metrics"
	"switchyard/pkg/models"
	"switchyard/pkg/template"
	"switchyard/pkg/tracing"
)

var ErrMissingDefaultFilter = errors.New("integration has no default channel filter")

const tracerName = "routing-service"

type Service struct {
	store     filterstore.Store
	engine    *template.Engine
	cfg       config.RoutingConfig
	logger    logger.Logger
	loads     singleflight.Group
	mu        sync.RWMutex
	snapshots map[string]*snapshot
	// generations counts invalidations per integration. A load only caches
	// its snapshot when no invalidation happened since it read the store.
	generations map[string]uint64
}

func NewService(store filterstore.Store, engine *template.Engine, cfg config.RoutingConfig, log logger.Logger) *Service {
	return &Service{
		store:     store,
		engine:    engine,
		cfg:       cfg,
		logger:    log,
		snapshots:   make(map[string]*snapshot),
		generations: make(map[string]uint64),
	}
}

// Route returns the filter selected for alert, stopping at the first match.
func (s *Service) Route(ctx context.Context, alert *models.AlertEnvelope) (MatchResult, error) {
	return s.route(ctx, alert, false)
}

// Explain evaluates every filter and reports each outcome. The selected
// filter is the same one Route would pick.
func (s *Service) Explain(ctx context.Context, alert *models.AlertEnvelope) (MatchResult, error) {
	return s.route(ctx, alert, true)
}

func (s *Service) route(ctx context.Context, alert *models.AlertEnvelope, exhaustive bool) (MatchResult, error) {
	if alert == nil || alert.IntegrationID == "" {
		return MatchResult{}, apperrors.ErrValidation.WithDetail("message", "integration_id is required")
	}

	ctx = logging.WithIntegrationID(ctx, alert.IntegrationID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "routing.route",
		attribute.String("integration.id", alert.IntegrationID),
		attribute.Bool("routing.explain", exhaustive),
	)
	defer span.End()

	start := time.Now()
	snap, err := s.snapshot(ctx, alert.IntegrationID)
	if err != nil {
		tracing.Fail(span, err)
		metrics.ObserveRouting(time.Since(start), "error")
		return MatchResult{}, err
	}

	result, err := s.evaluate(ctx, snap, alert, exhaustive)
	if err != nil {
		tracing.Fail(span, err)
		metrics.ObserveRouting(time.Since(start), "error")
		return MatchResult{}, err
	}

	status := "default"
	if result.Matched {
		status = "matched"
	}
	span.SetAttributes(
		attribute.String("channel_filter.id", result.Filter.ID),
		attribute.Bool("channel_filter.is_default", result.Filter.IsDefault),
	)
	metrics.ObserveRouting(time.Since(start), status)
	return result, nil
}

func (s *Service) evaluate(ctx context.Context, snap *snapshot, alert *models.AlertEnvelope, exhaustive bool) (MatchResult, error) {
	if snap.defaultFilter == nil {
		s.logger.ErrorwCtx(ctx, "Integration has no default channel filter")
		return MatchResult{}, apperrors.ErrIntegrity.WithCause(
			fmt.Errorf("%w: integration %s", ErrMissingDefaultFilter, snap.integrationID),
		)
	}

	var (
		result   MatchResult
		selected *filterstore.ChannelFilter
	)

	for i := range snap.filters {
		if err := ctx.Err(); err != nil {
			return MatchResult{}, err
		}

		cf := &snap.filters[i]
		matched, err := s.match(ctx, cf, alert)
		outcome := FilterOutcome{
			FilterID: cf.filter.ID,
			Order:    cf.filter.Order,
			TermType: cf.filter.FilteringTermType,
			Matched:  matched,
		}
		if err != nil {
			outcome.Error = err.Error()
		}
		result.Evaluated = append(result.Evaluated, outcome)

		if matched && selected == nil {
			selected = &cf.filter
			if !exhaustive {
				break
			}
		}
	}

	if selected != nil {
		result.Filter = selected.Clone()
		result.Matched = true
		return result, nil
	}

	result.Filter = snap.defaultFilter.Clone()
	return result, nil
}

// match never returns a matcher error as fatal; it is logged, counted and
// reported as a non-match.
func (s *Service) match(ctx context.Context, cf *compiledFilter, alert *models.AlertEnvelope) (bool, error) {
	termType := string(cf.filter.FilteringTermType)
	if termType == "" {
		termType = "unset"
	}

	err := cf.buildErr
	matched := false
	if err == nil {
		start := time.Now()
		matched, err = cf.matcher.Match(ctx, alert)
		if cf.filter.FilteringTermType == models.TermTypeJinja2 {
			metrics.ObserveTemplateRender(time.Since(start))
		}
	}

	if err != nil {
		metrics.IncFilterEvaluation(termType, "error")
		metrics.IncMatcherError(termType, errorKind(err))
		s.logger.WarnwCtx(ctx, "Channel filter evaluation failed, treating as no match",
			"channel_filter_id", cf.filter.ID,
			"filtering_term_type", termType,
			"error", err,
		)
		return false, err
	}

	result := "no_match"
	if matched {
		result = "match"
	}
	metrics.IncFilterEvaluation(termType, result)
	return matched, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, template.ErrBudgetExceeded):
		return "budget"
	case errors.Is(err, template.ErrTimeout):
		return "timeout"
	case errors.Is(err, template.ErrOutputTooLarge):
		return "output"
	case errors.Is(err, template.ErrSyntax):
		return "compile"
	case errors.Is(err, template.ErrRender):
		return "render"
	}
	return "other"
}

// snapshot returns the cached ranking of an integration, loading it on a
// miss. Concurrent misses share one load.
func (s *Service) snapshot(ctx context.Context, integrationID string) (*snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[integrationID]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	v, err, _ := s.loads.Do(integrationID, func() (interface{}, error) {
		return s.load(ctx, integrationID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

func (s *Service) load(ctx context.Context, integrationID string) (*snapshot, error) {
	s.mu.RLock()
	generation := s.generations[integrationID]
	s.mu.RUnlock()

	filters, err := s.store.List(ctx, integrationID)
	if errors.Is(err, filterstore.ErrOwnerNotFound) {
		return nil, apperrors.ErrNotFound.WithCause(err).WithDetail("message", fmt.Sprintf("integration '%s' not found", integrationID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load channel filters: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := buildSnapshot(s.engine, integrationID, filters, s.snapshots[integrationID])
	if s.generations[integrationID] == generation {
		s.snapshots[integrationID] = snap
	}
	metrics.SetRoutingCachedIntegrations(len(s.snapshots))
	return snap, nil
}

// Invalidate drops the cached ranking of one integration. Loads already
// in flight are not cached, and later lookups start a fresh load.
func (s *Service) Invalidate(integrationID string) {
	s.mu.Lock()
	delete(s.snapshots, integrationID)
	s.generations[integrationID]++
	count := len(s.snapshots)
	s.mu.Unlock()

	s.loads.Forget(integrationID)
	metrics.SetRoutingCachedIntegrations(count)
}

// Reload rebuilds the snapshot of every integration in the store.
func (s *Service) Reload(ctx context.Context, skipJitter ...bool) error {
	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]

	if err := s.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	ids, err := s.store.ListIntegrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list integrations: %w", err)
	}

	fresh := make(map[string]*snapshot, len(ids))
	generations := make(map[string]uint64, len(ids))
	for _, id := range ids {
		s.mu.RLock()
		prev := s.snapshots[id]
		generations[id] = s.generations[id]
		s.mu.RUnlock()

		filters, err := s.store.List(ctx, id)
		if errors.Is(err, filterstore.ErrOwnerNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load channel filters of %s: %w", id, err)
		}
		fresh[id] = buildSnapshot(s.engine, id, filters, prev)
	}

	s.mu.Lock()
	for id := range fresh {
		if s.generations[id] != generations[id] {
			delete(fresh, id)
		}
	}
	s.snapshots = fresh
	count := len(fresh)
	s.mu.Unlock()

	metrics.SetRoutingCachedIntegrations(count)
	s.logger.InfowCtx(ctx, "Successfully reloaded channel filters",
		"integrations_count", count,
	)
	return nil
}

func (s *Service) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || s.cfg.Reload.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.cfg.Reload.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartReloader reloads periodically until ctx is done. A zero interval
// disables periodic reloads.
func (s *Service) StartReloader(ctx context.Context) error {
	if s.cfg.Reload.IntervalSeconds <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(time.Duration(s.cfg.Reload.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload channel filters",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
