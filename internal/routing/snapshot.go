package routing

import (
	"slices"
	"time"

	"switchyard/internal/filterstore"
	"switchyard/pkg/matcher"
	"switchyard/pkg/template"
)

// compiledFilter pairs a filter with its matcher. A filter whose term no
// longer compiles keeps buildErr and never matches.
type compiledFilter struct {
	filter   filterstore.ChannelFilter
	matcher  matcher.Matcher
	buildErr error
}

// snapshot is an immutable view of one integration's ranking.
type snapshot struct {
	integrationID string
	filters       []compiledFilter
	defaultFilter *filterstore.ChannelFilter
	loadedAt      time.Time
}

func specOf(f filterstore.ChannelFilter) matcher.Spec {
	return matcher.Spec{
		TermType: f.FilteringTermType,
		Term:     f.FilteringTerm,
		Labels:   f.FilteringLabels,
	}
}

// buildSnapshot compiles filters, reusing matchers from prev whose filter
// is unchanged.
func buildSnapshot(engine *template.Engine, integrationID string, filters []filterstore.ChannelFilter, prev *snapshot) *snapshot {
	reuse := make(map[string]compiledFilter)
	if prev != nil {
		for _, cf := range prev.filters {
			reuse[cf.filter.ID] = cf
		}
	}

	snap := &snapshot{
		integrationID: integrationID,
		filters:       make([]compiledFilter, 0, len(filters)),
		loadedAt:      time.Now(),
	}

	for _, f := range filters {
		if f.IsDefault {
			def := f
			snap.defaultFilter = &def
			continue
		}

		if old, ok := reuse[f.ID]; ok && sameMatcher(old.filter, f) {
			old.filter = f
			snap.filters = append(snap.filters, old)
			continue
		}

		m, err := matcher.Build(engine, specOf(f))
		snap.filters = append(snap.filters, compiledFilter{filter: f, matcher: m, buildErr: err})
	}

	return snap
}

func sameMatcher(a, b filterstore.ChannelFilter) bool {
	return a.UpdatedAt.Equal(b.UpdatedAt) &&
		a.FilteringTermType == b.FilteringTermType &&
		a.FilteringTerm == b.FilteringTerm &&
		slices.Equal(a.FilteringLabels, b.FilteringLabels)
}
