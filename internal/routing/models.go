package routing

import (
	"switchyard/internal/filterstore"
	"switchyard/pkg/models"
)

// FilterOutcome is the evaluation result of one non-default filter.
type FilterOutcome struct {
	FilterID string                   `json:"filter_id"`
	Order    int                      `json:"order"`
	TermType models.FilteringTermType `json:"filtering_term_type"`
	Matched  bool                     `json:"matched"`
	Error    string                   `json:"error,omitempty"`
}

// MatchResult is the routing decision for one alert. Matched is false
// exactly when the default filter was selected.
type MatchResult struct {
	Filter    filterstore.ChannelFilter `json:"channel_filter"`
	Matched   bool                      `json:"matched"`
	Evaluated []FilterOutcome           `json:"evaluated,omitempty"`
}
