// Package filterstore persists the ordered channel filters of each
// integration.
//
// Every mutation re-ranks the owner's filters to a dense 0..N-1 sequence
// with the default filter last, atomically per owner. Readers always see a
// complete ranking.
package filterstore

import (
	"context"
	"errors"
	"time"

	"switchyard/pkg/models"
)

var (
	ErrNotFound            = errors.New("channel filter not found")
	ErrOwnerNotFound       = errors.New("integration not found")
	ErrOwnerExists         = errors.New("integration already exists")
	ErrFilterExists        = errors.New("channel filter already exists")
	ErrCannotRemoveDefault = errors.New("cannot remove default channel filter")
	ErrCannotMoveDefault   = errors.New("cannot move default channel filter")
	ErrDefaultExists       = errors.New("integration already has a default channel filter")
	ErrInvalidOrdering     = errors.New("channel filter ordering is inconsistent")
	ErrVersionConflict     = errors.New("channel filters were modified concurrently")
)

type ChannelFilter struct {
	ID                   string                            `json:"id" bson:"id"`
	IntegrationID        string                            `json:"integration_id" bson:"-"`
	Order                int                               `json:"order" bson:"order"`
	IsDefault            bool                              `json:"is_default" bson:"is_default"`
	FilteringTermType    models.FilteringTermType          `json:"filtering_term_type" bson:"filtering_term_type"`
	FilteringTerm        string                            `json:"filtering_term" bson:"filtering_term"`
	FilteringLabels      []models.LabelPair                `json:"filtering_labels" bson:"filtering_labels"`
	EscalationChainID    string                            `json:"escalation_chain_id,omitempty" bson:"escalation_chain_id,omitempty"`
	SlackChannelID       string                            `json:"slack_channel_id,omitempty" bson:"slack_channel_id,omitempty"`
	TelegramChannelID    string                            `json:"telegram_channel_id,omitempty" bson:"telegram_channel_id,omitempty"`
	NotifyInSlack        bool                              `json:"notify_in_slack" bson:"notify_in_slack"`
	NotifyInTelegram     bool                              `json:"notify_in_telegram" bson:"notify_in_telegram"`
	NotificationBackends map[string]map[string]interface{} `json:"notification_backends,omitempty" bson:"notification_backends,omitempty"`
	CreatedAt            time.Time                         `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time                         `json:"updated_at" bson:"updated_at"`
}

// Clone returns a deep copy so callers cannot alias store state.
func (f ChannelFilter) Clone() ChannelFilter {
	out := f
	if f.FilteringLabels != nil {
		out.FilteringLabels = make([]models.LabelPair, len(f.FilteringLabels))
		copy(out.FilteringLabels, f.FilteringLabels)
	}
	if f.NotificationBackends != nil {
		out.NotificationBackends = make(map[string]map[string]interface{}, len(f.NotificationBackends))
		for backend, data := range f.NotificationBackends {
			inner := make(map[string]interface{}, len(data))
			for k, v := range data {
				inner[k] = v
			}
			out.NotificationBackends[backend] = inner
		}
	}
	return out
}

type Store interface {
	// CreateOwner registers an integration together with its default filter.
	CreateOwner(ctx context.Context, integrationID string, defaultFilter *ChannelFilter) error
	// InsertAt places a new non-default filter at index among non-default
	// filters; the index is clamped.
	InsertAt(ctx context.Context, filter *ChannelFilter, index int) error
	MoveTo(ctx context.Context, filterID string, index int) error
	Remove(ctx context.Context, filterID string) error
	// Update changes a filter's matcher and routing fields. Order and
	// default flag are not touched.
	Update(ctx context.Context, filter *ChannelFilter) error
	Get(ctx context.Context, filterID string) (*ChannelFilter, error)
	List(ctx context.Context, integrationID string) ([]ChannelFilter, error)
	ListIntegrations(ctx context.Context) ([]string, error)
}
