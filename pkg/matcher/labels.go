package matcher

import (
	"context"
	"fmt"

	"switchyard/pkg/models"
	"switchyard/pkg/payload"
)

// Labels matches when every required pair is present with an equal value.
type Labels struct {
	required []models.LabelPair
}

func ValidateLabels(pairs []models.LabelPair) error {
	if len(pairs) == 0 {
		return fmt.Errorf("%w: at least one label is required", ErrInvalidLabels)
	}
	for i, p := range pairs {
		if p.Key == "" {
			return fmt.Errorf("%w: label %d has an empty key", ErrInvalidLabels, i)
		}
	}
	return nil
}

func NewLabels(pairs []models.LabelPair) (*Labels, error) {
	if err := ValidateLabels(pairs); err != nil {
		return nil, err
	}
	required := make([]models.LabelPair, len(pairs))
	copy(required, pairs)
	return &Labels{required: required}, nil
}

func (l *Labels) Match(_ context.Context, alert *models.AlertEnvelope) (bool, error) {
	resolved := payload.ResolveLabels(alert)
	for _, p := range l.required {
		v, ok := resolved[p.Key]
		if !ok || v != p.Value {
			return false, nil
		}
	}
	return true, nil
}
