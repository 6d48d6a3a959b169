package matcher

import (
	"context"
	"fmt"
	"regexp"

	"switchyard/pkg/models"
	"switchyard/pkg/payload"
)

// Pattern searches the canonical payload serialisation with an RE2 regex.
type Pattern struct {
	re *regexp.Regexp
}

func ValidatePattern(term string) error {
	if _, err := regexp.Compile(term); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return nil
}

func NewPattern(term string) (*Pattern, error) {
	re, err := regexp.Compile(term)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &Pattern{re: re}, nil
}

func (p *Pattern) Match(_ context.Context, alert *models.AlertEnvelope) (bool, error) {
	serialized, err := payload.Canonical(alert.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to serialize payload: %w", err)
	}
	return p.re.MatchString(serialized), nil
}
