// Package matcher holds the three channel filter matchers.
//
// Validation runs when a filter is written and returns ErrInvalidPattern,
// ErrInvalidLabels or a template syntax error. Match errors are runtime
// failures that the rule evaluator treats as a non-match.
package matcher

import (
	"context"
	"errors"
	"fmt"

	"switchyard/pkg/models"
	"switchyard/pkg/template"
)

var (
	ErrInvalidPattern = errors.New("invalid regular expression")
	ErrInvalidLabels  = errors.New("invalid label set")
	ErrUnknownType    = errors.New("unknown filtering term type")
)

type Matcher interface {
	Match(ctx context.Context, alert *models.AlertEnvelope) (bool, error)
}

// Spec is the matcher-relevant part of a channel filter.
type Spec struct {
	TermType models.FilteringTermType
	Term     string
	Labels   []models.LabelPair
}

// never is used for non-default filters that carry no term at all.
type never struct{}

func (never) Match(context.Context, *models.AlertEnvelope) (bool, error) { return false, nil }

// Build compiles spec into a Matcher. An unset term type with a term is a
// regex, matching how such filters were always validated.
func Build(engine *template.Engine, spec Spec) (Matcher, error) {
	switch spec.TermType {
	case models.TermTypeJinja2:
		return NewTemplate(engine, spec.Term)
	case models.TermTypeRegex:
		return NewPattern(spec.Term)
	case models.TermTypeLabels:
		return NewLabels(spec.Labels)
	case models.TermTypeUnset:
		if spec.Term == "" {
			return never{}, nil
		}
		return NewPattern(spec.Term)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.TermType)
}

// Validate checks spec without keeping the compiled matcher.
func Validate(engine *template.Engine, spec Spec) error {
	switch spec.TermType {
	case models.TermTypeJinja2:
		return engine.Validate(spec.Term)
	case models.TermTypeLabels:
		return ValidateLabels(spec.Labels)
	case models.TermTypeRegex, models.TermTypeUnset:
		return ValidatePattern(spec.Term)
	}
	return fmt.Errorf("%w: %q", ErrUnknownType, spec.TermType)
}
