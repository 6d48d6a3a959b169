package channelfilter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"switchyard/internal/constants"
	"switchyard/pkg/matcher"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/models"
	"switchyard/pkg/template"
)

const (
	msgTemplateIncorrect = "Jinja template is incorrect"
	msgRegexIncorrect    = "Regular expression is incorrect"
	msgTermRequired      = "Filtering term field is required"
	msgLabelsRequired    = "Filtering labels field is required"
	msgLabelsIncorrect   = "Filtering labels are incorrect"
	msgTypeIncorrect     = "Expression type is incorrect"
	msgDefaultImmutable  = "Filtering term of default channel filter cannot be changed"
)

// Validator checks the matcher fields of a channel filter before it is
// written.
type Validator struct {
	engine *template.Engine
}

func NewValidator(engine *template.Engine) *Validator {
	return &Validator{engine: engine}
}

// Validate checks term, type and labels in that order. A nil term means
// the filter carries no term; nil labels means none were supplied.
func (v *Validator) Validate(termType models.FilteringTermType, term *string, labels []models.LabelPair) error {
	if term != nil {
		if n := utf8.RuneCountInString(*term); n > constants.FilteringTermMaxLength {
			return validationError(fmt.Sprintf(
				"Expression is too long. Maximum length: %d characters, current length: %d",
				constants.FilteringTermMaxLength, n,
			), nil)
		}
	}

	switch termType {
	case models.TermTypeJinja2:
		if blank(term) {
			return validationError(msgTermRequired, nil)
		}
		if err := v.engine.Validate(*term); err != nil {
			return validationError(msgTemplateIncorrect, err)
		}
	case models.TermTypeRegex, models.TermTypeUnset:
		// An empty pattern matches every alert and would shadow the default.
		if blank(term) {
			return validationError(msgTermRequired, nil)
		}
		if err := matcher.ValidatePattern(*term); err != nil {
			return validationError(msgRegexIncorrect, err)
		}
	case models.TermTypeLabels:
		if labels == nil {
			return validationError(msgLabelsRequired, nil)
		}
		if err := matcher.ValidateLabels(labels); err != nil {
			return validationError(msgLabelsIncorrect, err)
		}
	default:
		return validationError(msgTypeIncorrect, nil)
	}
	return nil
}

func validationError(msg string, cause error) error {
	err := apperrors.ErrValidation.WithDetail("message", msg)
	if cause != nil {
		return err.WithCause(cause)
	}
	return err
}

func blank(term *string) bool {
	return term == nil || strings.TrimSpace(*term) == ""
}
