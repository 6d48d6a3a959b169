package channelfilter

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/constants"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/models"
	"switchyard/pkg/template"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	engine, err := template.NewEngine(template.DefaultConfig())
	require.NoError(t, err)
	return NewValidator(engine)
}

func strPtr(s string) *string { return &s }

func detailMessage(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr), "got %T", err)
	msg, _ := appErr.Details["message"].(string)
	return msg
}

func TestValidate(t *testing.T) {
	v := newValidator(t)
	tooLong := strings.Repeat("a", constants.FilteringTermMaxLength+1)

	tests := []struct {
		name     string
		termType models.FilteringTermType
		term     *string
		labels   []models.LabelPair
		wantMsg  string
	}{
		{name: "regex", termType: models.TermTypeRegex, term: strPtr("critical|major")},
		{name: "template", termType: models.TermTypeJinja2, term: strPtr("{{ payload.severity == 'critical' }}")},
		{name: "labels", termType: models.TermTypeLabels, labels: []models.LabelPair{{Key: "team", Value: "db"}}},
		{name: "unset without term", termType: models.TermTypeUnset, wantMsg: msgTermRequired},
		{name: "regex without term", termType: models.TermTypeRegex, wantMsg: msgTermRequired},
		{name: "regex with empty term", termType: models.TermTypeRegex, term: strPtr(""), wantMsg: msgTermRequired},
		{name: "template without term", termType: models.TermTypeJinja2, wantMsg: msgTermRequired},
		{name: "template with blank term", termType: models.TermTypeJinja2, term: strPtr("  "), wantMsg: msgTermRequired},
		{name: "unset with pattern", termType: models.TermTypeUnset, term: strPtr("db-.*")},
		{
			name:     "term too long",
			termType: models.TermTypeJinja2,
			term:     &tooLong,
			wantMsg: fmt.Sprintf("Expression is too long. Maximum length: %d characters, current length: %d",
				constants.FilteringTermMaxLength, constants.FilteringTermMaxLength+1),
		},
		{name: "length counts characters", termType: models.TermTypeRegex, term: strPtr(strings.Repeat("é", constants.FilteringTermMaxLength))},
		{name: "broken template", termType: models.TermTypeJinja2, term: strPtr("{{ payload.title "), wantMsg: msgTemplateIncorrect},
		{name: "unsafe template", termType: models.TermTypeJinja2, term: strPtr("{{ os.environ }}"), wantMsg: msgTemplateIncorrect},
		{name: "broken regex", termType: models.TermTypeRegex, term: strPtr("(unclosed"), wantMsg: msgRegexIncorrect},
		{name: "broken regex without type", termType: models.TermTypeUnset, term: strPtr("[a-"), wantMsg: msgRegexIncorrect},
		{name: "labels missing", termType: models.TermTypeLabels, wantMsg: msgLabelsRequired},
		{name: "labels empty key", termType: models.TermTypeLabels, labels: []models.LabelPair{{Key: "", Value: "x"}}, wantMsg: msgLabelsIncorrect},
		{name: "unknown type", termType: "sql", term: strPtr("select 1"), wantMsg: msgTypeIncorrect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.termType, tt.term, tt.labels)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.wantMsg, detailMessage(t, err))
		})
	}
}

func TestValidateChecksLengthBeforeSyntax(t *testing.T) {
	v := newValidator(t)
	term := "(" + strings.Repeat("a", constants.FilteringTermMaxLength)

	err := v.Validate(models.TermTypeRegex, &term, nil)
	require.Error(t, err)
	assert.Contains(t, detailMessage(t, err), "Expression is too long")
}
