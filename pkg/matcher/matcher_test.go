package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/pkg/models"
	"switchyard/pkg/template"
)

func newEngine(t *testing.T) *template.Engine {
	t.Helper()
	engine, err := template.NewEngine(template.DefaultConfig())
	require.NoError(t, err)
	return engine
}

func alert(payload map[string]interface{}, labels map[string]string) *models.AlertEnvelope {
	return &models.AlertEnvelope{ID: "a1", IntegrationID: "i1", Payload: payload, Labels: labels}
}

func TestPattern(t *testing.T) {
	p, err := NewPattern("foo")
	require.NoError(t, err)

	ok, err := p.Match(context.Background(), alert(map[string]interface{}{"title": "a foo happened"}, nil))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Match(context.Background(), alert(map[string]interface{}{"title": "nothing"}, nil))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPatternSeesCanonicalSerialization(t *testing.T) {
	p, err := NewPattern(`"b": 2, "c": \{"a": true\}`)
	require.NoError(t, err)

	ok, err := p.Match(context.Background(), alert(map[string]interface{}{
		"c": map[string]interface{}{"a": true},
		"b": 2,
	}, nil))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidatePattern(t *testing.T) {
	assert.NoError(t, ValidatePattern(`severity.*critical`))
	assert.True(t, errors.Is(ValidatePattern(`(unclosed`), ErrInvalidPattern))
	assert.True(t, errors.Is(ValidatePattern(`(?<=x)y`), ErrInvalidPattern))

	_, err := NewPattern("[")
	assert.True(t, errors.Is(err, ErrInvalidPattern))
}

func TestTemplateMatchesLikeRegex(t *testing.T) {
	engine := newEngine(t)
	m, err := NewTemplate(engine, `{{ payload | json_dumps | regex_search("x") }}`)
	require.NoError(t, err)

	ok, err := m.Match(context.Background(), alert(map[string]interface{}{"k": "xyz"}, nil))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Match(context.Background(), alert(map[string]interface{}{"k": "abc"}, nil))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTemplateUsesResolvedLabels(t *testing.T) {
	engine := newEngine(t)
	m, err := NewTemplate(engine, `{{ labels.severity == "critical" }}`)
	require.NoError(t, err)

	ok, err := m.Match(context.Background(), alert(map[string]interface{}{
		"labels": map[string]interface{}{"severity": "critical"},
	}, nil))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTemplateRenderErrorSurfaces(t *testing.T) {
	engine := newEngine(t)
	m, err := NewTemplate(engine, `{{ payload.n + "x" }}`)
	require.NoError(t, err)

	ok, err := m.Match(context.Background(), alert(map[string]interface{}{"n": 1}, nil))
	assert.False(t, ok)
	assert.True(t, errors.Is(err, template.ErrRender))
}

func TestLabels(t *testing.T) {
	m, err := NewLabels([]models.LabelPair{{Key: "severity", Value: "critical"}})
	require.NoError(t, err)

	tests := []struct {
		name   string
		labels map[string]string
		want   bool
	}{
		{name: "equal", labels: map[string]string{"severity": "critical", "team": "db"}, want: true},
		{name: "different value", labels: map[string]string{"severity": "warning"}, want: false},
		{name: "absent key", labels: map[string]string{"team": "db"}, want: false},
		{name: "no labels", labels: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := m.Match(context.Background(), alert(map[string]interface{}{}, tt.labels))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestLabelsRequiresEveryPair(t *testing.T) {
	m, err := NewLabels([]models.LabelPair{
		{Key: "severity", Value: "critical"},
		{Key: "team", Value: "db"},
	})
	require.NoError(t, err)

	ok, _ := m.Match(context.Background(), alert(nil, map[string]string{"severity": "critical"}))
	assert.False(t, ok)

	ok, _ = m.Match(context.Background(), alert(nil, map[string]string{"severity": "critical", "team": "db"}))
	assert.True(t, ok)
}

func TestValidateLabels(t *testing.T) {
	assert.True(t, errors.Is(ValidateLabels(nil), ErrInvalidLabels))
	assert.True(t, errors.Is(ValidateLabels([]models.LabelPair{{Key: "", Value: "x"}}), ErrInvalidLabels))
	assert.NoError(t, ValidateLabels([]models.LabelPair{{Key: "k", Value: ""}}))
}

func TestBuild(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name    string
		spec    Spec
		payload map[string]interface{}
		want    bool
		wantErr error
	}{
		{name: "regex", spec: Spec{TermType: models.TermTypeRegex, Term: "boom"}, payload: map[string]interface{}{"t": "boom"}, want: true},
		{name: "unset type is regex", spec: Spec{Term: "boom"}, payload: map[string]interface{}{"t": "boom"}, want: true},
		{name: "unset type without term never matches", spec: Spec{}, payload: map[string]interface{}{"t": "boom"}, want: false},
		{name: "jinja2", spec: Spec{TermType: models.TermTypeJinja2, Term: "{{ payload.t }}"}, payload: map[string]interface{}{"t": "boom"}, want: true},
		{name: "unknown type", spec: Spec{TermType: "xpath", Term: "//a"}, wantErr: ErrUnknownType},
		{name: "bad template", spec: Spec{TermType: models.TermTypeJinja2, Term: "{{"}, wantErr: template.ErrSyntax},
		{name: "empty labels", spec: Spec{TermType: models.TermTypeLabels}, wantErr: ErrInvalidLabels},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Build(engine, tt.spec)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.True(t, errors.Is(Validate(engine, tt.spec), tt.wantErr))
				return
			}
			require.NoError(t, err)
			ok, err := m.Match(context.Background(), alert(tt.payload, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestPreviewAsTemplate(t *testing.T) {
	engine := newEngine(t)

	regex := PreviewAsTemplate(Spec{TermType: models.TermTypeRegex, Term: `say "hi"`})
	assert.Equal(t, `{{ payload | json_dumps | regex_search("say \"hi\"") }}`, regex)
	assert.NoError(t, engine.Validate(regex))

	labels := PreviewAsTemplate(Spec{TermType: models.TermTypeLabels, Labels: []models.LabelPair{
		{Key: "severity", Value: "critical"},
		{Key: "team", Value: "db"},
	}})
	assert.Equal(t, "{{ labels.severity and labels.severity == 'critical' and labels.team and labels.team == 'db' }}", labels)

	m, err := NewTemplate(engine, labels)
	require.NoError(t, err)
	ok, err := m.Match(context.Background(), alert(nil, map[string]string{"severity": "critical", "team": "db"}))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, "{{ payload.x }}", PreviewAsTemplate(Spec{TermType: models.TermTypeJinja2, Term: "{{ payload.x }}"}))
	assert.Equal(t, "", PreviewAsTemplate(Spec{TermType: models.TermTypeLabels}))
	assert.Equal(t, "", PreviewAsTemplate(Spec{}))
}
