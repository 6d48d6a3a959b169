package matcher

import (
	"context"

	"switchyard/pkg/models"
	"switchyard/pkg/payload"
	"switchyard/pkg/template"
)

// Template renders a routing template and matches on truthy output.
type Template struct {
	tpl *template.Template
}

func NewTemplate(engine *template.Engine, term string) (*Template, error) {
	tpl, err := engine.Compile(term)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: tpl}, nil
}

func (t *Template) Match(ctx context.Context, alert *models.AlertEnvelope) (bool, error) {
	out, err := t.tpl.Render(ctx, template.Vars{
		Payload: alert.Payload,
		Labels:  payload.ResolveLabels(alert),
	})
	if err != nil {
		return false, err
	}
	return template.IsTruthy(out), nil
}
