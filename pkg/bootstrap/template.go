package bootstrap

import (
	"switchyard/internal/config"
	"switchyard/pkg/template"
)

// NewTemplateEngine builds the routing template engine; zero limits fall
// back to the engine defaults.
func NewTemplateEngine(cfg config.TemplateConfig) (*template.Engine, error) {
	return template.NewEngine(template.Config{
		StepBudget:     cfg.StepBudget,
		RenderTimeout:  cfg.RenderTimeout,
		MaxOutputBytes: cfg.MaxOutputBytes,
	})
}
