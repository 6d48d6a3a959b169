// Package template implements the restricted Jinja dialect used by routing
// terms.
//
// Templates are parsed into an AST and lowered onto a CEL program with a
// fixed function set. There are no loops, assignments or attribute calls,
// and every evaluation runs under a CEL cost limit and a wall-clock
// deadline.
package template

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/payload"
)

type Config struct {
	// StepBudget is the CEL runtime cost limit for one render.
	StepBudget uint64
	// RenderTimeout bounds the wall-clock time of one render.
	RenderTimeout time.Duration
	// MaxOutputBytes caps the rendered string.
	MaxOutputBytes int
}

func DefaultConfig() Config {
	return Config{
		StepBudget:     10000,
		RenderTimeout:  500 * time.Millisecond,
		MaxOutputBytes: 64 * 1024,
	}
}

type Engine struct {
	env *cel.Env
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	defaults := DefaultConfig()
	if cfg.StepBudget == 0 {
		cfg.StepBudget = defaults.StepBudget
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = defaults.RenderTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaults.MaxOutputBytes
	}

	opts := []cel.EnvOption{
		cel.Variable("payload", cel.DynType),
		cel.Variable("labels", cel.DynType),
		ext.Bindings(),
	}
	opts = append(opts, runtimeFunctions()...)

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create template environment: %w", err)
	}

	return &Engine{env: env, cfg: cfg}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Validate reports whether source is a usable template without rendering it.
func (e *Engine) Validate(source string) error {
	_, err := e.Compile(source)
	return err
}

type Template struct {
	source  string
	program cel.Program
	cfg     Config
}

func (e *Engine) Compile(source string) (*Template, error) {
	body, err := parse(source)
	if err != nil {
		return nil, err
	}

	expr := lower(body)
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, &Error{Kind: ErrSyntax, Message: "template could not be compiled", Cause: issues.Err()}
	}

	program, err := e.env.Program(ast,
		cel.CostLimit(e.cfg.StepBudget),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, &Error{Kind: ErrSyntax, Message: "template could not be compiled", Cause: err}
	}

	return &Template{source: source, program: program, cfg: e.cfg}, nil
}

func (t *Template) Source() string {
	return t.source
}

// Vars is the data a template renders against.
type Vars struct {
	Payload map[string]interface{}
	Labels  map[string]string
}

func (v Vars) activation() map[string]interface{} {
	labels := make(map[string]interface{}, len(v.Labels))
	for k, val := range v.Labels {
		labels[k] = val
	}
	return map[string]interface{}{
		"payload": payload.NormalizeDocument(v.Payload),
		"labels":  labels,
	}
}

type renderResult struct {
	out string
	err error
}

// Render evaluates the template. Failures are always *Error.
func (t *Template) Render(ctx context.Context, vars Vars) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.RenderTimeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return "", &Error{Kind: ErrTimeout, Cause: err}
	}

	activation := vars.activation()
	done := make(chan renderResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- renderResult{err: &Error{Kind: ErrRender, Cause: apperrors.RecoverPanic(r)}}
			}
		}()
		out, _, err := t.program.ContextEval(ctx, activation)
		if err != nil {
			done <- renderResult{err: classify(ctx, err)}
			return
		}
		s, ok := out.Value().(string)
		if !ok {
			done <- renderResult{err: &Error{Kind: ErrRender, Message: fmt.Sprintf("template produced %T", out.Value())}}
			return
		}
		done <- renderResult{out: s}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		if len(res.out) > t.cfg.MaxOutputBytes {
			return "", &Error{Kind: ErrOutputTooLarge, Message: fmt.Sprintf("%d bytes exceeds limit of %d", len(res.out), t.cfg.MaxOutputBytes)}
		}
		return res.out, nil
	case <-ctx.Done():
		return "", &Error{Kind: ErrTimeout, Cause: ctx.Err()}
	}
}

func classify(ctx context.Context, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "cost limit exceeded"):
		return &Error{Kind: ErrBudgetExceeded, Cause: err}
	case ctx.Err() != nil || strings.Contains(msg, "interrupted"):
		return &Error{Kind: ErrTimeout, Cause: err}
	}
	return &Error{Kind: ErrRender, Cause: err}
}

// falseLike lists rendered values that do not count as a match.
var falseLike = map[string]bool{
	"false": true,
	"0":     true,
	"none":  true,
	"null":  true,
	"no":    true,
	"off":   true,
}

// IsTruthy reports whether rendered output counts as a match.
func IsTruthy(output string) bool {
	s := strings.ToLower(strings.TrimSpace(output))
	return s != "" && !falseLike[s]
}
