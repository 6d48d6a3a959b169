package template

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return engine
}

func render(t *testing.T, engine *Engine, source string, vars Vars) string {
	t.Helper()
	tpl, err := engine.Compile(source)
	require.NoError(t, err, "compile %q", source)
	out, err := tpl.Render(context.Background(), vars)
	require.NoError(t, err, "render %q", source)
	return out
}

func alertVars() Vars {
	return Vars{
		Payload: map[string]interface{}{
			"title":    "Disk usage high",
			"severity": "critical",
			"priority": 2,
			"value":    "93.5",
			"state":    "alerting",
			"status":   "firing",
			"silenced": false,
			"commonLabels": map[string]interface{}{
				"env": "prod",
			},
			"alerts": []interface{}{
				map[string]interface{}{"status": "firing"},
			},
			"tags": []interface{}{"db", "storage"},
		},
		Labels: map[string]string{"team": "database", "severity": "critical"},
	}
}

func TestExamplesValidate(t *testing.T) {
	engine := newEngine(t)
	for name, source := range Examples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, engine.Validate(source))
		})
	}
}

func TestExamplesMatchAlert(t *testing.T) {
	engine := newEngine(t)
	for name, source := range Examples {
		t.Run(name, func(t *testing.T) {
			if name == "has_field" {
				return
			}
			out := render(t, engine, source, alertVars())
			assert.True(t, IsTruthy(out), "output %q", out)
		})
	}
}

func TestRender(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{name: "plain text", source: "hello", want: "hello"},
		{name: "empty", source: "", want: ""},
		{name: "string field", source: "{{ payload.title }}", want: "Disk usage high"},
		{name: "int field", source: "{{ payload.priority }}", want: "2"},
		{name: "bool renders python style", source: "{{ payload.silenced }}", want: "False"},
		{name: "missing field", source: "{{ payload.nope }}", want: "None"},
		{name: "missing chain", source: "{{ payload.nope.deeper[3] }}", want: "None"},
		{name: "subscript", source: `{{ payload["severity"] }}`, want: "critical"},
		{name: "negative index", source: "{{ payload.tags[-1] }}", want: "storage"},
		{name: "list repr", source: "{{ payload.tags }}", want: "['db', 'storage']"},
		{name: "dict repr", source: "{{ payload.commonLabels }}", want: "{'env': 'prod'}"},
		{name: "labels", source: "{{ labels.team }}", want: "database"},
		{name: "json dumps", source: "{{ payload.commonLabels | json_dumps }}", want: `{"env": "prod"}`},
		{name: "regex search true", source: `{{ payload | json_dumps | regex_search("Disk") }}`, want: "True"},
		{name: "regex search false", source: `{{ payload | json_dumps | regex_search("memory") }}`, want: "False"},
		{name: "regex class escape", source: `{{ payload.title | regex_search("\d") }}`, want: "False"},
		{name: "regex match anchored", source: `{{ payload.title | regex_match("usage") }}`, want: "False"},
		{name: "regex replace", source: `{{ payload.title | regex_replace("(\w+) usage", "\1 pressure") }}`, want: "Disk pressure high"},
		{name: "and returns operand", source: "{{ labels.team and labels.severity }}", want: "critical"},
		{name: "and short circuits", source: "{{ payload.nope and payload.title }}", want: "None"},
		{name: "or returns operand", source: `{{ payload.nope or "fallback" }}`, want: "fallback"},
		{name: "not", source: "{{ not payload.silenced }}", want: "True"},
		{name: "comparison chain", source: "{{ 1 < payload.priority < 3 }}", want: "True"},
		{name: "int float equality", source: "{{ 2 == 2.0 }}", want: "True"},
		{name: "string int inequality", source: `{{ "2" == 2 }}`, want: "False"},
		{name: "not in", source: `{{ "web" not in payload.tags }}`, want: "True"},
		{name: "dict membership", source: `{{ "env" in payload.commonLabels }}`, want: "True"},
		{name: "concat", source: `{{ payload.severity ~ "-" ~ payload.priority }}`, want: "critical-2"},
		{name: "arithmetic", source: "{{ payload.priority * 3 + 1 }}", want: "7"},
		{name: "true division", source: "{{ 7 / 2 }}", want: "3.5"},
		{name: "floor division", source: "{{ -7 // 2 }}", want: "-4"},
		{name: "python modulo", source: "{{ -7 % 3 }}", want: "2"},
		{name: "float filter", source: "{{ payload.value | float }}", want: "93.5"},
		{name: "int filter fallback", source: `{{ "abc" | int(-1) }}`, want: "-1"},
		{name: "default", source: `{{ payload.owner | default("nobody") }}`, want: "nobody"},
		{name: "length", source: "{{ payload.tags | length }}", want: "2"},
		{name: "join", source: `{{ payload.tags | join(",") }}`, want: "db,storage"},
		{name: "upper", source: "{{ payload.severity | upper }}", want: "CRITICAL"},
		{name: "call syntax", source: `{{ startswith(payload.title, "Disk") }}`, want: "True"},
		{name: "inline if", source: `{{ "page" if payload.severity == "critical" else "ticket" }}`, want: "page"},
		{name: "inline if without else", source: `[{{ "page" if payload.silenced }}]`, want: "[]"},
		{name: "is defined", source: "{{ payload.title is defined }}", want: "True"},
		{name: "is not none", source: "{{ payload.nope is not none }}", want: "False"},
		{name: "if elif else", source: `{% if payload.priority == 1 %}p1{% elif payload.priority == 2 %}p2{% else %}other{% endif %}`, want: "p2"},
		{name: "nested if", source: `{% if payload.state %}{% if payload.silenced %}muted{% else %}loud{% endif %}{% endif %}`, want: "loud"},
		{name: "comment", source: "a{# ignored #}b", want: "ab"},
		{name: "whitespace control", source: "  {{- payload.severity -}}  \n", want: "critical"},
		{name: "case insensitive literals", source: "{{ True and None }}", want: "None"},
		{name: "list literal", source: "{{ [1, 'a'] }}", want: "[1, 'a']"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, engine, tt.source, alertVars()))
		})
	}
}

func TestValidateRejects(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name   string
		source string
	}{
		{name: "unclosed expression", source: "{{ payload.title "},
		{name: "unclosed if", source: "{% if payload.x %}yes"},
		{name: "stray endif", source: "{% endif %}"},
		{name: "loop", source: "{% for a in payload.alerts %}{{ a }}{% endfor %}"},
		{name: "assignment", source: "{% set x = 1 %}"},
		{name: "unknown helper", source: "{{ payload | exec }}"},
		{name: "unknown function", source: "{{ open('/etc/passwd') }}"},
		{name: "unknown variable", source: "{{ os.environ }}"},
		{name: "method call", source: "{{ payload.title.upper() }}"},
		{name: "call on value", source: "{{ payload(1) }}"},
		{name: "wrong arity", source: `{{ payload | regex_search }}`},
		{name: "unterminated string", source: `{{ "abc }}`},
		{name: "bad character", source: "{{ payload @ 1 }}"},
		{name: "unknown test", source: "{{ payload is callable }}"},
		{name: "unclosed comment", source: "{# nothing"},
		{name: "too deep", source: "{{ " + strings.Repeat("(", 60) + "1" + strings.Repeat(")", 60) + " }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Validate(tt.source)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSyntax), "got %v", err)
		})
	}
}

func TestSyntaxErrorCarriesLine(t *testing.T) {
	engine := newEngine(t)
	err := engine.Validate("line one\nline two {{ payload | nope }}")
	var tplErr *Error
	require.ErrorAs(t, err, &tplErr)
	assert.Equal(t, 2, tplErr.Line)
}

func TestRenderErrors(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name   string
		source string
	}{
		{name: "type error", source: `{{ payload.title - 1 }}`},
		{name: "division by zero", source: `{{ 1 / 0 }}`},
		{name: "bad regex", source: `{{ payload.title | regex_search("(") }}`},
		{name: "unordered types", source: `{{ payload.tags < 1 }}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := engine.Compile(tt.source)
			require.NoError(t, err)
			_, err = tpl.Render(context.Background(), alertVars())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRender), "got %v", err)
		})
	}
}

func TestStepBudget(t *testing.T) {
	engine, err := NewEngine(Config{StepBudget: 5})
	require.NoError(t, err)

	source := "{{ " + strings.Repeat("payload.priority + ", 20) + "1 }}"
	tpl, err := engine.Compile(source)
	require.NoError(t, err)

	_, err = tpl.Render(context.Background(), alertVars())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExceeded), "got %v", err)
}

func TestRenderHonoursCancelledContext(t *testing.T) {
	engine := newEngine(t)
	tpl, err := engine.Compile("{{ payload.title }}")
	require.NoError(t, err)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err = tpl.Render(ctx, alertVars())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
}

func TestOutputLimit(t *testing.T) {
	engine, err := NewEngine(Config{MaxOutputBytes: 8})
	require.NoError(t, err)

	tpl, err := engine.Compile("{{ payload.title }}")
	require.NoError(t, err)

	_, err = tpl.Render(context.Background(), alertVars())
	assert.True(t, errors.Is(err, ErrOutputTooLarge), "got %v", err)
}

func TestIsTruthy(t *testing.T) {
	for _, out := range []string{"True", "true", "1", "yes", "ok", " critical \n", "[1]"} {
		assert.True(t, IsTruthy(out), out)
	}
	for _, out := range []string{"", "  ", "False", "false", "0", "None", "none", "null", "No", "off"} {
		assert.False(t, IsTruthy(out), out)
	}
}
