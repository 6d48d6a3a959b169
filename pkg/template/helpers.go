package template

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"switchyard/pkg/payload"
)

// maxValueBytes caps intermediate strings so nested helpers cannot balloon
// memory before the output limit is checked.
const maxValueBytes = 1 << 20

type helper struct {
	minArgs int
	maxArgs int
	fn      func(args []interface{}) (interface{}, error)
}

func (h helper) arityText() string {
	switch {
	case h.minArgs == h.maxArgs && h.minArgs == 1:
		return "1 argument"
	case h.minArgs == h.maxArgs:
		return fmt.Sprintf("%d arguments", h.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", h.minArgs, h.maxArgs)
}

func helperFunction(name string) string {
	return "tpl_fn_" + name
}

// helpers is the complete set of filters and functions templates may use.
// Every entry is a pure function of its arguments.
var helpers = map[string]helper{
	"json_dumps":    {1, 1, jsonDumps},
	"tojson":        {1, 1, jsonDumps},
	"regex_search":  {2, 2, regexSearch},
	"regex_match":   {2, 2, regexMatch},
	"regex_replace": {3, 3, regexReplace},
	"lower":         {1, 1, func(a []interface{}) (interface{}, error) { return strings.ToLower(str(a[0])), nil }},
	"upper":         {1, 1, func(a []interface{}) (interface{}, error) { return strings.ToUpper(str(a[0])), nil }},
	"trim":          {1, 1, func(a []interface{}) (interface{}, error) { return strings.TrimSpace(str(a[0])), nil }},
	"string":        {1, 1, func(a []interface{}) (interface{}, error) { return str(a[0]), nil }},
	"length":        {1, 1, length},
	"default":       {1, 2, defaultValue},
	"int":           {1, 2, toInt},
	"float":         {1, 2, toFloat},
	"abs":           {1, 1, abs},
	"contains":      {2, 2, func(a []interface{}) (interface{}, error) { return contains(a[0], a[1]) }},
	"startswith":    {2, 2, func(a []interface{}) (interface{}, error) { return strings.HasPrefix(str(a[0]), str(a[1])), nil }},
	"endswith":      {2, 2, func(a []interface{}) (interface{}, error) { return strings.HasSuffix(str(a[0]), str(a[1])), nil }},
	"replace":       {3, 3, replace},
	"join":          {1, 2, join},
	"first":         {1, 1, first},
	"last":          {1, 1, last},
}

var knownTests = map[string]bool{
	"defined":   true,
	"undefined": true,
	"none":      true,
	"string":    true,
	"number":    true,
	"boolean":   true,
	"mapping":   true,
	"sequence":  true,
}

func runTest(name string, v interface{}) bool {
	switch name {
	case "defined":
		return v != nil
	case "undefined", "none":
		return v == nil
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case int64, float64:
			return true
		}
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "mapping":
		_, ok := v.(map[string]interface{})
		return ok
	case "sequence":
		switch v.(type) {
		case []interface{}, string:
			return true
		}
	}
	return false
}

func jsonDumps(args []interface{}) (interface{}, error) {
	return payload.Canonical(args[0])
}

func regexSearch(args []interface{}) (interface{}, error) {
	s, ok := args[0].(string)
	if !ok {
		return nil, nil
	}
	re, err := compileRegex(str(args[1]))
	if err != nil {
		return nil, err
	}
	return re.MatchString(s), nil
}

func regexMatch(args []interface{}) (interface{}, error) {
	s, ok := args[0].(string)
	if !ok {
		return nil, nil
	}
	re, err := compileRegex(`\A(?:` + str(args[1]) + `)`)
	if err != nil {
		return nil, err
	}
	return re.MatchString(s), nil
}

var pythonBackref = regexp.MustCompile(`\\(\d+)|\\g<(\w+)>`)

func regexReplace(args []interface{}) (interface{}, error) {
	s, ok := args[0].(string)
	if !ok {
		return nil, nil
	}
	re, err := compileRegex(str(args[1]))
	if err != nil {
		return nil, err
	}
	repl := strings.ReplaceAll(str(args[2]), "$", "$$")
	repl = pythonBackref.ReplaceAllString(repl, "$${$1$2}")
	return limit(re.ReplaceAllString(s, repl))
}

func length(args []interface{}) (interface{}, error) {
	switch v := args[0].(type) {
	case string:
		return int64(utf8.RuneCountInString(v)), nil
	case []interface{}:
		return int64(len(v)), nil
	case map[string]interface{}:
		return int64(len(v)), nil
	case nil:
		return int64(0), nil
	}
	return nil, fmt.Errorf("object of type '%s' has no len()", typeName(args[0]))
}

func defaultValue(args []interface{}) (interface{}, error) {
	if args[0] != nil {
		return args[0], nil
	}
	if len(args) > 1 {
		return args[1], nil
	}
	return "", nil
}

func toInt(args []interface{}) (interface{}, error) {
	var fallback interface{} = int64(0)
	if len(args) > 1 {
		fallback = args[1]
	}
	switch v := args[0].(type) {
	case int64:
		return v, nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fallback, nil
		}
		return int64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), nil
		}
	}
	return fallback, nil
}

func toFloat(args []interface{}) (interface{}, error) {
	var fallback interface{} = 0.0
	if len(args) > 1 {
		fallback = args[1]
	}
	if f, ok := number(args[0]); ok {
		return f, nil
	}
	if s, ok := args[0].(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, nil
		}
	}
	return fallback, nil
}

func abs(args []interface{}) (interface{}, error) {
	switch v := args[0].(type) {
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		return math.Abs(v), nil
	}
	return nil, fmt.Errorf("bad operand type for abs(): '%s'", typeName(args[0]))
}

func replace(args []interface{}) (interface{}, error) {
	return limit(strings.ReplaceAll(str(args[0]), str(args[1]), str(args[2])))
}

func join(args []interface{}) (interface{}, error) {
	sep := ""
	if len(args) > 1 {
		sep = str(args[1])
	}
	items, ok := args[0].([]interface{})
	if !ok {
		return nil, fmt.Errorf("can only join a list, not %s", typeName(args[0]))
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = str(item)
	}
	return limit(strings.Join(parts, sep))
}

func first(args []interface{}) (interface{}, error) {
	if items, ok := args[0].([]interface{}); ok && len(items) > 0 {
		return items[0], nil
	}
	return nil, nil
}

func last(args []interface{}) (interface{}, error) {
	if items, ok := args[0].([]interface{}); ok && len(items) > 0 {
		return items[len(items)-1], nil
	}
	return nil, nil
}

func limit(s string) (interface{}, error) {
	if len(s) > maxValueBytes {
		return nil, fmt.Errorf("string value exceeds %d bytes", maxValueBytes)
	}
	return s, nil
}

const regexCacheSize = 512

var regexes = struct {
	sync.RWMutex
	compiled map[string]*regexp.Regexp
}{compiled: make(map[string]*regexp.Regexp)}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	regexes.RLock()
	re, ok := regexes.compiled[pattern]
	regexes.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression %q: %w", pattern, err)
	}

	regexes.Lock()
	if len(regexes.compiled) >= regexCacheSize {
		regexes.compiled = make(map[string]*regexp.Regexp)
	}
	regexes.compiled[pattern] = re
	regexes.Unlock()
	return re, nil
}
