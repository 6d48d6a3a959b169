package template

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"switchyard/pkg/payload"
)

// Runtime values are converted to the closed native set used by
// payload.Normalize: nil, bool, int64, float64, string, []interface{} and
// map[string]interface{}.

func toNative(v ref.Val) (interface{}, error) {
	switch val := v.(type) {
	case types.Null:
		return nil, nil
	case types.Bool:
		return bool(val), nil
	case types.Int:
		return int64(val), nil
	case types.Uint:
		return int64(val), nil
	case types.Double:
		return float64(val), nil
	case types.String:
		return string(val), nil
	case types.Bytes:
		return string(val), nil
	}

	// Containers adapted from the activation wrap the native value directly.
	switch native := v.Value().(type) {
	case map[string]interface{}:
		return native, nil
	case []interface{}:
		return native, nil
	case map[string]string:
		return payload.Normalize(native), nil
	}

	switch val := v.(type) {
	case traits.Mapper:
		out := make(map[string]interface{})
		it := val.Iterator()
		for it.HasNext() == types.True {
			k := it.Next()
			key, ok := k.(types.String)
			if !ok {
				return nil, fmt.Errorf("unsupported mapping key of type %s", k.Type().TypeName())
			}
			item, err := toNative(val.Get(k))
			if err != nil {
				return nil, err
			}
			out[string(key)] = item
		}
		return out, nil
	case traits.Lister:
		size, _ := val.Size().(types.Int)
		out := make([]interface{}, 0, int(size))
		for i := types.Int(0); i < size; i++ {
			item, err := toNative(val.Get(i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %s", v.Type().TypeName())
}

func toVal(v interface{}) ref.Val {
	return types.DefaultTypeAdapter.NativeToValue(v)
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case int64:
		return val != 0
	case float64:
		return val != 0
	case string:
		return val != ""
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	}
	return true
}

// str renders v the way Python's str() does.
func str(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		switch {
		case math.IsNaN(val):
			return "nan"
		case math.IsInf(val, 1):
			return "inf"
		case math.IsInf(val, -1):
			return "-inf"
		}
		return payload.FormatFloat(val)
	case string:
		return val
	}
	return repr(v)
}

// repr renders v the way Python's repr() does for container members.
func repr(v interface{}) string {
	switch val := v.(type) {
	case string:
		return reprString(val)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = reprString(k) + ": " + repr(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return str(v)
}

func reprString(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var sb strings.Builder
	sb.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			sb.WriteString(`\\`)
		case r == rune(quote):
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}

// number reports v as a float when it is numeric; bools count as numbers
// like they do in Python.
func number(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func equal(a, b interface{}) bool {
	if af, ok := number(a); ok {
		bf, ok := number(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, item := range av {
			other, ok := bv[k]
			if !ok || !equal(item, other) {
				return false
			}
		}
		return true
	}
	return false
}

// compare orders two values, failing for types Python would refuse to order.
func compare(a, b interface{}) (int, error) {
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), nil
		}
	}
	if al, ok := a.([]interface{}); ok {
		if bl, ok := b.([]interface{}); ok {
			for i := 0; i < len(al) && i < len(bl); i++ {
				if equal(al[i], bl[i]) {
					continue
				}
				return compare(al[i], bl[i])
			}
			return compare(int64(len(al)), int64(len(bl)))
		}
	}
	return 0, fmt.Errorf("'<' not supported between instances of '%s' and '%s'", typeName(a), typeName(b))
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []interface{}:
		return "list"
	case map[string]interface{}:
		return "dict"
	}
	return fmt.Sprintf("%T", v)
}

func contains(container, item interface{}) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return strings.Contains(c, s), nil
	case []interface{}:
		for _, elem := range c {
			if equal(elem, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]interface{}:
		key, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, found := c[key]
		return found, nil
	case nil:
		return false, nil
	}
	return false, fmt.Errorf("argument of type '%s' is not iterable", typeName(container))
}
