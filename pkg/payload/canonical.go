// Package payload turns alert documents into the stable forms matchers consume.
//
// Canonical output is byte-compatible with Python's
// json.dumps(value, sort_keys=True): ", " and ": " separators, ASCII-only
// escaping and Python float repr. Stored regex terms were written against
// that serialisation, so matching stays reproducible across decoders.
package payload

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Canonical serialises v into its canonical string form.
func Canonical(v interface{}) (string, error) {
	var sb strings.Builder
	if err := writeValue(&sb, v, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

const maxDepth = 128

func writeValue(sb *strings.Builder, v interface{}, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("payload nesting exceeds %d levels", maxDepth)
	}

	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case string:
		writeString(sb, val)
	case json.Number:
		return writeNumber(sb, val)
	case float64:
		sb.WriteString(FormatFloat(val))
	case float32:
		sb.WriteString(FormatFloat(float64(val)))
	case int:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		sb.WriteString(strconv.FormatInt(val, 10))
	case int32:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case uint64:
		sb.WriteString(strconv.FormatUint(val, 10))
	case uint:
		sb.WriteString(strconv.FormatUint(uint64(val), 10))
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeString(sb, k)
			sb.WriteString(": ")
			if err := writeValue(sb, val[k], depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeString(sb, k)
			sb.WriteString(": ")
			writeString(sb, val[k])
		}
		sb.WriteByte('}')
	case []interface{}:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := writeValue(sb, item, depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	default:
		return writeReflect(sb, reflect.ValueOf(v), depth)
	}
	return nil
}

func writeReflect(sb *strings.Builder, rv reflect.Value, depth int) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]interface{}, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return writeValue(sb, items, depth)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		m := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return writeValue(sb, m, depth)
	case reflect.Int8, reflect.Int16:
		sb.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		sb.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			sb.WriteString("null")
			return nil
		}
		return writeValue(sb, rv.Elem().Interface(), depth)
	default:
		return fmt.Errorf("unsupported payload value of type %s", rv.Type())
	}
	return nil
}

func writeNumber(sb *strings.Builder, n json.Number) error {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			sb.WriteString(s)
			return nil
		}
		// Python ints are unbounded; keep the digits as given.
		if isDigits(strings.TrimPrefix(s, "-")) {
			sb.WriteString(s)
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	sb.WriteString(FormatFloat(f))
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatFloat renders f the way Python's repr(float) does.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	// Shortest round-trip digits, e.g. "-1.2345e+02".
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	sign := ""
	if sci[0] == '-' {
		sign = "-"
		sci = sci[1:]
	}
	mantissa, expPart, _ := strings.Cut(sci, "e")
	exp, _ := strconv.Atoi(expPart)
	digits := strings.Replace(mantissa, ".", "", 1)

	if exp < -4 || exp >= 16 {
		out := digits[:1]
		if len(digits) > 1 {
			out += "." + digits[1:]
		}
		expSign := "+"
		if exp < 0 {
			expSign = "-"
			exp = -exp
		}
		return fmt.Sprintf("%s%se%s%02d", sign, out, expSign, exp)
	}

	pointPos := exp + 1
	switch {
	case pointPos <= 0:
		return sign + "0." + strings.Repeat("0", -pointPos) + digits
	case pointPos >= len(digits):
		return sign + digits + strings.Repeat("0", pointPos-len(digits)) + ".0"
	default:
		return sign + digits[:pointPos] + "." + digits[pointPos:]
	}
}

const hexDigits = "0123456789abcdef"

func writeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size

		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r < 0x7f:
				sb.WriteRune(r)
			case r > 0xffff:
				r -= 0x10000
				writeUnicodeEscape(sb, 0xd800|((r>>10)&0x3ff))
				writeUnicodeEscape(sb, 0xdc00|(r&0x3ff))
			default:
				writeUnicodeEscape(sb, r)
			}
		}
	}
	sb.WriteByte('"')
}

func writeUnicodeEscape(sb *strings.Builder, r rune) {
	sb.WriteString(`\u`)
	sb.WriteByte(hexDigits[(r>>12)&0xf])
	sb.WriteByte(hexDigits[(r>>8)&0xf])
	sb.WriteByte(hexDigits[(r>>4)&0xf])
	sb.WriteByte(hexDigits[r&0xf])
}
