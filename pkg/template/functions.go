package template

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

type nativeFn func(args []interface{}) (interface{}, error)

func wrap(fn nativeFn) func(...ref.Val) ref.Val {
	return func(vals ...ref.Val) ref.Val {
		args := make([]interface{}, len(vals))
		for i, v := range vals {
			n, err := toNative(v)
			if err != nil {
				return types.NewErr("%s", err.Error())
			}
			args[i] = n
		}
		out, err := fn(args)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		return toVal(out)
	}
}

func binding(n int, fn func(...ref.Val) ref.Val) cel.OverloadOpt {
	switch n {
	case 1:
		return cel.UnaryBinding(func(v ref.Val) ref.Val { return fn(v) })
	case 2:
		return cel.BinaryBinding(func(l, r ref.Val) ref.Val { return fn(l, r) })
	}
	return cel.FunctionBinding(fn)
}

func dynArgs(n int) []*cel.Type {
	args := make([]*cel.Type, n)
	for i := range args {
		args[i] = cel.DynType
	}
	return args
}

func function(name string, n int, result *cel.Type, fn func(...ref.Val) ref.Val) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(fmt.Sprintf("%s_%d", name, n), dynArgs(n), result, binding(n, fn)))
}

// runtimeFunctions declares every function lowered templates may call.
func runtimeFunctions() []cel.EnvOption {
	opts := []cel.EnvOption{
		cel.Function("tpl_attr",
			cel.Overload("tpl_attr_2", dynArgs(2), cel.DynType, cel.BinaryBinding(attr))),
		cel.Function("tpl_concat",
			cel.Overload("tpl_concat_list", []*cel.Type{cel.ListType(cel.StringType)}, cel.StringType,
				cel.UnaryBinding(concat))),
		function("tpl_str", 1, cel.StringType, wrap(func(a []interface{}) (interface{}, error) {
			return str(a[0]), nil
		})),
		function("tpl_truthy", 1, cel.BoolType, wrap(func(a []interface{}) (interface{}, error) {
			return truthy(a[0]), nil
		})),
		function("tpl_neg", 1, cel.DynType, wrap(negate)),
		function("tpl_add", 2, cel.DynType, wrap(add)),
		function("tpl_sub", 2, cel.DynType, wrap(arith("-"))),
		function("tpl_mul", 2, cel.DynType, wrap(arith("*"))),
		function("tpl_div", 2, cel.DynType, wrap(arith("/"))),
		function("tpl_floordiv", 2, cel.DynType, wrap(arith("//"))),
		function("tpl_mod", 2, cel.DynType, wrap(arith("%"))),
		function("tpl_eq", 2, cel.DynType, wrap(func(a []interface{}) (interface{}, error) {
			return equal(a[0], a[1]), nil
		})),
		function("tpl_ne", 2, cel.DynType, wrap(func(a []interface{}) (interface{}, error) {
			return !equal(a[0], a[1]), nil
		})),
		function("tpl_lt", 2, cel.DynType, wrap(ordering(func(c int) bool { return c < 0 }))),
		function("tpl_le", 2, cel.DynType, wrap(ordering(func(c int) bool { return c <= 0 }))),
		function("tpl_gt", 2, cel.DynType, wrap(ordering(func(c int) bool { return c > 0 }))),
		function("tpl_ge", 2, cel.DynType, wrap(ordering(func(c int) bool { return c >= 0 }))),
		function("tpl_in", 2, cel.DynType, wrap(func(a []interface{}) (interface{}, error) {
			return contains(a[1], a[0])
		})),
	}

	for name := range knownTests {
		test := name
		opts = append(opts, function("tpl_is_"+test, 1, cel.DynType, wrap(func(a []interface{}) (interface{}, error) {
			return runTest(test, a[0]), nil
		})))
	}

	for name, h := range helpers {
		fn := wrap(h.fn)
		overloads := make([]cel.FunctionOpt, 0, h.maxArgs-h.minArgs+1)
		for n := h.minArgs; n <= h.maxArgs; n++ {
			overloads = append(overloads,
				cel.Overload(fmt.Sprintf("%s_%d", helperFunction(name), n), dynArgs(n), cel.DynType, binding(n, fn)))
		}
		opts = append(opts, cel.Function(helperFunction(name), overloads...))
	}

	return opts
}

// attr resolves obj[key] without materialising obj. Missing keys and
// out-of-range indexes yield null, which renders and tests like Jinja's
// chainable undefined.
func attr(obj, key ref.Val) ref.Val {
	switch o := obj.(type) {
	case types.Null:
		return types.NullValue
	case types.String:
		idx, ok := key.(types.Int)
		if !ok {
			return types.NullValue
		}
		runes := []rune(string(o))
		if idx < 0 {
			idx += types.Int(len(runes))
		}
		if idx < 0 || int(idx) >= len(runes) {
			return types.NullValue
		}
		return types.String(runes[idx])
	case traits.Mapper:
		if _, ok := key.(types.String); !ok {
			return types.NullValue
		}
		v, found := o.Find(key)
		if !found || types.IsError(v) {
			return types.NullValue
		}
		return v
	case traits.Lister:
		idx, ok := key.(types.Int)
		if !ok {
			return types.NullValue
		}
		size, _ := o.Size().(types.Int)
		if idx < 0 {
			idx += size
		}
		if idx < 0 || idx >= size {
			return types.NullValue
		}
		return o.Get(idx)
	}
	return types.NullValue
}

func concat(list ref.Val) ref.Val {
	l, ok := list.(traits.Lister)
	if !ok {
		return types.NewErr("tpl_concat: expected list, got %s", list.Type().TypeName())
	}
	var sb strings.Builder
	size, _ := l.Size().(types.Int)
	for i := types.Int(0); i < size; i++ {
		s, ok := l.Get(i).(types.String)
		if !ok {
			return types.NewErr("tpl_concat: expected string parts")
		}
		sb.WriteString(string(s))
		if sb.Len() > maxValueBytes {
			return types.NewErr("rendered output exceeds %d bytes", maxValueBytes)
		}
	}
	return types.String(sb.String())
}

func negate(args []interface{}) (interface{}, error) {
	switch v := args[0].(type) {
	case int64:
		return -v, nil
	case float64:
		return -v, nil
	case bool:
		if v {
			return int64(-1), nil
		}
		return int64(0), nil
	}
	return nil, fmt.Errorf("bad operand type for unary -: '%s'", typeName(args[0]))
}

func intOperand(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func add(args []interface{}) (interface{}, error) {
	a, b := args[0], args[1]
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return limit(av + bv)
		}
	case []interface{}:
		if bv, ok := b.([]interface{}); ok {
			out := make([]interface{}, 0, len(av)+len(bv))
			return append(append(out, av...), bv...), nil
		}
	}
	return arith("+")(args)
}

func arith(op string) nativeFn {
	return func(args []interface{}) (interface{}, error) {
		a, b := args[0], args[1]
		ai, aInt := intOperand(a)
		bi, bInt := intOperand(b)
		if aInt && bInt {
			return intArith(op, ai, bi)
		}
		af, aok := number(a)
		bf, bok := number(b)
		if !aok || !bok {
			return nil, fmt.Errorf("unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(a), typeName(b))
		}
		switch op {
		case "+":
			return af + bf, nil
		case "-":
			return af - bf, nil
		case "*":
			return af * bf, nil
		}
		if bf == 0 {
			return nil, fmt.Errorf("float division by zero")
		}
		switch op {
		case "/":
			return af / bf, nil
		case "//":
			return math.Floor(af / bf), nil
		default:
			m := math.Mod(af, bf)
			if m != 0 && (m < 0) != (bf < 0) {
				m += bf
			}
			return m, nil
		}
	}
}

func intArith(op string, a, b int64) (interface{}, error) {
	switch op {
	case "+":
		s := a + b
		if (s > a) != (b > 0) {
			return float64(a) + float64(b), nil
		}
		return s, nil
	case "-":
		d := a - b
		if (d < a) != (b > 0) {
			return float64(a) - float64(b), nil
		}
		return d, nil
	case "*":
		if a != 0 && b != 0 {
			p := a * b
			if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
				return float64(a) * float64(b), nil
			}
			return p, nil
		}
		return int64(0), nil
	}
	if b == 0 {
		return nil, fmt.Errorf("integer division or modulo by zero")
	}
	switch op {
	case "/":
		return float64(a) / float64(b), nil
	case "//":
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return q, nil
	default:
		m := a % b
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m, nil
	}
}

func ordering(accept func(int) bool) nativeFn {
	return func(args []interface{}) (interface{}, error) {
		c, err := compare(args[0], args[1])
		if err != nil {
			return nil, err
		}
		return accept(c), nil
	}
}
