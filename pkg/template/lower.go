package template

import (
	"fmt"
	"strconv"
	"strings"
)

// lowerer turns a parsed template into one CEL expression of type string.
//
// Every value-producing node lowers to a dyn-typed CEL expression and all
// Jinja operator semantics are delegated to tpl_* runtime functions, so the
// CEL checker never has to unify mismatched literal types.
type lowerer struct {
	sb    strings.Builder
	temps int
}

func lower(body []node) string {
	l := &lowerer{}
	l.body(body)
	return l.sb.String()
}

func (l *lowerer) body(nodes []node) {
	if len(nodes) == 0 {
		l.sb.WriteString(`""`)
		return
	}
	l.sb.WriteString("tpl_concat([")
	for i, n := range nodes {
		if i > 0 {
			l.sb.WriteString(", ")
		}
		l.node(n)
	}
	l.sb.WriteString("])")
}

func (l *lowerer) node(n node) {
	switch n := n.(type) {
	case textNode:
		l.sb.WriteString(strconv.QuoteToASCII(n.text))
	case outputNode:
		l.sb.WriteString("tpl_str(")
		l.expr(n.expr)
		l.sb.WriteString(")")
	case ifNode:
		l.ifChain(n.branches, n.orElse)
	}
}

func (l *lowerer) ifChain(branches []ifBranch, orElse []node) {
	if len(branches) == 0 {
		l.body(orElse)
		return
	}
	l.sb.WriteString("(tpl_truthy(")
	l.expr(branches[0].cond)
	l.sb.WriteString(") ? ")
	l.body(branches[0].body)
	l.sb.WriteString(" : ")
	l.ifChain(branches[1:], orElse)
	l.sb.WriteString(")")
}

func (l *lowerer) call(fn string, args ...expr) {
	l.sb.WriteString(fn)
	l.sb.WriteString("(")
	for i, a := range args {
		if i > 0 {
			l.sb.WriteString(", ")
		}
		l.expr(a)
	}
	l.sb.WriteString(")")
}

func (l *lowerer) expr(e expr) {
	switch e := e.(type) {
	case literalExpr:
		l.literal(e.value)
	case nameExpr:
		l.sb.WriteString(e.name)
	case attrExpr:
		l.call("tpl_attr", e.obj, e.key)
	case callExpr:
		l.call(helperFunction(e.helper), e.args...)
	case testExpr:
		if e.negated {
			l.sb.WriteString("dyn(!tpl_truthy(")
			l.call("tpl_is_"+e.test, e.subject)
			l.sb.WriteString("))")
			return
		}
		l.call("tpl_is_"+e.test, e.subject)
	case unaryExpr:
		l.call("tpl_neg", e.x)
	case notExpr:
		l.sb.WriteString("dyn(!tpl_truthy(")
		l.expr(e.x)
		l.sb.WriteString("))")
	case logicalExpr:
		// Jinja's and/or yield an operand, not a bool: bind the left side once.
		tmp := fmt.Sprintf("tmp%d", l.temps)
		l.temps++
		l.sb.WriteString("cel.bind(" + tmp + ", ")
		l.expr(e.l)
		if e.op == "and" {
			l.sb.WriteString(", !tpl_truthy(" + tmp + ") ? " + tmp + " : ")
		} else {
			l.sb.WriteString(", tpl_truthy(" + tmp + ") ? " + tmp + " : ")
		}
		l.expr(e.r)
		l.sb.WriteString(")")
	case binaryExpr:
		l.binary(e)
	case condExpr:
		l.sb.WriteString("(tpl_truthy(")
		l.expr(e.cond)
		l.sb.WriteString(") ? ")
		l.expr(e.then)
		l.sb.WriteString(" : ")
		if e.orElse == nil {
			l.sb.WriteString(`dyn("")`)
		} else {
			l.expr(e.orElse)
		}
		l.sb.WriteString(")")
	case listExpr:
		l.sb.WriteString("dyn([")
		for i, item := range e.items {
			if i > 0 {
				l.sb.WriteString(", ")
			}
			l.expr(item)
		}
		l.sb.WriteString("])")
	}
}

var binaryFunctions = map[string]string{
	"+":  "tpl_add",
	"-":  "tpl_sub",
	"*":  "tpl_mul",
	"/":  "tpl_div",
	"//": "tpl_floordiv",
	"%":  "tpl_mod",
	"==": "tpl_eq",
	"!=": "tpl_ne",
	"<":  "tpl_lt",
	"<=": "tpl_le",
	">":  "tpl_gt",
	">=": "tpl_ge",
	"in": "tpl_in",
}

func (l *lowerer) binary(e binaryExpr) {
	switch e.op {
	case "~":
		l.sb.WriteString("dyn(")
		l.call("tpl_str", e.l)
		l.sb.WriteString(" + ")
		l.call("tpl_str", e.r)
		l.sb.WriteString(")")
	case "not in":
		l.sb.WriteString("dyn(!tpl_truthy(")
		l.call("tpl_in", e.l, e.r)
		l.sb.WriteString("))")
	default:
		l.call(binaryFunctions[e.op], e.l, e.r)
	}
}

func (l *lowerer) literal(v interface{}) {
	switch v := v.(type) {
	case nil:
		l.sb.WriteString("dyn(null)")
	case bool:
		l.sb.WriteString("dyn(" + strconv.FormatBool(v) + ")")
	case int64:
		l.sb.WriteString("dyn(" + strconv.FormatInt(v, 10) + ")")
	case float64:
		l.sb.WriteString("dyn(" + strconv.FormatFloat(v, 'e', -1, 64) + ")")
	case string:
		l.sb.WriteString("dyn(" + strconv.QuoteToASCII(v) + ")")
	}
}
