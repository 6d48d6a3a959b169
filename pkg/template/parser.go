package template

import (
	"strconv"
	"strings"
)

// maxNesting bounds expression depth so lowered programs stay well inside
// the CEL parser recursion limit.
const maxNesting = 48

// Variables templates may reference.
var knownVariables = map[string]bool{
	"payload": true,
	"labels":  true,
}

var comparisonOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

// Tags outside the supported subset get a dedicated message.
var unsupportedTags = map[string]bool{
	"for": true, "endfor": true, "set": true, "endset": true, "macro": true, "endmacro": true,
	"call": true, "filter": true, "include": true, "import": true, "from": true, "extends": true,
	"block": true, "with": true, "raw": true, "do": true,
}

type parser struct {
	tokens []token
	pos    int
	depth  int
}

func parse(src string) ([]node, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	body, stop, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if stop != "" {
		return nil, syntaxError(p.peek().line, "unexpected '%s' without matching 'if'", stop)
	}
	return body, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(op string) bool {
	tok := p.peek()
	return tok.kind == tokOp && tok.val == op
}

func (p *parser) isName(name string) bool {
	tok := p.peek()
	return tok.kind == tokName && tok.val == name
}

func (p *parser) expectOp(op string) error {
	tok := p.next()
	if tok.kind != tokOp || tok.val != op {
		return syntaxError(tok.line, "expected '%s', got %s", op, describe(tok))
	}
	return nil
}

func (p *parser) expectKind(kind tokenKind, what string) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, syntaxError(tok.line, "expected %s, got %s", what, describe(tok))
	}
	return tok, nil
}

func describe(tok token) string {
	switch tok.kind {
	case tokEOF:
		return "end of template"
	case tokExprClose, tokStmtClose:
		return "'" + tok.val + "'"
	case tokString:
		return "string literal"
	}
	return "'" + tok.val + "'"
}

// parseBody reads nodes until EOF or a block tag that closes the current
// block. The closing tag keyword is returned with the parser positioned
// after the keyword.
func (p *parser) parseBody() ([]node, string, error) {
	var body []node
	for {
		tok := p.next()
		switch tok.kind {
		case tokEOF:
			return body, "", nil
		case tokText:
			body = append(body, textNode{text: tok.val})
		case tokExprOpen:
			e, err := p.parseExpr()
			if err != nil {
				return nil, "", err
			}
			if _, err := p.expectKind(tokExprClose, "'}}'"); err != nil {
				return nil, "", err
			}
			body = append(body, outputNode{expr: e})
		case tokStmtOpen:
			kw, err := p.expectKind(tokName, "block tag")
			if err != nil {
				return nil, "", err
			}
			switch {
			case kw.val == "if":
				n, err := p.parseIf()
				if err != nil {
					return nil, "", err
				}
				body = append(body, n)
			case kw.val == "elif" || kw.val == "else" || kw.val == "endif":
				return body, kw.val, nil
			case unsupportedTags[kw.val]:
				return nil, "", syntaxError(kw.line, "tag '%s' is not supported", kw.val)
			default:
				return nil, "", syntaxError(kw.line, "unknown tag '%s'", kw.val)
			}
		default:
			return nil, "", syntaxError(tok.line, "unexpected %s", describe(tok))
		}
	}
}

func (p *parser) parseIf() (node, error) {
	var n ifNode
	line := p.peek().line
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	for {
		if _, err := p.expectKind(tokStmtClose, "'%}'"); err != nil {
			return nil, err
		}
		body, stop, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		n.branches = append(n.branches, ifBranch{cond: cond, body: body})

		switch stop {
		case "elif":
			if cond, err = p.parseExpr(); err != nil {
				return nil, err
			}
		case "else":
			if _, err := p.expectKind(tokStmtClose, "'%}'"); err != nil {
				return nil, err
			}
			orElse, stop, err := p.parseBody()
			if err != nil {
				return nil, err
			}
			if stop != "endif" {
				return nil, syntaxError(line, "expected 'endif' to close 'if'")
			}
			n.orElse = orElse
			_, err = p.expectKind(tokStmtClose, "'%}'")
			return n, err
		case "endif":
			_, err := p.expectKind(tokStmtClose, "'%}'")
			return n, err
		default:
			return nil, syntaxError(line, "unclosed 'if' block")
		}
	}
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxNesting {
		return syntaxError(p.peek().line, "expression nested too deeply")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseExpr() (expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isName("if") {
		return e, nil
	}
	p.next()
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	var orElse expr
	if p.isName("else") {
		p.next()
		if orElse, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return condExpr{cond: cond, then: e, orElse: orElse}, nil
}

func (p *parser) parseOr() (expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isName("or") {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = logicalExpr{op: "or", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isName("and") {
		p.next()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = logicalExpr{op: "and", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseNot() (expr, error) {
	if p.isName("not") {
		p.next()
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notExpr{x: x}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (expr, error) {
	l, err := p.parseMath1()
	if err != nil {
		return nil, err
	}

	var result expr
	for {
		var op string
		switch tok := p.peek(); {
		case tok.kind == tokOp && comparisonOps[tok.val]:
			op = tok.val
			p.next()
		case p.isName("in"):
			op = "in"
			p.next()
		case p.isName("not") && p.tokens[p.pos+1].kind == tokName && p.tokens[p.pos+1].val == "in":
			op = "not in"
			p.pos += 2
		default:
			if result == nil {
				return l, nil
			}
			return result, nil
		}

		r, err := p.parseMath1()
		if err != nil {
			return nil, err
		}
		cmp := binaryExpr{op: op, l: l, r: r}
		// a < b < c means a < b and b < c.
		if result == nil {
			result = cmp
		} else {
			result = logicalExpr{op: "and", l: result, r: cmp}
		}
		l = r
	}
}

func (p *parser) parseMath1() (expr, error) {
	l, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().val
		r, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		l = binaryExpr{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseConcat() (expr, error) {
	l, err := p.parseMath2()
	if err != nil {
		return nil, err
	}
	for p.isOp("~") {
		p.next()
		r, err := p.parseMath2()
		if err != nil {
			return nil, err
		}
		l = binaryExpr{op: "~", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseMath2() (expr, error) {
	l, err := p.parseUnary(true)
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("//") || p.isOp("%") {
		op := p.next().val
		r, err := p.parseUnary(true)
		if err != nil {
			return nil, err
		}
		l = binaryExpr{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseUnary(withFilter bool) (expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	var (
		e   expr
		err error
	)
	switch {
	case p.isOp("-"):
		p.next()
		x, err := p.parseUnary(false)
		if err != nil {
			return nil, err
		}
		e = unaryExpr{op: "-", x: x}
	case p.isOp("+"):
		p.next()
		if e, err = p.parseUnary(false); err != nil {
			return nil, err
		}
	default:
		if e, err = p.parsePrimary(); err != nil {
			return nil, err
		}
	}

	if e, err = p.parsePostfix(e); err != nil {
		return nil, err
	}
	if withFilter {
		return p.parseFilters(e)
	}
	return e, nil
}

func (p *parser) parsePrimary() (expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		s := tok.val
		// Adjacent literals concatenate.
		for p.peek().kind == tokString {
			s += p.next().val
		}
		return literalExpr{value: s}, nil
	case tokInt:
		v, err := strconv.ParseInt(tok.val, 10, 64)
		if err != nil {
			return nil, syntaxError(tok.line, "integer literal %s out of range", tok.val)
		}
		return literalExpr{value: v}, nil
	case tokFloat:
		v, err := strconv.ParseFloat(tok.val, 64)
		if err != nil {
			return nil, syntaxError(tok.line, "invalid float literal %s", tok.val)
		}
		return literalExpr{value: v}, nil
	case tokName:
		switch strings.ToLower(tok.val) {
		case "true":
			return literalExpr{value: true}, nil
		case "false":
			return literalExpr{value: false}, nil
		case "none", "null":
			return literalExpr{value: nil}, nil
		}
		if p.isOp("(") {
			return p.parseCall(tok)
		}
		if !knownVariables[tok.val] {
			return nil, syntaxError(tok.line, "'%s' is undefined", tok.val)
		}
		return nameExpr{name: tok.val}, nil
	case tokOp:
		switch tok.val {
		case "(":
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return e, p.expectOp(")")
		case "[":
			items, err := p.parseList("]")
			if err != nil {
				return nil, err
			}
			return listExpr{items: items}, nil
		}
	}
	return nil, syntaxError(tok.line, "unexpected %s", describe(tok))
}

func (p *parser) parseList(closer string) ([]expr, error) {
	var items []expr
	for !p.isOp(closer) {
		if len(items) > 0 {
			if err := p.expectOp(","); err != nil {
				return nil, err
			}
			if p.isOp(closer) {
				break
			}
		}
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	p.next()
	return items, nil
}

func (p *parser) parseCall(name token) (expr, error) {
	if _, ok := helpers[name.val]; !ok {
		return nil, syntaxError(name.line, "no helper named '%s'", name.val)
	}
	p.next()
	args, err := p.parseList(")")
	if err != nil {
		return nil, err
	}
	if err := checkArity(name, len(args)); err != nil {
		return nil, err
	}
	return callExpr{helper: name.val, args: args}, nil
}

func (p *parser) parsePostfix(e expr) (expr, error) {
	for {
		switch {
		case p.isOp("."):
			p.next()
			tok := p.next()
			switch tok.kind {
			case tokName:
				e = attrExpr{obj: e, key: literalExpr{value: tok.val}}
			case tokInt:
				v, _ := strconv.ParseInt(tok.val, 10, 64)
				e = attrExpr{obj: e, key: literalExpr{value: v}}
			default:
				return nil, syntaxError(tok.line, "expected attribute name after '.', got %s", describe(tok))
			}
			if p.isOp("(") {
				return nil, syntaxError(tok.line, "method calls are not allowed")
			}
		case p.isOp("["):
			p.next()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			e = attrExpr{obj: e, key: key}
		case p.isOp("("):
			return nil, syntaxError(p.peek().line, "only helpers can be called")
		default:
			return e, nil
		}
	}
}

func (p *parser) parseFilters(e expr) (expr, error) {
	for {
		switch {
		case p.isOp("|"):
			p.next()
			name, err := p.expectKind(tokName, "filter name")
			if err != nil {
				return nil, err
			}
			if _, ok := helpers[name.val]; !ok {
				return nil, syntaxError(name.line, "no filter named '%s'", name.val)
			}
			args := []expr{e}
			if p.isOp("(") {
				p.next()
				rest, err := p.parseList(")")
				if err != nil {
					return nil, err
				}
				args = append(args, rest...)
			}
			if err := checkArity(name, len(args)); err != nil {
				return nil, err
			}
			e = callExpr{helper: name.val, args: args}
		case p.isName("is"):
			p.next()
			negated := false
			if p.isName("not") {
				p.next()
				negated = true
			}
			tok := p.next()
			test := strings.ToLower(tok.val)
			if tok.kind != tokName || !knownTests[test] {
				return nil, syntaxError(tok.line, "no test named %s", describe(tok))
			}
			e = testExpr{subject: e, test: test, negated: negated}
		default:
			return e, nil
		}
	}
}

func checkArity(name token, n int) error {
	h := helpers[name.val]
	if n < h.minArgs || n > h.maxArgs {
		return syntaxError(name.line, "'%s' takes %s, got %d", name.val, h.arityText(), n)
	}
	return nil
}
