package template

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokText tokenKind = iota
	tokExprOpen
	tokExprClose
	tokStmtOpen
	tokStmtClose
	tokName
	tokString
	tokInt
	tokFloat
	tokOp
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	line int
}

// Operators recognised inside {{ }} and {% %}, longest first.
var operators = []string{"==", "!=", "<=", ">=", "//", "<", ">", "+", "-", "*", "/", "%", "~", "|", ".", ",", "(", ")", "[", "]"}

type lexer struct {
	src    string
	pos    int
	line   int
	tokens []token
	// trimNext strips leading whitespace of the next text run ({{ x -}}).
	trimNext bool
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) emit(kind tokenKind, val string, line int) {
	l.tokens = append(l.tokens, token{kind: kind, val: val, line: line})
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		idx := indexOpen(l.src[l.pos:])
		if idx < 0 {
			l.emitText(l.src[l.pos:])
			l.pos = len(l.src)
			break
		}

		text := l.src[l.pos : l.pos+idx]
		delim := l.src[l.pos+idx : l.pos+idx+2]
		trimPrev := l.pos+idx+2 < len(l.src) && l.src[l.pos+idx+2] == '-'
		if trimPrev {
			text = strings.TrimRightFunc(text, unicode.IsSpace)
		}
		l.emitText(text)
		l.advance(idx + 2)
		if trimPrev {
			l.pos++
		}

		switch delim {
		case "{#":
			end := strings.Index(l.src[l.pos:], "#}")
			if end < 0 {
				return syntaxError(l.line, "unclosed comment")
			}
			comment := l.src[l.pos : l.pos+end]
			l.trimNext = strings.HasSuffix(comment, "-")
			l.advance(end + 2)
		case "{{":
			l.emit(tokExprOpen, delim, l.line)
			if err := l.lexInside("}}", tokExprClose); err != nil {
				return err
			}
		case "{%":
			l.emit(tokStmtOpen, delim, l.line)
			if err := l.lexInside("%}", tokStmtClose); err != nil {
				return err
			}
		}
	}
	l.emit(tokEOF, "", l.line)
	return nil
}

func indexOpen(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '{' && (s[i+1] == '{' || s[i+1] == '%' || s[i+1] == '#') {
			return i
		}
	}
	return -1
}

func (l *lexer) emitText(text string) {
	if l.trimNext {
		text = strings.TrimLeftFunc(text, unicode.IsSpace)
		l.trimNext = false
	}
	if text != "" {
		l.emit(tokText, text, l.line)
	}
}

func (l *lexer) advance(n int) {
	l.line += strings.Count(l.src[l.pos:l.pos+n], "\n")
	l.pos += n
}

func (l *lexer) lexInside(closer string, closeKind tokenKind) error {
	for {
		for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
			l.advance(1)
		}
		if l.pos >= len(l.src) {
			return syntaxError(l.line, "unexpected end of template, expected %q", closer)
		}

		rest := l.src[l.pos:]
		if strings.HasPrefix(rest, closer) {
			l.emit(closeKind, closer, l.line)
			l.advance(len(closer))
			return nil
		}
		if strings.HasPrefix(rest, "-"+closer) {
			l.emit(closeKind, closer, l.line)
			l.advance(len(closer) + 1)
			l.trimNext = true
			return nil
		}

		c := rest[0]
		switch {
		case c == '"' || c == '\'':
			if err := l.lexString(c); err != nil {
				return err
			}
		case isDigit(c):
			l.lexNumber()
		case isNameStart(c):
			start := l.pos
			for l.pos < len(l.src) && isNameChar(l.src[l.pos]) {
				l.pos++
			}
			l.emit(tokName, l.src[start:l.pos], l.line)
		default:
			op := ""
			for _, candidate := range operators {
				if strings.HasPrefix(rest, candidate) {
					op = candidate
					break
				}
			}
			if op == "" {
				return syntaxError(l.line, "unexpected character %q", c)
			}
			l.emit(tokOp, op, l.line)
			l.pos += len(op)
		}
	}
}

func (l *lexer) lexNumber() {
	start := l.pos
	kind := tokInt
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
	if l.pos+1 < len(l.src) && l.src[l.pos] == '.' && isDigit(l.src[l.pos+1]) {
		kind = tokFloat
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		next := l.pos + 1
		if next < len(l.src) && (l.src[next] == '+' || l.src[next] == '-') {
			next++
		}
		if next < len(l.src) && isDigit(l.src[next]) {
			kind = tokFloat
			l.pos = next
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
	}
	l.emit(kind, strings.ReplaceAll(l.src[start:l.pos], "_", ""), l.line)
}

func (l *lexer) lexString(quote byte) error {
	line := l.line
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			l.emit(tokString, sb.String(), line)
			return nil
		case c == '\\' && l.pos+1 < len(l.src):
			l.pos += unescape(&sb, l.src[l.pos:])
		default:
			if c == '\n' {
				l.line++
			}
			sb.WriteByte(c)
			l.pos++
		}
	}
	return syntaxError(line, "unterminated string literal")
}

// unescape decodes one backslash sequence at the start of s and returns the
// number of bytes consumed. Unknown escapes are kept verbatim so regex
// classes like \d survive.
func unescape(sb *strings.Builder, s string) int {
	switch s[1] {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case '\\':
		sb.WriteByte('\\')
	case '\'':
		sb.WriteByte('\'')
	case '"':
		sb.WriteByte('"')
	case 'x':
		if r, ok := parseHex(s[2:], 2); ok {
			sb.WriteRune(r)
			return 4
		}
		sb.WriteString(s[:2])
	case 'u':
		if r, ok := parseHex(s[2:], 4); ok {
			sb.WriteRune(r)
			return 6
		}
		sb.WriteString(s[:2])
	default:
		sb.WriteString(s[:2])
	}
	return 2
}

func parseHex(s string, n int) (rune, bool) {
	if len(s) < n {
		return 0, false
	}
	var r rune
	for i := 0; i < n; i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			r = r*16 + rune(c-'0')
		case c >= 'a' && c <= 'f':
			r = r*16 + rune(c-'a'+10)
		case c >= 'A' && c <= 'F':
			r = r*16 + rune(c-'A'+10)
		default:
			return 0, false
		}
	}
	return r, true
}

func isSpace(c byte) bool     { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isNameStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isNameChar(c byte) bool  { return isNameStart(c) || isDigit(c) }
