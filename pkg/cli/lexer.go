package cli

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokError tokenKind = iota
	tokEOF
	tokIdentifier
	tokString
)

type token struct {
	kind  tokenKind
	value string
	line  int
}

// lexer splits a command definition into identifiers and quoted strings.
// '#' starts a comment running to the end of the line.
// Mutable
type lexer struct {
	input string
	pos   int
	line  int
}

func newLexer(input string) *lexer {
	return &lexer{
		input: input,
		line:  1,
	}
}

func (l *lexer) nextToken() token {
	l.skipWhitespaceAndComments()

	if l.pos >= len(l.input) {
		return token{kind: tokEOF, line: l.line}
	}

	b := l.input[l.pos]
	switch {
	case b == '"':
		return l.readString()
	case isIdentStart(b):
		return l.readIdentifier()
	}

	l.pos++
	return token{kind: tokError, value: fmt.Sprintf("unexpected character: %c", b), line: l.line}
}

func (l *lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case '\n':
			l.line++
			l.pos++
		case ' ', '\t', '\r':
			l.pos++
		case '#':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) readIdentifier() token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	return token{kind: tokIdentifier, value: l.input[start:l.pos], line: l.line}
}

func (l *lexer) readString() token {
	l.pos++
	if strings.HasPrefix(l.input[l.pos:], `""`) {
		l.pos += 2
		return l.readBlock()
	}

	line := l.line
	end := strings.IndexByte(l.input[l.pos:], '"')
	if end < 0 {
		return token{kind: tokError, value: "unterminated string", line: line}
	}
	val := l.input[l.pos : l.pos+end]
	l.line += strings.Count(val, "\n")
	l.pos += end + 1
	return token{kind: tokString, value: val, line: line}
}

// readBlock reads a """ delimited string. Blank leading and trailing lines
// are dropped and the common indentation is removed.
func (l *lexer) readBlock() token {
	line := l.line
	end := strings.Index(l.input[l.pos:], `"""`)
	if end < 0 {
		return token{kind: tokError, value: "unterminated text block", line: line}
	}
	raw := l.input[l.pos : l.pos+end]
	l.line += strings.Count(raw, "\n")
	l.pos += end + 3
	return token{kind: tokString, value: dedent(raw), line: line}
}

func dedent(s string) string {
	lines := strings.Split(s, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, line := range lines {
		if len(line) >= indent && indent > 0 {
			lines[i] = line[indent:]
		}
	}
	return strings.Join(lines, "\n")
}

func isIdentStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9') || b == '_' || b == '-' || b == '.'
}
