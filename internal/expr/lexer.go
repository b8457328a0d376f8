// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokDecimal
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	// text is the operator or identifier, the digits of a number or the
	// unescaped contents of a string.
	text string
	pos  int
}

// lexer splits an expression into tokens.
type lexer struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.advanceChar()
	return l
}

// advanceChar moves the lexer to the next character in the input.
func (l *lexer) advanceChar() {
	if l.nextPos >= len(l.input) {
		l.char = 0
		l.pos = len(l.input)
		return
	}
	var size int
	l.char, size = utf8.DecodeRuneInString(l.input[l.nextPos:])
	l.pos = l.nextPos
	l.nextPos += size
}

func (l *lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *lexer) peek() rune {
	if l.nextPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.nextPos:])
	return r
}

func isIdentStart(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

func isIdentChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

// twoCharOps are matched before single char operators.
var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

const oneCharOps = "()!<>+-*/%.,@"

// next returns the next token in the input.
func (l *lexer) next() (token, error) {
	for !l.atEOF() && unicode.IsSpace(l.char) {
		l.advanceChar()
	}
	start := l.pos
	if l.atEOF() {
		return token{kind: tokEOF, pos: start}, nil
	}

	switch c := l.char; {
	case isIdentStart(c):
		for !l.atEOF() && isIdentChar(l.char) {
			l.advanceChar()
		}
		return token{kind: tokIdent, text: l.input[start:l.pos], pos: start}, nil
	case isDigit(c):
		return l.number()
	case c == '"' || c == '\'':
		return l.string()
	}

	for _, op := range twoCharOps {
		if strings.HasPrefix(l.input[start:], op) {
			l.advanceChar()
			l.advanceChar()
			return token{kind: tokOp, text: op, pos: start}, nil
		}
	}
	if l.char == '=' {
		return token{}, &SyntaxError{Offset: start, Reason: `unexpected "=", use "==" for comparison`}
	}
	if strings.ContainsRune(oneCharOps, l.char) {
		c := l.char
		l.advanceChar()
		return token{kind: tokOp, text: string(c), pos: start}, nil
	}
	return token{}, &SyntaxError{Offset: start, Reason: "unexpected character " + quoteRune(l.char)}
}

// number scans an integer or a decimal number. A trailing 'B' marks an
// arbitrary precision decimal.
func (l *lexer) number() (token, error) {
	start := l.pos
	kind := tokInt
	for !l.atEOF() && isDigit(l.char) {
		l.advanceChar()
	}
	if l.char == '.' && isDigit(l.peek()) {
		kind = tokFloat
		l.advanceChar()
		for !l.atEOF() && isDigit(l.char) {
			l.advanceChar()
		}
	}
	text := l.input[start:l.pos]
	if l.char == 'B' {
		kind = tokDecimal
		l.advanceChar()
	}
	if !l.atEOF() && isIdentChar(l.char) {
		return token{}, &SyntaxError{Offset: l.pos, Reason: "invalid character " + quoteRune(l.char) + " in number"}
	}
	return token{kind: kind, text: text, pos: start}, nil
}

// string scans a quoted string, resolving backslash escapes.
func (l *lexer) string() (token, error) {
	start := l.pos
	quote := l.char
	l.advanceChar()
	var sb strings.Builder
	for {
		if l.atEOF() {
			return token{}, &SyntaxError{Offset: start, Reason: "missing closing quote in string literal"}
		}
		c := l.char
		l.advanceChar()
		switch c {
		case quote:
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		case '\\':
			if l.atEOF() {
				return token{}, &SyntaxError{Offset: start, Reason: "missing closing quote in string literal"}
			}
			switch e := l.char; e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteRune(e)
			default:
				return token{}, &SyntaxError{Offset: l.pos - 1, Reason: "unknown escape sequence \\" + string(e)}
			}
			l.advanceChar()
		default:
			sb.WriteRune(c)
		}
	}
}

func quoteRune(c rune) string {
	return "'" + string(c) + "'"
}
