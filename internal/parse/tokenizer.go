// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind classifies a Token.
type TokenKind int

const (
	// TokenText is literal SQL, including quoted strings and white space.
	TokenText TokenKind = iota
	// TokenComment is a block or line comment that is not a directive.
	TokenComment
	// TokenBind is a /*expr*/ bind variable with its test literal.
	TokenBind
	// TokenEmbedded is a /*#expr*/ embedded variable.
	TokenEmbedded
	// TokenLiteral is a /*^expr*/ literal variable with its test literal.
	TokenLiteral
	// TokenDirective is a /*%keyword ...*/ directive other than end.
	TokenDirective
	// TokenEnd is the /*%end*/ directive closing a block.
	TokenEnd
	// TokenEOF marks the end of input.
	TokenEOF
)

var tokenKindNames = [...]string{
	TokenText:      "Text",
	TokenComment:   "Comment",
	TokenBind:      "Bind",
	TokenEmbedded:  "Embedded",
	TokenLiteral:   "Literal",
	TokenDirective: "Directive",
	TokenEnd:       "End",
	TokenEOF:       "EOF",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "Unknown"
}

// Directive keywords.
const (
	KeywordIf       = "if"
	KeywordElseIf   = "elseif"
	KeywordElse     = "else"
	KeywordFor      = "for"
	KeywordExpand   = "expand"
	KeywordPopulate = "populate"
	KeywordEnd      = "end"
)

var keywords = map[string]bool{
	KeywordIf:       true,
	KeywordElseIf:   true,
	KeywordElse:     true,
	KeywordFor:      true,
	KeywordExpand:   true,
	KeywordPopulate: true,
	KeywordEnd:      true,
}

// Token is a lexical unit of a template.
type Token struct {
	Kind TokenKind

	// Raw is the exact source text of the token, test literal included.
	Raw string

	// Body is the content of a comment. For variables the sigil is removed
	// and for directives the keyword is removed, leaving the expression.
	Body string

	// BodyOffset is the byte offset of Body in the template.
	BodyOffset int

	// Keyword is the directive keyword of TokenDirective and TokenEnd.
	Keyword string

	// Dummy is the test literal following a bind or literal variable, the
	// "*" following expand, or the text replaced by populate.
	Dummy string

	Location Location
}

func (t Token) String() string {
	return t.Kind.String() + "[" + t.Raw + "]"
}

// Tokenizer splits a template into tokens, one call to Next at a time. It
// makes a single pass over the input.
type Tokenizer struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
	// lineNum is the number of the current line of the input.
	lineNum int
	// lineStart is the position of the first char of the current line in the
	// input.
	lineStart int
}

// NewTokenizer returns a Tokenizer positioned at the start of input.
func NewTokenizer(input string) *Tokenizer {
	t := &Tokenizer{input: input, lineNum: 1}
	t.advanceChar()
	return t
}

// Tokenize returns all the tokens of input, ending with TokenEOF.
func Tokenize(input string) ([]Token, error) {
	t := NewTokenizer(input)
	var toks []Token
	for {
		tok, err := t.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == TokenEOF {
			return toks, nil
		}
	}
}

// advanceChar moves the tokenizer to the next character in the input. It
// also takes care of updating the line number when it passes a line break.
func (t *Tokenizer) advanceChar() {
	if t.char == '\n' {
		t.lineStart = t.nextPos
		t.lineNum++
	}
	if t.nextPos >= len(t.input) {
		t.char = 0
		t.pos = len(t.input)
		t.nextPos = len(t.input)
		return
	}
	var size int
	t.char, size = utf8.DecodeRuneInString(t.input[t.nextPos:])
	t.pos = t.nextPos
	t.nextPos += size
}

func (t *Tokenizer) atEOF() bool {
	return t.pos >= len(t.input)
}

func (t *Tokenizer) location() Location {
	return Location{Line: t.lineNum, Column: t.pos - t.lineStart + 1, Offset: t.pos}
}

func (t *Tokenizer) errorAt(loc Location, reason string) *SyntaxError {
	return &SyntaxError{Location: loc, Reason: reason}
}

// checkpoint holds tokenizer state to restore later.
type checkpoint struct {
	pos       int
	nextPos   int
	char      rune
	lineNum   int
	lineStart int
}

func (t *Tokenizer) save() checkpoint {
	return checkpoint{
		pos:       t.pos,
		nextPos:   t.nextPos,
		char:      t.char,
		lineNum:   t.lineNum,
		lineStart: t.lineStart,
	}
}

func (t *Tokenizer) restore(cp checkpoint) {
	t.pos = cp.pos
	t.nextPos = cp.nextPos
	t.char = cp.char
	t.lineNum = cp.lineNum
	t.lineStart = cp.lineStart
}

func (t *Tokenizer) hasPrefix(s string) bool {
	return strings.HasPrefix(t.input[t.pos:], s)
}

// skip advances the tokenizer n bytes. n must end on a rune boundary.
func (t *Tokenizer) skip(n int) {
	end := t.pos + n
	for t.pos < end {
		t.advanceChar()
	}
}

// Next returns the next token. After the end of input it keeps returning
// TokenEOF.
func (t *Tokenizer) Next() (Token, error) {
	if t.atEOF() {
		return Token{Kind: TokenEOF, Location: t.location()}, nil
	}
	switch {
	case t.hasPrefix("/*"):
		return t.blockComment()
	case t.hasPrefix("--"):
		start := t.pos
		loc := t.location()
		// The line break is not part of the comment.
		for !t.atEOF() && t.char != '\n' {
			t.advanceChar()
		}
		raw := t.input[start:t.pos]
		return Token{Kind: TokenComment, Raw: raw, Body: raw[2:], BodyOffset: start + 2, Location: loc}, nil
	}
	return t.text()
}

// text scans literal SQL up to the next comment.
func (t *Tokenizer) text() (Token, error) {
	start := t.pos
	loc := t.location()
	for !t.atEOF() && !t.hasPrefix("/*") && !t.hasPrefix("--") {
		if ok, err := t.skipQuoted(); err != nil {
			return Token{}, err
		} else if ok {
			continue
		}
		t.advanceChar()
	}
	return Token{Kind: TokenText, Raw: t.input[start:t.pos], Location: loc}, nil
}

// skipQuoted jumps over a single quoted string or a double quoted
// identifier. Doubled up quotes are escaped.
func (t *Tokenizer) skipQuoted() (bool, error) {
	q := t.char
	if q != '\'' && q != '"' {
		return false, nil
	}
	loc := t.location()
	t.advanceChar()
	for !t.atEOF() {
		if t.char == q {
			t.advanceChar()
			if t.char == q {
				t.advanceChar()
				continue
			}
			return true, nil
		}
		t.advanceChar()
	}
	if q == '"' {
		return false, t.errorAt(loc, "missing closing quote in quoted identifier")
	}
	return false, t.errorAt(loc, "missing closing quote in string literal")
}

// skipParentheses jumps over a parenthesised list, taking into account
// nested parentheses and quotes.
func (t *Tokenizer) skipParentheses() (bool, error) {
	if t.char != '(' {
		return false, nil
	}
	loc := t.location()
	depth := 0
	for !t.atEOF() {
		if ok, err := t.skipQuoted(); err != nil {
			return false, err
		} else if ok {
			continue
		}
		switch t.char {
		case '(':
			depth++
		case ')':
			depth--
		}
		t.advanceChar()
		if depth == 0 {
			return true, nil
		}
	}
	return false, t.errorAt(loc, "missing closing parenthesis")
}

func isIdentStart(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

func isIdentChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

func isASCIIDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isBlank(c rune) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// blockComment scans a /* */ comment and classifies it.
func (t *Tokenizer) blockComment() (Token, error) {
	start := t.pos
	loc := t.location()
	end := strings.Index(t.input[start+2:], "*/")
	if end < 0 {
		return Token{}, t.errorAt(loc, "unterminated comment")
	}
	bodyStart := start + 2
	body := t.input[bodyStart : bodyStart+end]
	t.skip(end + 4)

	tok := Token{Kind: TokenComment, Body: body, BodyOffset: bodyStart, Location: loc}
	c, _ := utf8.DecodeRuneInString(body)
	switch {
	case body == "":
	case c == '%':
		if err := t.directive(&tok); err != nil {
			return Token{}, err
		}
	case c == '#':
		tok.Kind = TokenEmbedded
		tok.Body = body[1:]
		tok.BodyOffset++
	case c == '^':
		tok.Kind = TokenLiteral
		tok.Body = body[1:]
		tok.BodyOffset++
		if err := t.testLiteral(&tok, "literal variable"); err != nil {
			return Token{}, err
		}
	case isIdentStart(c) || c == '@':
		tok.Kind = TokenBind
		if err := t.testLiteral(&tok, "bind variable"); err != nil {
			return Token{}, err
		}
	}
	tok.Raw = t.input[start:t.pos]
	return tok, nil
}

// directive fills in a directive token. The tokenizer is just after the
// closing "*/".
func (t *Tokenizer) directive(tok *Token) error {
	rest := tok.Body[1:]
	n := 0
	for n < len(rest) && rest[n] >= 'a' && rest[n] <= 'z' {
		n++
	}
	kw := rest[:n]
	if !keywords[kw] {
		name := strings.TrimSpace(rest)
		if i := strings.IndexFunc(name, isBlank); i >= 0 {
			name = name[:i]
		}
		return t.errorAt(tok.Location, "unknown directive "+`"`+name+`"`)
	}
	tok.Kind = TokenDirective
	tok.Keyword = kw
	tok.Body = rest[n:]
	tok.BodyOffset += 1 + n

	switch kw {
	case KeywordEnd:
		tok.Kind = TokenEnd
	case KeywordExpand:
		start := t.pos
		cp := t.save()
		for !t.atEOF() && isBlank(t.char) {
			t.advanceChar()
		}
		if t.char != '*' {
			t.restore(cp)
			return t.errorAt(t.location(), `expand directive must be followed by "*"`)
		}
		t.advanceChar()
		tok.Dummy = t.input[start:t.pos]
	case KeywordPopulate:
		tok.Dummy = t.populateText()
	}
	return nil
}

// testLiteral consumes the test literal that makes a variable comment
// runnable as plain SQL.
func (t *Tokenizer) testLiteral(tok *Token, what string) error {
	start := t.pos
	switch {
	case t.char == '\'':
		if _, err := t.skipQuoted(); err != nil {
			return err
		}
	case t.char == '(':
		if _, err := t.skipParentheses(); err != nil {
			return err
		}
	case t.dateLiteral() || t.numberLiteral():
	case isIdentStart(t.char):
		for isIdentChar(t.char) {
			t.advanceChar()
		}
		// Typed literals such as date'2020-01-01'.
		if t.char == '\'' {
			if _, err := t.skipQuoted(); err != nil {
				return err
			}
		}
	default:
		return t.errorAt(t.location(), "missing test literal after "+what)
	}
	tok.Dummy = t.input[start:t.pos]
	return nil
}

// byteAt returns the byte i bytes after the current position, or 0 past the
// end of input.
func (t *Tokenizer) byteAt(i int) byte {
	if t.pos+i >= len(t.input) {
		return 0
	}
	return t.input[t.pos+i]
}

// digits consumes a run of ASCII digits and reports whether there was any.
func (t *Tokenizer) digits() bool {
	start := t.pos
	for isASCIIDigit(t.byteAt(0)) {
		t.advanceChar()
	}
	return t.pos > start
}

// numberLiteral consumes a number such as 10, -1.5 or 2e-3. A sign is only
// taken when a digit follows it. Nothing is consumed if there is no number.
func (t *Tokenizer) numberLiteral() bool {
	i := 0
	if c := t.byteAt(0); c == '+' || c == '-' {
		i++
	}
	if !isASCIIDigit(t.byteAt(i)) && !(t.byteAt(i) == '.' && isASCIIDigit(t.byteAt(i+1))) {
		return false
	}
	t.skip(i)
	t.digits()
	if t.char == '.' && isASCIIDigit(t.byteAt(1)) {
		t.advanceChar()
		t.digits()
	}
	if t.char == 'e' || t.char == 'E' {
		i := 1
		if c := t.byteAt(1); c == '+' || c == '-' {
			i++
		}
		if isASCIIDigit(t.byteAt(i)) {
			t.skip(i)
			t.digits()
		}
	}
	return true
}

// dateLiteral consumes a date such as 2020-01-01, optionally followed by a
// time as in 2020-01-01T10:30:00. Nothing is consumed if there is no date.
func (t *Tokenizer) dateLiteral() bool {
	cp := t.save()
	for part := 0; part < 3; part++ {
		if part > 0 {
			if t.char != '-' || !isASCIIDigit(t.byteAt(1)) {
				t.restore(cp)
				return false
			}
			t.advanceChar()
		}
		if !t.digits() {
			t.restore(cp)
			return false
		}
	}
	if t.char == 'T' && isASCIIDigit(t.byteAt(1)) {
		t.advanceChar()
		t.digits()
		for t.char == ':' && isASCIIDigit(t.byteAt(1)) {
			t.advanceChar()
			t.digits()
		}
	}
	return true
}

// populateText consumes the text that a populate directive replaces: up to
// the next WHERE keyword outside parentheses, the next directive or the end
// of input, leaving trailing blanks alone.
func (t *Tokenizer) populateText() string {
	start := t.pos
	last := t.save()
	depth := 0
	for !t.atEOF() && !t.hasPrefix("/*%") {
		if depth == 0 && t.atKeyword("where") {
			break
		}
		if ok, _ := t.skipQuoted(); ok {
			last = t.save()
			continue
		}
		switch t.char {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		blank := isBlank(t.char)
		t.advanceChar()
		if !blank {
			last = t.save()
		}
	}
	t.restore(last)
	return t.input[start:t.pos]
}

// atKeyword reports whether the input at the current position is the given
// word, compared case insensitively and not part of a longer identifier.
func (t *Tokenizer) atKeyword(word string) bool {
	end := t.pos + len(word)
	if end > len(t.input) || !strings.EqualFold(t.input[t.pos:end], word) {
		return false
	}
	if t.pos > 0 {
		prev, _ := utf8.DecodeLastRuneInString(t.input[:t.pos])
		if isIdentChar(prev) {
			return false
		}
	}
	if end < len(t.input) {
		next, _ := utf8.DecodeRuneInString(t.input[end:])
		if isIdentChar(next) {
			return false
		}
	}
	return true
}
