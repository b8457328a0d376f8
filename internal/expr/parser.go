// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"math/big"
	"strconv"

	"github.com/canonical/twoway/types"
)

// Operator precedences, from lowest to highest.
const (
	precLowest = iota
	precOr
	precAnd
	precNot
	precCompare
	precSum
	precProduct
	precUnary
)

var binaryPrec = map[string]int{
	"||": precOr,
	"&&": precAnd,
	"==": precCompare,
	"!=": precCompare,
	"<":  precCompare,
	"<=": precCompare,
	">":  precCompare,
	">=": precCompare,
	"+":  precSum,
	"-":  precSum,
	"*":  precProduct,
	"/":  precProduct,
	"%":  precProduct,
}

// wordOps are the keyword spellings of the logical operators.
var wordOps = map[string]string{
	"or":  "||",
	"and": "&&",
	"not": "!",
}

type parser struct {
	lex *lexer
	tok token
}

// Parse parses an expression. The whole input must be consumed.
func Parse(src string) (Expr, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokEOF {
		return nil, &SyntaxError{Offset: 0, Reason: "empty expression"}
	}
	x, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.unexpected()
	}
	return x, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// op returns the operator under the parser, with word operators translated
// to their symbolic form, or "" if the current token is not an operator.
func (p *parser) op() string {
	switch p.tok.kind {
	case tokOp:
		return p.tok.text
	case tokIdent:
		return wordOps[p.tok.text]
	}
	return ""
}

func (p *parser) unexpected() *SyntaxError {
	if p.tok.kind == tokEOF {
		return &SyntaxError{Offset: p.tok.pos, Reason: "unexpected end of expression"}
	}
	return &SyntaxError{Offset: p.tok.pos, Reason: strconv.Quote(p.lex.input[p.tok.pos:p.lex.pos]) + " unexpected"}
}

func (p *parser) expect(op string) error {
	if p.tok.kind != tokOp || p.tok.text != op {
		if p.tok.kind == tokEOF {
			return &SyntaxError{Offset: p.tok.pos, Reason: "missing " + strconv.Quote(op)}
		}
		return &SyntaxError{Offset: p.tok.pos, Reason: "expected " + strconv.Quote(op)}
	}
	return p.advance()
}

// parseExpr parses operators binding tighter than prec.
func (p *parser) parseExpr(prec int) (Expr, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	for {
		op := p.op()
		opPrec, ok := binaryPrec[op]
		if !ok || opPrec <= prec {
			return left, nil
		}
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseExpr(opPrec)
		if err != nil {
			return nil, err
		}
		left = &Binary{Offset: pos, Op: op, X: left, Y: right}
	}
}

func (p *parser) parsePrefix() (Expr, error) {
	pos := p.tok.pos
	switch p.op() {
	case "!":
		// The symbol binds like unary minus; the word "not" covers a whole
		// comparison.
		prec := precUnary
		if p.tok.kind == tokIdent {
			prec = precNot
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseExpr(prec)
		if err != nil {
			return nil, err
		}
		return &Unary{Offset: pos, Op: "!", X: x}, nil
	case "-":
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseExpr(precUnary)
		if err != nil {
			return nil, err
		}
		return &Unary{Offset: pos, Op: "-", X: x}, nil
	}
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(x)
}

// parsePostfix parses a chain of property accesses.
func (p *parser) parsePostfix(x Expr) (Expr, error) {
	for p.tok.kind == tokOp && p.tok.text == "." {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokIdent {
			return nil, &SyntaxError{Offset: p.tok.pos, Reason: "expected property name after \".\""}
		}
		prop := &Property{Offset: p.tok.pos, X: x, Name: p.tok.text}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokOp && p.tok.text == "(" {
			return nil, &SyntaxError{Offset: p.tok.pos, Reason: "method calls are not supported"}
		}
		x = prop
	}
	return x, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.tok
	raw := p.lex.input[tok.pos:p.lex.pos]
	switch tok.kind {
	case tokInt:
		i, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, &SyntaxError{Offset: tok.pos, Reason: "integer " + tok.text + " out of range"}
		}
		return p.literal(raw, types.ValueOf(i))
	case tokFloat:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &SyntaxError{Offset: tok.pos, Reason: "invalid number " + tok.text}
		}
		return p.literal(raw, types.ValueOf(f))
	case tokDecimal:
		r, ok := new(big.Rat).SetString(tok.text)
		if !ok {
			return nil, &SyntaxError{Offset: tok.pos, Reason: "invalid decimal " + tok.text}
		}
		return p.literal(raw, types.ValueOf(r))
	case tokString:
		return p.literal(raw, types.ValueOf(tok.text))
	case tokIdent:
		switch tok.text {
		case "null":
			return p.literal(raw, types.Value{Type: types.Null})
		case "true":
			return p.literal(raw, types.ValueOf(true))
		case "false":
			return p.literal(raw, types.ValueOf(false))
		}
		if _, ok := wordOps[tok.text]; ok {
			return nil, p.unexpected()
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokOp && p.tok.text == "(" {
			return p.parseCall(tok.pos, tok.text)
		}
		return &Ident{Offset: tok.pos, Name: tok.text}, nil
	case tokOp:
		switch tok.text {
		case "(":
			if err := p.advance(); err != nil {
				return nil, err
			}
			x, err := p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "@":
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokIdent {
				return nil, &SyntaxError{Offset: p.tok.pos, Reason: "expected function name after \"@\""}
			}
			name := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokOp || p.tok.text != "(" {
				return nil, &SyntaxError{Offset: p.tok.pos, Reason: "expected \"(\" after function name"}
			}
			return p.parseCall(tok.pos, name)
		}
	}
	return nil, p.unexpected()
}

func (p *parser) literal(raw string, v types.Value) (Expr, error) {
	l := &Literal{Offset: p.tok.pos, Value: v, Raw: raw}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return l, nil
}

// parseCall parses the argument list of a call. The parser is on the opening
// parenthesis.
func (p *parser) parseCall(pos int, name string) (Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	call := &Call{Offset: pos, Name: name}
	if p.tok.kind == tokOp && p.tok.text == ")" {
		return call, p.advance()
	}
	for {
		arg, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.tok.kind == tokOp && p.tok.text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return call, nil
	}
}
