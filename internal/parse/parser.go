// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/canonical/twoway/internal/expr"
	"github.com/canonical/twoway/types"
)

type parser struct {
	text string
	tz   *Tokenizer
}

// Parse parses a template. id identifies the template in errors. All the
// directive expressions are parsed too, so a malformed expression is
// reported here rather than when the template is built.
func Parse(text, id string) (tree *Tree, err error) {
	defer func() {
		var se *SyntaxError
		if errors.As(err, &se) {
			se.TemplateID = id
		}
	}()

	p := &parser{text: text, tz: NewTokenizer(text)}
	nodes, stop, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	switch stop.Kind {
	case TokenEOF:
	case TokenEnd:
		return nil, p.errorAt(stop.Location, "end without matching if or for")
	default:
		return nil, p.errorAt(stop.Location, stop.Keyword+" without matching if")
	}
	return &Tree{ID: id, Text: text, Nodes: nodes}, nil
}

func (p *parser) errorAt(loc Location, reason string) *SyntaxError {
	return &SyntaxError{Location: loc, Reason: reason}
}

// parseBody parses nodes up to the end of input or a token that ends or
// splits the enclosing block: end, elseif or else. That token is returned.
func (p *parser) parseBody() ([]Node, Token, error) {
	var nodes []Node
	for {
		tok, err := p.tz.Next()
		if err != nil {
			return nil, Token{}, err
		}
		var n Node
		switch tok.Kind {
		case TokenEOF, TokenEnd:
			return nodes, tok, nil
		case TokenText, TokenComment:
			// Runs of text and comments make a single fragment.
			if len(nodes) > 0 {
				if f, ok := nodes[len(nodes)-1].(*Fragment); ok {
					f.Text = p.text[f.Loc.Offset : tok.Location.Offset+len(tok.Raw)]
					continue
				}
			}
			n = &Fragment{Text: tok.Raw, Loc: tok.Location}
		case TokenBind:
			x, err := p.expression(tok.Body, tok.BodyOffset, tok.Location, "bind variable")
			if err != nil {
				return nil, Token{}, err
			}
			n = &BindVariable{Expr: x, Dummy: tok.Dummy, Loc: tok.Location, src: tok.Raw}
		case TokenEmbedded:
			x, err := p.expression(tok.Body, tok.BodyOffset, tok.Location, "embedded variable")
			if err != nil {
				return nil, Token{}, err
			}
			n = &EmbeddedVariable{Expr: x, Loc: tok.Location, src: tok.Raw}
		case TokenLiteral:
			x, err := p.expression(tok.Body, tok.BodyOffset, tok.Location, "literal variable")
			if err != nil {
				return nil, Token{}, err
			}
			n = &LiteralVariable{Expr: x, Dummy: tok.Dummy, Loc: tok.Location, src: tok.Raw}
		case TokenDirective:
			switch tok.Keyword {
			case KeywordIf:
				n, err = p.parseIf(tok)
			case KeywordFor:
				n, err = p.parseFor(tok)
			case KeywordExpand:
				n, err = p.parseExpand(tok)
			case KeywordPopulate:
				n, err = p.parsePopulate(tok)
			case KeywordElseIf, KeywordElse:
				return nodes, tok, nil
			default:
				err = fmt.Errorf("internal error: unknown directive %q", tok.Keyword)
			}
			if err != nil {
				return nil, Token{}, err
			}
		default:
			return nil, Token{}, fmt.Errorf("internal error: unknown token kind %s", tok.Kind)
		}
		nodes = append(nodes, n)
	}
}

// expression parses the expression in a directive body.
func (p *parser) expression(body string, offset int, loc Location, what string) (Expression, error) {
	text := strings.TrimSpace(body)
	if text == "" {
		return Expression{}, p.errorAt(loc, "empty "+what+" expression")
	}
	offset += strings.Index(body, text)
	x, err := expr.Parse(text)
	if err != nil {
		var se *expr.SyntaxError
		if errors.As(err, &se) {
			return Expression{}, p.errorAt(Locate(p.text, offset+se.Offset), "invalid "+what+" expression: "+se.Reason)
		}
		return Expression{}, err
	}
	return Expression{X: x, Text: text, Offset: offset}, nil
}

// checkEmpty checks that a directive that takes no argument has none.
func (p *parser) checkEmpty(tok Token) error {
	if rest := strings.TrimSpace(tok.Body); rest != "" {
		return p.errorAt(tok.Location, fmt.Sprintf("unexpected %q after %s", rest, tok.Keyword))
	}
	return nil
}

// blockSource returns the template text from the opening directive to the
// closing end, both included.
func (p *parser) blockSource(open, end Token) string {
	return p.text[open.Location.Offset : end.Location.Offset+len(end.Raw)]
}

func (p *parser) parseIf(open Token) (*IfBlock, error) {
	cond, err := p.expression(open.Body, open.BodyOffset, open.Location, "if condition")
	if err != nil {
		return nil, err
	}
	n := &IfBlock{Loc: open.Location}
	branch := Branch{Cond: cond, Loc: open.Location}
	for {
		body, stop, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		if n.HasElse {
			n.Else = body
		} else {
			branch.Body = body
			n.Branches = append(n.Branches, branch)
		}

		switch {
		case stop.Kind == TokenEOF:
			return nil, p.errorAt(stop.Location, "unterminated if block")
		case stop.Kind == TokenEnd:
			if err := p.checkEmpty(stop); err != nil {
				return nil, err
			}
			n.src = p.blockSource(open, stop)
			return n, nil
		case stop.Keyword == KeywordElseIf:
			if n.HasElse {
				return nil, p.errorAt(stop.Location, "elseif after else")
			}
			cond, err := p.expression(stop.Body, stop.BodyOffset, stop.Location, "elseif condition")
			if err != nil {
				return nil, err
			}
			branch = Branch{Cond: cond, Loc: stop.Location}
		case stop.Keyword == KeywordElse:
			if n.HasElse {
				return nil, p.errorAt(stop.Location, "duplicate else")
			}
			if err := p.checkEmpty(stop); err != nil {
				return nil, err
			}
			n.HasElse = true
		}
	}
}

var loopNameRx = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*$`)

var reservedNames = map[string]bool{
	"null": true, "true": true, "false": true,
	"and": true, "or": true, "not": true,
}

func (p *parser) parseFor(open Token) (*ForBlock, error) {
	i := strings.IndexByte(open.Body, ':')
	if i < 0 {
		return nil, p.errorAt(open.Location, `for directive needs the form "item : list"`)
	}
	item := strings.TrimSpace(open.Body[:i])
	if !loopNameRx.MatchString(item) || reservedNames[item] {
		return nil, p.errorAt(open.Location, fmt.Sprintf("invalid loop variable name %q", item))
	}
	list, err := p.expression(open.Body[i+1:], open.BodyOffset+i+1, open.Location, "for list")
	if err != nil {
		return nil, err
	}

	body, stop, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	switch stop.Kind {
	case TokenEOF:
		return nil, p.errorAt(stop.Location, "unterminated for block")
	case TokenDirective:
		return nil, p.errorAt(stop.Location, stop.Keyword+" without matching if")
	}
	if err := p.checkEmpty(stop); err != nil {
		return nil, err
	}
	return &ForBlock{
		Item:    item,
		Index:   item + "_index",
		HasNext: item + "_has_next",
		List:    list,
		Body:    body,
		Loc:     open.Location,
		src:     p.blockSource(open, stop),
	}, nil
}

func (p *parser) parseExpand(tok Token) (*ExpandBlock, error) {
	alias, err := p.alias(tok)
	if err != nil {
		return nil, err
	}
	return &ExpandBlock{Alias: alias, Dummy: tok.Dummy, Loc: tok.Location, src: tok.Raw}, nil
}

func (p *parser) parsePopulate(tok Token) (*PopulateBlock, error) {
	alias, err := p.alias(tok)
	if err != nil {
		return nil, err
	}
	return &PopulateBlock{Alias: alias, Dummy: tok.Dummy, Loc: tok.Location, src: tok.Raw}, nil
}

// alias returns the optional string alias of an expand or populate
// directive, written as "e" or ("e").
func (p *parser) alias(tok Token) (string, error) {
	arg := strings.TrimSpace(tok.Body)
	if arg == "" {
		return "", nil
	}
	x, err := expr.Parse(arg)
	if err == nil {
		if lit, ok := x.(*expr.Literal); ok && lit.Value.Type == types.String {
			return lit.Value.V.(string), nil
		}
	}
	return "", p.errorAt(tok.Location, fmt.Sprintf("%s takes an optional string alias, got %q", tok.Keyword, arg))
}
