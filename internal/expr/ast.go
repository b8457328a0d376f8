// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"strings"

	"github.com/canonical/twoway/types"
)

// Expr is a parsed expression. The set of implementations is closed.
type Expr interface {
	// Pos returns the byte offset of the expression in its source.
	Pos() int

	// String returns a fully parenthesised rendering of the expression for
	// debugging and testing purposes.
	String() string

	// expr is a marker method.
	expr()
}

// Literal is a constant.
type Literal struct {
	Offset int
	Value  types.Value
	// Raw is the literal as written.
	Raw string
}

func (x *Literal) Pos() int       { return x.Offset }
func (x *Literal) String() string { return x.Raw }
func (x *Literal) expr()          {}

// isNullLiteral reports whether x is the literal null.
func isNullLiteral(x Expr) bool {
	l, ok := x.(*Literal)
	return ok && l.Value.Type == types.Null
}

// Ident is a name looked up in the environment.
type Ident struct {
	Offset int
	Name   string
}

func (x *Ident) Pos() int       { return x.Offset }
func (x *Ident) String() string { return x.Name }
func (x *Ident) expr()          {}

// Property is the access x.Name.
type Property struct {
	Offset int
	X      Expr
	Name   string
}

func (x *Property) Pos() int       { return x.Offset }
func (x *Property) String() string { return x.X.String() + "." + x.Name }
func (x *Property) expr()          {}

// Unary is a prefix operation, "!" or "-".
type Unary struct {
	Offset int
	Op     string
	X      Expr
}

func (x *Unary) Pos() int       { return x.Offset }
func (x *Unary) String() string { return "(" + x.Op + x.X.String() + ")" }
func (x *Unary) expr()          {}

// Binary is an infix operation. Op is always in its symbolic form, "and" is
// stored as "&&" and "or" as "||".
type Binary struct {
	Offset int
	Op     string
	X, Y   Expr
}

func (x *Binary) Pos() int { return x.Offset }
func (x *Binary) String() string {
	return "(" + x.X.String() + " " + x.Op + " " + x.Y.String() + ")"
}
func (x *Binary) expr() {}

// Call is a function call.
type Call struct {
	Offset int
	Name   string
	Args   []Expr
}

func (x *Call) Pos() int { return x.Offset }
func (x *Call) String() string {
	args := make([]string, len(x.Args))
	for i, a := range x.Args {
		args[i] = a.String()
	}
	return x.Name + "(" + strings.Join(args, ", ") + ")"
}
func (x *Call) expr() {}
