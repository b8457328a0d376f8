// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"strconv"
	"strings"

	"github.com/canonical/twoway/internal/expr"
)

// A Node is a section of a parsed template. The set of node types is closed;
// code walking a tree switches over the concrete types.
type Node interface {
	// Pos returns the location of the node in the template.
	Pos() Location

	// Source returns the exact template text the node was parsed from.
	Source() string

	// String returns a representation of the node for debugging and testing
	// purposes.
	String() string

	// node is a marker method.
	node()
}

// Expression is a directive expression together with its text.
type Expression struct {
	X expr.Expr

	// Text is the expression as written.
	Text string

	// Offset is the byte offset of Text in the template.
	Offset int
}

func (e Expression) String() string {
	return e.X.String()
}

// Fragment is literal SQL, comments included, passed through unchanged.
type Fragment struct {
	Text string
	Loc  Location
}

func (n *Fragment) Pos() Location  { return n.Loc }
func (n *Fragment) Source() string { return n.Text }
func (n *Fragment) String() string { return "Fragment[" + n.Text + "]" }

// Marker function for Node.
func (n *Fragment) node() {}

// BindVariable is replaced by a driver placeholder and its value appended to
// the statement parameters.
type BindVariable struct {
	Expr Expression
	// Dummy is the test literal replaced by the placeholder.
	Dummy string
	Loc   Location
	src   string
}

func (n *BindVariable) Pos() Location  { return n.Loc }
func (n *BindVariable) Source() string { return n.src }
func (n *BindVariable) String() string { return "Bind[" + n.Expr.String() + "]" }

// Marker function for Node.
func (n *BindVariable) node() {}

// InList reports whether the test literal is a parenthesised list, in which
// case a list value is bound as one placeholder per element.
func (n *BindVariable) InList() bool {
	return strings.HasPrefix(n.Dummy, "(")
}

// EmbeddedVariable is replaced by the text of its value.
type EmbeddedVariable struct {
	Expr Expression
	Loc  Location
	src  string
}

func (n *EmbeddedVariable) Pos() Location  { return n.Loc }
func (n *EmbeddedVariable) Source() string { return n.src }
func (n *EmbeddedVariable) String() string { return "Embedded[" + n.Expr.String() + "]" }

// Marker function for Node.
func (n *EmbeddedVariable) node() {}

// LiteralVariable is replaced by its value rendered as a SQL literal.
type LiteralVariable struct {
	Expr  Expression
	Dummy string
	Loc   Location
	src   string
}

func (n *LiteralVariable) Pos() Location  { return n.Loc }
func (n *LiteralVariable) Source() string { return n.src }
func (n *LiteralVariable) String() string { return "Literal[" + n.Expr.String() + "]" }

// Marker function for Node.
func (n *LiteralVariable) node() {}

// Branch is an if or elseif condition with its body.
type Branch struct {
	Cond Expression
	Body []Node
	Loc  Location
}

// IfBlock includes the body of its first true branch, or of its else part if
// no branch is true.
type IfBlock struct {
	Branches []Branch
	Else     []Node
	// HasElse distinguishes an empty else part from none.
	HasElse bool
	Loc     Location
	src     string
}

func (n *IfBlock) Pos() Location  { return n.Loc }
func (n *IfBlock) Source() string { return n.src }
func (n *IfBlock) String() string {
	var sb strings.Builder
	sb.WriteString("If[")
	for i, b := range n.Branches {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(b.Cond.String() + " " + nodesString(b.Body))
	}
	if n.HasElse {
		sb.WriteString(" Else " + nodesString(n.Else))
	}
	sb.WriteString("]")
	return sb.String()
}

// Marker function for Node.
func (n *IfBlock) node() {}

// ForBlock repeats its body for each element of a list.
type ForBlock struct {
	// Item names the current element. Index and HasNext name the variables
	// holding its position and whether more elements follow.
	Item, Index, HasNext string
	List                 Expression
	Body                 []Node
	Loc                  Location
	src                  string
}

func (n *ForBlock) Pos() Location  { return n.Loc }
func (n *ForBlock) Source() string { return n.src }
func (n *ForBlock) String() string {
	return "For[" + n.Item + " : " + n.List.String() + " " + nodesString(n.Body) + "]"
}

// Marker function for Node.
func (n *ForBlock) node() {}

// ExpandBlock is replaced by the column list of the entity, optionally
// qualified by Alias.
type ExpandBlock struct {
	Alias string
	// Dummy is the "*" that the column list replaces.
	Dummy string
	Loc   Location
	src   string
}

func (n *ExpandBlock) Pos() Location  { return n.Loc }
func (n *ExpandBlock) Source() string { return n.src }
func (n *ExpandBlock) String() string {
	if n.Alias == "" {
		return "Expand[]"
	}
	return "Expand[" + strconv.Quote(n.Alias) + "]"
}

// Marker function for Node.
func (n *ExpandBlock) node() {}

// PopulateBlock is replaced by "column = ?" assignments for the entity,
// optionally qualified by Alias.
type PopulateBlock struct {
	Alias string
	// Dummy is the text that the assignments replace.
	Dummy string
	Loc   Location
	src   string
}

func (n *PopulateBlock) Pos() Location  { return n.Loc }
func (n *PopulateBlock) Source() string { return n.src }
func (n *PopulateBlock) String() string {
	if n.Alias == "" {
		return "Populate[]"
	}
	return "Populate[" + strconv.Quote(n.Alias) + "]"
}

// Marker function for Node.
func (n *PopulateBlock) node() {}

func nodesString(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Tree is a parsed template. It is not modified after Parse returns and may
// be shared between goroutines.
type Tree struct {
	// ID identifies the template, typically its file name.
	ID string
	// Text is the template source.
	Text  string
	Nodes []Node
}

func (t *Tree) String() string {
	return nodesString(t.Nodes)
}
