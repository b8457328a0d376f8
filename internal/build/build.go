// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package build

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/canonical/twoway/dialect"
	"github.com/canonical/twoway/internal/expr"
	"github.com/canonical/twoway/internal/parse"
	"github.com/canonical/twoway/internal/typeinfo"
	"github.com/canonical/twoway/types"
)

// Options control how a template is built.
type Options struct {
	// Dialect supplies placeholders, quoting and literals. It defaults to
	// dialect.Standard.
	Dialect dialect.Dialect

	// Entity is the struct or map whose columns fill in the expand and
	// populate directives.
	Entity any

	// Functions are added to the built-in and dialect functions available to
	// expressions, replacing any of the same name.
	Functions types.Functions

	// CheckEmbedded, if set, is called with the text of every embedded
	// variable before it is spliced into the SQL.
	CheckEmbedded func(text string) error
}

// PreparedSQL is the result of building a template.
type PreparedSQL struct {
	// ID is the template ID.
	ID string

	// SQL is the statement to pass to the driver.
	SQL string

	// Params holds the values of the placeholders in SQL, in order.
	Params []types.Value

	// Formatted is SQL with each placeholder replaced by its value rendered
	// as a literal. It is meant for logging only.
	Formatted string
}

// Args returns the parameters converted to driver values.
func (p *PreparedSQL) Args() ([]any, error) {
	args := make([]any, len(p.Params))
	for i, v := range p.Params {
		dv, err := types.Convert(v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert parameter %d: %w", i+1, err)
		}
		args[i] = dv
	}
	return args, nil
}

// builder holds the state of a single Build call.
type builder struct {
	tree      *parse.Tree
	opts      Options
	dialect   dialect.Dialect
	evaluator expr.Evaluator

	sql       bytes.Buffer
	formatted bytes.Buffer
	params    []types.Value
}

// Build renders tree with the bindings in env.
func Build(tree *parse.Tree, env expr.Env, opts Options) (*PreparedSQL, error) {
	d := opts.Dialect
	if d == nil {
		d = dialect.Standard
	}
	b := &builder{
		tree:    tree,
		opts:    opts,
		dialect: d,
		evaluator: expr.Evaluator{
			Functions: expr.Builtins().Merge(d.Functions(), opts.Functions),
		},
	}
	if err := b.walk(tree.Nodes, env); err != nil {
		return nil, err
	}
	return &PreparedSQL{
		ID:        tree.ID,
		SQL:       b.sql.String(),
		Params:    b.params,
		Formatted: b.formatted.String(),
	}, nil
}

func (b *builder) walk(nodes []parse.Node, env expr.Env) error {
	for _, n := range nodes {
		var err error
		switch n := n.(type) {
		case *parse.Fragment:
			b.write(n.Text)
		case *parse.BindVariable:
			err = b.bindVariable(n, env)
		case *parse.EmbeddedVariable:
			err = b.embeddedVariable(n, env)
		case *parse.LiteralVariable:
			err = b.literalVariable(n, env)
		case *parse.IfBlock:
			err = b.ifBlock(n, env)
		case *parse.ForBlock:
			err = b.forBlock(n, env)
		case *parse.ExpandBlock:
			err = b.expandBlock(n)
		case *parse.PopulateBlock:
			err = b.populateBlock(n)
		default:
			err = fmt.Errorf("internal error: unknown node type %T", n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// write appends SQL text to both renderings.
func (b *builder) write(s string) {
	b.sql.WriteString(s)
	b.formatted.WriteString(s)
}

// writeParam appends a placeholder for v and records v as a parameter.
func (b *builder) writeParam(v types.Value) {
	b.params = append(b.params, v)
	placeholder := b.dialect.Placeholder(len(b.params))
	b.sql.WriteString(placeholder)
	lit, err := b.dialect.Literal(v)
	if err != nil {
		lit = placeholder
	}
	b.formatted.WriteString(lit)
}

func (b *builder) eval(x parse.Expression, env expr.Env) (types.Value, error) {
	v, err := b.evaluator.Eval(x.X, env)
	if err != nil {
		return types.Value{}, b.evaluationError(x, err)
	}
	return v, nil
}

func (b *builder) evalBool(x parse.Expression, env expr.Env) (bool, error) {
	ok, err := b.evaluator.EvalBool(x.X, env)
	if err != nil {
		return false, b.evaluationError(x, err)
	}
	return ok, nil
}

// evaluationError locates an evaluator error in the template.
func (b *builder) evaluationError(x parse.Expression, err error) error {
	e := &EvaluationError{
		TemplateID: b.tree.ID,
		Location:   parse.Locate(b.tree.Text, x.Offset),
		Expr:       x.Text,
		Reason:     err.Error(),
	}
	var ee *expr.Error
	if errors.As(err, &ee) {
		e.Location = parse.Locate(b.tree.Text, x.Offset+ee.Offset)
		e.Reason = ee.Reason
		e.Cause = ee.Cause
	}
	return e
}

// valueError reports a value unsuitable for the node it was evaluated for.
func (b *builder) valueError(x parse.Expression, format string, args ...any) error {
	return &EvaluationError{
		TemplateID: b.tree.ID,
		Location:   parse.Locate(b.tree.Text, x.Offset),
		Expr:       x.Text,
		Reason:     fmt.Sprintf(format, args...),
	}
}

func (b *builder) buildError(loc parse.Location, cause error, format string, args ...any) error {
	return &BuildError{
		TemplateID: b.tree.ID,
		Location:   loc,
		Reason:     fmt.Sprintf(format, args...),
		Cause:      cause,
	}
}

func bindable(t types.Type) bool {
	return t != types.List && t != types.Object && t != types.Unknown
}

func (b *builder) bindVariable(n *parse.BindVariable, env expr.Env) error {
	v, err := b.eval(n.Expr, env)
	if err != nil {
		return err
	}
	if v.Type == types.List && !v.IsNull() && n.InList() {
		return b.bindList(n, v)
	}
	if !v.IsNull() && !bindable(v.Type) {
		return b.valueError(n.Expr, "cannot bind %s value of %s", v.Type, n.Expr.Text)
	}
	b.writeParam(v)
	return nil
}

// bindList writes one placeholder per element, as the right hand side of an
// IN clause. An empty list is written as (null), which matches nothing.
func (b *builder) bindList(n *parse.BindVariable, v types.Value) error {
	elems, err := listElements(v)
	if err != nil {
		return b.valueError(n.Expr, "%s", err)
	}
	if len(elems) == 0 {
		b.write("(null)")
		return nil
	}
	b.write("(")
	for i, e := range elems {
		if i > 0 {
			b.write(", ")
		}
		if !e.IsNull() && !bindable(e.Type) {
			return b.valueError(n.Expr, "cannot bind %s element %d of %s", e.Type, i, n.Expr.Text)
		}
		b.writeParam(e)
	}
	b.write(")")
	return nil
}

func listElements(v types.Value) ([]types.Value, error) {
	rv := typeinfo.Indirect(reflect.ValueOf(v.V))
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("need list, got %s", v.Type)
	}
	elems := make([]types.Value, rv.Len())
	for i := range elems {
		elems[i] = types.ValueOf(rv.Index(i).Interface())
	}
	return elems, nil
}

func (b *builder) embeddedVariable(n *parse.EmbeddedVariable, env expr.Env) error {
	v, err := b.eval(n.Expr, env)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return nil
	}
	var text string
	switch v.Type {
	case types.String:
		text, err = types.AsString(v.V)
	case types.Int, types.Uint, types.Float, types.Decimal:
		text, err = types.Literal(v)
	default:
		return b.valueError(n.Expr, "cannot embed %s value of %s", v.Type, n.Expr.Text)
	}
	if err != nil {
		return b.valueError(n.Expr, "cannot embed %s: %s", n.Expr.Text, err)
	}
	if b.opts.CheckEmbedded != nil {
		if err := b.opts.CheckEmbedded(text); err != nil {
			return b.buildError(n.Loc, err, "embedded text %q rejected", text)
		}
	}
	b.write(text)
	return nil
}

func (b *builder) literalVariable(n *parse.LiteralVariable, env expr.Env) error {
	v, err := b.eval(n.Expr, env)
	if err != nil {
		return err
	}
	lit, err := b.dialect.Literal(v)
	if err != nil {
		return b.buildError(n.Loc, err, "cannot render %s as a literal", n.Expr.Text)
	}
	b.write(lit)
	return nil
}

func (b *builder) ifBlock(n *parse.IfBlock, env expr.Env) error {
	for _, branch := range n.Branches {
		ok, err := b.evalBool(branch.Cond, env)
		if err != nil {
			return err
		}
		if ok {
			return b.walk(branch.Body, env)
		}
	}
	if n.HasElse {
		return b.walk(n.Else, env)
	}
	return nil
}

func (b *builder) forBlock(n *parse.ForBlock, env expr.Env) error {
	v, err := b.eval(n.List, env)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return b.valueError(n.List, "for list %s is null", n.List.Text)
	}
	elems, err := listElements(v)
	if err != nil {
		return b.valueError(n.List, "cannot iterate over %s: %s", n.List.Text, err)
	}
	for i, e := range elems {
		s := newScope(env, 3)
		s.vars[n.Item] = e
		s.vars[n.Index] = types.ValueOf(i)
		s.vars[n.HasNext] = types.ValueOf(i < len(elems)-1)
		if err := b.walk(n.Body, s); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) columns(loc parse.Location, directive string) ([]typeinfo.Column, error) {
	if b.opts.Entity == nil {
		return nil, b.buildError(loc, nil, "%s needs an entity", directive)
	}
	cols, err := typeinfo.Columns(b.opts.Entity)
	if err != nil {
		return nil, b.buildError(loc, err, "cannot list columns for %s", directive)
	}
	return cols, nil
}

func (b *builder) columnName(col typeinfo.Column) string {
	if col.Quote {
		return b.dialect.QuoteIdentifier(col.Name)
	}
	return col.Name
}

func (b *builder) expandBlock(n *parse.ExpandBlock) error {
	cols, err := b.columns(n.Loc, "expand")
	if err != nil {
		return err
	}
	for i, col := range cols {
		if i > 0 {
			b.write(", ")
		}
		if n.Alias != "" {
			b.write(n.Alias + ".")
		}
		b.write(b.columnName(col))
	}
	return nil
}

func (b *builder) populateBlock(n *parse.PopulateBlock) error {
	cols, err := b.columns(n.Loc, "populate")
	if err != nil {
		return err
	}
	written := 0
	for _, col := range cols {
		if col.OmitEmpty && (!col.Value.IsValid() || col.Value.IsZero()) {
			continue
		}
		v := types.NullOf(types.Null)
		if col.Value.IsValid() {
			v = types.ValueOf(col.Value.Interface())
		}
		if !v.IsNull() && !bindable(v.Type) {
			return b.buildError(n.Loc, nil, "cannot populate column %q with %s value", col.Name, v.Type)
		}
		if written > 0 {
			b.write(", ")
		}
		if n.Alias != "" {
			b.write(n.Alias + ".")
		}
		b.write(b.columnName(col) + " = ")
		b.writeParam(v)
		written++
	}
	if written == 0 {
		return b.buildError(n.Loc, nil, "populate has no columns to set")
	}
	return nil
}
