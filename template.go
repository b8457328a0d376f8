// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package twoway

import (
	"fmt"
	"strings"

	"github.com/canonical/twoway/dialect"
	"github.com/canonical/twoway/internal/build"
	"github.com/canonical/twoway/internal/parse"
	"github.com/canonical/twoway/types"
)

// M holds the bindings of a template, keyed by the names used in its
// expressions.
//
//	t := twoway.MustPrepare("emp/by-id.sql", "SELECT * FROM emp WHERE id = /*id*/1")
//	p, err := t.Build(twoway.M{"id": 10}, nil)
type M map[string]any

type (
	// PreparedSQL is a built template ready for the driver.
	PreparedSQL = build.PreparedSQL
	// SyntaxError is returned when a template is malformed.
	SyntaxError = parse.SyntaxError
	// EvaluationError is returned when a template expression cannot be
	// evaluated against the bindings.
	EvaluationError = build.EvaluationError
	// BuildError is returned when a directive cannot be rendered.
	BuildError = build.BuildError
	// Location is a position in a template.
	Location = parse.Location
)

// Template is a parsed two-way SQL template. A Template is immutable and may
// be built concurrently.
type Template struct {
	tree *parse.Tree
}

// Parse parses a template without going through the template cache. id
// names the template in errors.
func Parse(text, id string) (*Template, error) {
	tree, err := parse.Parse(text, id)
	if err != nil {
		return nil, err
	}
	return &Template{tree: tree}, nil
}

// ID returns the template ID.
func (t *Template) ID() string {
	return t.tree.ID
}

// Text returns the template source.
func (t *Template) Text() string {
	return t.tree.Text
}

// String returns a representation of the parsed template for debugging.
func (t *Template) String() string {
	return t.tree.String()
}

// BuildOptions control how a template is built.
type BuildOptions struct {
	// Dialect defaults to dialect.Standard.
	Dialect dialect.Dialect

	// Entity is the struct or map whose columns fill in expand and populate
	// directives.
	Entity any

	// Functions are added to the functions available to expressions.
	Functions types.Functions

	// CheckEmbedded vets the text of embedded variables. It defaults to
	// CheckEmbedded; use AllowEmbedded to accept any text.
	CheckEmbedded func(text string) error
}

// Build renders the template with the given bindings. opts may be nil.
func (t *Template) Build(bindings M, opts *BuildOptions) (*PreparedSQL, error) {
	if opts == nil {
		opts = &BuildOptions{}
	}
	check := opts.CheckEmbedded
	if check == nil {
		check = CheckEmbedded
	}
	return build.Build(t.tree, build.Bindings(bindings), build.Options{
		Dialect:       opts.Dialect,
		Entity:        opts.Entity,
		Functions:     opts.Functions,
		CheckEmbedded: check,
	})
}

var embeddedDenied = []string{"'", ";", "--", "/*"}

// CheckEmbedded is the default check on embedded variable text. It rejects
// text that could end a string literal or a statement, or open a comment.
//
// Embedded variables are spliced into the SQL unescaped. They are meant for
// identifiers and fragments chosen by the program, never for user input.
func CheckEmbedded(text string) error {
	for _, s := range embeddedDenied {
		if strings.Contains(text, s) {
			return fmt.Errorf("embedded text must not contain %q", s)
		}
	}
	return nil
}

// AllowEmbedded accepts any embedded variable text.
func AllowEmbedded(string) error {
	return nil
}
