// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package build

import (
	"fmt"

	"github.com/canonical/twoway/internal/parse"
)

// EvaluationError is returned when a directive expression cannot be
// evaluated against the bindings, or yields a value of the wrong type.
type EvaluationError struct {
	TemplateID string
	// Location points at the failing part of the expression.
	Location parse.Location
	// Expr is the directive expression as written.
	Expr   string
	Reason string
	Cause  error
}

func (e *EvaluationError) Error() string {
	msg := prefix(e.TemplateID) + e.Location.String() + ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// BuildError is returned when a directive cannot be rendered, such as expand
// without an entity.
type BuildError struct {
	TemplateID string
	Location   parse.Location
	Reason     string
	Cause      error
}

func (e *BuildError) Error() string {
	msg := prefix(e.TemplateID) + e.Location.String() + ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

func prefix(id string) string {
	if id == "" {
		return "cannot build template: "
	}
	return fmt.Sprintf("cannot build template %q: ", id)
}
