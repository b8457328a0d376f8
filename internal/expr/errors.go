// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import "fmt"

// SyntaxError is returned by Parse for malformed expressions. Offset is the
// byte offset of the problem in the expression source.
type SyntaxError struct {
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("column %d: %s", e.Offset+1, e.Reason)
}

// Error is returned when an expression cannot be evaluated against an
// environment. Offset is the byte offset, in the expression source, of the
// sub-expression that failed.
type Error struct {
	Offset int
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Reason + ": " + e.Cause.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func errorf(x Expr, format string, args ...any) *Error {
	return &Error{Offset: x.Pos(), Reason: fmt.Sprintf(format, args...)}
}
