// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"fmt"
	"strings"
)

// Location is a position in a template.
type Location struct {
	// Line and Column start at 1. Column counts bytes.
	Line, Column int
	// Offset is the byte offset from the start of the template.
	Offset int
}

func (l Location) String() string {
	return fmt.Sprintf("line %d, column %d", l.Line, l.Column)
}

// Locate returns the Location of a byte offset in text.
func Locate(text string, offset int) Location {
	if offset > len(text) {
		offset = len(text)
	}
	before := text[:offset]
	line := strings.Count(before, "\n") + 1
	lineStart := strings.LastIndexByte(before, '\n') + 1
	return Location{Line: line, Column: offset - lineStart + 1, Offset: offset}
}

// SyntaxError is returned when a template is malformed.
type SyntaxError struct {
	TemplateID string
	Location   Location
	Reason     string
}

func (e *SyntaxError) Error() string {
	if e.TemplateID == "" {
		return fmt.Sprintf("cannot parse template: %s: %s", e.Location, e.Reason)
	}
	return fmt.Sprintf("cannot parse template %q: %s: %s", e.TemplateID, e.Location, e.Reason)
}
