// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package build turns a parsed template and a set of bindings into SQL ready for
a driver.

Build walks the template tree in document order. Fragments are copied, bind
variables become dialect placeholders with their values appended to the
parameter list, embedded variables are spliced as raw text and literal
variables as dialect literals. Only the first true branch of an if block is
visited, and the body of a for block is visited once per element with the
loop variables bound in a child scope. The expand and populate directives are
filled in from the columns of the entity passed in Options.

The tree is only read, so a single tree may be built concurrently with
different bindings.
*/
package build
