// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package expr implements the small expression language used inside template
directives, such as the condition of an if block or the source of a for
block. It knows nothing about SQL.

# Syntax

From lowest to highest precedence:

	a || b, a or b
	a && b, a and b
	!a, not a
	a == b, a != b, a < b, a <= b, a > b, a >= b
	a + b, a - b
	a * b, a / b, a % b
	-a
	a.name

Operands are null, true, false, integer and decimal numbers (a trailing B
makes a decimal of arbitrary precision), single or double quoted strings with
backslash escapes, identifiers, function calls written name(args) or
@name(args), and parenthesised expressions.

# Evaluation

Evaluation is free of side effects. Identifiers are resolved in an Env.
Property access on a null yields null. Comparing a value with the literal null
checks for null; any other operator that meets a null is an error, as is any
operator applied to values of unsuitable types. The logical operators require
booleans and short circuit.

Functions come from the table given to the Evaluator; see Builtins for the
default set.
*/
package expr
