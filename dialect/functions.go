// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/canonical/twoway/types"
)

// DefaultEscapeChar is the escape character used by the LIKE helpers when
// none is given.
const DefaultEscapeChar = '$'

// likeFunction returns an expression function escaping its first argument
// for use in a LIKE pattern and wrapping it in before and after. The optional
// second argument is a one character string naming the escape character.
func likeFunction(wildcards []rune, before, after string) types.Function {
	return func(args ...types.Value) (types.Value, error) {
		if len(args) < 1 || len(args) > 2 {
			return types.Value{}, fmt.Errorf("need 1 or 2 arguments, got %d", len(args))
		}
		if args[0].IsNull() {
			return types.NullOf(types.String), nil
		}
		s, err := types.AsString(args[0].V)
		if err != nil {
			return types.Value{}, err
		}
		esc := DefaultEscapeChar
		if len(args) == 2 {
			if esc, err = escapeChar(args[1]); err != nil {
				return types.Value{}, err
			}
		}
		return types.ValueOf(before + EscapeLike(s, esc, wildcards...) + after), nil
	}
}

func escapeChar(v types.Value) (rune, error) {
	if v.IsNull() {
		return DefaultEscapeChar, nil
	}
	s, err := types.AsString(v.V)
	if err != nil {
		return 0, err
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("escape character must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// EscapeLike prefixes every occurrence of esc and of each wildcard in s with
// esc. With no wildcards given the ANSI '%' and '_' are used.
func EscapeLike(s string, esc rune, wildcards ...rune) string {
	if len(wildcards) == 0 {
		wildcards = ansiWildcards
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r == esc || containsRune(wildcards, r) {
			sb.WriteRune(esc)
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func containsRune(rs []rune, r rune) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func timeArg(name string, args []types.Value) (time.Time, bool, error) {
	if len(args) != 1 {
		return time.Time{}, false, fmt.Errorf("%s needs 1 argument, got %d", name, len(args))
	}
	if args[0].IsNull() {
		return time.Time{}, false, nil
	}
	t, ok := args[0].V.(time.Time)
	if !ok {
		return time.Time{}, false, fmt.Errorf("%s needs a time, got %s", name, args[0].Type)
	}
	return t, true, nil
}

// roundDownTimePart drops the time of day, leaving midnight of the same day.
func roundDownTimePart(args ...types.Value) (types.Value, error) {
	t, ok, err := timeArg("roundDownTimePart", args)
	if err != nil || !ok {
		return types.NullOf(types.Time), err
	}
	return types.ValueOf(truncateDay(t)), nil
}

// roundUpTimePart returns midnight of the following day, for use as an
// exclusive upper bound.
func roundUpTimePart(args ...types.Value) (types.Value, error) {
	t, ok, err := timeArg("roundUpTimePart", args)
	if err != nil || !ok {
		return types.NullOf(types.Time), err
	}
	return types.ValueOf(truncateDay(t).AddDate(0, 0, 1)), nil
}
