// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/canonical/twoway/types"
)

// Builtins returns a new table holding the default functions:
//
//	isNull(x), isNotNull(x)       null checks
//	isEmpty(x), isNotEmpty(x)     null, or a string, list or map of length 0
//	isBlank(x), isNotBlank(x)     null, or a string of white space only
//	len(x)                        length of a string (in characters), list or map
//	upper(s), lower(s), trim(s)   string case mapping and trimming, null stays null
func Builtins() types.Functions {
	return types.Functions{
		"isNull":     unary(func(v types.Value) (types.Value, error) { return types.ValueOf(v.IsNull()), nil }),
		"isNotNull":  unary(func(v types.Value) (types.Value, error) { return types.ValueOf(!v.IsNull()), nil }),
		"isEmpty":    unary(isEmpty),
		"isNotEmpty": unary(negate(isEmpty)),
		"isBlank":    unary(isBlank),
		"isNotBlank": unary(negate(isBlank)),
		"len":        unary(length),
		"upper":      unary(stringFunc(upper)),
		"lower":      unary(stringFunc(lower)),
		"trim":       unary(stringFunc(strings.TrimSpace)),
	}
}

func unary(f func(types.Value) (types.Value, error)) types.Function {
	return func(args ...types.Value) (types.Value, error) {
		if len(args) != 1 {
			return types.Value{}, fmt.Errorf("need 1 argument, got %d", len(args))
		}
		return f(args[0])
	}
}

func negate(f func(types.Value) (types.Value, error)) func(types.Value) (types.Value, error) {
	return func(v types.Value) (types.Value, error) {
		res, err := f(v)
		if err != nil {
			return types.Value{}, err
		}
		return types.ValueOf(!res.V.(bool)), nil
	}
}

func isEmpty(v types.Value) (types.Value, error) {
	if v.IsNull() {
		return types.ValueOf(true), nil
	}
	n, err := lengthOf(v)
	if err != nil {
		return types.Value{}, err
	}
	return types.ValueOf(n == 0), nil
}

func isBlank(v types.Value) (types.Value, error) {
	if v.IsNull() {
		return types.ValueOf(true), nil
	}
	s, err := types.AsString(v.V)
	if err != nil {
		return types.Value{}, err
	}
	return types.ValueOf(strings.TrimSpace(s) == ""), nil
}

func length(v types.Value) (types.Value, error) {
	if v.IsNull() {
		return types.Value{}, fmt.Errorf("need string, list or map, got null")
	}
	n, err := lengthOf(v)
	if err != nil {
		return types.Value{}, err
	}
	return types.ValueOf(n), nil
}

func lengthOf(v types.Value) (int, error) {
	if s, err := types.AsString(v.V); err == nil {
		return utf8.RuneCountInString(s), nil
	}
	rv := reflect.ValueOf(v.V)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), nil
	}
	return 0, fmt.Errorf("need string, list or map, got %s", v.Type)
}

// A cases.Caser holds state, so a new one is made per call.
func upper(s string) string {
	return cases.Upper(language.Und).String(s)
}

func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

func stringFunc(f func(string) string) func(types.Value) (types.Value, error) {
	return func(v types.Value) (types.Value, error) {
		if v.IsNull() {
			return types.NullOf(types.String), nil
		}
		s, err := types.AsString(v.V)
		if err != nil {
			return types.Value{}, err
		}
		return types.ValueOf(f(s)), nil
	}
}
