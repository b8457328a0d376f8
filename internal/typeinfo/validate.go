// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"

	"github.com/pkg/errors"
)

// ValidateOutputs takes the output arguments of a query and uses reflection
// to check that they are valid scan destinations. It returns the reflect.Value
// of the struct or map each one points to, in argument order.
func ValidateOutputs(args []any) ([]reflect.Value, error) {
	seen := map[reflect.Type]bool{}
	var vals []reflect.Value
	for _, arg := range args {
		v := reflect.ValueOf(arg)
		if isInvalidNil(v) {
			return nil, errors.New("need map or pointer to struct, got nil")
		}
		k := v.Kind()
		if k != reflect.Map && k != reflect.Pointer {
			return nil, errors.Errorf("need map or pointer to struct, got %s", k)
		}
		if k == reflect.Pointer {
			v = v.Elem()
			k = v.Kind()
			if k != reflect.Struct && k != reflect.Map {
				return nil, errors.Errorf("need map or pointer to struct, got pointer to %s", k)
			}
			if k == reflect.Map && v.IsNil() {
				return nil, errors.New("need map or pointer to struct, got pointer to nil map")
			}
		}
		if k == reflect.Map && v.Type().Key().Kind() != reflect.String {
			return nil, errors.Errorf("need map with string keys, got %s", v.Type())
		}
		t := v.Type()
		if seen[t] {
			return nil, errors.Errorf("type %q provided more than once", t.Name())
		}
		seen[t] = true
		vals = append(vals, v)
	}
	return vals, nil
}

func isInvalidNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Pointer, reflect.Map:
		return v.IsNil()
	}
	return false
}
