// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"sort"

	"github.com/pkg/errors"
)

// Indirect follows pointers and interfaces. It returns the zero
// reflect.Value if a nil is met on the way.
func Indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// Member returns the property called name of v. On a struct the property is
// looked up by "db" tag and then by Go field name. On a map with string keys
// it is the value stored under the key name. The zero reflect.Value is
// returned, with no error, when v is nil.
func Member(v reflect.Value, name string) (reflect.Value, error) {
	v = Indirect(v)
	if !v.IsValid() {
		return reflect.Value{}, nil
	}
	switch v.Kind() {
	case reflect.Struct:
		info, err := GetTypeInfo(v.Type())
		if err != nil {
			return reflect.Value{}, err
		}
		f, ok := info.TagToField[name]
		if !ok {
			f, ok = info.NameToField[name]
		}
		if !ok {
			return reflect.Value{}, errors.Errorf("type %q has no field or db tag %q", v.Type().Name(), name)
		}
		return v.Field(f.Index), nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, errors.Errorf("cannot access %q in map with %s keys", name, v.Type().Key())
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return reflect.Value{}, errors.Errorf("map has no key %q", name)
		}
		return mv, nil
	}
	return reflect.Value{}, errors.Errorf("cannot access property %q of %s", name, v.Type())
}

// Column is one column of an entity value, as used by the expand and
// populate directives.
type Column struct {
	// Name is the column name.
	Name string

	// Quote reports whether the name must be quoted by the dialect.
	Quote bool

	// OmitEmpty reports whether the column should be skipped when its value
	// is the zero value.
	OmitEmpty bool

	// Value holds the field or map value.
	Value reflect.Value
}

// Columns returns the columns of an entity. For a struct these are the
// tagged fields in declaration order; for a map with string keys, the keys in
// sorted order.
func Columns(entity any) ([]Column, error) {
	v := Indirect(reflect.ValueOf(entity))
	if !v.IsValid() {
		return nil, errors.New("cannot list columns of nil entity")
	}
	switch v.Kind() {
	case reflect.Struct:
		info, err := GetTypeInfo(v.Type())
		if err != nil {
			return nil, err
		}
		if len(info.Fields) == 0 {
			return nil, errors.Errorf("type %q has no db tags", v.Type().Name())
		}
		cols := make([]Column, 0, len(info.Fields))
		for _, f := range info.Fields {
			cols = append(cols, Column{
				Name:      f.Tag,
				Quote:     f.Quote,
				OmitEmpty: f.OmitEmpty,
				Value:     v.Field(f.Index),
			})
		}
		return cols, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, errors.Errorf("need map with string keys, got %s", v.Type())
		}
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		if len(keys) == 0 {
			return nil, errors.New("entity map is empty")
		}
		sort.Strings(keys)
		cols := make([]Column, 0, len(keys))
		for _, k := range keys {
			cols = append(cols, Column{
				Name:  k,
				Value: v.MapIndex(reflect.ValueOf(k).Convert(v.Type().Key())),
			})
		}
		return cols, nil
	}
	return nil, errors.Errorf("need struct or map entity, got %s", v.Kind())
}
