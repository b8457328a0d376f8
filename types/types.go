// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package types defines the semantic value types understood by twoway templates.

Every value that reaches a template, either as a caller binding or as the
result of evaluating a directive expression, is carried as a Value: the Go
value together with a Type tag. The tag decides how the value is handed to the
database driver and how it is rendered when spliced into SQL as a literal. The
mapping from tags to those functions is a static table, see Lookup.
*/
package types

import (
	"database/sql/driver"
	"math/big"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Type is a semantic value type tag.
type Type int

const (
	Unknown Type = iota
	Null
	Bool
	Int
	Uint
	Float
	Decimal
	String
	Bytes
	Time
	UUID
	List
	Object
)

func (t Type) String() string {
	if k, ok := registry[t]; ok {
		return k.Name
	}
	return "unknown"
}

// Value is a runtime value together with its semantic type. A Value with a
// nil V is null; its Type is the declared type of the null, if known.
type Value struct {
	Type Type
	V    any
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.V == nil
}

// Typed returns a Value with an explicit declared type. It is used to bind
// typed nulls, or to override the type inferred for a Go value.
func Typed(t Type, v any) Value {
	val := ValueOf(v)
	val.Type = t
	return val
}

// NullOf returns a null of the given type.
func NullOf(t Type) Value {
	return Value{Type: t}
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	bigIntType  = reflect.TypeOf(big.Int{})
	bigRatType  = reflect.TypeOf(big.Rat{})
	bigFltType  = reflect.TypeOf(big.Float{})
	valuerIface = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// ValueOf classifies a Go value. Pointers are followed; a nil pointer becomes
// a null of the pointed-to type. A Value passed in is returned unchanged.
func ValueOf(v any) Value {
	switch v := v.(type) {
	case Value:
		return v
	case nil:
		return Value{Type: Null}
	case driver.Valuer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Value{Type: OfType(rv.Type().Elem())}
		}
		// sql.NullString and friends, and any other type that knows how to
		// present itself to a driver.
		if _, ok := v.(uuid.UUID); !ok {
			dv, err := v.Value()
			if err == nil {
				if dv == nil {
					return Value{Type: valuerNullType(rv.Type())}
				}
				return Value{Type: OfType(reflect.TypeOf(dv)), V: dv}
			}
		}
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Value{Type: OfType(rv.Type().Elem())}
		}
		switch rv.Type().Elem() {
		case bigIntType, bigRatType, bigFltType:
			return Value{Type: Decimal, V: rv.Interface()}
		}
		rv = rv.Elem()
	}
	return Value{Type: OfType(rv.Type()), V: rv.Interface()}
}

// valuerNullType guesses the type of a null produced by a driver.Valuer such
// as sql.NullInt64, from the type of its first field.
func valuerNullType(t reflect.Type) Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct && t.NumField() > 0 {
		return OfType(t.Field(0).Type)
	}
	return Null
}

// Of returns the semantic type of a Go value.
func Of(v any) Type {
	return ValueOf(v).Type
}

// OfType returns the semantic type for values of a Go type.
func OfType(t reflect.Type) Type {
	switch t {
	case timeType:
		return Time
	case uuidType:
		return UUID
	case bigIntType, bigRatType, bigFltType:
		return Decimal
	}
	switch t.Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Uint
	case reflect.Float32, reflect.Float64:
		return Float
	case reflect.String:
		return String
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return Bytes
		}
		return List
	case reflect.Array:
		return List
	case reflect.Pointer:
		if t.Implements(valuerIface) {
			return valuerNullType(t)
		}
		return OfType(t.Elem())
	case reflect.Struct:
		if t.Implements(valuerIface) || reflect.PointerTo(t).Implements(valuerIface) {
			return valuerNullType(t)
		}
		return Object
	case reflect.Map, reflect.Interface:
		return Object
	}
	return Unknown
}
