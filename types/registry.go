// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package types

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind holds the handling functions for one semantic type.
type Kind struct {
	Name string
	// Convert turns a non-null value of this type into a value accepted by
	// database/sql drivers.
	Convert func(v any) (driver.Value, error)
	// Literal renders a non-null value of this type as an ANSI SQL literal.
	// Dialects override it where their syntax differs.
	Literal func(v any) (string, error)
}

// TimestampLayout is the layout used to render Time literals.
const TimestampLayout = "2006-01-02 15:04:05.999999999"

// registry is the static table of semantic types. It is not modified after
// package initialisation, so lookups need no locking.
var registry = map[Type]Kind{
	Unknown: {Name: "unknown", Convert: unsupported("unknown"), Literal: unsupportedLiteral("unknown")},
	Null: {
		Name:    "null",
		Convert: func(any) (driver.Value, error) { return nil, nil },
		Literal: func(any) (string, error) { return "null", nil },
	},
	Bool: {
		Name: "bool",
		Convert: func(v any) (driver.Value, error) {
			return AsBool(v)
		},
		Literal: func(v any) (string, error) {
			b, err := AsBool(v)
			if err != nil {
				return "", err
			}
			if b {
				return "TRUE", nil
			}
			return "FALSE", nil
		},
	},
	Int: {
		Name: "int",
		Convert: func(v any) (driver.Value, error) {
			return AsInt(v)
		},
		Literal: func(v any) (string, error) {
			i, err := AsInt(v)
			if err != nil {
				return "", err
			}
			return strconv.FormatInt(i, 10), nil
		},
	},
	Uint: {
		Name: "uint",
		Convert: func(v any) (driver.Value, error) {
			return AsInt(v)
		},
		Literal: func(v any) (string, error) {
			rv := reflect.ValueOf(v)
			switch rv.Kind() {
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
				return strconv.FormatUint(rv.Uint(), 10), nil
			}
			i, err := AsInt(v)
			if err != nil {
				return "", err
			}
			return strconv.FormatInt(i, 10), nil
		},
	},
	Float: {
		Name: "float",
		Convert: func(v any) (driver.Value, error) {
			return AsFloat(v)
		},
		Literal: func(v any) (string, error) {
			f, err := AsFloat(v)
			if err != nil {
				return "", err
			}
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		},
	},
	Decimal: {
		Name: "decimal",
		Convert: func(v any) (driver.Value, error) {
			return DecimalText(v)
		},
		Literal: func(v any) (string, error) {
			return DecimalText(v)
		},
	},
	String: {
		Name: "string",
		Convert: func(v any) (driver.Value, error) {
			return AsString(v)
		},
		Literal: func(v any) (string, error) {
			str, err := AsString(v)
			if err != nil {
				return "", err
			}
			return QuoteString(str), nil
		},
	},
	Bytes: {
		Name: "bytes",
		Convert: func(v any) (driver.Value, error) {
			return asBytes(v)
		},
		Literal: func(v any) (string, error) {
			b, err := asBytes(v)
			if err != nil {
				return "", err
			}
			return "X'" + strings.ToUpper(hex.EncodeToString(b)) + "'", nil
		},
	},
	Time: {
		Name: "time",
		Convert: func(v any) (driver.Value, error) {
			t, ok := v.(time.Time)
			if !ok {
				return nil, fmt.Errorf("need time.Time, got %T", v)
			}
			return t, nil
		},
		Literal: func(v any) (string, error) {
			t, ok := v.(time.Time)
			if !ok {
				return "", fmt.Errorf("need time.Time, got %T", v)
			}
			return "'" + t.Format(TimestampLayout) + "'", nil
		},
	},
	UUID: {
		Name: "uuid",
		Convert: func(v any) (driver.Value, error) {
			u, err := asUUID(v)
			if err != nil {
				return nil, err
			}
			return u.String(), nil
		},
		Literal: func(v any) (string, error) {
			u, err := asUUID(v)
			if err != nil {
				return "", err
			}
			return "'" + u.String() + "'", nil
		},
	},
	List:   {Name: "list", Convert: unsupported("list"), Literal: unsupportedLiteral("list")},
	Object: {Name: "object", Convert: unsupported("object"), Literal: unsupportedLiteral("object")},
}

// Lookup returns the handling functions registered for a type.
func Lookup(t Type) (Kind, bool) {
	k, ok := registry[t]
	return k, ok
}

// Convert returns the driver value for v, looked up by its type tag.
func Convert(v Value) (driver.Value, error) {
	if v.IsNull() {
		return nil, nil
	}
	k, ok := registry[v.Type]
	if !ok {
		return nil, fmt.Errorf("no conversion registered for type %d", v.Type)
	}
	return k.Convert(v.V)
}

// Literal renders v as an ANSI SQL literal, looked up by its type tag.
func Literal(v Value) (string, error) {
	if v.IsNull() {
		return "null", nil
	}
	k, ok := registry[v.Type]
	if !ok {
		return "", fmt.Errorf("no literal registered for type %d", v.Type)
	}
	return k.Literal(v.V)
}

// QuoteString renders s as a single quoted SQL string, doubling embedded
// quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DecimalText returns the plain decimal representation of a math/big value.
func DecimalText(v any) (string, error) {
	switch d := v.(type) {
	case *big.Int:
		return d.String(), nil
	case *big.Float:
		return d.Text('f', -1), nil
	case *big.Rat:
		if d.IsInt() {
			return d.Num().String(), nil
		}
		s := d.FloatString(18)
		s = strings.TrimRight(s, "0")
		return strings.TrimSuffix(s, "."), nil
	case big.Int:
		return d.String(), nil
	case string:
		return d, nil
	}
	return "", fmt.Errorf("need decimal value, got %T", v)
}

// AsBool returns v as a bool if its underlying kind is bool.
func AsBool(v any) (bool, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Bool {
		return rv.Bool(), nil
	}
	return false, fmt.Errorf("need bool value, got %T", v)
}

// AsInt returns v as an int64 if it is an integer, or a float with no
// fractional part, that fits.
func AsInt(v any) (int64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
			return 0, fmt.Errorf("value %v is not an integer", f)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("need integer value, got %T", v)
}

// AsFloat returns v as a float64 if it is numeric.
func AsFloat(v any) (float64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return 0, fmt.Errorf("need numeric value, got %T", v)
}

// AsString returns v as a string if its underlying kind is string.
func AsString(v any) (string, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", fmt.Errorf("need string value, got %T", v)
}

func asBytes(v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return rv.Bytes(), nil
	}
	return nil, fmt.Errorf("need byte slice, got %T", v)
}

func asUUID(v any) (uuid.UUID, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, nil
	case string:
		return uuid.Parse(u)
	}
	return uuid.UUID{}, fmt.Errorf("need uuid.UUID, got %T", v)
}

func unsupported(name string) func(any) (driver.Value, error) {
	return func(v any) (driver.Value, error) {
		return nil, fmt.Errorf("cannot pass %s value of type %T to the database", name, v)
	}
}

func unsupportedLiteral(name string) func(any) (string, error) {
	return func(v any) (string, error) {
		return "", fmt.Errorf("cannot render %s value of type %T as a literal", name, v)
	}
}
