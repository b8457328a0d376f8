// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package dialect holds the database specific hooks used when building SQL from
a template: the driver placeholder syntax, identifier quoting, literal
rendering and the LIKE helper functions available to template expressions.
*/
package dialect

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/canonical/twoway/types"
)

// Dialect is implemented by each supported database flavour.
type Dialect interface {
	// Name returns the canonical name of the dialect.
	Name() string
	// Placeholder returns the driver placeholder for the i-th parameter of
	// a statement. i starts at 1.
	Placeholder(i int) string
	// QuoteIdentifier quotes a table or column name.
	QuoteIdentifier(name string) string
	// Literal renders a value as a SQL literal of this dialect.
	Literal(v types.Value) (string, error)
	// Functions returns the dialect specific expression functions.
	Functions() types.Functions
}

// literalFunc renders a non-null value.
type literalFunc func(v any) (string, error)

type dialect struct {
	name        string
	placeholder func(i int) string
	// quote and quoteEnd surround quoted identifiers; a quoteEnd inside the
	// name is doubled.
	quote, quoteEnd string
	// wildcards are the characters with a special meaning in LIKE patterns,
	// other than the escape character itself.
	wildcards []rune
	// literals overrides the default literal rendering of types.Literal.
	literals map[types.Type]literalFunc
}

func (d *dialect) Name() string {
	return d.name
}

func (d *dialect) Placeholder(i int) string {
	return d.placeholder(i)
}

func (d *dialect) QuoteIdentifier(name string) string {
	return d.quote + strings.ReplaceAll(name, d.quoteEnd, d.quoteEnd+d.quoteEnd) + d.quoteEnd
}

func (d *dialect) Literal(v types.Value) (string, error) {
	if v.IsNull() {
		return "null", nil
	}
	if f, ok := d.literals[v.Type]; ok {
		return f(v.V)
	}
	return types.Literal(v)
}

func (d *dialect) Functions() types.Functions {
	return types.Functions{
		"escape":            likeFunction(d.wildcards, "", ""),
		"prefix":            likeFunction(d.wildcards, "", "%"),
		"infix":             likeFunction(d.wildcards, "%", "%"),
		"suffix":            likeFunction(d.wildcards, "%", ""),
		"roundDownTimePart": roundDownTimePart,
		"roundUpTimePart":   roundUpTimePart,
	}
}

func (d *dialect) String() string {
	return d.name
}

func questionMark(int) string {
	return "?"
}

var ansiWildcards = []rune{'%', '_'}

var (
	// Standard is ANSI SQL with '?' placeholders.
	Standard Dialect = &dialect{
		name:        "standard",
		placeholder: questionMark,
		quote:       `"`,
		quoteEnd:    `"`,
		wildcards:   ansiWildcards,
	}

	// SQLite also serves dqlite.
	SQLite Dialect = &dialect{
		name:        "sqlite",
		placeholder: questionMark,
		quote:       `"`,
		quoteEnd:    `"`,
		wildcards:   ansiWildcards,
		literals: map[types.Type]literalFunc{
			types.Bool: numericBool,
		},
	}

	PostgreSQL Dialect = &dialect{
		name: "postgresql",
		placeholder: func(i int) string {
			return "$" + strconv.Itoa(i)
		},
		quote:     `"`,
		quoteEnd:  `"`,
		wildcards: ansiWildcards,
		literals: map[types.Type]literalFunc{
			types.Bytes: func(v any) (string, error) {
				b, ok := v.([]byte)
				if !ok {
					return "", fmt.Errorf("need byte slice, got %T", v)
				}
				return `'\x` + hex.EncodeToString(b) + `'::bytea`, nil
			},
			types.UUID: suffixed(types.UUID, "::uuid"),
			types.Time: prefixed(types.Time, "TIMESTAMP "),
		},
	}

	MySQL Dialect = &dialect{
		name:        "mysql",
		placeholder: questionMark,
		quote:       "`",
		quoteEnd:    "`",
		wildcards:   ansiWildcards,
		literals: map[types.Type]literalFunc{
			types.String: func(v any) (string, error) {
				s, err := types.AsString(v)
				if err != nil {
					return "", err
				}
				return types.QuoteString(strings.ReplaceAll(s, `\`, `\\`)), nil
			},
		},
	}

	SQLServer Dialect = &dialect{
		name: "sqlserver",
		placeholder: func(i int) string {
			return "@p" + strconv.Itoa(i)
		},
		quote:     "[",
		quoteEnd:  "]",
		wildcards: []rune{'%', '_', '['},
		literals: map[types.Type]literalFunc{
			types.Bool:   numericBool,
			types.String: prefixed(types.String, "N"),
			types.Bytes: func(v any) (string, error) {
				b, ok := v.([]byte)
				if !ok {
					return "", fmt.Errorf("need byte slice, got %T", v)
				}
				return "0x" + strings.ToUpper(hex.EncodeToString(b)), nil
			},
		},
	}

	Oracle Dialect = &dialect{
		name: "oracle",
		placeholder: func(i int) string {
			return ":" + strconv.Itoa(i)
		},
		quote:     `"`,
		quoteEnd:  `"`,
		wildcards: ansiWildcards,
		literals: map[types.Type]literalFunc{
			types.Bool: numericBool,
			types.Time: prefixed(types.Time, "TIMESTAMP "),
		},
	}
)

var byName = map[string]Dialect{
	"standard":   Standard,
	"ansi":       Standard,
	"duckdb":     Standard,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
	"dqlite":     SQLite,
	"postgresql": PostgreSQL,
	"postgres":   PostgreSQL,
	"pgx":        PostgreSQL,
	"mysql":      MySQL,
	"mariadb":    MySQL,
	"sqlserver":  SQLServer,
	"mssql":      SQLServer,
	"oracle":     Oracle,
}

// ByName returns the dialect registered under name or one of its aliases.
// The lookup is case insensitive.
func ByName(name string) (Dialect, error) {
	d, ok := byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return d, nil
}

// Names returns the sorted list of names accepted by ByName.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func numericBool(v any) (string, error) {
	b, err := types.AsBool(v)
	if err != nil {
		return "", err
	}
	if b {
		return "1", nil
	}
	return "0", nil
}

// prefixed wraps the default literal of t with a leading keyword.
func prefixed(t types.Type, prefix string) literalFunc {
	return func(v any) (string, error) {
		lit, err := types.Literal(types.Value{Type: t, V: v})
		if err != nil {
			return "", err
		}
		return prefix + lit, nil
	}
}

// suffixed appends a cast to the default literal of t.
func suffixed(t types.Type, suffix string) literalFunc {
	return func(v any) (string, error) {
		lit, err := types.Literal(types.Value{Type: t, V: v})
		if err != nil {
			return "", err
		}
		return lit + suffix, nil
	}
}

// truncateDay returns midnight of the day of t, in the location of t.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
