// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo returns the Info of a struct type, generating and caching it as
// required. Pointer types are dereferenced.
func GetTypeInfo(t reflect.Type) (*Info, error) {
	if t == nil {
		return nil, errors.New("cannot reflect nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return nil, err
	}

	cacheMutex.Lock()
	cache[t] = info
	cacheMutex.Unlock()

	return info, nil
}

// generate produces the reflection information for a struct type.
func generate(typ reflect.Type) (*Info, error) {
	// Reflection information is only generated for structs.
	if typ.Kind() != reflect.Struct {
		return nil, errors.Errorf("can only reflect struct type, got %s", typ.Kind())
	}

	info := Info{
		TagToField:  make(map[string]Field),
		NameToField: make(map[string]Field),
		Type:        typ,
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		f := Field{
			Name:  field.Name,
			Index: i,
			Type:  field.Type,
		}
		// Fields without a "db" tag are only reachable by Go name.
		if tag := field.Tag.Get("db"); tag != "" && tag != "-" {
			name, opts, err := parseTag(tag)
			if err != nil {
				return nil, errors.Wrapf(err, "cannot parse tag for field %s.%s", typ.Name(), field.Name)
			}
			if _, ok := info.TagToField[name]; ok {
				return nil, errors.Errorf("db tag %q appears more than once in %s", name, typ.Name())
			}
			f.Tag = name
			f.OmitEmpty = opts.omitEmpty
			f.Quote = opts.quote
			info.TagToField[name] = f
			info.Fields = append(info.Fields, f)
		}
		info.NameToField[field.Name] = f
	}

	return &info, nil
}

// This expression should be aligned with the identifier chars accepted by the
// expression lexer.
var validColNameRx = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*$`)

type tagOptions struct {
	omitEmpty bool
	quote     bool
}

// parseTag parses the input tag string and returns its
// name and options.
func parseTag(tag string) (string, tagOptions, error) {
	options := strings.Split(tag, ",")

	var opts tagOptions
	for _, o := range options[1:] {
		switch strings.ToLower(o) {
		case "omitempty":
			opts.omitEmpty = true
		case "quote":
			opts.quote = true
		default:
			return "", opts, errors.Errorf("unexpected tag value %q", o)
		}
	}

	name := options[0]
	if len(name) == 0 {
		return "", opts, errors.New("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", opts, errors.Errorf("invalid column name %q in 'db' tag", name)
	}

	return name, opts, nil
}
