// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"reflect"

	"github.com/pkg/errors"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// ScanProxy is a shim for scanning query results
// into values that cannot be passed to rows.Scan directly.
type ScanProxy struct {
	original reflect.Value
	scan     reflect.Value
	key      reflect.Value
}

// OnSuccess copies the scanned value into its final place. It must be called
// after a successful rows.Scan.
func (sp ScanProxy) OnSuccess() {
	if sp.key.IsValid() {
		sp.original.SetMapIndex(sp.key, sp.scan)
	} else {
		var val reflect.Value
		if !sp.scan.IsNil() {
			val = sp.scan.Elem()
		} else {
			val = reflect.Zero(sp.original.Type())
		}
		sp.original.Set(val)
	}
}

// ScanTargets returns the pointers to pass to rows.Scan for the given result
// columns, along with the proxies to complete once the scan succeeds. Each
// column goes to the first struct among outputs with a matching "db" tag; a
// column matching no struct goes to the first map among outputs.
func ScanTargets(columns []string, outputs []reflect.Value) ([]any, []*ScanProxy, error) {
	var firstMap reflect.Value
	for _, out := range outputs {
		if out.Kind() == reflect.Map {
			firstMap = out
			break
		}
	}

	ptrs := make([]any, 0, len(columns))
	var proxies []*ScanProxy
	for _, col := range columns {
		ptr, proxy, ok, err := structTarget(col, outputs)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			if !firstMap.IsValid() {
				return nil, nil, errors.Errorf("column %q not found in outputs", col)
			}
			scanVal := reflect.New(firstMap.Type().Elem()).Elem()
			ptr = scanVal.Addr().Interface()
			proxy = &ScanProxy{original: firstMap, scan: scanVal, key: reflect.ValueOf(col).Convert(firstMap.Type().Key())}
		}
		ptrs = append(ptrs, ptr)
		if proxy != nil {
			proxies = append(proxies, proxy)
		}
	}
	return ptrs, proxies, nil
}

func structTarget(col string, outputs []reflect.Value) (any, *ScanProxy, bool, error) {
	for _, out := range outputs {
		if out.Kind() != reflect.Struct {
			continue
		}
		info, err := GetTypeInfo(out.Type())
		if err != nil {
			return nil, nil, false, err
		}
		f, ok := info.TagToField[col]
		if !ok {
			continue
		}
		val := out.Field(f.Index)
		if !val.CanSet() {
			return nil, nil, false, errors.Errorf("internal error: cannot set field %s of struct %s", f.Name, out.Type().Name())
		}
		// rows.Scan refuses to put NULL into a type that cannot be nil, so
		// such fields are scanned through a pointer.
		pt := reflect.PointerTo(val.Type())
		if val.Kind() != reflect.Pointer && !pt.Implements(scannerInterface) {
			scanVal := reflect.New(pt).Elem()
			return scanVal.Addr().Interface(), &ScanProxy{original: val, scan: scanVal}, true, nil
		}
		return val.Addr().Interface(), nil, true, nil
	}
	return nil, nil, false, nil
}
