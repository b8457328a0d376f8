// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package build

import (
	"github.com/canonical/twoway/internal/expr"
	"github.com/canonical/twoway/types"
)

// scope holds the variables of one loop iteration. Names not found are
// looked up in the enclosing environment.
type scope struct {
	parent expr.Env
	vars   map[string]types.Value
}

func newScope(parent expr.Env, size int) *scope {
	return &scope{parent: parent, vars: make(map[string]types.Value, size)}
}

func (s *scope) Lookup(name string) (types.Value, bool) {
	if v, ok := s.vars[name]; ok {
		return v, true
	}
	return s.parent.Lookup(name)
}

// Bindings returns an environment holding the given Go values.
func Bindings(m map[string]any) expr.MapEnv {
	env := make(expr.MapEnv, len(m))
	for name, v := range m {
		env[name] = types.ValueOf(v)
	}
	return env
}
