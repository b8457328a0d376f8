// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/canonical/twoway"
)

// loadParams returns the template bindings from the params file, if any,
// overridden by name=value arguments. Values are read as YAML, so that
// id=10 binds a number and ids=[1,2] a list.
func loadParams(file string, args []string) (twoway.M, error) {
	params := twoway.M{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("cannot read params: %w", err)
		}
		if err := yaml.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("cannot read params %s: %w", file, err)
		}
		if params == nil {
			params = twoway.M{}
		}
	}
	for _, arg := range args {
		name, text, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, need name=value", arg)
		}
		var v any
		if err := yaml.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("invalid value for parameter %q: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}
