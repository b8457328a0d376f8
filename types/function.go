// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package types

// Function is a side effect free function callable from a template
// expression.
type Function func(args ...Value) (Value, error)

// Functions maps function names, as written in expressions without the
// leading '@', to their implementations.
type Functions map[string]Function

// Merge returns a new table holding the functions of fs followed by those of
// each of others. Later tables win on name clashes.
func (fs Functions) Merge(others ...Functions) Functions {
	n := len(fs)
	for _, o := range others {
		n += len(o)
	}
	merged := make(Functions, n)
	for name, f := range fs {
		merged[name] = f
	}
	for _, o := range others {
		for name, f := range o {
			merged[name] = f
		}
	}
	return merged
}
