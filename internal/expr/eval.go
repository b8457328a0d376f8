// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/canonical/twoway/internal/typeinfo"
	"github.com/canonical/twoway/types"
)

// Env resolves identifiers.
type Env interface {
	Lookup(name string) (types.Value, bool)
}

// MapEnv is an Env backed by a map.
type MapEnv map[string]types.Value

func (m MapEnv) Lookup(name string) (types.Value, bool) {
	v, ok := m[name]
	return v, ok
}

// Evaluator evaluates expressions. It holds no state besides its function
// table and may be used concurrently.
type Evaluator struct {
	Functions types.Functions
}

// Eval evaluates x in env.
func (ev *Evaluator) Eval(x Expr, env Env) (types.Value, error) {
	switch x := x.(type) {
	case *Literal:
		return x.Value, nil
	case *Ident:
		v, ok := env.Lookup(x.Name)
		if !ok {
			return types.Value{}, errorf(x, "unknown identifier %q", x.Name)
		}
		return v, nil
	case *Property:
		recv, err := ev.Eval(x.X, env)
		if err != nil {
			return types.Value{}, err
		}
		if recv.IsNull() {
			return types.Value{Type: types.Null}, nil
		}
		mv, err := typeinfo.Member(reflect.ValueOf(recv.V), x.Name)
		if err != nil {
			return types.Value{}, &Error{Offset: x.Offset, Reason: fmt.Sprintf("cannot get %q of %s", x.Name, x.X), Cause: err}
		}
		if !mv.IsValid() {
			return types.Value{Type: types.Null}, nil
		}
		return types.ValueOf(mv.Interface()), nil
	case *Unary:
		return ev.evalUnary(x, env)
	case *Binary:
		return ev.evalBinary(x, env)
	case *Call:
		return ev.evalCall(x, env)
	}
	return types.Value{}, fmt.Errorf("internal error: unknown expression type %T", x)
}

// EvalBool evaluates a condition. The result must be a non-null bool.
func (ev *Evaluator) EvalBool(x Expr, env Env) (bool, error) {
	v, err := ev.Eval(x, env)
	if err != nil {
		return false, err
	}
	return asCondition(x, v)
}

func asCondition(x Expr, v types.Value) (bool, error) {
	if v.IsNull() {
		return false, errorf(x, "condition %s is null", x)
	}
	b, err := types.AsBool(v.V)
	if err != nil {
		return false, errorf(x, "condition %s is %s, not bool", x, v.Type)
	}
	return b, nil
}

func (ev *Evaluator) evalUnary(x *Unary, env Env) (types.Value, error) {
	v, err := ev.Eval(x.X, env)
	if err != nil {
		return types.Value{}, err
	}
	switch x.Op {
	case "!":
		b, err := asCondition(x.X, v)
		if err != nil {
			return types.Value{}, err
		}
		return types.ValueOf(!b), nil
	case "-":
		if v.IsNull() {
			return types.Value{}, errorf(x, "cannot negate null")
		}
		switch v.Type {
		case types.Int, types.Uint:
			i, err := types.AsInt(v.V)
			if err != nil {
				return types.Value{}, &Error{Offset: x.Offset, Reason: "cannot negate", Cause: err}
			}
			return types.ValueOf(-i), nil
		case types.Float:
			f, _ := types.AsFloat(v.V)
			return types.ValueOf(-f), nil
		case types.Decimal:
			r, err := toRat(v)
			if err != nil {
				return types.Value{}, &Error{Offset: x.Offset, Reason: "cannot negate", Cause: err}
			}
			return types.ValueOf(r.Neg(r)), nil
		}
		return types.Value{}, errorf(x, "cannot negate %s", v.Type)
	}
	return types.Value{}, errorf(x, "internal error: unknown operator %q", x.Op)
}

func (ev *Evaluator) evalBinary(x *Binary, env Env) (types.Value, error) {
	if x.Op == "&&" || x.Op == "||" {
		return ev.evalLogical(x, env)
	}
	l, err := ev.Eval(x.X, env)
	if err != nil {
		return types.Value{}, err
	}
	r, err := ev.Eval(x.Y, env)
	if err != nil {
		return types.Value{}, err
	}

	switch x.Op {
	case "==", "!=":
		var eq bool
		switch {
		case isNullLiteral(x.Y):
			eq = l.IsNull()
		case isNullLiteral(x.X):
			eq = r.IsNull()
		case l.IsNull() || r.IsNull():
			return types.Value{}, errorf(x, "cannot compare null with %s; compare against null or use isNull", x.Op)
		default:
			if eq, err = equal(l, r); err != nil {
				return types.Value{}, &Error{Offset: x.Offset, Reason: "cannot evaluate " + x.String(), Cause: err}
			}
		}
		if x.Op == "!=" {
			eq = !eq
		}
		return types.ValueOf(eq), nil
	case "<", "<=", ">", ">=":
		if l.IsNull() || r.IsNull() {
			return types.Value{}, errorf(x, "cannot compare null with %s", x.Op)
		}
		c, err := compare(l, r)
		if err != nil {
			return types.Value{}, &Error{Offset: x.Offset, Reason: "cannot evaluate " + x.String(), Cause: err}
		}
		var res bool
		switch x.Op {
		case "<":
			res = c < 0
		case "<=":
			res = c <= 0
		case ">":
			res = c > 0
		case ">=":
			res = c >= 0
		}
		return types.ValueOf(res), nil
	}

	if l.IsNull() || r.IsNull() {
		return types.Value{}, errorf(x, "null operand for %s", x.Op)
	}
	v, err := arith(x.Op, l, r)
	if err != nil {
		return types.Value{}, &Error{Offset: x.Offset, Reason: "cannot evaluate " + x.String(), Cause: err}
	}
	return v, nil
}

// evalLogical evaluates && and ||, skipping the right operand when the left
// one decides the result.
func (ev *Evaluator) evalLogical(x *Binary, env Env) (types.Value, error) {
	l, err := ev.Eval(x.X, env)
	if err != nil {
		return types.Value{}, err
	}
	lb, err := asCondition(x.X, l)
	if err != nil {
		return types.Value{}, err
	}
	if (x.Op == "&&" && !lb) || (x.Op == "||" && lb) {
		return types.ValueOf(lb), nil
	}
	r, err := ev.Eval(x.Y, env)
	if err != nil {
		return types.Value{}, err
	}
	rb, err := asCondition(x.Y, r)
	if err != nil {
		return types.Value{}, err
	}
	return types.ValueOf(rb), nil
}

func (ev *Evaluator) evalCall(x *Call, env Env) (types.Value, error) {
	f, ok := ev.Functions[x.Name]
	if !ok {
		return types.Value{}, errorf(x, "unknown function %q", x.Name)
	}
	args := make([]types.Value, len(x.Args))
	for i, a := range x.Args {
		v, err := ev.Eval(a, env)
		if err != nil {
			return types.Value{}, err
		}
		args[i] = v
	}
	v, err := f(args...)
	if err != nil {
		return types.Value{}, &Error{Offset: x.Offset, Reason: "cannot call " + x.Name, Cause: err}
	}
	return v, nil
}

func isNumeric(t types.Type) bool {
	switch t {
	case types.Int, types.Uint, types.Float, types.Decimal:
		return true
	}
	return false
}

func equal(l, r types.Value) (bool, error) {
	if isNumeric(l.Type) && isNumeric(r.Type) {
		c, err := compareNumbers(l, r)
		return c == 0, err
	}
	if l.Type != r.Type {
		return false, fmt.Errorf("mismatched types %s and %s", l.Type, r.Type)
	}
	switch l.Type {
	case types.String:
		ls, _ := types.AsString(l.V)
		rs, _ := types.AsString(r.V)
		return ls == rs, nil
	case types.Bool:
		lb, _ := types.AsBool(l.V)
		rb, _ := types.AsBool(r.V)
		return lb == rb, nil
	case types.Time:
		lt, rt, err := asTimes(l, r)
		return err == nil && lt.Equal(rt), err
	case types.UUID:
		lu, lok := l.V.(uuid.UUID)
		ru, rok := r.V.(uuid.UUID)
		return lok && rok && lu == ru, nil
	case types.Bytes:
		return bytes.Equal(reflect.ValueOf(l.V).Bytes(), reflect.ValueOf(r.V).Bytes()), nil
	}
	return false, fmt.Errorf("cannot compare %s values", l.Type)
}

// compare orders numbers, strings and times.
func compare(l, r types.Value) (int, error) {
	if isNumeric(l.Type) && isNumeric(r.Type) {
		return compareNumbers(l, r)
	}
	if l.Type != r.Type {
		return 0, fmt.Errorf("mismatched types %s and %s", l.Type, r.Type)
	}
	switch l.Type {
	case types.String:
		ls, _ := types.AsString(l.V)
		rs, _ := types.AsString(r.V)
		switch {
		case ls < rs:
			return -1, nil
		case ls > rs:
			return 1, nil
		}
		return 0, nil
	case types.Time:
		lt, rt, err := asTimes(l, r)
		if err != nil {
			return 0, err
		}
		return lt.Compare(rt), nil
	}
	return 0, fmt.Errorf("cannot order %s values", l.Type)
}

func asTimes(l, r types.Value) (time.Time, time.Time, error) {
	lt, lok := l.V.(time.Time)
	rt, rok := r.V.(time.Time)
	if !lok || !rok {
		return time.Time{}, time.Time{}, fmt.Errorf("need time.Time values, got %T and %T", l.V, r.V)
	}
	return lt, rt, nil
}

func compareNumbers(l, r types.Value) (int, error) {
	switch {
	case l.Type == types.Decimal || r.Type == types.Decimal:
		lr, err := toRat(l)
		if err != nil {
			return 0, err
		}
		rr, err := toRat(r)
		if err != nil {
			return 0, err
		}
		return lr.Cmp(rr), nil
	case l.Type == types.Float || r.Type == types.Float:
		lf, _ := types.AsFloat(l.V)
		rf, _ := types.AsFloat(r.V)
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		}
		return 0, nil
	}
	li, err := types.AsInt(l.V)
	if err != nil {
		return 0, err
	}
	ri, err := types.AsInt(r.V)
	if err != nil {
		return 0, err
	}
	switch {
	case li < ri:
		return -1, nil
	case li > ri:
		return 1, nil
	}
	return 0, nil
}

// toRat converts a numeric value to a new big.Rat.
func toRat(v types.Value) (*big.Rat, error) {
	switch d := v.V.(type) {
	case *big.Rat:
		return new(big.Rat).Set(d), nil
	case *big.Int:
		return new(big.Rat).SetInt(d), nil
	case *big.Float:
		r, _ := d.Rat(nil)
		if r == nil {
			return nil, fmt.Errorf("cannot use infinite decimal")
		}
		return r, nil
	case string:
		r, ok := new(big.Rat).SetString(d)
		if !ok {
			return nil, fmt.Errorf("invalid decimal %q", d)
		}
		return r, nil
	}
	switch v.Type {
	case types.Int, types.Uint:
		i, err := types.AsInt(v.V)
		if err != nil {
			return nil, err
		}
		return new(big.Rat).SetInt64(i), nil
	case types.Float:
		f, _ := types.AsFloat(v.V)
		r := new(big.Rat).SetFloat64(f)
		if r == nil {
			return nil, fmt.Errorf("cannot use %v as a decimal", f)
		}
		return r, nil
	}
	return nil, fmt.Errorf("need number, got %s", v.Type)
}

func arith(op string, l, r types.Value) (types.Value, error) {
	if op == "+" && l.Type == types.String && r.Type == types.String {
		ls, _ := types.AsString(l.V)
		rs, _ := types.AsString(r.V)
		return types.ValueOf(ls + rs), nil
	}
	if !isNumeric(l.Type) || !isNumeric(r.Type) {
		return types.Value{}, fmt.Errorf("mismatched types %s and %s", l.Type, r.Type)
	}

	switch {
	case l.Type == types.Decimal || r.Type == types.Decimal:
		lr, err := toRat(l)
		if err != nil {
			return types.Value{}, err
		}
		rr, err := toRat(r)
		if err != nil {
			return types.Value{}, err
		}
		switch op {
		case "+":
			return types.ValueOf(lr.Add(lr, rr)), nil
		case "-":
			return types.ValueOf(lr.Sub(lr, rr)), nil
		case "*":
			return types.ValueOf(lr.Mul(lr, rr)), nil
		case "/":
			if rr.Sign() == 0 {
				return types.Value{}, fmt.Errorf("division by zero")
			}
			return types.ValueOf(lr.Quo(lr, rr)), nil
		}
		return types.Value{}, fmt.Errorf("operator %s not supported on decimals", op)
	case l.Type == types.Float || r.Type == types.Float:
		lf, _ := types.AsFloat(l.V)
		rf, _ := types.AsFloat(r.V)
		switch op {
		case "+":
			return types.ValueOf(lf + rf), nil
		case "-":
			return types.ValueOf(lf - rf), nil
		case "*":
			return types.ValueOf(lf * rf), nil
		case "/":
			if rf == 0 {
				return types.Value{}, fmt.Errorf("division by zero")
			}
			return types.ValueOf(lf / rf), nil
		}
		return types.Value{}, fmt.Errorf("operator %s not supported on floats", op)
	}

	li, err := types.AsInt(l.V)
	if err != nil {
		return types.Value{}, err
	}
	ri, err := types.AsInt(r.V)
	if err != nil {
		return types.Value{}, err
	}
	switch op {
	case "+":
		return types.ValueOf(li + ri), nil
	case "-":
		return types.ValueOf(li - ri), nil
	case "*":
		return types.ValueOf(li * ri), nil
	case "/", "%":
		if ri == 0 {
			return types.Value{}, fmt.Errorf("division by zero")
		}
		if op == "/" {
			return types.ValueOf(li / ri), nil
		}
		return types.ValueOf(li % ri), nil
	}
	return types.Value{}, fmt.Errorf("internal error: unknown operator %q", op)
}
