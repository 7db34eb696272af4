package bytecode

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindRef
	KindCallable
)

var valueKindNames = map[ValueKind]string{
	KindInvalid:  "invalid",
	KindInt:      "int",
	KindFloat:    "float",
	KindString:   "string",
	KindBool:     "bool",
	KindRef:      "ref",
	KindCallable: "callable",
}

func (k ValueKind) String() string {
	if name, ok := valueKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ValueKind(%d)", k)
}

// Value is a runtime value: a closed union of integer, float, string,
// boolean, opaque host reference and callable. The zero Value is invalid
// and never appears on an operand stack.
type Value struct {
	kind ValueKind
	i    int64 // KindInt, KindBool (0 or 1)
	f    float64
	s    string
	ref  any
	fn   *Callable
}

// Int returns an integer value.
func Int(n int64) Value { return Value{kind: KindInt, i: n} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool}
}

// Ref wraps an opaque host object.
func Ref(obj any) Value { return Value{kind: KindRef, ref: obj} }

// Func wraps a callable.
func Func(c *Callable) Value { return Value{kind: KindCallable, fn: c} }

// ValueOf converts a Go value into a Value. Integers, floats, strings and
// booleans map to their kinds; a *Callable becomes a callable; anything else
// is wrapped as a host reference.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case *Callable:
		return Func(x)
	default:
		return Ref(v)
	}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// Valid reports whether v holds a value.
func (v Value) Valid() bool { return v.kind != KindInvalid }

// IsNumeric reports whether v is an integer or a float.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsBool() (bool, bool)     { return v.i != 0, v.kind == KindBool }
func (v Value) AsRef() (any, bool)       { return v.ref, v.kind == KindRef }

func (v Value) AsCallable() (*Callable, bool) {
	return v.fn, v.kind == KindCallable && v.fn != nil
}

// Number returns a numeric value promoted to float64.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// Interface returns the underlying Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBool:
		return v.i != 0
	case KindRef:
		return v.ref
	case KindCallable:
		return v.fn
	}
	return nil
}

// String renders the value for display. Strings are rendered bare.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return FormatFloat(v.f)
	case KindString:
		return v.s
	case KindBool:
		if v.i != 0 {
			return "true"
		}
		return "false"
	case KindRef:
		if s, ok := v.ref.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("<ref %T>", v.ref)
	case KindCallable:
		if v.fn == nil {
			return "<callable>"
		}
		return fmt.Sprintf("<callable %s>", v.fn.Name)
	}
	return "<invalid>"
}

// Repr renders the value as it would appear in source. Strings are quoted.
func (v Value) Repr() string {
	if v.kind == KindString {
		return strconv.Quote(v.s)
	}
	return v.String()
}

// FormatFloat renders f so that it always reads back as a float.
func FormatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Identical reports whether two values are the same variant with the same
// payload. Unlike equality, Int(6) and Float(6) are not identical.
func (v Value) Identical(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindRef:
		return sameRef(v.ref, o.ref)
	case KindCallable:
		return v.fn == o.fn
	}
	return v.i == o.i
}

// sameRef compares host references by identity without panicking on
// non-comparable dynamic types.
func sameRef(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
