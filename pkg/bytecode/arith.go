package bytecode

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/tale/pkg/fault"
)

// opError is a fault raised by a value operation before the VM attaches an
// instruction index and position to it.
type opError struct {
	kind fault.Kind
	msg  string
}

func (e *opError) Error() string { return e.msg }

func typeErr(format string, args ...any) *opError {
	return &opError{kind: fault.TypeError, msg: fmt.Sprintf(format, args...)}
}

// Arith applies a binary arithmetic opcode to a left and right operand.
//
// Integers combine to integers; any float operand promotes the result to a
// float. DIV of two integers yields an integer when the division is exact
// and a float otherwise. ADD also concatenates two strings.
func Arith(op Opcode, left, right Value) (Value, error) {
	if op == OpAdd && left.kind == KindString && right.kind == KindString {
		return String(left.s + right.s), nil
	}
	if !left.IsNumeric() || !right.IsNumeric() {
		return Value{}, typeErr("unsupported operand kinds for %s: %s and %s",
			symbolOf(op), left.kind, right.kind)
	}

	if left.kind == KindInt && right.kind == KindInt {
		a, b := left.i, right.i
		switch op {
		case OpAdd:
			return Int(a + b), nil
		case OpSub:
			return Int(a - b), nil
		case OpMul:
			return Int(a * b), nil
		case OpDiv:
			if b == 0 {
				return Value{}, &opError{kind: fault.ArithmeticError, msg: "division by zero"}
			}
			if a%b == 0 {
				return Int(a / b), nil
			}
			return Float(float64(a) / float64(b)), nil
		}
		return Value{}, typeErr("%s is not an arithmetic opcode", op)
	}

	a, _ := left.Number()
	b, _ := right.Number()
	switch op {
	case OpAdd:
		return finite(a + b)
	case OpSub:
		return finite(a - b)
	case OpMul:
		return finite(a * b)
	case OpDiv:
		if b == 0 {
			return Value{}, &opError{kind: fault.ArithmeticError, msg: "division by zero"}
		}
		return finite(a / b)
	}
	return Value{}, typeErr("%s is not an arithmetic opcode", op)
}

// finite rejects float results that left the real numbers, so scripts
// never hold an infinity or a NaN of their own making.
func finite(f float64) (Value, error) {
	switch {
	case math.IsNaN(f):
		return Value{}, &opError{kind: fault.ArithmeticError, msg: "float result is not a number"}
	case math.IsInf(f, 0):
		return Value{}, &opError{kind: fault.ArithmeticError, msg: "float overflow"}
	}
	return Float(f), nil
}

// Negate implements NEG.
func Negate(v Value) (Value, error) {
	switch v.kind {
	case KindInt:
		return Int(-v.i), nil
	case KindFloat:
		return Float(-v.f), nil
	}
	return Value{}, typeErr("cannot negate %s", v.kind)
}

// Compare applies a comparison opcode. Operands must be of matching kinds:
// numeric with numeric, string with string. Equality additionally accepts
// two booleans, two references (identity) or two callables (identity).
func Compare(op Opcode, left, right Value) (bool, error) {
	switch {
	case left.IsNumeric() && right.IsNumeric():
		var c int
		if left.kind == KindInt && right.kind == KindInt {
			c = cmpOrdered(left.i, right.i)
		} else {
			a, _ := left.Number()
			b, _ := right.Number()
			if math.IsNaN(a) || math.IsNaN(b) {
				// NaN is unordered and unequal to everything, itself included
				return op == OpNe, nil
			}
			c = cmpOrdered(a, b)
		}
		return ordering(op, c)

	case left.kind == KindString && right.kind == KindString:
		return ordering(op, strings.Compare(left.s, right.s))

	case left.kind == right.kind && (op == OpEq || op == OpNe):
		switch left.kind {
		case KindBool, KindRef, KindCallable:
			same := left.Identical(right)
			return same == (op == OpEq), nil
		}
	}
	return false, typeErr("cannot compare %s and %s with %s", left.kind, right.kind, symbolOf(op))
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func ordering(op Opcode, c int) (bool, error) {
	switch op {
	case OpEq:
		return c == 0, nil
	case OpNe:
		return c != 0, nil
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	}
	return false, typeErr("%s is not a comparison opcode", op)
}

var opSymbols = map[Opcode]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
}

func symbolOf(op Opcode) string {
	if s, ok := opSymbols[op]; ok {
		return s
	}
	return op.String()
}
