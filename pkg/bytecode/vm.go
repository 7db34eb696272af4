package bytecode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/chazu/tale/pkg/fault"
)

// State is the lifecycle state of a Machine.
type State uint8

const (
	Ready     State = iota // compiled, not started
	Running                // executing instructions
	Suspended              // paused at a CALL, waiting for a value
	Completed              // ran past the end of the chain
	Failed                 // stopped on a runtime fault
)

var stateNames = map[State]string{
	Ready:     "ready",
	Running:   "running",
	Suspended: "suspended",
	Completed: "completed",
	Failed:    "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Completed || s == Failed }

// ErrInvalidState is returned when a transition is requested from a state
// that does not allow it.
var ErrInvalidState = errors.New("bytecode: invalid machine state")

// cancelCheckInterval is how many instructions run between context checks.
const cancelCheckInterval = 256

// Machine executes a chain against an operand stack and a variable
// environment. A Machine is single-threaded: it must not be used from
// more than one goroutine at a time. Independent machines share nothing
// but the chain, the callable table and host references.
type Machine struct {
	chain *Chain
	funcs *Table

	pc    int
	stack []Value
	env   map[string]Value

	state State
	fault *fault.Fault
	pause *PauseSignal

	steps    int
	maxSteps int

	// Trace, when set, receives one line per executed instruction.
	Trace io.Writer
}

// Option configures a Machine.
type Option func(*Machine)

// WithMaxSteps bounds the number of instructions the machine may execute
// over its whole lifetime. Zero means unlimited.
func WithMaxSteps(n int) Option {
	return func(m *Machine) { m.maxSteps = n }
}

// WithTrace directs an instruction trace to w.
func WithTrace(w io.Writer) Option {
	return func(m *Machine) { m.Trace = w }
}

// NewMachine creates a Ready machine. Bindings are copied into the
// environment before the first instruction runs.
func NewMachine(chain *Chain, funcs *Table, bindings map[string]Value, opts ...Option) *Machine {
	m := &Machine{
		chain: chain,
		funcs: funcs,
		stack: make([]Value, 0, chain.MaxStack()),
		env:   make(map[string]Value, len(bindings)),
	}
	maps.Copy(m.env, bindings)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Machine) State() State { return m.state }

// Fault returns the fault that failed the machine, if any.
func (m *Machine) Fault() *fault.Fault { return m.fault }

// PauseReason returns the reason given by the callable that suspended the
// machine.
func (m *Machine) PauseReason() string {
	if m.pause == nil {
		return ""
	}
	return m.pause.Reason
}

// PC returns the program counter.
func (m *Machine) PC() int { return m.pc }

// Depth returns the operand stack depth.
func (m *Machine) Depth() int { return len(m.stack) }

// Steps returns the number of instructions executed so far.
func (m *Machine) Steps() int { return m.steps }

// Chain returns the chain being executed.
func (m *Machine) Chain() *Chain { return m.chain }

// Lookup returns the value bound to name in the environment.
func (m *Machine) Lookup(name string) (Value, bool) {
	v, ok := m.env[name]
	return v, ok
}

// Env returns a copy of the variable environment.
func (m *Machine) Env() map[string]Value {
	return maps.Clone(m.env)
}

// Run starts a Ready machine and executes until it completes, fails or
// suspends. A failed run returns the fault as the error.
func (m *Machine) Run(ctx context.Context) (State, error) {
	if m.state != Ready {
		return m.state, fmt.Errorf("%w: run from %s", ErrInvalidState, m.state)
	}
	return m.run(ctx)
}

// Resume continues a Suspended machine, pushing v as the result of the CALL
// that paused it.
func (m *Machine) Resume(ctx context.Context, v Value) (State, error) {
	if m.state != Suspended {
		return m.state, fmt.Errorf("%w: resume from %s", ErrInvalidState, m.state)
	}
	if !v.Valid() {
		return m.state, fmt.Errorf("%w: resume with invalid value", ErrInvalidState)
	}
	m.stack = append(m.stack, v)
	m.pause = nil
	return m.run(ctx)
}

// Cancel discards a non-terminal machine's state and marks it Failed.
func (m *Machine) Cancel() {
	if m.state.Terminal() {
		return
	}
	m.fail(fault.At(fault.Interrupted, m.pc, m.chain.Pos(m.pc), "cancelled by host"))
}

func (m *Machine) fail(f *fault.Fault) {
	m.state = Failed
	m.fault = f
	m.stack = m.stack[:0]
	m.pause = nil
}

// run is the main execution loop.
func (m *Machine) run(ctx context.Context) (State, error) {
	m.state = Running
	n := m.chain.Len()
	for m.pc < n {
		if m.maxSteps > 0 && m.steps >= m.maxSteps {
			m.fail(fault.At(fault.Interrupted, m.pc, m.chain.Pos(m.pc),
				"step budget of %d instructions exhausted", m.maxSteps))
			return m.state, m.fault
		}
		if m.steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				m.fail(fault.Wrap(fault.Interrupted, m.pc, m.chain.Pos(m.pc), err, "execution interrupted"))
				return m.state, m.fault
			}
		}
		m.steps++

		pc := m.pc
		in := m.chain.code[pc]
		m.pc++

		if m.Trace != nil {
			fmt.Fprintf(m.Trace, "[%04d] %-13s %-10s sp=%d\n", pc, in.Op, m.chain.operand(in), len(m.stack))
		}

		if err := m.exec(ctx, pc, in); err != nil {
			if p, ok := IsPause(err); ok {
				m.state = Suspended
				m.pause = p
				return m.state, nil
			}
			m.fail(m.toFault(pc, err))
			return m.state, m.fault
		}
	}
	m.state = Completed
	return m.state, nil
}

func (m *Machine) toFault(pc int, err error) *fault.Fault {
	var f *fault.Fault
	if errors.As(err, &f) {
		return f
	}
	var oe *opError
	if errors.As(err, &oe) {
		return fault.At(oe.kind, pc, m.chain.Pos(pc), "%s", oe.msg)
	}
	return fault.Wrap(fault.StackError, pc, m.chain.Pos(pc), err, "internal error")
}

func (m *Machine) push(v Value) { m.stack = append(m.stack, v) }

// pop removes the top value. Callers check depth first via need.
func (m *Machine) pop() Value {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *Machine) top() Value { return m.stack[len(m.stack)-1] }

func (m *Machine) faultf(kind fault.Kind, pc int, format string, args ...any) error {
	return fault.At(kind, pc, m.chain.Pos(pc), format, args...)
}

// need checks that the stack holds enough operands for in.
func (m *Machine) need(pc int, in Instruction) error {
	pop, _ := in.StackEffect()
	if len(m.stack) < pop {
		return m.faultf(fault.StackError, pc, "stack underflow: %s needs %d operands, have %d",
			in.Op, pop, len(m.stack))
	}
	return nil
}

// operands pops a binary opcode's operands and returns them in source
// order according to the opcode's documented stack convention.
func (m *Machine) operands(op Opcode) (left, right Value) {
	tos := m.pop()
	nos := m.pop()
	if GetOpcodeInfo(op).Order == OrderLeftOnTop {
		return tos, nos
	}
	return nos, tos
}

func (m *Machine) popBool(pc int, in Instruction) (bool, error) {
	v := m.pop()
	b, ok := v.AsBool()
	if !ok {
		return false, m.faultf(fault.TypeError, pc, "%s expects a boolean, got %s", in.Op, v.kind)
	}
	return b, nil
}

func (m *Machine) topBool(pc int, in Instruction) (bool, error) {
	v := m.top()
	b, ok := v.AsBool()
	if !ok {
		return false, m.faultf(fault.TypeError, pc, "%s expects a boolean, got %s", in.Op, v.kind)
	}
	return b, nil
}

func (m *Machine) exec(ctx context.Context, pc int, in Instruction) error {
	if err := m.need(pc, in); err != nil {
		return err
	}

	switch in.Op {
	// ============ Stack Operations ============
	case OpNop:

	case OpPop:
		m.pop()

	case OpDup:
		m.push(m.top())

	case OpSwap:
		n := len(m.stack)
		m.stack[n-1], m.stack[n-2] = m.stack[n-2], m.stack[n-1]

	case OpRot:
		// Rotate top 3: [a b c] -> [b c a]
		n := len(m.stack)
		a := m.stack[n-3]
		m.stack[n-3] = m.stack[n-2]
		m.stack[n-2] = m.stack[n-1]
		m.stack[n-1] = a

	// ============ Constants and Variables ============
	case OpConst:
		m.push(m.chain.consts[in.Arg])

	case OpValue:
		name := m.chain.names[in.Arg]
		if v, ok := m.env[name]; ok {
			m.push(v)
			return nil
		}
		if c, ok := m.funcs.Lookup(name); ok {
			m.push(Func(c))
			return nil
		}
		return m.faultf(fault.NameError, pc, "name %q is not defined", name)

	case OpStore:
		m.env[m.chain.names[in.Arg]] = m.pop()

	case OpGetAttr:
		name := m.chain.names[in.Arg]
		obj := m.pop()
		ref, ok := obj.AsRef()
		if !ok {
			return m.faultf(fault.TypeError, pc, "cannot read attribute %q of %s", name, obj.kind)
		}
		a, ok := ref.(Attributer)
		if !ok {
			return m.faultf(fault.TypeError, pc, "%s has no attributes", obj)
		}
		v, found := a.Attr(name)
		if !found || !v.Valid() {
			return m.faultf(fault.NameError, pc, "%s has no attribute %q", obj, name)
		}
		m.push(v)

	// ============ Arithmetic ============
	case OpAdd, OpSub, OpMul, OpDiv:
		left, right := m.operands(in.Op)
		v, err := Arith(in.Op, left, right)
		if err != nil {
			return err
		}
		m.push(v)

	case OpNeg:
		v, err := Negate(m.pop())
		if err != nil {
			return err
		}
		m.push(v)

	// ============ Comparison ============
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		left, right := m.operands(in.Op)
		b, err := Compare(in.Op, left, right)
		if err != nil {
			return err
		}
		m.push(Bool(b))

	// ============ Logical ============
	case OpNot:
		b, err := m.popBool(pc, in)
		if err != nil {
			return err
		}
		m.push(Bool(!b))

	// ============ Control Flow ============
	case OpGoto:
		m.pc = in.Arg

	case OpIfFalse, OpIfTrue:
		b, err := m.popBool(pc, in)
		if err != nil {
			return err
		}
		if b == (in.Op == OpIfTrue) {
			m.pc = in.Arg
		}

	case OpIfFalseKeep, OpIfTrueKeep:
		b, err := m.topBool(pc, in)
		if err != nil {
			return err
		}
		if b == (in.Op == OpIfTrueKeep) {
			m.pc = in.Arg
		}

	// ============ Calls ============
	case OpCall:
		return m.call(ctx, pc, in.Arg)

	default:
		return m.faultf(fault.StackError, pc, "unknown opcode 0x%02X", byte(in.Op))
	}
	return nil
}

// call pops argc arguments (nearest the top) and the callable beneath
// them, invokes it and pushes its result. A pause signal leaves nothing on
// the stack; Resume supplies the result later.
func (m *Machine) call(ctx context.Context, pc, argc int) error {
	n := len(m.stack)
	args := make([]Value, argc)
	copy(args, m.stack[n-argc:])
	m.stack = m.stack[:n-argc]
	callee := m.pop()

	c, ok := callee.AsCallable()
	if !ok {
		return m.faultf(fault.TypeError, pc, "%s is not callable", callee.kind)
	}
	if c.Fn == nil {
		return m.faultf(fault.RuntimeCallError, pc, "callable %q has no implementation", c.Name)
	}

	result, err := c.Fn(ctx, args)
	if err != nil {
		if p, ok := IsPause(err); ok {
			return p
		}
		return fault.Wrap(fault.RuntimeCallError, pc, m.chain.Pos(pc), err, "call to %s failed", c.Name)
	}
	if !result.Valid() {
		return m.faultf(fault.RuntimeCallError, pc, "call to %s returned no value", c.Name)
	}
	m.push(result)
	return nil
}
