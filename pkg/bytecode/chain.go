package bytecode

import (
	"fmt"
	"math"

	"github.com/chazu/tale/pkg/fault"
)

// ChainVersion is the current chain encoding version.
// Increment when making incompatible changes to the format.
const ChainVersion uint16 = 1

// Instruction is a single opcode with its operand. The operand's meaning is
// given by the opcode's OperandKind.
type Instruction struct {
	Op  Opcode
	Arg int
}

// Chain is a compiled script: a flat, linear instruction sequence with its
// constant and name pools. A Chain is immutable once built; the VM and the
// cache share it freely.
type Chain struct {
	code      []Instruction
	consts    []Value
	names     []string
	positions []fault.Pos // instruction index -> source position
	bounds    []int       // statement boundaries, ascending
	maxStack  int
	digest    [32]byte
}

// Len returns the number of instructions.
func (c *Chain) Len() int { return len(c.code) }

// At returns the instruction at index pc.
func (c *Chain) At(pc int) Instruction { return c.code[pc] }

// Instructions returns a copy of the instruction sequence.
func (c *Chain) Instructions() []Instruction {
	return append([]Instruction(nil), c.code...)
}

// Const returns the constant at the given pool index.
func (c *Chain) Const(i int) Value { return c.consts[i] }

// Constants returns a copy of the constant pool.
func (c *Chain) Constants() []Value { return append([]Value(nil), c.consts...) }

// Name returns the name at the given pool index.
func (c *Chain) Name(i int) string { return c.names[i] }

// Names returns a copy of the name pool.
func (c *Chain) Names() []string { return append([]string(nil), c.names...) }

// Pos returns the source position that produced instruction pc.
func (c *Chain) Pos(pc int) fault.Pos {
	if pc < 0 || pc >= len(c.positions) {
		return fault.Pos{}
	}
	return c.positions[pc]
}

// Boundaries returns the instruction indices at which top-level statements
// begin, followed by the chain length.
func (c *Chain) Boundaries() []int { return append([]int(nil), c.bounds...) }

// MaxStack returns the statically computed maximum operand stack depth.
func (c *Chain) MaxStack() int { return c.maxStack }

// Digest returns the SHA-256 of the chain's canonical encoding.
func (c *Chain) Digest() [32]byte { return c.digest }

// operand renders an instruction's operand for listings.
func (c *Chain) operand(in Instruction) string {
	switch GetOpcodeInfo(in.Op).Operand {
	case OperandConst:
		if in.Arg >= 0 && in.Arg < len(c.consts) {
			return c.consts[in.Arg].Repr()
		}
	case OperandName:
		if in.Arg >= 0 && in.Arg < len(c.names) {
			return c.names[in.Arg]
		}
	case OperandTarget:
		return fmt.Sprintf("%04d", in.Arg)
	case OperandCount:
		return fmt.Sprintf("%d", in.Arg)
	default:
		return ""
	}
	return fmt.Sprintf("?%d", in.Arg)
}

// ---------------------------------------------------------------------------
// Builder: emission with forward-jump backpatching
// ---------------------------------------------------------------------------

// Label names a jump target whose index may not be known yet.
type Label int

// fixup records a jump whose placeholder operand must be patched.
type fixup struct {
	at    int
	label Label
}

// constKey identifies a pooled constant. Int(1) and Float(1) differ.
type constKey struct {
	kind ValueKind
	i    int64
	f    uint64
	s    string
}

// Builder accumulates instructions for a Chain. Jumps are emitted with a
// placeholder target and a fix-up record; Finish patches every placeholder
// to an absolute instruction index once all labels are bound.
type Builder struct {
	code      []Instruction
	consts    []Value
	names     []string
	positions []fault.Pos
	bounds    []int

	constIndex map[constKey]int
	nameIndex  map[string]int
	labels     []int // label -> bound index, -1 while unbound
	fixups     []fixup
	pos        fault.Pos
}

// placeholder marks a jump operand awaiting its label.
const placeholder = -1

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		code:       make([]Instruction, 0, 64),
		constIndex: make(map[constKey]int),
		nameIndex:  make(map[string]int),
	}
}

// SetPos sets the source position attached to subsequent instructions.
func (b *Builder) SetPos(p fault.Pos) { b.pos = p }

// Offset returns the index the next instruction will occupy.
func (b *Builder) Offset() int { return len(b.code) }

// Emit appends an instruction with no operand.
func (b *Builder) Emit(op Opcode) int {
	return b.emit(op, 0)
}

func (b *Builder) emit(op Opcode, arg int) int {
	offset := len(b.code)
	b.code = append(b.code, Instruction{Op: op, Arg: arg})
	b.positions = append(b.positions, b.pos)
	return offset
}

// AddConstant adds a value to the pool and returns its index.
// If the constant already exists, returns the existing index.
func (b *Builder) AddConstant(v Value) int {
	key := constKey{kind: v.kind, i: v.i, s: v.s}
	if v.kind == KindFloat {
		key.f = math.Float64bits(v.f)
	}
	if idx, ok := b.constIndex[key]; ok {
		return idx
	}
	idx := len(b.consts)
	b.consts = append(b.consts, v)
	b.constIndex[key] = idx
	return idx
}

// AddName adds a name to the pool and returns its index.
func (b *Builder) AddName(name string) int {
	if idx, ok := b.nameIndex[name]; ok {
		return idx
	}
	idx := len(b.names)
	b.names = append(b.names, name)
	b.nameIndex[name] = idx
	return idx
}

// EmitConst emits CONST for the given literal value.
func (b *Builder) EmitConst(v Value) int {
	return b.emit(OpConst, b.AddConstant(v))
}

// EmitName emits an instruction whose operand is a pooled name.
func (b *Builder) EmitName(op Opcode, name string) int {
	return b.emit(op, b.AddName(name))
}

// EmitCall emits CALL with the given argument count.
func (b *Builder) EmitCall(argc int) int {
	return b.emit(OpCall, argc)
}

// NewLabel allocates an unbound label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Bind binds the label to the current offset.
func (b *Builder) Bind(l Label) {
	b.labels[l] = len(b.code)
}

// EmitJump emits a jump to l with a placeholder target and records a
// fix-up. Backward jumps to already-bound labels go through the same path.
func (b *Builder) EmitJump(op Opcode, l Label) int {
	offset := b.emit(op, placeholder)
	b.fixups = append(b.fixups, fixup{at: offset, label: l})
	return offset
}

// MarkStatement records that a top-level statement begins at the current
// offset. The stack must be empty there.
func (b *Builder) MarkStatement() {
	if n := len(b.bounds); n > 0 && b.bounds[n-1] == len(b.code) {
		return
	}
	b.bounds = append(b.bounds, len(b.code))
}

// Finish patches all jumps, verifies stack discipline and returns the
// immutable chain. The builder must not be used afterwards.
func (b *Builder) Finish() (*Chain, error) {
	for _, fx := range b.fixups {
		target := b.labels[fx.label]
		if target < 0 {
			return nil, fault.New(fault.StackError, b.positions[fx.at],
				"jump at %d targets an unbound label", fx.at)
		}
		b.code[fx.at].Arg = target
	}
	b.MarkStatement()

	c := &Chain{
		code:      b.code,
		consts:    b.consts,
		names:     b.names,
		positions: b.positions,
		bounds:    b.bounds,
	}
	depth, err := verify(c)
	if err != nil {
		return nil, err
	}
	c.maxStack = depth
	data, err := c.Encode()
	if err != nil {
		return nil, err
	}
	c.digest = digestOf(data)
	return c, nil
}

// ---------------------------------------------------------------------------
// Static stack verification
// ---------------------------------------------------------------------------

// verify walks every reachable path and checks that each instruction sees
// the same stack depth on all paths, never underflows, and that the stack
// is empty at statement boundaries and at the end of the chain. It returns
// the maximum depth.
func verify(c *Chain) (int, error) {
	n := len(c.code)
	depth := make([]int, n+1)
	for i := range depth {
		depth[i] = -1
	}
	boundary := make(map[int]bool, len(c.bounds))
	for _, b := range c.bounds {
		boundary[b] = true
	}

	fail := func(pc int, format string, args ...any) error {
		return fault.At(fault.StackError, pc, c.Pos(pc), format, args...)
	}

	// flow records the depth reaching pc and reports whether pc needs a visit.
	flow := func(from, pc, d int) (bool, error) {
		if pc < 0 || pc > n {
			return false, fail(from, "jump target %d out of range", pc)
		}
		if depth[pc] == -1 {
			depth[pc] = d
			return true, nil
		}
		if depth[pc] != d {
			return false, fail(from, "stack depth %d at %d conflicts with %d", d, pc, depth[pc])
		}
		return false, nil
	}

	maxDepth := 0
	work := []int{0}
	depth[0] = 0
	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		d := depth[pc]
		if boundary[pc] && d != 0 {
			return 0, fail(pc, "stack depth %d at statement boundary", d)
		}
		if pc == n {
			if d != 0 {
				return 0, fail(pc, "stack depth %d at end of chain", d)
			}
			continue
		}

		in := c.code[pc]
		info := GetOpcodeInfo(in.Op)
		if !in.Op.Valid() {
			return 0, fail(pc, "unknown opcode 0x%02X", byte(in.Op))
		}
		switch info.Operand {
		case OperandConst:
			if in.Arg < 0 || in.Arg >= len(c.consts) {
				return 0, fail(pc, "constant index %d out of range", in.Arg)
			}
		case OperandName:
			if in.Arg < 0 || in.Arg >= len(c.names) {
				return 0, fail(pc, "name index %d out of range", in.Arg)
			}
		case OperandCount:
			if in.Arg < 0 {
				return 0, fail(pc, "negative argument count %d", in.Arg)
			}
		}

		pop, push := in.StackEffect()
		if d < pop {
			return 0, fail(pc, "%s needs %d operands, stack has %d", in.Op, pop, d)
		}
		next := d - pop + push
		if next > maxDepth {
			maxDepth = next
		}

		var succ []int
		switch {
		case in.Op == OpGoto:
			succ = []int{in.Arg}
		case in.Op.IsConditional():
			succ = []int{in.Arg, pc + 1}
		default:
			succ = []int{pc + 1}
		}
		for _, s := range succ {
			visit, err := flow(pc, s, next)
			if err != nil {
				return 0, err
			}
			if visit {
				work = append(work, s)
			}
		}
	}
	return maxDepth, nil
}
