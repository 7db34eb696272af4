package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop top of stack
	OpDup  Opcode = 0x02 // Duplicate top of stack
	OpSwap Opcode = 0x03 // Swap top two stack elements
	OpRot  Opcode = 0x04 // Rotate top three: a b c -> b c a

	// ========================================================================
	// Constants and variables (0x10-0x1F)
	// ========================================================================

	OpConst   Opcode = 0x10 // Push constant from pool: CONST <const>
	OpValue   Opcode = 0x11 // Push variable or callable by name: VALUE <name>
	OpStore   Opcode = 0x12 // Pop and bind to name: STORE <name>
	OpGetAttr Opcode = 0x13 // Pop reference, push attribute: GETATTR <name>

	// ========================================================================
	// Arithmetic (0x20-0x2F)
	// ========================================================================

	OpAdd Opcode = 0x20 // Pop two, push sum (or concatenation of strings)
	OpSub Opcode = 0x21 // Pop two, push difference (NOS - TOS)
	OpMul Opcode = 0x22 // Pop two, push product
	OpDiv Opcode = 0x23 // Pop two, push quotient (TOS / NOS)
	OpNeg Opcode = 0x24 // Negate top of stack

	// ========================================================================
	// Comparison (0x30-0x37)
	// ========================================================================

	OpEq Opcode = 0x30 // Pop two, push true if equal
	OpNe Opcode = 0x31 // Pop two, push true if not equal
	OpLt Opcode = 0x32 // Pop two, push true if NOS < TOS
	OpLe Opcode = 0x33 // Pop two, push true if NOS <= TOS
	OpGt Opcode = 0x34 // Pop two, push true if NOS > TOS
	OpGe Opcode = 0x35 // Pop two, push true if NOS >= TOS

	// ========================================================================
	// Logical (0x38-0x3F)
	// ========================================================================

	OpNot Opcode = 0x38 // Negate boolean on top of stack

	// ========================================================================
	// Control flow (0x40-0x4F)
	// ========================================================================

	OpGoto        Opcode = 0x40 // Jump to absolute index: GOTO <target>
	OpIfFalse     Opcode = 0x41 // Pop boolean, jump if false
	OpIfFalseKeep Opcode = 0x42 // Test boolean in place, jump if false
	OpIfTrue      Opcode = 0x43 // Pop boolean, jump if true
	OpIfTrueKeep  Opcode = 0x44 // Test boolean in place, jump if true

	// ========================================================================
	// Calls (0x50-0x5F)
	// ========================================================================

	OpCall Opcode = 0x50 // Pop argc args and a callable, push result: CALL <argc>
)

// OperandKind describes how an instruction's operand is interpreted.
type OperandKind uint8

const (
	OperandNone   OperandKind = iota
	OperandConst              // index into the constant pool
	OperandName               // index into the name pool
	OperandTarget             // absolute instruction index
	OperandCount              // argument count
)

// OperandOrder fixes which stack slot holds the left operand of a
// binary opcode. The code generator consults it so that source order is
// preserved regardless of the opcode's convention.
type OperandOrder uint8

const (
	OrderNone      OperandOrder = iota
	OrderLeftBelow              // left operand is NOS, right is TOS
	OrderLeftOnTop              // left operand is TOS, right is NOS
)

// OpcodeInfo contains metadata about an opcode.
type OpcodeInfo struct {
	Name      string
	StackPop  int // Number of values popped (-1 = variable)
	StackPush int // Number of values pushed
	Operand   OperandKind
	Order     OperandOrder
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack
	OpNop:  {"NOP", 0, 0, OperandNone, OrderNone},
	OpPop:  {"POP", 1, 0, OperandNone, OrderNone},
	OpDup:  {"DUP", 1, 2, OperandNone, OrderNone},
	OpSwap: {"SWAP", 2, 2, OperandNone, OrderNone},
	OpRot:  {"ROT", 3, 3, OperandNone, OrderNone},

	// Constants and variables
	OpConst:   {"CONST", 0, 1, OperandConst, OrderNone},
	OpValue:   {"VALUE", 0, 1, OperandName, OrderNone},
	OpStore:   {"STORE", 1, 0, OperandName, OrderNone},
	OpGetAttr: {"GETATTR", 1, 1, OperandName, OrderNone},

	// Arithmetic
	OpAdd: {"ADD", 2, 1, OperandNone, OrderLeftBelow},
	OpSub: {"SUB", 2, 1, OperandNone, OrderLeftBelow},
	OpMul: {"MUL", 2, 1, OperandNone, OrderLeftBelow},
	OpDiv: {"DIV", 2, 1, OperandNone, OrderLeftOnTop},
	OpNeg: {"NEG", 1, 1, OperandNone, OrderNone},

	// Comparison
	OpEq: {"EQ", 2, 1, OperandNone, OrderLeftBelow},
	OpNe: {"NE", 2, 1, OperandNone, OrderLeftBelow},
	OpLt: {"LT", 2, 1, OperandNone, OrderLeftBelow},
	OpLe: {"LE", 2, 1, OperandNone, OrderLeftBelow},
	OpGt: {"GT", 2, 1, OperandNone, OrderLeftBelow},
	OpGe: {"GE", 2, 1, OperandNone, OrderLeftBelow},

	// Logical
	OpNot: {"NOT", 1, 1, OperandNone, OrderNone},

	// Control flow
	OpGoto:        {"GOTO", 0, 0, OperandTarget, OrderNone},
	OpIfFalse:     {"IFFALSE", 1, 0, OperandTarget, OrderNone},
	OpIfFalseKeep: {"IFFALSE_KEEP", 1, 1, OperandTarget, OrderNone},
	OpIfTrue:      {"IFTRUE", 1, 0, OperandTarget, OrderNone},
	OpIfTrueKeep:  {"IFTRUE_KEEP", 1, 1, OperandTarget, OrderNone},

	// Calls
	OpCall: {"CALL", -1, 1, OperandCount, OrderNone}, // Pops callable + argc args
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsJump returns true if this opcode transfers control to its operand.
func (op Opcode) IsJump() bool {
	return op >= OpGoto && op <= OpIfTrueKeep
}

// IsConditional returns true for jumps that may fall through.
func (op Opcode) IsConditional() bool {
	return op > OpGoto && op <= OpIfTrueKeep
}

// IsBinary returns true for opcodes that combine two operands into one.
func (op Opcode) IsBinary() bool {
	return GetOpcodeInfo(op).Order != OrderNone
}

// StackEffect returns how many values an instruction pops and pushes.
// CALL pops its argument count plus the callable.
func (in Instruction) StackEffect() (pop, push int) {
	info := GetOpcodeInfo(in.Op)
	if in.Op == OpCall {
		return in.Arg + 1, info.StackPush
	}
	return info.StackPop, info.StackPush
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
