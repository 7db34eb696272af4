package compiler

import (
	"fmt"

	"github.com/chazu/tale/pkg/bytecode"
	"github.com/chazu/tale/pkg/fault"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// binaryOpcodes maps operator tokens to the opcodes that implement them.
var binaryOpcodes = map[TokenType]bytecode.Opcode{
	TokenPlus:  bytecode.OpAdd,
	TokenMinus: bytecode.OpSub,
	TokenStar:  bytecode.OpMul,
	TokenSlash: bytecode.OpDiv,
	TokenEq:    bytecode.OpEq,
	TokenNe:    bytecode.OpNe,
	TokenLt:    bytecode.OpLt,
	TokenLe:    bytecode.OpLe,
	TokenGt:    bytecode.OpGt,
	TokenGe:    bytecode.OpGe,
}

// Compiler compiles AST nodes to a bytecode chain in one post-order pass.
// Forward jumps go through builder labels and are patched in Finish.
type Compiler struct {
	builder *bytecode.Builder
}

// NewCompiler creates a new compiler.
func NewCompiler() *Compiler {
	return &Compiler{builder: bytecode.NewBuilder()}
}

// Compile compiles a script. Each top-level statement starts a statement
// boundary at which the operand stack is empty.
func Compile(block *Block) (*bytecode.Chain, error) {
	c := NewCompiler()
	if err := c.CompileScript(block); err != nil {
		return nil, err
	}
	return c.Finish()
}

// CompileSource parses and compiles source text.
func CompileSource(src string) (*bytecode.Chain, error) {
	block, err := ParseScript(src)
	if err != nil {
		return nil, err
	}
	return Compile(block)
}

// CompileScript emits the statements of a script.
func (c *Compiler) CompileScript(block *Block) (err error) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*fault.Fault)
			if !ok {
				panic(r)
			}
			err = f
		}
	}()
	for _, stmt := range block.Statements {
		c.builder.MarkStatement()
		c.compileStmt(stmt)
	}
	return nil
}

// CompileExpression emits expr followed by a store into result, so a host
// can read the value of an expression after running the chain.
func (c *Compiler) CompileExpression(expr Expr, result string) error {
	stmt := &Assignment{SpanVal: expr.Span(), Name: result, Value: expr}
	return c.CompileScript(&Block{SpanVal: expr.Span(), Statements: []Stmt{stmt}})
}

// Finish patches jumps and returns the verified chain.
func (c *Compiler) Finish() (*bytecode.Chain, error) {
	return c.builder.Finish()
}

// at attaches the node's position to the instructions emitted next.
func (c *Compiler) at(n Node) {
	c.builder.SetPos(n.Span().Start.FaultPos())
}

// errorf aborts compilation. Only malformed trees reach it; the parser
// never produces them.
func (c *Compiler) errorf(n Node, format string, args ...any) {
	panic(fault.New(fault.SyntaxError, n.Span().Start.FaultPos(), format, args...))
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileBlock(block *Block) {
	for _, stmt := range block.Statements {
		c.compileStmt(stmt)
	}
}

func (c *Compiler) compileStmt(stmt Stmt) {
	switch n := stmt.(type) {
	case *Assignment:
		c.compileExpr(n.Value)
		c.at(n)
		c.builder.EmitName(bytecode.OpStore, n.Name)

	case *ExprStmt:
		c.compileExpr(n.Expr)
		c.at(n)
		c.builder.Emit(bytecode.OpPop)

	case *IfStmt:
		c.compileIf(n)

	case *WhileStmt:
		c.compileWhile(n)

	default:
		c.errorf(stmt, "cannot compile statement %T", stmt)
	}
}

// compileIf emits, per branch: cond; IFFALSE next; body; GOTO end. The
// final GOTO is left out when no else follows.
func (c *Compiler) compileIf(n *IfStmt) {
	b := c.builder
	end := b.NewLabel()
	for i, br := range n.Branches {
		next := b.NewLabel()
		c.compileExpr(br.Cond)
		c.at(br.Cond)
		b.EmitJump(bytecode.OpIfFalse, next)
		c.compileBlock(br.Body)
		if i < len(n.Branches)-1 || n.Else != nil {
			c.at(n)
			b.EmitJump(bytecode.OpGoto, end)
		}
		b.Bind(next)
	}
	if n.Else != nil {
		c.compileBlock(n.Else)
	}
	b.Bind(end)
}

// compileWhile emits: top: cond; IFFALSE end; body; GOTO top; end:
func (c *Compiler) compileWhile(n *WhileStmt) {
	b := c.builder
	top, end := b.NewLabel(), b.NewLabel()
	b.Bind(top)
	c.compileExpr(n.Cond)
	c.at(n.Cond)
	b.EmitJump(bytecode.OpIfFalse, end)
	c.compileBlock(n.Body)
	c.at(n)
	b.EmitJump(bytecode.OpGoto, top)
	b.Bind(end)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) compileExpr(expr Expr) {
	b := c.builder
	switch n := expr.(type) {
	case *IntLiteral:
		c.at(n)
		b.EmitConst(bytecode.Int(n.Value))

	case *FloatLiteral:
		c.at(n)
		b.EmitConst(bytecode.Float(n.Value))

	case *StringLiteral:
		c.at(n)
		b.EmitConst(bytecode.String(n.Value))

	case *BoolLiteral:
		c.at(n)
		b.EmitConst(bytecode.Bool(n.Value))

	case *VariableRef:
		c.at(n)
		b.EmitName(bytecode.OpValue, n.Name)

	case *UnaryOp:
		c.compileExpr(n.Operand)
		c.at(n)
		switch n.Op {
		case TokenMinus:
			b.Emit(bytecode.OpNeg)
		case TokenNot:
			b.Emit(bytecode.OpNot)
		default:
			c.errorf(n, "unknown unary operator %s", n.Op)
		}

	case *BinaryOp:
		switch n.Op {
		case TokenAnd:
			c.compileLogical(n, bytecode.OpIfFalseKeep)
		case TokenOr:
			c.compileLogical(n, bytecode.OpIfTrueKeep)
		default:
			c.compileExpr(n.Left)
			c.compileExpr(n.Right)
			c.at(n)
			c.emitBinary(n, n.Op)
		}

	case *CompareChain:
		c.compileChain(n)

	case *MemberAccess:
		c.compileExpr(n.Object)
		c.at(n)
		b.EmitName(bytecode.OpGetAttr, n.Name)

	case *Call:
		c.compileExpr(n.Callee)
		for _, arg := range n.Args {
			c.compileExpr(arg)
		}
		c.at(n)
		b.EmitCall(len(n.Args))

	default:
		c.errorf(expr, "cannot compile expression %T", expr)
	}
}

// emitBinary emits the opcode for op with the left operand below the right
// one on the stack. Opcodes that expect their left operand on top get a
// SWAP first.
func (c *Compiler) emitBinary(at Node, op TokenType) {
	code, ok := binaryOpcodes[op]
	if !ok {
		c.errorf(at, "unknown binary operator %s", op)
	}
	if bytecode.GetOpcodeInfo(code).Order == bytecode.OrderLeftOnTop {
		c.builder.Emit(bytecode.OpSwap)
	}
	c.builder.Emit(code)
}

// compileLogical emits: left; jump-keep end; POP; right; end:
func (c *Compiler) compileLogical(n *BinaryOp, jump bytecode.Opcode) {
	b := c.builder
	end := b.NewLabel()
	c.compileExpr(n.Left)
	c.at(n)
	b.EmitJump(jump, end)
	b.Emit(bytecode.OpPop)
	c.compileExpr(n.Right)
	b.Bind(end)
}

// compileChain evaluates every operand once and stops at the first false
// comparison. Each inner operand is kept under the comparison result so
// the next comparison can use it:
//
//	a; b; DUP; ROT; SWAP; op1; IFFALSE_KEEP fail; POP
//	c; op2; GOTO end
//	fail: SWAP; POP
//	end:
func (c *Compiler) compileChain(n *CompareChain) {
	if len(n.Operands) != len(n.Ops)+1 || len(n.Ops) < 2 {
		c.errorf(n, "malformed comparison chain: %d operands, %d operators", len(n.Operands), len(n.Ops))
	}
	b := c.builder
	fail, end := b.NewLabel(), b.NewLabel()

	c.compileExpr(n.Operands[0])
	last := len(n.Ops) - 1
	for i, op := range n.Ops {
		c.compileExpr(n.Operands[i+1])
		c.at(n)
		if i == last {
			c.emitBinary(n, op)
			break
		}
		// [left right] -> [right left right]
		b.Emit(bytecode.OpDup)
		b.Emit(bytecode.OpRot)
		b.Emit(bytecode.OpSwap)
		c.emitBinary(n, op)
		b.EmitJump(bytecode.OpIfFalseKeep, fail)
		b.Emit(bytecode.OpPop)
	}
	b.EmitJump(bytecode.OpGoto, end)

	// [operand false] -> [false]
	b.Bind(fail)
	b.Emit(bytecode.OpSwap)
	b.Emit(bytecode.OpPop)
	b.Bind(end)
}

// Disassemble compiles source and returns its listing.
func Disassemble(src string) (string, error) {
	chain, err := CompileSource(src)
	if err != nil {
		return "", fmt.Errorf("compiler: %w", err)
	}
	return chain.Disassemble(), nil
}
