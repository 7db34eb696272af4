package compiler

import "github.com/chazu/tale/pkg/fault"

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for scripts
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// FaultPos converts p to the position carried by faults.
func (p Position) FaultPos() fault.Pos {
	return fault.Pos{Line: p.Line, Column: p.Column}
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BoolLiteral represents 'true' or 'false'.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// VariableRef represents a variable reference.
type VariableRef struct {
	SpanVal Span
	Name    string
}

func (n *VariableRef) Span() Span { return n.SpanVal }
func (n *VariableRef) node()      {}
func (n *VariableRef) expr()      {}

// BinaryOp represents arithmetic, a single comparison, 'and' or 'or'.
type BinaryOp struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *BinaryOp) Span() Span { return n.SpanVal }
func (n *BinaryOp) node()      {}
func (n *BinaryOp) expr()      {}

// UnaryOp represents negation (-x) or logical 'not'.
type UnaryOp struct {
	SpanVal Span
	Op      TokenType
	Operand Expr
}

func (n *UnaryOp) Span() Span { return n.SpanVal }
func (n *UnaryOp) node()      {}
func (n *UnaryOp) expr()      {}

// CompareChain represents two or more chained comparisons (a < b <= c).
// len(Operands) == len(Ops)+1; every inner operand is evaluated once.
type CompareChain struct {
	SpanVal  Span
	Operands []Expr
	Ops      []TokenType
}

func (n *CompareChain) Span() Span { return n.SpanVal }
func (n *CompareChain) node()      {}
func (n *CompareChain) expr()      {}

// MemberAccess represents attribute access on a host reference (actor.hp).
type MemberAccess struct {
	SpanVal Span
	Object  Expr
	Name    string
}

func (n *MemberAccess) Span() Span { return n.SpanVal }
func (n *MemberAccess) node()      {}
func (n *MemberAccess) expr()      {}

// Call represents a call of a callable value (f(a, b)).
type Call struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *Call) Span() Span { return n.SpanVal }
func (n *Call) node()      {}
func (n *Call) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Assignment represents a variable assignment (x = expr).
type Assignment struct {
	SpanVal Span
	Name    string
	Value   Expr
}

func (n *Assignment) Span() Span { return n.SpanVal }
func (n *Assignment) node()      {}
func (n *Assignment) stmt()      {}

// IfBranch is one condition/block pair of an if statement.
type IfBranch struct {
	Cond Expr
	Body *Block
}

// IfStmt represents if/elif/else. Branches are tested in order.
type IfStmt struct {
	SpanVal  Span
	Branches []IfBranch
	Else     *Block // nil when there is no else
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt represents a while loop.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    *Block
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// ExprStmt represents an expression evaluated for its effect.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// Block is an ordered statement list. A whole script is a Block.
type Block struct {
	SpanVal    Span
	Statements []Stmt
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}

// ---------------------------------------------------------------------------
// Visitor pattern for AST traversal
// ---------------------------------------------------------------------------

// Visitor is called for each node during traversal.
type Visitor interface {
	Visit(node Node) Visitor
}

// Walk traverses an AST in depth-first order, children in source order.
func Walk(v Visitor, node Node) {
	if node == nil {
		return
	}
	if v = v.Visit(node); v == nil {
		return
	}

	switch n := node.(type) {
	case *BinaryOp:
		Walk(v, n.Left)
		Walk(v, n.Right)
	case *UnaryOp:
		Walk(v, n.Operand)
	case *CompareChain:
		for _, op := range n.Operands {
			Walk(v, op)
		}
	case *MemberAccess:
		Walk(v, n.Object)
	case *Call:
		Walk(v, n.Callee)
		for _, arg := range n.Args {
			Walk(v, arg)
		}
	case *Assignment:
		Walk(v, n.Value)
	case *IfStmt:
		for _, br := range n.Branches {
			Walk(v, br.Cond)
			Walk(v, br.Body)
		}
		if n.Else != nil {
			Walk(v, n.Else)
		}
	case *WhileStmt:
		Walk(v, n.Cond)
		Walk(v, n.Body)
	case *ExprStmt:
		Walk(v, n.Expr)
	case *Block:
		for _, s := range n.Statements {
			Walk(v, s)
		}
	}
}

// Inspect traverses an AST calling f for each node. If f returns false the
// node's children are skipped.
func Inspect(node Node, f func(Node) bool) {
	Walk(inspector(f), node)
}

type inspector func(Node) bool

func (f inspector) Visit(node Node) Visitor {
	if f(node) {
		return f
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}
