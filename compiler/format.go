package compiler

import (
	"strconv"
	"strings"

	"github.com/chazu/tale/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Formatter: AST back to canonical source
// ---------------------------------------------------------------------------

// Expression precedence, lowest first.
const (
	precLowest = iota
	precOr
	precAnd
	precNot
	precCompare
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
	precPrimary
)

const indentUnit = "    "

// Format renders a node as canonical source. Blocks render one statement
// per line with a trailing newline; expressions render on one line with
// the minimum parentheses needed to reparse to the same tree.
func Format(node Node) string {
	f := &formatter{}
	switch n := node.(type) {
	case *Block:
		f.block(n, 0)
	case Stmt:
		f.stmt(n, 0)
	case Expr:
		f.sb.WriteString(formatExpr(n, precLowest))
	}
	return f.sb.String()
}

type formatter struct {
	sb strings.Builder
}

func (f *formatter) line(indent int, s string) {
	f.sb.WriteString(strings.Repeat(indentUnit, indent))
	f.sb.WriteString(s)
	f.sb.WriteByte('\n')
}

func (f *formatter) block(b *Block, indent int) {
	for _, s := range b.Statements {
		f.stmt(s, indent)
	}
}

func (f *formatter) stmt(s Stmt, indent int) {
	switch n := s.(type) {
	case *Assignment:
		f.line(indent, n.Name+" = "+formatExpr(n.Value, precLowest))
	case *ExprStmt:
		f.line(indent, formatExpr(n.Expr, precLowest))
	case *IfStmt:
		for i, br := range n.Branches {
			kw := "if "
			if i > 0 {
				kw = "elif "
			}
			f.line(indent, kw+formatExpr(br.Cond, precLowest)+" then")
			f.block(br.Body, indent+1)
		}
		if n.Else != nil {
			f.line(indent, "else")
			f.block(n.Else, indent+1)
		}
		f.line(indent, "end")
	case *WhileStmt:
		f.line(indent, "while "+formatExpr(n.Cond, precLowest)+" do")
		f.block(n.Body, indent+1)
		f.line(indent, "end")
	}
}

// precedenceOf returns the binding strength of an expression.
func precedenceOf(e Expr) int {
	switch n := e.(type) {
	case *BinaryOp:
		return binaryPrecedence(n.Op)
	case *UnaryOp:
		if n.Op == TokenNot {
			return precNot
		}
		return precUnary
	case *CompareChain:
		return precCompare
	case *Call, *MemberAccess:
		return precPostfix
	}
	return precPrimary
}

func binaryPrecedence(op TokenType) int {
	switch {
	case op == TokenOr:
		return precOr
	case op == TokenAnd:
		return precAnd
	case op.IsComparison():
		return precCompare
	case op == TokenPlus || op == TokenMinus:
		return precAdditive
	}
	return precMultiplicative
}

// formatExpr renders e, parenthesized when it binds looser than min.
func formatExpr(e Expr, min int) string {
	s := renderExpr(e)
	if precedenceOf(e) < min {
		return "(" + s + ")"
	}
	return s
}

func renderExpr(e Expr) string {
	switch n := e.(type) {
	case *IntLiteral:
		return strconv.FormatInt(n.Value, 10)
	case *FloatLiteral:
		return bytecode.FormatFloat(n.Value)
	case *StringLiteral:
		return QuoteString(n.Value)
	case *BoolLiteral:
		return strconv.FormatBool(n.Value)
	case *VariableRef:
		return n.Name

	case *BinaryOp:
		p := binaryPrecedence(n.Op)
		left, right := p, p+1
		if n.Op.IsComparison() {
			// a nested comparison would reparse as a chain
			left = p + 1
		}
		return formatExpr(n.Left, left) + " " + n.Op.String() + " " + formatExpr(n.Right, right)

	case *UnaryOp:
		if n.Op == TokenNot {
			return "not " + formatExpr(n.Operand, precNot)
		}
		return "-" + formatExpr(n.Operand, precUnary)

	case *CompareChain:
		var sb strings.Builder
		sb.WriteString(formatExpr(n.Operands[0], precCompare+1))
		for i, op := range n.Ops {
			sb.WriteString(" " + op.String() + " ")
			sb.WriteString(formatExpr(n.Operands[i+1], precCompare+1))
		}
		return sb.String()

	case *MemberAccess:
		return formatExpr(n.Object, precPostfix) + "." + n.Name

	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = formatExpr(a, precLowest)
		}
		return formatExpr(n.Callee, precPostfix) + "(" + strings.Join(args, ", ") + ")"
	}
	return ""
}

// QuoteString renders s as a double-quoted literal using only the escapes
// the lexer understands.
func QuoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
