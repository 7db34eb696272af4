package compiler

import (
	"fmt"

	"github.com/chazu/tale/pkg/bytecode"
	"github.com/chazu/tale/pkg/fault"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: optional static kind checking
// ---------------------------------------------------------------------------

// Kind is the statically inferred kind of an expression.
type Kind int

const (
	KindUnknown Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
)

var kindNames = [...]string{"unknown", "int", "float", "string", "bool"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Known reports whether the kind was inferred.
func (k Kind) Known() bool { return k != KindUnknown }

func (k Kind) numeric() bool { return k == KindInt || k == KindFloat }

// category groups kinds that may be compared with each other.
func (k Kind) category() Kind {
	if k == KindFloat {
		return KindInt
	}
	return k
}

// KindOf returns the static kind of a runtime value. Refs and callables
// are unknown to the checker.
func KindOf(v bytecode.Value) Kind {
	switch v.Kind() {
	case bytecode.KindInt:
		return KindInt
	case bytecode.KindFloat:
		return KindFloat
	case bytecode.KindString:
		return KindString
	case bytecode.KindBool:
		return KindBool
	}
	return KindUnknown
}

// SemanticAnalyzer infers kinds flow-sensitively and reports operations
// that are certain to fail at runtime. Anything it cannot prove is left to
// the runtime checks.
type SemanticAnalyzer struct {
	faults []*fault.Fault
	env    map[string]Kind
	quiet  int // >0 while diagnostics are suppressed
}

// NewSemanticAnalyzer creates an analyzer seeded with known variable kinds.
func NewSemanticAnalyzer(known map[string]Kind) *SemanticAnalyzer {
	env := make(map[string]Kind, len(known))
	for name, k := range known {
		if k.Known() {
			env[name] = k
		}
	}
	return &SemanticAnalyzer{env: env}
}

// Check runs the analyzer over a script and returns its diagnostics, all
// of kind TypeError. A nil result means nothing was provably wrong.
func Check(block *Block, known map[string]Kind) []*fault.Fault {
	s := NewSemanticAnalyzer(known)
	s.AnalyzeBlock(block)
	return s.Faults()
}

// Faults returns accumulated diagnostics.
func (s *SemanticAnalyzer) Faults() []*fault.Fault {
	return s.faults
}

// errorAt records a diagnostic at the node's start position.
func (s *SemanticAnalyzer) errorAt(node Node, format string, args ...any) {
	if s.quiet > 0 {
		return
	}
	s.faults = append(s.faults, fault.New(fault.TypeError, node.Span().Start.FaultPos(), format, args...))
}

// AnalyzeBlock analyzes statements in order.
func (s *SemanticAnalyzer) AnalyzeBlock(block *Block) {
	for _, stmt := range block.Statements {
		s.analyzeStmt(stmt)
	}
}

func (s *SemanticAnalyzer) analyzeStmt(stmt Stmt) {
	switch n := stmt.(type) {
	case *Assignment:
		s.assign(n.Name, s.infer(n.Value))
	case *ExprStmt:
		s.infer(n.Expr)
	case *IfStmt:
		s.analyzeIf(n)
	case *WhileStmt:
		s.analyzeWhile(n)
	}
}

func (s *SemanticAnalyzer) assign(name string, k Kind) {
	if k.Known() {
		s.env[name] = k
	} else {
		delete(s.env, name)
	}
}

func (s *SemanticAnalyzer) checkCondition(cond Expr) {
	if k := s.infer(cond); k.Known() && k != KindBool {
		s.errorAt(cond, "condition must be bool, got %s", k)
	}
}

// analyzeIf checks every branch from the same starting environment and
// merges the results. Without an else, falling through is one more path.
func (s *SemanticAnalyzer) analyzeIf(n *IfStmt) {
	var paths []map[string]Kind
	for _, br := range n.Branches {
		s.checkCondition(br.Cond)
		saved := s.env
		s.env = copyEnv(saved)
		s.AnalyzeBlock(br.Body)
		paths = append(paths, s.env)
		s.env = saved
	}
	if n.Else != nil {
		saved := s.env
		s.env = copyEnv(saved)
		s.AnalyzeBlock(n.Else)
		paths = append(paths, s.env)
		s.env = saved
	} else {
		paths = append(paths, s.env)
	}
	s.env = mergeEnvs(paths...)
}

// analyzeWhile widens the environment until the body no longer changes
// it, then checks the loop once against that environment.
func (s *SemanticAnalyzer) analyzeWhile(n *WhileStmt) {
	s.quiet++
	for {
		entry := s.env
		s.env = copyEnv(entry)
		s.infer(n.Cond)
		s.AnalyzeBlock(n.Body)
		merged := mergeEnvs(entry, s.env)
		s.env = merged
		if sameEnv(merged, entry) {
			break
		}
	}
	s.quiet--

	entry := s.env
	s.checkCondition(n.Cond)
	s.env = copyEnv(entry)
	s.AnalyzeBlock(n.Body)
	s.env = entry
}

// infer returns the kind of e, reporting provable errors along the way.
func (s *SemanticAnalyzer) infer(e Expr) Kind {
	switch n := e.(type) {
	case *IntLiteral:
		return KindInt
	case *FloatLiteral:
		return KindFloat
	case *StringLiteral:
		return KindString
	case *BoolLiteral:
		return KindBool
	case *VariableRef:
		return s.env[n.Name]

	case *UnaryOp:
		k := s.infer(n.Operand)
		if n.Op == TokenNot {
			if k.Known() && k != KindBool {
				s.errorAt(n, "'not' needs a bool, got %s", k)
			}
			return KindBool
		}
		if k.Known() && !k.numeric() {
			s.errorAt(n, "cannot negate %s", k)
			return KindUnknown
		}
		return k

	case *BinaryOp:
		switch {
		case n.Op == TokenAnd || n.Op == TokenOr:
			return s.inferLogical(n)
		case n.Op.IsComparison():
			s.checkComparison(n, n.Op, s.infer(n.Left), s.infer(n.Right))
			return KindBool
		}
		return s.inferArith(n)

	case *CompareChain:
		kinds := make([]Kind, len(n.Operands))
		for i, op := range n.Operands {
			kinds[i] = s.infer(op)
		}
		for i, op := range n.Ops {
			s.checkComparison(n.Operands[i+1], op, kinds[i], kinds[i+1])
		}
		return KindBool

	case *MemberAccess:
		if k := s.infer(n.Object); k.Known() {
			s.errorAt(n, "%s has no attribute %s", k, n.Name)
		}
		return KindUnknown

	case *Call:
		if k := s.infer(n.Callee); k.Known() {
			s.errorAt(n, "%s is not callable", k)
		}
		for _, arg := range n.Args {
			s.infer(arg)
		}
		return KindUnknown
	}
	return KindUnknown
}

func (s *SemanticAnalyzer) inferArith(n *BinaryOp) Kind {
	l, r := s.infer(n.Left), s.infer(n.Right)

	if n.Op == TokenPlus {
		switch {
		case l == KindString && r == KindString:
			return KindString
		case l == KindBool || r == KindBool,
			l == KindString && r.numeric(),
			l.numeric() && r == KindString:
			s.errorAt(n, "unsupported operand kinds for +: %s and %s", l, r)
			return KindUnknown
		}
	} else if (l.Known() && !l.numeric()) || (r.Known() && !r.numeric()) {
		s.errorAt(n, "unsupported operand kinds for %s: %s and %s", n.Op, l, r)
		return KindUnknown
	}

	switch {
	case !l.numeric() || !r.numeric():
		return KindUnknown
	case l == KindFloat || r == KindFloat:
		return KindFloat
	case n.Op == TokenSlash:
		// exact quotients stay int
		return KindUnknown
	}
	return KindInt
}

func (s *SemanticAnalyzer) inferLogical(n *BinaryOp) Kind {
	l := s.infer(n.Left)
	if l.Known() && l != KindBool {
		s.errorAt(n.Left, "'%s' needs a bool on its left, got %s", n.Op, l)
	}
	// the right side of 'false and ...' or 'true or ...' never runs
	if b, ok := n.Left.(*BoolLiteral); ok && b.Value == (n.Op == TokenOr) {
		s.quiet++
		defer func() { s.quiet-- }()
	}
	if r := s.infer(n.Right); r == KindBool {
		return KindBool
	}
	return KindUnknown
}

func (s *SemanticAnalyzer) checkComparison(at Node, op TokenType, l, r Kind) {
	if op == TokenEq || op == TokenNe {
		if l.Known() && r.Known() && l.category() != r.category() {
			s.errorAt(at, "cannot compare %s %s %s", l, op, r)
		}
		return
	}
	switch {
	case l == KindBool || r == KindBool:
		s.errorAt(at, "cannot order bool values with %s", op)
	case l.Known() && r.Known() && l.category() != r.category():
		s.errorAt(at, "cannot compare %s %s %s", l, op, r)
	}
}

// Environment helpers

func copyEnv(env map[string]Kind) map[string]Kind {
	out := make(map[string]Kind, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// mergeEnvs keeps a variable's kind only when every path agrees on it.
func mergeEnvs(paths ...map[string]Kind) map[string]Kind {
	out := make(map[string]Kind)
	if len(paths) == 0 {
		return out
	}
	for name, k := range paths[0] {
		agree := true
		for _, p := range paths[1:] {
			if p[name] != k {
				agree = false
				break
			}
		}
		if agree {
			out[name] = k
		}
	}
	return out
}

func sameEnv(a, b map[string]Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
