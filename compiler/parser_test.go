package compiler

import (
	"strings"
	"testing"

	"github.com/chazu/tale/pkg/fault"
)

func mustParse(t *testing.T, src string) *Block {
	t.Helper()
	block, err := ParseScript(src)
	if err != nil {
		t.Fatalf("ParseScript(%q) error: %v", src, err)
	}
	return block
}

func mustParseExpr(t *testing.T, src string) Expr {
	t.Helper()
	expr, err := ParseExpr(src)
	if err != nil {
		t.Fatalf("ParseExpr(%q) error: %v", src, err)
	}
	return expr
}

func TestParseLiterals(t *testing.T) {
	if lit, ok := mustParseExpr(t, "42").(*IntLiteral); !ok || lit.Value != 42 {
		t.Errorf("ParseExpr(42) = %#v", lit)
	}
	if lit, ok := mustParseExpr(t, "2.5").(*FloatLiteral); !ok || lit.Value != 2.5 {
		t.Errorf("ParseExpr(2.5) = %#v", lit)
	}
	if lit, ok := mustParseExpr(t, "'hi'").(*StringLiteral); !ok || lit.Value != "hi" {
		t.Errorf("ParseExpr('hi') = %#v", lit)
	}
	if lit, ok := mustParseExpr(t, "false").(*BoolLiteral); !ok || lit.Value {
		t.Errorf("ParseExpr(false) = %#v", lit)
	}
	if v, ok := mustParseExpr(t, "hp").(*VariableRef); !ok || v.Name != "hp" {
		t.Errorf("ParseExpr(hp) = %#v", v)
	}
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string // fully parenthesized rendering
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
		{"8 / 4 / 2", "((8 / 4) / 2)"},
		{"-a * b", "((-a) * b)"},
		{"a or b and c", "(a or (b and c))"},
		{"not a and b", "((not a) and b)"},
		{"not a == b", "(not (a == b))"},
		{"a == b or c != d", "((a == b) or (c != d))"},
		{"a + b < c * d", "((a + b) < (c * d))"},
		{"f(x)(y)", "f(x)(y)"},
		{"actor.room.name", "actor.room.name"},
		{"-actor.hp", "(-actor.hp)"},
		{"1 + not x", "(1 + (not x))"},
	}

	for _, tc := range tests {
		got := sexpr(mustParseExpr(t, tc.input))
		if got != tc.want {
			t.Errorf("ParseExpr(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

// sexpr renders an expression with explicit grouping for tests.
func sexpr(e Expr) string {
	switch n := e.(type) {
	case *BinaryOp:
		return "(" + sexpr(n.Left) + " " + n.Op.String() + " " + sexpr(n.Right) + ")"
	case *UnaryOp:
		if n.Op == TokenNot {
			return "(not " + sexpr(n.Operand) + ")"
		}
		return "(-" + sexpr(n.Operand) + ")"
	case *CompareChain:
		parts := []string{sexpr(n.Operands[0])}
		for i, op := range n.Ops {
			parts = append(parts, op.String(), sexpr(n.Operands[i+1]))
		}
		return "[" + strings.Join(parts, " ") + "]"
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = sexpr(a)
		}
		return sexpr(n.Callee) + "(" + strings.Join(args, ", ") + ")"
	case *MemberAccess:
		return sexpr(n.Object) + "." + n.Name
	}
	return renderExpr(e)
}

func TestParseCompareChain(t *testing.T) {
	expr := mustParseExpr(t, "0 < result <= 100")
	chain, ok := expr.(*CompareChain)
	if !ok {
		t.Fatalf("ParseExpr = %T, want *CompareChain", expr)
	}
	if len(chain.Operands) != 3 || len(chain.Ops) != 2 {
		t.Fatalf("chain has %d operands, %d ops", len(chain.Operands), len(chain.Ops))
	}
	if chain.Ops[0] != TokenLt || chain.Ops[1] != TokenLe {
		t.Errorf("chain ops = %v", chain.Ops)
	}
	if v, ok := chain.Operands[1].(*VariableRef); !ok || v.Name != "result" {
		t.Errorf("middle operand = %#v", chain.Operands[1])
	}

	// a single comparison stays a BinaryOp
	if _, ok := mustParseExpr(t, "a < b").(*BinaryOp); !ok {
		t.Error("ParseExpr(a < b) is not a BinaryOp")
	}
	// parentheses break a chain
	if _, ok := mustParseExpr(t, "(a < b) == c").(*BinaryOp); !ok {
		t.Error("ParseExpr((a < b) == c) is not a BinaryOp")
	}
}

func TestParseCall(t *testing.T) {
	call, ok := mustParseExpr(t, "say(actor, 'hello', 1 + 2)").(*Call)
	if !ok {
		t.Fatal("not a call")
	}
	if len(call.Args) != 3 {
		t.Errorf("call has %d args, want 3", len(call.Args))
	}
	if v, ok := call.Callee.(*VariableRef); !ok || v.Name != "say" {
		t.Errorf("callee = %#v", call.Callee)
	}

	empty, ok := mustParseExpr(t, "wait()").(*Call)
	if !ok || len(empty.Args) != 0 {
		t.Errorf("wait() = %#v", empty)
	}

	multi := mustParseExpr(t, "f(1,\n  2)")
	if c, ok := multi.(*Call); !ok || len(c.Args) != 2 {
		t.Errorf("multi-line call = %#v", multi)
	}
}

func TestParseStatements(t *testing.T) {
	src := `
# setup
x = 1
y = x + 2

say(y)
`
	block := mustParse(t, src)
	if len(block.Statements) != 3 {
		t.Fatalf("got %d statements, want 3", len(block.Statements))
	}
	if a, ok := block.Statements[0].(*Assignment); !ok || a.Name != "x" {
		t.Errorf("stmt[0] = %#v", block.Statements[0])
	}
	if _, ok := block.Statements[2].(*ExprStmt); !ok {
		t.Errorf("stmt[2] = %T, want *ExprStmt", block.Statements[2])
	}
	if pos := block.Statements[1].Span().Start; pos.Line != 4 || pos.Column != 1 {
		t.Errorf("stmt[1] starts at %d:%d, want 4:1", pos.Line, pos.Column)
	}
}

func TestParseIf(t *testing.T) {
	src := `if result == 6.0 then
    result = 32
elif result > 10 then
    result = 40
else
    result = 50
end`
	block := mustParse(t, src)
	stmt, ok := block.Statements[0].(*IfStmt)
	if !ok {
		t.Fatalf("stmt = %T, want *IfStmt", block.Statements[0])
	}
	if len(stmt.Branches) != 2 {
		t.Errorf("got %d branches, want 2", len(stmt.Branches))
	}
	if stmt.Else == nil || len(stmt.Else.Statements) != 1 {
		t.Errorf("else = %#v", stmt.Else)
	}

	oneLine := mustParse(t, "if a then b = 1 end")
	if s, ok := oneLine.Statements[0].(*IfStmt); !ok || s.Else != nil || len(s.Branches[0].Body.Statements) != 1 {
		t.Errorf("one-line if = %#v", oneLine.Statements[0])
	}

	nested := mustParse(t, "if a then\n if b then\n c = 1\n end\nend")
	outer := nested.Statements[0].(*IfStmt)
	if _, ok := outer.Branches[0].Body.Statements[0].(*IfStmt); !ok {
		t.Error("nested if not parsed")
	}

	empty := mustParse(t, "if a then\nend")
	if s := empty.Statements[0].(*IfStmt); len(s.Branches[0].Body.Statements) != 0 {
		t.Error("empty then-block has statements")
	}
}

func TestParseWhile(t *testing.T) {
	block := mustParse(t, "while i < 10 do\n  i = i + 1\nend")
	w, ok := block.Statements[0].(*WhileStmt)
	if !ok {
		t.Fatalf("stmt = %T, want *WhileStmt", block.Statements[0])
	}
	if len(w.Body.Statements) != 1 {
		t.Errorf("body has %d statements", len(w.Body.Statements))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input    string
		contains string
		needMore bool
	}{
		{"x = ", "expected expression", true},
		{"x = 1 +", "expected expression", true},
		{"x = (1 + 2", "')'", true},
		{"if x then\n y = 1", "'end'", true},
		{"if x\n y = 1\nend", "'then'", false},
		{"while x\n end", "'do'", false},
		{"x = 1 2", "end of line", false},
		{"1 + 2 = 3", "cannot assign", false},
		{"x = )", "expected expression", false},
		{"f(1 2)", "')'", false},
		{"a.1", "identifier", false},
		{"end", "expected expression", false},
		{"x = 'open", "unterminated string", true},
	}

	for _, tc := range tests {
		_, err := ParseScript(tc.input)
		f, ok := fault.As(err)
		if !ok {
			t.Errorf("ParseScript(%q) error = %v, want fault", tc.input, err)
			continue
		}
		if f.Kind != fault.SyntaxError && f.Kind != fault.LexError {
			t.Errorf("ParseScript(%q) kind = %v", tc.input, f.Kind)
		}
		if !strings.Contains(f.Message, tc.contains) {
			t.Errorf("ParseScript(%q) message = %q, want it to contain %q", tc.input, f.Message, tc.contains)
		}
		if f.More != tc.needMore {
			t.Errorf("ParseScript(%q) More = %v, want %v", tc.input, f.More, tc.needMore)
		}
		if f.PC != fault.NoPC {
			t.Errorf("ParseScript(%q) PC = %d, want NoPC", tc.input, f.PC)
		}
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := ParseScript("x = 1\ny = * 2")
	f, ok := fault.As(err)
	if !ok {
		t.Fatalf("error = %v", err)
	}
	if f.Pos.Line != 2 || f.Pos.Column != 5 {
		t.Errorf("error at %s, want 2:5", f.Pos)
	}
	if !strings.Contains(f.Message, `"*"`) {
		t.Errorf("message %q does not name the offending token", f.Message)
	}
}

func TestParseExprTrailing(t *testing.T) {
	if _, err := ParseExpr("1 + 2\n"); err != nil {
		t.Errorf("ParseExpr with trailing newline: %v", err)
	}
	if _, err := ParseExpr("1 + 2 3"); err == nil {
		t.Error("ParseExpr(1 + 2 3) succeeded")
	}
}

func TestParseLeadingLexError(t *testing.T) {
	_, err := ParseScript("@")
	if !fault.IsKind(err, fault.LexError) {
		t.Errorf("ParseScript(@) error = %v, want LexError", err)
	}
}

func TestInspectVisitsInSourceOrder(t *testing.T) {
	block := mustParse(t, "a = f(b, c.d)\nif e then g = h end")
	var names []string
	Inspect(block, func(n Node) bool {
		switch v := n.(type) {
		case *VariableRef:
			names = append(names, v.Name)
		case *Assignment:
			names = append(names, v.Name+"=")
		}
		return true
	})
	want := "a= f b c e g= h"
	if got := strings.Join(names, " "); got != want {
		t.Errorf("Inspect order = %q, want %q", got, want)
	}
}
