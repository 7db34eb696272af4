package compiler

import (
	"testing"

	"github.com/chazu/tale/pkg/fault"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `+ - * / ( ) , . = == != < <= > >=`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenPlus, "+"},
		{TokenMinus, "-"},
		{TokenStar, "*"},
		{TokenSlash, "/"},
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenComma, ","},
		{TokenPeriod, "."},
		{TokenAssign, "="},
		{TokenEq, "=="},
		{TokenNe, "!="},
		{TokenLt, "<"},
		{TokenLe, "<="},
		{TokenGt, ">"},
		{TokenGe, ">="},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerMaximalMunch(t *testing.T) {
	tests := []struct {
		input string
		want  []TokenType
	}{
		{"a<=b", []TokenType{TokenIdentifier, TokenLe, TokenIdentifier, TokenEOF}},
		{"a==b", []TokenType{TokenIdentifier, TokenEq, TokenIdentifier, TokenEOF}},
		{"a=b", []TokenType{TokenIdentifier, TokenAssign, TokenIdentifier, TokenEOF}},
		{"a===b", []TokenType{TokenIdentifier, TokenEq, TokenAssign, TokenIdentifier, TokenEOF}},
		{"a!=b", []TokenType{TokenIdentifier, TokenNe, TokenIdentifier, TokenEOF}},
		{"a>=-b", []TokenType{TokenIdentifier, TokenGe, TokenMinus, TokenIdentifier, TokenEOF}},
	}

	for _, tc := range tests {
		toks, err := Tokenize(tc.input)
		if err != nil {
			t.Errorf("Tokenize(%q) error: %v", tc.input, err)
			continue
		}
		if len(toks) != len(tc.want) {
			t.Errorf("Tokenize(%q) = %v, want %d tokens", tc.input, toks, len(tc.want))
			continue
		}
		for i, typ := range tc.want {
			if toks[i].Type != typ {
				t.Errorf("Tokenize(%q)[%d] = %v, want %v", tc.input, i, toks[i].Type, typ)
			}
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		want  string
	}{
		{"42", TokenInteger, "42"},
		{"0", TokenInteger, "0"},
		{"3.14", TokenFloat, "3.14"},
		{"10.0", TokenFloat, "10.0"},
		{"9223372036854775807", TokenInteger, "9223372036854775807"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}

	// "5.x" is member access on an integer, not a float
	toks, err := Tokenize("5.x")
	if err != nil {
		t.Fatalf("Tokenize(5.x) error: %v", err)
	}
	if toks[0].Type != TokenInteger || toks[1].Type != TokenPeriod {
		t.Errorf("Tokenize(5.x) = %v", toks)
	}
}

func TestLexerIntegerOverflow(t *testing.T) {
	_, err := Tokenize("x = 99999999999999999999")
	if !fault.IsKind(err, fault.LexError) {
		t.Fatalf("Tokenize(overflow) error = %v, want LexError", err)
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`'hello'`, "hello"},
		{`"hello"`, "hello"},
		{`''`, ""},
		{`'it\'s'`, "it's"},
		{`"say \"hi\""`, `say "hi"`},
		{`'a\nb\tc'`, "a\nb\tc"},
		{`'back\\slash'`, `back\slash`},
		{`"it's"`, "it's"},
		{`'こんにちは'`, "こんにちは"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%q): type = %v, want STRING", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	for word, typ := range reservedWords {
		tok := NewLexer(word).NextToken()
		if tok.Type != typ {
			t.Errorf("Lexer(%q): type = %v, want %v", word, tok.Type, typ)
		}
		if tok.Type.Class() != ClassKeyword {
			t.Errorf("Lexer(%q): class = %v, want keyword", word, tok.Type.Class())
		}
	}

	tok := NewLexer("ending").NextToken()
	if tok.Type != TokenIdentifier || tok.Literal != "ending" {
		t.Errorf("Lexer(ending) = %v, want identifier", tok)
	}
}

func TestLexerTokenClasses(t *testing.T) {
	tests := []struct {
		input string
		want  TokenClass
	}{
		{"foo", ClassIdentifier},
		{"_bar2", ClassIdentifier},
		{"12", ClassInteger},
		{"1.5", ClassFloat},
		{"'s'", ClassString},
		{"<=", ClassSymbol},
		{"while", ClassKeyword},
	}
	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if got := tok.Type.Class(); got != tc.want {
			t.Errorf("Lexer(%q) class = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestLexerComments(t *testing.T) {
	input := "x = 1 # set x\n# a whole line\n\n  y = 2"
	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize error: %v", err)
	}

	want := []TokenType{
		TokenIdentifier, TokenAssign, TokenInteger, TokenNewline,
		TokenIdentifier, TokenAssign, TokenInteger, TokenEOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("Tokenize = %v, want %d tokens", toks, len(want))
	}
	for i, typ := range want {
		if toks[i].Type != typ {
			t.Errorf("token[%d] = %v, want %v", i, toks[i].Type, typ)
		}
	}
}

func TestLexerNewlinesInsideParens(t *testing.T) {
	toks, err := Tokenize("f(1,\n  2)\ng()")
	if err != nil {
		t.Fatalf("Tokenize error: %v", err)
	}
	newlines := 0
	for _, tok := range toks {
		if tok.Type == TokenNewline {
			newlines++
		}
	}
	if newlines != 1 {
		t.Errorf("Tokenize produced %d newlines, want 1: %v", newlines, toks)
	}
}

func TestLexerPositions(t *testing.T) {
	toks, err := Tokenize("x = 1\n  yy == 'é'")
	if err != nil {
		t.Fatalf("Tokenize error: %v", err)
	}

	tests := []struct {
		idx       int
		line, col int
		typ       TokenType
	}{
		{0, 1, 1, TokenIdentifier},
		{1, 1, 3, TokenAssign},
		{2, 1, 5, TokenInteger},
		{3, 1, 6, TokenNewline},
		{4, 2, 3, TokenIdentifier},
		{5, 2, 6, TokenEq},
		{6, 2, 9, TokenString},
	}
	for _, tc := range tests {
		tok := toks[tc.idx]
		if tok.Type != tc.typ || tok.Pos.Line != tc.line || tok.Pos.Column != tc.col {
			t.Errorf("token[%d] = %v at %d:%d, want %v at %d:%d",
				tc.idx, tok.Type, tok.Pos.Line, tok.Pos.Column, tc.typ, tc.line, tc.col)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		input    string
		line     int
		col      int
		needMore bool
	}{
		{"x = 1 @ 2", 1, 7, false},
		{"x = !y", 1, 5, false},
		{"x = 'abc", 1, 5, true},
		{"x = 'abc\ny = 2", 1, 5, false},
		{"\n  $", 2, 3, false},
		{`s = 'bad \q'`, 1, 10, false},
		{"caf\u00e9 = 1", 1, 4, false},
		{"e\u0301 = 1", 1, 2, false},
	}

	for _, tc := range tests {
		_, err := Tokenize(tc.input)
		f, ok := fault.As(err)
		if !ok || f.Kind != fault.LexError {
			t.Errorf("Tokenize(%q) error = %v, want LexError", tc.input, err)
			continue
		}
		if f.Pos.Line != tc.line || f.Pos.Column != tc.col {
			t.Errorf("Tokenize(%q) error at %s, want %d:%d", tc.input, f.Pos, tc.line, tc.col)
		}
		if f.More != tc.needMore {
			t.Errorf("Tokenize(%q) More = %v, want %v", tc.input, f.More, tc.needMore)
		}
	}
}

func TestLexerStopsAtFirstError(t *testing.T) {
	l := NewLexer("a @ b")
	if tok := l.NextToken(); tok.Type != TokenIdentifier {
		t.Fatalf("first token = %v", tok)
	}
	first := l.NextToken()
	if first.Type != TokenError {
		t.Fatalf("second token = %v, want ERROR", first)
	}
	for i := 0; i < 3; i++ {
		if tok := l.NextToken(); tok != first {
			t.Errorf("token after error = %v, want %v", tok, first)
		}
	}
}

func TestTokensRestartable(t *testing.T) {
	seq := Tokens("a + 1\nb")
	var first, second []Token
	for tok := range seq {
		first = append(first, tok)
	}
	for tok := range seq {
		second = append(second, tok)
	}
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("ranges produced %d and %d tokens", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("token[%d] = %v then %v", i, first[i], second[i])
		}
	}
	if first[len(first)-1].Type != TokenEOF {
		t.Errorf("last token = %v, want EOF", first[len(first)-1])
	}
}

func TestTokensEarlyBreak(t *testing.T) {
	n := 0
	for range Tokens("a b c d e") {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("loop ran %d times, want 2", n)
	}
}
