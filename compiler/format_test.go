package compiler

import (
	"slices"
	"testing"

	"github.com/chazu/tale/pkg/bytecode"
)

func TestFormatExpressions(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1+2*3", "1 + 2 * 3"},
		{"(1+2)*3", "(1 + 2) * 3"},
		{"1-(2-3)", "1 - (2 - 3)"},
		{"(1-2)-3", "1 - 2 - 3"},
		{"-(a+b)", "-(a + b)"},
		{"- -a", "--a"},
		{"not(a and b)", "not (a and b)"},
		{"(not a) and b", "not a and b"},
		{"(not a) == b", "(not a) == b"},
		{"(a < b) == c", "(a < b) == c"},
		{"a<b<=c", "a < b <= c"},
		{"f( x ,y )( z )", "f(x, y)(z)"},
		{"(a.b).c", "a.b.c"},
		{"(a + b).c", "(a + b).c"},
		{"3.0", "3.0"},
		{"'it\\'s'", `"it's"`},
		{`"tab\there"`, `"tab\there"`},
		{"1 + (not x)", "1 + (not x)"},
		{"(a or b) and c", "(a or b) and c"},
	}

	for _, tc := range tests {
		got := Format(mustParseExpr(t, tc.input))
		if got != tc.want {
			t.Errorf("Format(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestFormatScript(t *testing.T) {
	src := `x=1 # start
if x==1 then
y = f(x,2)
elif x>1 then
  while x<10 do
 x = x+1
  end
else
  y = "none"
end`
	want := `x = 1
if x == 1 then
    y = f(x, 2)
elif x > 1 then
    while x < 10 do
        x = x + 1
    end
else
    y = "none"
end
`
	if got := Format(mustParse(t, src)); got != want {
		t.Errorf("Format() =\n%s\nwant\n%s", got, want)
	}
}

// TestFormatRoundTrip checks that formatting is a fixpoint and that the
// formatted source compiles to the same chain as the original.
func TestFormatRoundTrip(t *testing.T) {
	sources := []string{
		"r = (4 + 8) / 2",
		"r = 0 < result <= 100",
		"r = not a == b or c and -d * (e - f) / g",
		"if result == 6.0 then result = 32 else result = 50 end",
		"say(actor.name, \"hi\\n\", 1.25)\nx = ((a))",
		"while i < 3 do\ni = i + 1\nif i == 2 then\nbreak_ = true\nend\nend",
		"a = 1 - -1\nb = (a < 2) == true",
		"r = f(g(h(1)), (2 + 3).x)",
	}

	for _, src := range sources {
		original := mustParse(t, src)
		formatted := Format(original)
		reparsed := mustParse(t, formatted)
		if again := Format(reparsed); again != formatted {
			t.Errorf("Format is not a fixpoint for %q:\n%s\n---\n%s", src, formatted, again)
		}

		c1, err := Compile(original)
		if err != nil {
			t.Fatalf("Compile(%q): %v", src, err)
		}
		c2, err := Compile(reparsed)
		if err != nil {
			t.Fatalf("Compile(formatted %q): %v", formatted, err)
		}
		// positions differ between the two sources; code and pools must not
		if !slices.Equal(c1.Instructions(), c2.Instructions()) {
			t.Errorf("round trip of %q changed the code", src)
		}
		if !slices.EqualFunc(c1.Constants(), c2.Constants(), bytecode.Value.Identical) {
			t.Errorf("round trip of %q changed the constants", src)
		}
		if !slices.Equal(c1.Names(), c2.Names()) {
			t.Errorf("round trip of %q changed the names", src)
		}
	}
}
