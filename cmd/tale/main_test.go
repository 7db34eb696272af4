package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/chazu/tale/engine"
	"github.com/chazu/tale/manifest"
	"github.com/chazu/tale/pkg/bytecode"
)

func newCLIEngine(t *testing.T, out *bytes.Buffer) *engine.Engine {
	t.Helper()
	eng, err := engine.New(manifest.Default(), engine.WithFuncs(builtins(out)))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestRunScriptWithInput(t *testing.T) {
	var out bytes.Buffer
	eng := newCLIEngine(t, &out)
	in := bufio.NewReader(strings.NewReader("Ada\n41\n"))

	src := `name = input("name?")
age = int(input("age?")) + 1
print("hello", name, age, len(name))`
	env, err := runScript(context.Background(), eng, in, &out, src, nil)
	if err != nil {
		t.Fatalf("runScript: %v", err)
	}
	if got := out.String(); got != "name? age? hello Ada 42 3\n" {
		t.Errorf("output = %q", got)
	}
	if v := env["age"]; !v.Identical(bytecode.Int(42)) {
		t.Errorf("age = %s, want 42", v.Repr())
	}
}

func TestRunScriptReportsFaults(t *testing.T) {
	var out bytes.Buffer
	eng := newCLIEngine(t, &out)

	_, err := runScript(context.Background(), eng, bufio.NewReader(strings.NewReader("")), &out, "x = 1\ny = nope + 1", nil)
	if err == nil {
		t.Fatal("expected a NameError")
	}
	var report bytes.Buffer
	reportError(&report, "test.tale", err)
	if !strings.HasPrefix(report.String(), "test.tale:2:5: NameError") {
		t.Errorf("report = %q", report.String())
	}

	_, err = runScript(context.Background(), eng, nil, &out, `x = "a" - 1`, nil)
	report.Reset()
	reportError(&report, "t", err)
	if !strings.Contains(report.String(), "TypeError") {
		t.Errorf("type check report = %q", report.String())
	}
}

func TestBuiltinErrors(t *testing.T) {
	var out bytes.Buffer
	eng := newCLIEngine(t, &out)
	for _, src := range []string{"x = len(1)", "x = int('abc')", "x = str(1, 2)"} {
		if _, err := runScript(context.Background(), eng, nil, &out, src, nil); err == nil {
			t.Errorf("runScript(%q) succeeded", src)
		}
	}
}

func TestREPL(t *testing.T) {
	var out bytes.Buffer
	eng := newCLIEngine(t, &out)
	input := strings.Join([]string{
		"x = (4 + 8) / 2",
		"x * 2",
		"if x == 6.0 then",
		"    y = 'six'",
		"end",
		"y",
		":env",
		"undefined_thing",
		"exit",
	}, "\n") + "\n"

	runREPL(eng, bufio.NewReader(strings.NewReader(input)), &out, map[string]bytecode.Value{"z": bytecode.Int(1)})

	got := out.String()
	for _, want := range []string{
		"12\n",
		".. ",
		`"six"` + "\n",
		"x = 6\n",
		"z = 1\n",
		"NameError",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("REPL output missing %q:\n%s", want, got)
		}
	}
}
