package bytecode

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/chazu/tale/pkg/fault"
)

func TestDisassemble(t *testing.T) {
	c := build(t, func(b *Builder) {
		b.SetPos(fault.Pos{Line: 1, Column: 1})
		end := b.NewLabel()
		b.EmitName(OpValue, "hp")
		b.EmitConst(Int(0))
		b.Emit(OpGt)
		b.EmitJump(OpIfFalse, end)
		b.SetPos(fault.Pos{Line: 2, Column: 5})
		b.EmitConst(String("alive"))
		b.EmitName(OpStore, "status")
		b.Bind(end)
	})

	out := c.Disassemble()
	for _, want := range []string{
		"; Constants:",
		`"alive"`,
		"; Names:",
		"0000  VALUE         hp",
		"0003  IFFALSE       0006",
		"0005  STORE         status",
		"; line 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Disassemble() missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, ">") && strings.Contains(out, "> 0") {
		t.Errorf("Disassemble() drew a cursor without a pc\n%s", out)
	}
}

func TestDisassembleTruncatesLongConstants(t *testing.T) {
	long := strings.Repeat("é", 60)
	c := build(t, func(b *Builder) {
		b.EmitConst(String(long))
		b.EmitName(OpStore, "s")
	})

	out := c.Disassemble()
	if !utf8.ValidString(out) {
		t.Fatalf("Disassemble() split a rune\n%q", out)
	}
	want := `"` + strings.Repeat("é", 36) + "..."
	if !strings.Contains(out, want) {
		t.Errorf("Disassemble() missing %q\n%s", want, out)
	}
}

func TestDisassembleCursor(t *testing.T) {
	c := pausingChain(t)
	m := NewMachine(c, pausingTable(), nil)
	m.Run(context.Background())

	out := m.Disassemble()
	if !strings.Contains(out, "> 0002  CONST") {
		t.Errorf("cursor not on pc 2\n%s", out)
	}
	if got := c.DisassembleInstruction(1, false); got != "  0001  CALL          0" {
		t.Errorf("DisassembleInstruction(1) = %q", got)
	}
	if out := c.DisassembleAt(c.Len()); !strings.Contains(out, "> 0005  <end>") {
		t.Errorf("end cursor missing\n%s", out)
	}
}
