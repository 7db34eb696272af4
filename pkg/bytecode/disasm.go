package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the chain.
func (c *Chain) Disassemble() string {
	return c.DisassembleAt(-1)
}

// DisassembleAt returns a listing with a cursor marking instruction pc.
// A pc equal to the chain length marks the end of the chain; a negative pc
// draws no cursor.
func (c *Chain) DisassembleAt(pc int) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; chain %x v%d\n", c.digest[:8], ChainVersion))
	sb.WriteString(fmt.Sprintf("; instructions: %d, max stack: %d\n", len(c.code), c.maxStack))

	// Constants
	if len(c.consts) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range c.consts {
			display := v.Repr()
			if r := []rune(display); len(r) > 40 {
				display = string(r[:37]) + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %-8s %s\n", i, v.Kind(), display))
		}
	}

	// Names
	if len(c.names) > 0 {
		sb.WriteString("; Names:\n")
		for i, name := range c.names {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, name))
		}
	}
	sb.WriteString("\n")

	// Code section
	line := 0
	for i := range c.code {
		sb.WriteString(c.DisassembleInstruction(i, i == pc))
		// Source line once per change
		if p := c.Pos(i); p.Known() && p.Line != line {
			line = p.Line
			sb.WriteString(fmt.Sprintf("  ; line %d", line))
		}
		sb.WriteString("\n")
	}
	if pc == len(c.code) {
		sb.WriteString(fmt.Sprintf("> %04d  <end>\n", pc))
	}

	return sb.String()
}

// DisassembleInstruction renders the instruction at pc on one line.
func (c *Chain) DisassembleInstruction(pc int, cursor bool) string {
	marker := " "
	if cursor {
		marker = ">"
	}
	if pc < 0 || pc >= len(c.code) {
		return fmt.Sprintf("%s %04d  <end>", marker, pc)
	}
	in := c.code[pc]
	operand := c.operand(in)
	if operand == "" {
		return fmt.Sprintf("%s %04d  %s", marker, pc, in.Op)
	}
	return fmt.Sprintf("%s %04d  %-13s %s", marker, pc, in.Op, operand)
}

// Disassemble returns a listing of the machine's chain with the cursor on
// the next instruction to execute.
func (m *Machine) Disassemble() string {
	return m.chain.DisassembleAt(m.pc)
}
