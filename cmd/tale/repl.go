package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/chazu/tale/compiler"
	"github.com/chazu/tale/engine"
	"github.com/chazu/tale/pkg/bytecode"
	"github.com/chazu/tale/pkg/fault"
)

// repl keeps the variables of earlier inputs alive across lines.
type repl struct {
	eng *engine.Engine
	in  *bufio.Reader
	out io.Writer
	env map[string]bytecode.Value
}

func runREPL(eng *engine.Engine, in *bufio.Reader, out io.Writer, bindings map[string]bytecode.Value) {
	r := &repl{eng: eng, in: in, out: out, env: maps.Clone(bindings)}
	if r.env == nil {
		r.env = make(map[string]bytecode.Value)
	}
	fmt.Fprintln(out, "Tale REPL (type 'exit' to quit, ':help' for commands)")
	fmt.Fprintln(out)

	var buf strings.Builder
	for {
		// Show prompt
		if buf.Len() == 0 {
			fmt.Fprint(out, ">> ")
		} else {
			fmt.Fprint(out, ".. ")
		}

		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			break
		}
		line = strings.TrimRight(line, "\r\n")

		if buf.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "exit" || trimmed == "quit" {
				break
			}
			if strings.HasPrefix(trimmed, ":") {
				r.command(trimmed)
				continue
			}
		}

		// Empty line forces evaluation of accumulated input
		if line == "" && buf.Len() > 0 {
			r.eval(buf.String())
			buf.Reset()
			continue
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)

		// Keep reading while the input ends inside an open construct
		if _, err := compiler.ParseScript(buf.String()); fault.NeedsMore(err) {
			continue
		}
		r.eval(buf.String())
		buf.Reset()
	}

	fmt.Fprintln(out)
}

// command handles REPL meta-commands
func (r *repl) command(cmd string) {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(r.out, "REPL Commands:")
		fmt.Fprintln(r.out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(r.out, "  :env              Show variables")
		fmt.Fprintln(r.out, "  :reset            Clear variables")
		fmt.Fprintln(r.out, "  :dis <source>     Disassemble source")
		fmt.Fprintln(r.out, "  :check <source>   Type check source")
		fmt.Fprintln(r.out, "  :cache            Show compile cache statistics")
		fmt.Fprintln(r.out, "  exit, quit        Exit REPL")
	case ":env":
		printEnv(r.out, r.env)
	case ":reset":
		clear(r.env)
	case ":dis":
		listing, err := compiler.Disassemble(strings.TrimSpace(strings.TrimPrefix(cmd, fields[0])))
		if err != nil {
			reportError(r.out, "<repl>", err)
			return
		}
		fmt.Fprint(r.out, listing)
	case ":check":
		diags, err := r.eng.Check(strings.TrimSpace(strings.TrimPrefix(cmd, fields[0])))
		switch {
		case err != nil:
			reportError(r.out, "<repl>", err)
		case len(diags) > 0:
			reportError(r.out, "<repl>", diags)
		default:
			fmt.Fprintln(r.out, "ok")
		}
	case ":cache":
		st := r.eng.Cache().Stats()
		fmt.Fprintf(r.out, "entries %d/%d, hits %d, misses %d, compiles %d, coalesced %d, evictions %d\n",
			st.Entries, st.Capacity, st.Hits, st.Misses, st.Compiles, st.Coalesced, st.Evictions)
	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

// eval runs one input. A lone expression is echoed; statements update the
// environment.
func (r *repl) eval(src string) {
	ctx := context.Background()
	if strings.TrimSpace(src) == "" {
		return
	}

	block, err := compiler.ParseScript(src)
	if err != nil {
		reportError(r.out, "<repl>", err)
		return
	}
	if len(block.Statements) == 1 {
		if es, ok := block.Statements[0].(*compiler.ExprStmt); ok {
			r.echo(ctx, es.Expr)
			return
		}
	}

	env, err := runScript(ctx, r.eng, r.in, r.out, src, r.env)
	if err != nil {
		reportError(r.out, "<repl>", err)
		return
	}
	r.env = env
}

// echo evaluates a single expression into a scratch variable and prints it.
func (r *repl) echo(ctx context.Context, expr compiler.Expr) {
	const result = "_"

	c := compiler.NewCompiler()
	if err := c.CompileExpression(expr, result); err != nil {
		reportError(r.out, "<repl>", err)
		return
	}
	chain, err := c.Finish()
	if err != nil {
		reportError(r.out, "<repl>", err)
		return
	}

	m := bytecode.NewMachine(chain, r.eng.Funcs(), r.env)
	if _, err := m.Run(ctx); err != nil {
		reportError(r.out, "<repl>", err)
		return
	}
	if err := drive(ctx, m, r.in, r.out); err != nil {
		reportError(r.out, "<repl>", err)
		return
	}
	if v, ok := m.Lookup(result); ok {
		fmt.Fprintln(r.out, v.Repr())
		r.env[result] = v
	}
}
