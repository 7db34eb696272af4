package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/tale/pkg/bytecode"
)

// builtins is the callable table the CLI hosts scripts with.
func builtins(out io.Writer) *bytecode.Table {
	t := bytecode.NewTable()

	t.Register("print", func(_ context.Context, args []bytecode.Value) (bytecode.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprintln(out, strings.Join(parts, " "))
		return bytecode.Bool(true), nil
	})

	// input suspends the script; the CLI resumes it with a line of stdin.
	t.Register("input", func(_ context.Context, args []bytecode.Value) (bytecode.Value, error) {
		prompt := ""
		if len(args) > 0 {
			prompt = args[0].String()
		}
		return bytecode.Value{}, bytecode.Pause(prompt)
	})

	t.Register("len", func(_ context.Context, args []bytecode.Value) (bytecode.Value, error) {
		if len(args) != 1 {
			return bytecode.Value{}, fmt.Errorf("len takes 1 argument, got %d", len(args))
		}
		s, ok := args[0].AsString()
		if !ok {
			return bytecode.Value{}, fmt.Errorf("len needs a string, got %s", args[0].Kind())
		}
		return bytecode.Int(int64(utf8.RuneCountInString(s))), nil
	})

	t.Register("str", func(_ context.Context, args []bytecode.Value) (bytecode.Value, error) {
		if len(args) != 1 {
			return bytecode.Value{}, fmt.Errorf("str takes 1 argument, got %d", len(args))
		}
		return bytecode.String(args[0].String()), nil
	})

	t.Register("int", func(_ context.Context, args []bytecode.Value) (bytecode.Value, error) {
		if len(args) != 1 {
			return bytecode.Value{}, fmt.Errorf("int takes 1 argument, got %d", len(args))
		}
		v := args[0]
		if n, ok := v.AsInt(); ok {
			return bytecode.Int(n), nil
		}
		if f, ok := v.AsFloat(); ok {
			return bytecode.Int(int64(f)), nil
		}
		if s, ok := v.AsString(); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return bytecode.Value{}, fmt.Errorf("int: %q is not an integer", s)
			}
			return bytecode.Int(n), nil
		}
		return bytecode.Value{}, fmt.Errorf("int cannot convert %s", v.Kind())
	})

	return t
}
