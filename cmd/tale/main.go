// Tale CLI - runs, checks, formats and disassembles tale scripts
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/tale/compiler"
	"github.com/chazu/tale/engine"
	"github.com/chazu/tale/manifest"
	"github.com/chazu/tale/pkg/bytecode"
	"github.com/chazu/tale/pkg/fault"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (info logging)")
	debug := flag.Bool("debug", false, "Debug logging")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	evalSrc := flag.String("e", "", "Run the given source instead of a file")
	configPath := flag.String("c", "", "Path to tale.toml (default: search upward from the current directory)")
	disasm := flag.Bool("disasm", false, "Print the compiled chain instead of running")
	format := flag.Bool("fmt", false, "Print the canonically formatted source instead of running")
	check := flag.Bool("check", false, "Type check only; exit 1 on diagnostics")
	trace := flag.Bool("trace", false, "Trace executed instructions to stderr")
	showEnv := flag.Bool("env", false, "Print the final variables after a run")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tale [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a tale script. With no file and no -e, starts the REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tale script.tale             # Run a script\n")
		fmt.Fprintf(os.Stderr, "  tale -e 'print((4 + 8) / 2)' # Run inline source\n")
		fmt.Fprintf(os.Stderr, "  tale -disasm script.tale     # Show bytecode\n")
		fmt.Fprintf(os.Stderr, "  tale -fmt script.tale        # Reformat\n")
		fmt.Fprintf(os.Stderr, "  tale -check script.tale      # Type check\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	configureLogging(cfg, *verbose, *debug)

	src, name, err := readSource(*evalSrc, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Formatting and disassembly need no engine
	switch {
	case *format && src != "":
		block, err := compiler.ParseScript(src)
		if err != nil {
			reportError(os.Stderr, name, err)
			os.Exit(1)
		}
		fmt.Print(compiler.Format(block))
		return
	case *disasm && src != "":
		listing, err := compiler.Disassemble(src)
		if err != nil {
			reportError(os.Stderr, name, err)
			os.Exit(1)
		}
		fmt.Print(listing)
		return
	}

	in := bufio.NewReader(os.Stdin)
	var opts []engine.Option
	opts = append(opts, engine.WithFuncs(builtins(os.Stdout)))
	if *trace {
		opts = append(opts, engine.WithMachineOptions(bytecode.WithTrace(os.Stderr)))
	}
	eng, err := engine.New(*cfg, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	if *check && src != "" {
		diags, err := eng.Check(src)
		if err != nil {
			reportError(os.Stderr, name, err)
			os.Exit(1)
		}
		if len(diags) > 0 {
			reportError(os.Stderr, name, diags)
			os.Exit(1)
		}
		return
	}

	if *interactive || src == "" {
		bindings, _ := cfg.InitialBindings()
		runREPL(eng, in, os.Stdout, bindings)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bindings, err := cfg.InitialBindings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	env, err := runScript(ctx, eng, in, os.Stdout, src, bindings)
	if err != nil {
		reportError(os.Stderr, name, err)
		os.Exit(1)
	}
	if *showEnv {
		printEnv(os.Stdout, env)
	}
}

// loadConfig reads the -c file, or the nearest tale.toml, or defaults.
func loadConfig(path string) (*manifest.Config, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	cfg, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		d := manifest.Default()
		cfg = &d
	}
	return cfg, nil
}

// configureLogging maps the command line and [log] onto commonlog.
// Verbosity 0 logs errors and warnings only.
func configureLogging(cfg *manifest.Config, verbose, debug bool) {
	verbosity := cfg.Log.Verbosity
	switch {
	case debug:
		verbosity = 2
	case verbose && verbosity < 1:
		verbosity = 1
	}
	var path *string
	if p := cfg.LogPath(); p != "" {
		path = &p
	}
	commonlog.Configure(verbosity, path)
}

func readSource(evalSrc string, args []string) (src, name string, err error) {
	if evalSrc != "" {
		return evalSrc, "<eval>", nil
	}
	if len(args) == 0 {
		return "", "", nil
	}
	if len(args) > 1 {
		return "", "", fmt.Errorf("expected one script, got %d", len(args))
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", err
	}
	return string(data), args[0], nil
}

// runScript starts src and drives it to completion, answering pauses from
// in. It returns the final environment.
func runScript(ctx context.Context, eng *engine.Engine, in *bufio.Reader, out io.Writer, src string, bindings map[string]bytecode.Value) (map[string]bytecode.Value, error) {
	inst, err := eng.Start(ctx, src, bindings)
	if err != nil {
		return nil, err
	}
	if err := drive(ctx, inst, in, out); err != nil {
		return nil, err
	}
	return inst.Env(), nil
}

// resumable is satisfied by *engine.Instance and *bytecode.Machine.
type resumable interface {
	State() bytecode.State
	PauseReason() string
	Resume(ctx context.Context, v bytecode.Value) (bytecode.State, error)
}

// drive answers pauses by reading a line from in until the script finishes.
func drive(ctx context.Context, r resumable, in *bufio.Reader, out io.Writer) error {
	for r.State() == bytecode.Suspended {
		if reason := r.PauseReason(); reason != "" {
			fmt.Fprint(out, reason, " ")
		}
		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return fmt.Errorf("reading input: %w", err)
		}
		if _, err := r.Resume(ctx, bytecode.String(strings.TrimRight(line, "\r\n"))); err != nil {
			return err
		}
	}
	return nil
}

// reportError prints a fault with the offending source location.
func reportError(w io.Writer, name string, err error) {
	var list fault.List
	if errors.As(err, &list) {
		for _, f := range list {
			fmt.Fprintf(w, "%s:%s: %s\n", name, f.Pos, f.Summary())
		}
		return
	}
	if f, ok := fault.As(err); ok {
		fmt.Fprintf(w, "%s:%s: %s", name, f.Pos, f.Detail())
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func printEnv(w io.Writer, env map[string]bytecode.Value) {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s = %s\n", name, env[name].Repr())
	}
}
