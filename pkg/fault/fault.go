// Package fault defines the structured diagnostics reported by every stage
// of the scripting pipeline. Compile-time and run-time failures share one
// shape so a host can present them uniformly.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a fault.
type Kind uint8

const (
	LexError Kind = iota + 1
	SyntaxError
	TypeError
	NameError
	ArithmeticError
	StackError       // internal invariant violation, always a defect
	RuntimeCallError // a host callable failed
	Interrupted      // cancelled or out of step budget
)

var kindNames = map[Kind]string{
	LexError:         "LexError",
	SyntaxError:      "SyntaxError",
	TypeError:        "TypeError",
	NameError:        "NameError",
	ArithmeticError:  "ArithmeticError",
	StackError:       "StackError",
	RuntimeCallError: "RuntimeCallError",
	Interrupted:      "Interrupted",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Pos is a source location. The zero value means "unknown".
type Pos struct {
	Line   int
	Column int
}

// Known reports whether the position refers to real source text.
func (p Pos) Known() bool { return p.Line > 0 }

func (p Pos) String() string {
	if !p.Known() {
		return "?"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// NoPC marks a fault raised before any instruction ran.
const NoPC = -1

// Fault is a structured diagnostic.
type Fault struct {
	Kind    Kind
	Message string
	Pos     Pos
	PC      int  // instruction index, NoPC for compile-time faults
	More    bool // input ended inside an open construct
	Err     error
}

// New creates a compile-time fault.
func New(kind Kind, pos Pos, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos, PC: NoPC}
}

// At creates a run-time fault raised by the instruction at pc.
func At(kind Kind, pc int, pos Pos, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos, PC: pc}
}

// Wrap creates a fault carrying an underlying cause.
func Wrap(kind Kind, pc int, pos Pos, err error, format string, args ...any) *Fault {
	f := At(kind, pc, pos, format, args...)
	f.Err = err
	return f
}

func (f *Fault) Error() string {
	var sb strings.Builder
	sb.WriteString(f.Kind.String())
	if f.Pos.Known() {
		fmt.Fprintf(&sb, " at %s", f.Pos)
	}
	sb.WriteString(": ")
	sb.WriteString(f.Message)
	if f.Err != nil {
		fmt.Fprintf(&sb, ": %v", f.Err)
	}
	return sb.String()
}

func (f *Fault) Unwrap() error { return f.Err }

// Summary is the short form suitable for unprivileged users.
func (f *Fault) Summary() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Detail is the full diagnostic including instruction index and cause.
func (f *Fault) Detail() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", f.Kind, f.Message)
	fmt.Fprintf(&sb, "  position: %s\n", f.Pos)
	if f.PC != NoPC {
		fmt.Fprintf(&sb, "  instruction: %d\n", f.PC)
	}
	if f.Err != nil {
		fmt.Fprintf(&sb, "  cause: %v\n", f.Err)
	}
	return sb.String()
}

// List is a set of faults reported together, e.g. by the type checker.
type List []*Fault

func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no faults"
	case 1:
		return l[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", l[0].Error(), len(l)-1)
}

// Unwrap exposes every fault to errors.Is and errors.As.
func (l List) Unwrap() []error {
	errs := make([]error, len(l))
	for i, f := range l {
		errs[i] = f
	}
	return errs
}

// As extracts the first fault in err's chain.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind reports whether err carries a fault of the given kind.
func IsKind(err error, kind Kind) bool {
	f, ok := As(err)
	return ok && f.Kind == kind
}

// NeedsMore reports whether err is a compile-time fault caused by input
// ending inside an open construct. Interactive hosts use it to keep
// reading lines instead of reporting the error.
func NeedsMore(err error) bool {
	f, ok := As(err)
	return ok && f.More
}
