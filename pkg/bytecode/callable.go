package bytecode

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// NativeFunc is the Go implementation of a host callable. It returns either
// a value, a PauseSignal (via Pause) to suspend the calling script, or an
// ordinary error which fails the script with a RuntimeCallError.
type NativeFunc func(ctx context.Context, args []Value) (Value, error)

// Callable is a named host function reachable from scripts.
type Callable struct {
	Name string
	Fn   NativeFunc
}

// PauseSignal asks the machine to suspend at the current CALL. The host
// resumes the machine later with the call's eventual result.
type PauseSignal struct {
	Reason string
}

func (p *PauseSignal) Error() string {
	if p.Reason == "" {
		return "paused"
	}
	return "paused: " + p.Reason
}

// Pause returns the signal a callable hands back to suspend execution.
func Pause(reason string) error {
	return &PauseSignal{Reason: reason}
}

// IsPause checks if an error is a pause signal.
func IsPause(err error) (*PauseSignal, bool) {
	var p *PauseSignal
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}

// Attributer is implemented by host references that expose named
// attributes to scripts (`actor.name`, `room.say("hi")`).
type Attributer interface {
	Attr(name string) (Value, bool)
}

// RefCodec translates host references to stable keys and back, so that a
// suspended machine holding references can be serialized.
type RefCodec interface {
	EncodeRef(ref any) (string, error)
	DecodeRef(key string) (any, error)
}

// Table is the registry of host callables reachable by name from VALUE.
// It is safe for concurrent use; hosts normally populate it once.
type Table struct {
	mu    sync.RWMutex
	funcs map[string]*Callable
}

// NewTable creates an empty callable table.
func NewTable() *Table {
	return &Table{funcs: make(map[string]*Callable)}
}

// Register adds or replaces a callable.
func (t *Table) Register(name string, fn NativeFunc) *Callable {
	c := &Callable{Name: name, Fn: fn}
	t.mu.Lock()
	t.funcs[name] = c
	t.mu.Unlock()
	return c
}

// Lookup returns the callable registered under name.
func (t *Table) Lookup(name string) (*Callable, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.funcs[name]
	return c, ok
}

// Names returns the registered names in sorted order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
