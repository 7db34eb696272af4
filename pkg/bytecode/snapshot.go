package bytecode

import (
	"errors"
	"fmt"
	"maps"

	"github.com/fxamacker/cbor/v2"
)

// ErrDigestMismatch is returned when a snapshot is restored against a
// chain other than the one it was taken from.
var ErrDigestMismatch = errors.New("bytecode: snapshot does not belong to this chain")

// Snapshot is the captured execution state of a suspended machine: enough
// to rebuild it later, possibly in another process.
type Snapshot struct {
	Digest [32]byte // digest of the chain being executed
	PC     int
	Stack  []Value
	Env    map[string]Value
	Reason string // pause reason of the suspending callable
	Steps  int
}

// Snapshot captures the state of a suspended machine. The snapshot shares
// nothing with the machine.
func (m *Machine) Snapshot() (*Snapshot, error) {
	if m.state != Suspended {
		return nil, fmt.Errorf("%w: snapshot from %s", ErrInvalidState, m.state)
	}
	return &Snapshot{
		Digest: m.chain.Digest(),
		PC:     m.pc,
		Stack:  append([]Value(nil), m.stack...),
		Env:    maps.Clone(m.env),
		Reason: m.PauseReason(),
		Steps:  m.steps,
	}, nil
}

// Restore rebuilds a Suspended machine from a snapshot of chain.
func Restore(chain *Chain, funcs *Table, s *Snapshot, opts ...Option) (*Machine, error) {
	if s.Digest != chain.Digest() {
		return nil, ErrDigestMismatch
	}
	if s.PC < 0 || s.PC > chain.Len() {
		return nil, fmt.Errorf("bytecode: snapshot pc %d out of range", s.PC)
	}
	m := NewMachine(chain, funcs, s.Env, opts...)
	m.pc = s.PC
	m.stack = append(m.stack, s.Stack...)
	m.steps = s.Steps
	m.state = Suspended
	m.pause = &PauseSignal{Reason: s.Reason}
	return m, nil
}

type wireSnapshot struct {
	Digest []byte               `cbor:"d"`
	PC     int                  `cbor:"pc"`
	Stack  []wireValue          `cbor:"st"`
	Env    map[string]wireValue `cbor:"env"`
	Reason string               `cbor:"r,omitempty"`
	Steps  int                  `cbor:"n,omitempty"`
}

// MarshalSnapshot serializes a snapshot to canonical CBOR. Callables are
// written by name; references go through refs.
func MarshalSnapshot(s *Snapshot, refs RefCodec) ([]byte, error) {
	w := wireSnapshot{
		Digest: s.Digest[:],
		PC:     s.PC,
		Stack:  make([]wireValue, len(s.Stack)),
		Env:    make(map[string]wireValue, len(s.Env)),
		Reason: s.Reason,
		Steps:  s.Steps,
	}
	for i, v := range s.Stack {
		wv, err := encodeValue(v, refs)
		if err != nil {
			return nil, err
		}
		w.Stack[i] = wv
	}
	for name, v := range s.Env {
		wv, err := encodeValue(v, refs)
		if err != nil {
			return nil, fmt.Errorf("bytecode: variable %q: %w", name, err)
		}
		w.Env[name] = wv
	}
	return cborEncMode.Marshal(&w)
}

// UnmarshalSnapshot deserializes a snapshot. Callables are resolved by name
// in funcs; references are decoded through refs.
func UnmarshalSnapshot(data []byte, funcs *Table, refs RefCodec) (*Snapshot, error) {
	var w wireSnapshot
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal snapshot: %w", err)
	}
	if len(w.Digest) != 32 {
		return nil, fmt.Errorf("bytecode: unmarshal snapshot: digest has %d bytes", len(w.Digest))
	}
	s := &Snapshot{
		PC:     w.PC,
		Stack:  make([]Value, len(w.Stack)),
		Env:    make(map[string]Value, len(w.Env)),
		Reason: w.Reason,
		Steps:  w.Steps,
	}
	copy(s.Digest[:], w.Digest)
	for i, wv := range w.Stack {
		v, err := decodeValue(wv, funcs, refs)
		if err != nil {
			return nil, fmt.Errorf("bytecode: unmarshal snapshot: %w", err)
		}
		s.Stack[i] = v
	}
	for name, wv := range w.Env {
		v, err := decodeValue(wv, funcs, refs)
		if err != nil {
			return nil, fmt.Errorf("bytecode: unmarshal snapshot: variable %q: %w", name, err)
		}
		s.Env[name] = v
	}
	return s, nil
}
