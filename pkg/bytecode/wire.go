package bytecode

import (
	"crypto/sha256"
	"fmt"

	"github.com/chazu/tale/pkg/fault"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical options so that equal chains and snapshots
// encode to identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

func digestOf(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// wireValue is the encoded form of a Value. Booleans travel in I; refs and
// callables travel as keys in S.
type wireValue struct {
	K ValueKind `cbor:"k"`
	I int64     `cbor:"i,omitempty"`
	F float64   `cbor:"f,omitempty"`
	S string    `cbor:"s,omitempty"`
}

type wireChain struct {
	Version   uint16      `cbor:"v"`
	Code      [][2]int    `cbor:"c"`
	Consts    []wireValue `cbor:"k"`
	Names     []string    `cbor:"n"`
	Positions [][2]int    `cbor:"p"`
	Bounds    []int       `cbor:"b"`
}

// Encode serializes the chain canonically. Identical chains always encode
// to identical bytes.
func (c *Chain) Encode() ([]byte, error) {
	w := wireChain{
		Version:   ChainVersion,
		Code:      make([][2]int, len(c.code)),
		Consts:    make([]wireValue, len(c.consts)),
		Names:     c.names,
		Positions: make([][2]int, len(c.positions)),
		Bounds:    c.bounds,
	}
	for i, in := range c.code {
		w.Code[i] = [2]int{int(in.Op), in.Arg}
	}
	for i, v := range c.consts {
		wv, err := encodeValue(v, nil)
		if err != nil {
			return nil, err
		}
		w.Consts[i] = wv
	}
	for i, p := range c.positions {
		w.Positions[i] = [2]int{p.Line, p.Column}
	}
	return cborEncMode.Marshal(&w)
}

// DecodeChain deserializes and re-verifies a chain produced by Encode.
func DecodeChain(data []byte) (*Chain, error) {
	var w wireChain
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal chain: %w", err)
	}
	if w.Version != ChainVersion {
		return nil, fmt.Errorf("bytecode: chain version %d, want %d", w.Version, ChainVersion)
	}
	c := &Chain{
		code:      make([]Instruction, len(w.Code)),
		consts:    make([]Value, len(w.Consts)),
		names:     w.Names,
		positions: make([]fault.Pos, len(w.Code)),
		bounds:    w.Bounds,
	}
	for i, in := range w.Code {
		c.code[i] = Instruction{Op: Opcode(in[0]), Arg: in[1]}
	}
	for i, wv := range w.Consts {
		if wv.K == KindRef || wv.K == KindCallable {
			return nil, fmt.Errorf("bytecode: unmarshal chain: constant %d has kind %s", i, wv.K)
		}
		v, err := decodeValue(wv, nil, nil)
		if err != nil {
			return nil, err
		}
		c.consts[i] = v
	}
	for i, p := range w.Positions {
		if i < len(c.positions) {
			c.positions[i] = fault.Pos{Line: p[0], Column: p[1]}
		}
	}
	depth, err := verify(c)
	if err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal chain: %w", err)
	}
	c.maxStack = depth
	c.digest = digestOf(data)
	return c, nil
}

func encodeValue(v Value, refs RefCodec) (wireValue, error) {
	w := wireValue{K: v.kind}
	switch v.kind {
	case KindInt, KindBool:
		w.I = v.i
	case KindFloat:
		w.F = v.f
	case KindString:
		w.S = v.s
	case KindCallable:
		if v.fn == nil {
			return w, fmt.Errorf("bytecode: cannot encode nil callable")
		}
		w.S = v.fn.Name
	case KindRef:
		if refs == nil {
			return w, fmt.Errorf("bytecode: cannot encode %T reference without a RefCodec", v.ref)
		}
		key, err := refs.EncodeRef(v.ref)
		if err != nil {
			return w, fmt.Errorf("bytecode: encode reference: %w", err)
		}
		w.S = key
	default:
		return w, fmt.Errorf("bytecode: cannot encode %s value", v.kind)
	}
	return w, nil
}

func decodeValue(w wireValue, funcs *Table, refs RefCodec) (Value, error) {
	switch w.K {
	case KindInt:
		return Int(w.I), nil
	case KindBool:
		return Bool(w.I != 0), nil
	case KindFloat:
		return Float(w.F), nil
	case KindString:
		return String(w.S), nil
	case KindCallable:
		c, ok := funcs.Lookup(w.S)
		if !ok {
			return Value{}, fmt.Errorf("bytecode: unknown callable %q", w.S)
		}
		return Func(c), nil
	case KindRef:
		if refs == nil {
			return Value{}, fmt.Errorf("bytecode: cannot decode reference %q without a RefCodec", w.S)
		}
		obj, err := refs.DecodeRef(w.S)
		if err != nil {
			return Value{}, fmt.Errorf("bytecode: decode reference %q: %w", w.S, err)
		}
		return Ref(obj), nil
	}
	return Value{}, fmt.Errorf("bytecode: unknown value kind %d", w.K)
}
