// Package bytecode provides the linear instruction format and the
// stack-based virtual machine that runs compiled scripts.
//
// # Architecture Overview
//
//   - Opcodes: a small stack instruction set. Each opcode's stack effect,
//     operand kind and binary operand order live in one metadata table that
//     the builder, the verifier, the VM and the disassembler all consult.
//
//   - Chain: an immutable compiled script holding instructions, a constant
//     pool, a name pool and a source map. Chains encode to canonical CBOR;
//     their digest is the SHA-256 of that encoding.
//
//   - Builder: emits instructions, backpatches forward jumps through
//     labels and fix-up records, and statically verifies stack depth.
//
//   - Machine: executes a chain against an operand stack and a variable
//     environment. It suspends only at a CALL whose callable returns a
//     pause signal, and its state can then be captured as a Snapshot.
//
// # Operand Order
//
// Binary opcodes pop two operands and push one. For every opcode except
// DIV the left operand is second from the top and the right operand is on
// top, so `CONST 7; CONST 2; SUB` yields 5. DIV takes its dividend from the
// top: `CONST 4; CONST 12; DIV` yields 3. The code generator emits SWAP
// before DIV to keep source order.
//
// # States
//
//	Ready --Run--> Running --+--> Completed
//	                 ^       +--> Failed
//	                 |       +--> Suspended
//	                 +--Resume------+
//
// Between top-level statements the operand stack is always empty; within
// a statement the depth at each instruction is fixed by the chain.
package bytecode
