// Package bytecode is the compiled core of the PohLang runtime: a
// fixed instruction set with statically known stack effects, a
// compiler from the validated syntax tree to a CompiledProgram, a
// stack-based virtual machine with try/catch/finally unwinding, a
// versioned binary serializer, and a disassembler.
//
// A Program is immutable once compiled and may be shared read-only by
// any number of VM instances; each VM owns its operand stack, call
// frames, globals and try contexts, so independent instances can run
// the same program concurrently.
package bytecode
