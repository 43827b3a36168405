// Package ir declares the narrow interface the translator expects from a
// JIT backend's IR builder. This package never prescribes an opcode
// set; it only types the handful of operations the recompiler driver
// and the instruction recompiler callbacks are allowed to call.
package ir

// Kind names a primitive IR type. The translator only ever needs four.
type Kind uint8

const (
	Void Kind = iota
	I64       // 64-bit scalar integer
	F64       // 64-bit IEEE double
	I128      // 128-bit integer, used to carry a vector register
)

// Type is a primitive IR type value.
type Type struct {
	Kind Kind
}

var (
	TypeVoid = Type{Kind: Void}
	TypeI64  = Type{Kind: I64}
	TypeF64  = Type{Kind: F64}
	TypeI128 = Type{Kind: I128}
)

// Signature is a function type: an ordered parameter list plus a return
// type, built from the ABI the function classifier derives.
type Signature struct {
	Params []Type
	Return Type
}

// Block is an opaque handle to one basic block inside an IR function. The
// translator never inspects a Block's contents; it only passes the
// handle back to the Builder.
type Block interface {
	// Name returns the block's label, stable for a given guest block
	// address.
	Name() string
}

// Func is an opaque handle to a declared IR function.
type Func interface {
	Name() string
	// NewBlock creates a fresh basic block under this function.
	NewBlock(name string) Block
}

// Module is the container the recompiler driver declares functions
// into. One Module is produced per translated Segment.
type Module interface {
	Name() string
	// DeclareFunction creates an externally-linked IR function with the
	// given signature. name must be stable for a given guest entry
	// address.
	DeclareFunction(name string, sig Signature) Func
	// Dump renders the module for debugging.
	Dump() string
}

// Builder emits instructions into whichever block is currently the
// insert point. The recompiler driver and per-opcode recompiler
// callbacks are the only callers.
type Builder interface {
	// SetInsertPoint directs subsequent emission into block.
	SetInsertPoint(block Block)
	// Br emits an unconditional branch from the current insert point to
	// target.
	Br(target Block)
	// Ret emits a return from the current insert point. The translator
	// never needs a value-carrying return at the IR level: the guest
	// return value lives in the ABI-declared register slots the
	// function's prologue/epilogue convention already wires up.
	Ret()
	// RunPasses runs the named, ordered pass pipeline over fn and
	// reports whether it succeeded.
	RunPasses(fn Func, pipeline []string) error
	// Verify checks fn's IR for internal consistency. A verification
	// failure is a translator bug and should abort the process, not be
	// retried.
	Verify(fn Func) error
}
