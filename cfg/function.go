package cfg

import (
	"fmt"

	"github.com/cellforge/ppuxlate/guest"
	"github.com/cellforge/ppuxlate/ppc"
)

// Function is a set of blocks rooted at an entry address. TypeIn/TypeOut
// are filled in by Classify after Analyze succeeds.
type Function struct {
	Address uint32
	Blocks  map[uint32]*Block

	TypeIn  []ArgType
	TypeOut RetType
}

// ArgType is one entry of a function's argument list.
type ArgType int

const (
	ArgInteger ArgType = iota
	ArgFloat
	ArgVector
)

func (a ArgType) String() string {
	switch a {
	case ArgInteger:
		return "INTEGER"
	case ArgFloat:
		return "FLOAT"
	case ArgVector:
		return "VECTOR"
	default:
		return "UNKNOWN"
	}
}

// RetType is a function's return classification.
type RetType int

const (
	RetVoid RetType = iota
	RetInteger
	RetFloat
	RetFloatX2
	RetFloatX3
	RetFloatX4
	RetVector
)

func (r RetType) String() string {
	switch r {
	case RetVoid:
		return "VOID"
	case RetInteger:
		return "INTEGER"
	case RetFloat:
		return "FLOAT"
	case RetFloatX2:
		return "FLOAT_X2"
	case RetFloatX3:
		return "FLOAT_X3"
	case RetFloatX4:
		return "FLOAT_X4"
	case RetVector:
		return "VECTOR"
	default:
		return "UNKNOWN"
	}
}

// Bounds is the half-open guest address range a Function's blocks (and
// their resolved successors) must stay inside. It mirrors the parent
// Segment's own range; cfg never imports the segment package, so the
// caller passes the bound down explicitly instead of Block/Function
// holding a pointer back to their owning Segment.
type Bounds struct {
	Address uint32
	Size    uint32
}

// Contains reports whether addr lies within the bounds.
func (b Bounds) Contains(addr uint32) bool {
	return addr >= b.Address && addr < b.Address+b.Size
}

// OutOfBoundsError is returned by Analyze when a resolved successor
// escapes the parent segment.
type OutOfBoundsError struct {
	Entry   uint32
	Address uint32
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("cfg: function at %#x branches to %#x, outside its segment", e.Entry, e.Address)
}

// FunctionTooLargeError is returned by Analyze when a function's blocks
// grow past AnalyzeOptions.MaxFunctionSize.
type FunctionTooLargeError struct {
	Entry uint32
	Size  uint32
	Max   uint32
}

func (e *FunctionTooLargeError) Error() string {
	return fmt.Sprintf("cfg: function at %#x grew to %d bytes, past its %d-byte limit", e.Entry, e.Size, e.Max)
}

// AnalyzeOptions configures Analyze beyond the structural bound
// otherEntries already enforces.
type AnalyzeOptions struct {
	// Decode resolves one instruction at a guest address. Nil selects a
	// fresh uncached decoder that reads through mem.
	Decode ppc.DecodeFunc
	// MaxFunctionSize caps the sum of this function's block sizes
	// before Analyze gives up with a FunctionTooLargeError. Zero means
	// unbounded.
	MaxFunctionSize uint32
}

// Analyze grows entry's basic-block map by worklist disassembly,
// splitting blocks on mid-block targets. otherEntries names every other
// function entry address the segment scanner discovered; they bound
// this function's block growth exactly as an already-inserted block
// would, without ever becoming keys of this Function's own Blocks map,
// so one function's disassembly never swallows a sibling function's
// entry point.
func Analyze(mem guest.Memory, bounds Bounds, entry uint32, otherEntries []uint32, opts AnalyzeOptions) (*Function, error) {
	decode := opts.Decode
	if decode == nil {
		dec := ppc.NewDecoder()
		decode = func(addr uint32) ppc.Instruction { return dec.Decode(mem.Read32(addr)) }
	}
	fn := &Function{Address: entry, Blocks: map[uint32]*Block{}}

	var total uint32
	worklist := []uint32{entry}
	for len(worklist) > 0 {
		l := worklist[0]
		worklist = worklist[1:]

		if _, ok := fn.Blocks[l]; ok {
			continue // already a known block start
		}

		if a := findContaining(fn.Blocks, l); a != nil {
			split(fn.Blocks, a, l)
			continue
		}

		maxSize := boundingDistance(fn.Blocks, otherEntries, l)

		blk, err := disassembleBlock(decode, l, maxSize)
		if err != nil {
			return nil, err
		}

		total += blk.Size
		if opts.MaxFunctionSize != 0 && total > opts.MaxFunctionSize {
			return nil, &FunctionTooLargeError{Entry: entry, Size: total, Max: opts.MaxFunctionSize}
		}

		for _, succ := range blk.Successors() {
			if !bounds.Contains(succ) {
				return nil, &OutOfBoundsError{Entry: entry, Address: succ}
			}
			worklist = append(worklist, succ)
		}

		fn.Blocks[l] = blk
	}

	return fn, nil
}

// findContaining returns the block that strictly contains addr, or nil.
// Blocks never overlap, so at most one can match.
func findContaining(blocks map[uint32]*Block, addr uint32) *Block {
	for _, b := range blocks {
		if b.Contains(addr) {
			return b
		}
	}
	return nil
}

// split carves a new block [address=l, size=a.size-(l-a.address)] out of
// a, inheriting a's successors, while a is truncated to an unconditional
// branch into the new block.
func split(blocks map[uint32]*Block, a *Block, l uint32) {
	newBlock := &Block{
		Address: l,
		Size:    a.End() - l,
		BranchA: a.BranchA,
		BranchB: a.BranchB,
	}
	a.Size = l - a.Address
	a.BranchA = l
	a.BranchB = 0
	blocks[l] = newBlock
}

// boundingDistance computes maxSize: the minimum distance from l to any
// address strictly greater than l that is either an already-known block
// start in this function, or another function's entry point. Infinity
// is represented as 0.
func boundingDistance(blocks map[uint32]*Block, otherEntries []uint32, l uint32) uint32 {
	best := uint32(0)
	consider := func(addr uint32) {
		if addr <= l {
			return
		}
		d := addr - l
		if best == 0 || d < best {
			best = d
		}
	}
	for addr := range blocks {
		consider(addr)
	}
	for _, addr := range otherEntries {
		consider(addr)
	}
	return best
}

// disassembleBlock grows a block forward from l until a non-call branch
// terminates it or maxSize (0 = unbounded) is reached.
func disassembleBlock(decode ppc.DecodeFunc, l uint32, maxSize uint32) (*Block, error) {
	blk := &Block{Address: l}
	pc := l

	for {
		instAddr := pc
		inst := decode(pc)
		blk.Size += 4
		pc += 4

		stoppedByBranch := inst.IsBranch && !inst.IsCall
		stoppedBySize := maxSize != 0 && blk.Size >= maxSize

		if stoppedByBranch && !stoppedBySize {
			classifyTerminator(blk, inst, instAddr, pc)
			return blk, nil
		}
		if stoppedBySize {
			// maxSize truncation always leaves both successors zero,
			// regardless of what the cutoff instruction happened to be.
			return blk, nil
		}
	}
}

// classifyTerminator resolves the successors of a block that stopped
// because its last instruction is a non-call branch. instAddr is that
// instruction's own address (Target's displacement is relative to it);
// next is the address immediately after it.
func classifyTerminator(blk *Block, term ppc.Instruction, instAddr, next uint32) {
	if term.IsIndirectTerminal {
		return // bcctr: leave both successors zero
	}

	target, ok := term.Target(instAddr)

	if term.IsConditional {
		if ok {
			blk.BranchA = target
		}
		blk.BranchB = next
		return
	}

	// Unconditional non-call branch. If it has no computable target
	// (bclr/return), leave both successors zero.
	if ok {
		blk.BranchA = target
	}
}
