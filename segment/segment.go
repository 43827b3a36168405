package segment

import (
	"fmt"

	"github.com/cellforge/ppuxlate/cfg"
	"github.com/cellforge/ppuxlate/dcache"
	"github.com/cellforge/ppuxlate/guest"
	"github.com/cellforge/ppuxlate/ir"
	"github.com/cellforge/ppuxlate/opcode"
	"github.com/cellforge/ppuxlate/ppc"
)

// Segment owns every Function discovered inside one contiguous guest
// address range, plus the IR module the recompiler driver emits into.
// This is the only place a translator's worth of state lives; nothing
// here holds a pointer back out to a caller-owned type.
type Segment struct {
	Address uint32
	Size    uint32

	Functions map[uint32]*cfg.Function
	Module    ir.Module

	mem         guest.Memory
	decode      ppc.DecodeFunc
	warnUnknown func(addr uint32, inst ppc.Instruction)
}

// FatalError marks a translator-internal inconsistency — Translate
// wraps a function's pass-pipeline or IR verification failure in it —
// as distinct from an ordinary
// per-function analysis failure a caller might reasonably recover from
// by skipping that one function.
type FatalError struct {
	Func uint32
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("segment: fatal error translating function at %#x: %v", e.Func, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Options controls how Analyze/Translate run.
type Options struct {
	// OnUnknownFunction, when non-nil, is called for each function
	// entry whose analysis failed; the scan continues with the
	// remaining entries. A nil handler aborts the whole segment on the
	// first failure.
	OnUnknownFunction func(entry uint32, err error)
	// MaxFunctionSize caps how many bytes the CFG builder will grow a
	// single function before giving up on it. Zero means unbounded.
	MaxFunctionSize uint32
	// Cache, when non-nil, backs every decode the scanner and CFG
	// builder perform for this segment, so a word is not decoded again
	// while it is still cached.
	Cache *dcache.Cache
	// WarnUnknownOpcode, when non-nil, is called for every instruction
	// the opcode table has no handler for, during both classification
	// and recompilation.
	WarnUnknownOpcode func(addr uint32, inst ppc.Instruction)
}

// decodeFunc builds the DecodeFunc a segment's scan, analysis, and
// recompilation passes all share: cache-backed when cache is non-nil,
// a plain stateless decoder otherwise.
func decodeFunc(mem guest.Memory, cache *dcache.Cache) ppc.DecodeFunc {
	if cache != nil {
		return func(addr uint32) ppc.Instruction { return cache.Decode(mem, addr) }
	}
	dec := ppc.NewDecoder()
	return func(addr uint32) ppc.Instruction { return dec.Decode(mem.Read32(addr)) }
}

// DefaultPasses is the fixed optimization pipeline: promotion to SSA,
// local peephole simplification, reassociation, and global value
// numbering. CFG simplification is intentionally left out of the fixed
// pipeline.
var DefaultPasses = []string{"mem2reg", "instcombine", "reassociate", "gvn"}

// Analyze scans the whole segment for function entry candidates, then
// analyzes and classifies each one, bounding every function's growth by
// its siblings' entries.
func Analyze(mem guest.Memory, address, size uint32, opts Options) (*Segment, error) {
	decode := decodeFunc(mem, opts.Cache)

	entries := ScanEntries(decode, address, size)
	bounds := cfg.Bounds{Address: address, Size: size}

	seg := &Segment{
		Address:     address,
		Size:        size,
		Functions:   map[uint32]*cfg.Function{},
		mem:         mem,
		decode:      decode,
		warnUnknown: opts.WarnUnknownOpcode,
	}

	for _, entry := range entries {
		others := otherEntries(entries, entry)

		fn, err := cfg.Analyze(mem, bounds, entry, others, cfg.AnalyzeOptions{
			Decode:          decode,
			MaxFunctionSize: opts.MaxFunctionSize,
		})
		if err != nil {
			if opts.OnUnknownFunction != nil {
				opts.OnUnknownFunction(entry, err)
				continue
			}
			return nil, err
		}

		cfg.Classify(mem, fn, decode, opts.WarnUnknownOpcode)
		seg.Functions[entry] = fn
	}

	return seg, nil
}

func otherEntries(all []uint32, self uint32) []uint32 {
	out := make([]uint32, 0, len(all)-1)
	for _, e := range all {
		if e != self {
			out = append(out, e)
		}
	}
	return out
}

// Translate drives an already-analyzed segment through recompilation:
// it creates seg.Module, declares one IR function per entry with a
// signature derived from its classified ABI, lowers every block, and
// runs the fixed pass pipeline. newModule is the backend's
// module/builder constructor (ir.NewReferenceModule in tests, a real
// JIT's equivalent in production).
func Translate(moduleName string, newModule func(name string) (ir.Module, ir.Builder), seg *Segment, passes []string) error {
	if passes == nil {
		passes = DefaultPasses
	}

	decode := seg.decode
	if decode == nil {
		decode = decodeFunc(seg.mem, nil)
	}
	table := opcode.Default()

	mod, builder := newModule(moduleName)
	seg.Module = mod

	for entry, fn := range seg.Functions {
		if err := recompileFunction(builder, decode, table, seg.warnUnknown, mod, fn, passes); err != nil {
			return &FatalError{Func: entry, Err: err}
		}
	}

	return nil
}

func recompileFunction(b ir.Builder, decode ppc.DecodeFunc, table *opcode.Table, warnUnknown func(uint32, ppc.Instruction), mod ir.Module, fn *cfg.Function, passes []string) error {
	sig := signatureOf(fn)
	name := fmt.Sprintf("fn_%08x", fn.Address)
	irFn := mod.DeclareFunction(name, sig)

	blocks := make(map[uint32]ir.Block, len(fn.Blocks))
	for addr := range fn.Blocks {
		blocks[addr] = irFn.NewBlock(blockName(addr))
	}

	worklist := []uint32{fn.Address}
	for len(worklist) > 0 {
		addr := worklist[0]
		worklist = worklist[1:]

		blk, ok := fn.Blocks[addr]
		if !ok || blk.Recompiled {
			continue
		}
		blk.Recompiled = true

		b.SetInsertPoint(blocks[addr])
		recompileBlock(b, decode, table, warnUnknown, blk)
		worklist = append(worklist, lowerTerminator(b, blocks, blk)...)
	}

	if err := b.RunPasses(irFn, passes); err != nil {
		return err
	}
	return b.Verify(irFn)
}

// recompileBlock decodes and lowers every instruction in blk's own
// address range, in order, ahead of the terminator lowerTerminator adds
// for its resolved successors.
func recompileBlock(b ir.Builder, decode ppc.DecodeFunc, table *opcode.Table, warnUnknown func(uint32, ppc.Instruction), blk *cfg.Block) {
	for pc := blk.Address; pc < blk.End(); pc += 4 {
		inst := decode(pc)
		handler := table.LookupWarn(inst, func(i ppc.Instruction) {
			if warnUnknown != nil {
				warnUnknown(pc, i)
			}
		})
		handler.Recompile(b, inst, pc)
	}
}

// lowerTerminator stitches one block's control flow into the IR: a
// block with a resolved successor inside this function gets an
// unconditional branch to it; a split block (no resolved successor)
// gets a branch to this function's block at its End() when one exists,
// and a return otherwise (including the bcctr stub case). It returns the
// successor addresses still needing a lowering pass.
func lowerTerminator(b ir.Builder, blocks map[uint32]ir.Block, blk *cfg.Block) []uint32 {
	if blk.Split() {
		if next, ok := blocks[blk.End()]; ok {
			b.Br(next)
			return []uint32{blk.End()}
		}
		b.Ret()
		return nil
	}

	var pending []uint32
	for _, succ := range blk.Successors() {
		if target, ok := blocks[succ]; ok {
			b.Br(target)
			pending = append(pending, succ)
		} else {
			// A successor outside this function's own block map (never
			// expected once cfg.Analyze has run to completion) falls
			// back to a return rather than branching into the void.
			b.Ret()
		}
	}
	return pending
}

func blockName(addr uint32) string {
	return fmt.Sprintf("bb_%08x", addr)
}

// signatureOf projects a classified ABI into an IR function signature.
// FLOAT_X2/X3/X4 all collapse to a single F64 slot at the IR level: the
// richer classification survives only on cfg.Function.TypeOut.
func signatureOf(fn *cfg.Function) ir.Signature {
	params := make([]ir.Type, len(fn.TypeIn))
	for i, a := range fn.TypeIn {
		switch a {
		case cfg.ArgInteger:
			params[i] = ir.TypeI64
		case cfg.ArgFloat:
			params[i] = ir.TypeF64
		case cfg.ArgVector:
			params[i] = ir.TypeI128
		}
	}

	var ret ir.Type
	switch fn.TypeOut {
	case cfg.RetInteger:
		ret = ir.TypeI64
	case cfg.RetFloat, cfg.RetFloatX2, cfg.RetFloatX3, cfg.RetFloatX4:
		ret = ir.TypeF64
	case cfg.RetVector:
		ret = ir.TypeI128
	default:
		ret = ir.TypeVoid
	}

	return ir.Signature{Params: params, Return: ret}
}
