// Package opcode is a dense table mapping each decoded instruction form
// to its (analyzer, recompiler) handler pair. The table is constructed
// once per process and is read-only thereafter. Handler bodies here are
// intentionally small: real instruction semantic handlers are an
// out-of-scope collaborator, so these exist only to exercise the
// register-usage lattice and the IR builder enough to make the pipeline
// observable end to end.
package opcode

import (
	"sync"

	"github.com/cellforge/ppuxlate/ir"
	"github.com/cellforge/ppuxlate/ppc"
	"github.com/cellforge/ppuxlate/regstate"
)

// Analyzer updates a register-usage Status for one decoded instruction.
type Analyzer func(s *regstate.Status, inst ppc.Instruction)

// Recompiler lowers one decoded instruction into the IR function
// currently being built, at guest address pc.
type Recompiler func(b ir.Builder, inst ppc.Instruction, pc uint32)

// Handler is the (analyzer, recompiler) pair associated with a decoded
// form.
type Handler struct {
	Analyze   Analyzer
	Recompile Recompiler
}

// noop is the pair unknown forms map to: the analyzer observes nothing,
// the recompiler emits nothing. Segment scanning still treats the
// underlying word as invalid via ppc.Instruction.Valid; this pair
// governs analysis/lowering of invalid words and of words that decoded
// but have no registered semantics.
var noop = Handler{
	Analyze:   func(*regstate.Status, ppc.Instruction) {},
	Recompile: func(ir.Builder, ppc.Instruction, uint32) {},
}

// Table is the dense opcode-to-handler map. It is safe for concurrent
// read access once built; it is constructed exactly once per process.
type Table struct {
	handlers map[string]Handler
}

var (
	defaultTable     *Table
	defaultTableOnce sync.Once
)

// Default returns the process-wide table populated with the supported
// opcode subset. It is built exactly once.
func Default() *Table {
	defaultTableOnce.Do(func() {
		defaultTable = build()
	})
	return defaultTable
}

// Lookup returns the handler pair for inst, falling back to the no-op
// pair for any mnemonic the table does not carry an entry for.
func (t *Table) Lookup(inst ppc.Instruction) Handler {
	h, _ := t.lookup(inst)
	return h
}

// LookupWarn behaves like Lookup, additionally invoking warn (if
// non-nil) whenever inst falls back to the no-op pair because the
// table carries no entry for it.
func (t *Table) LookupWarn(inst ppc.Instruction, warn func(ppc.Instruction)) Handler {
	h, known := t.lookup(inst)
	if !known && warn != nil {
		warn(inst)
	}
	return h
}

func (t *Table) lookup(inst ppc.Instruction) (Handler, bool) {
	if !inst.Valid {
		return noop, false
	}
	if h, ok := t.handlers[inst.Mnemonic]; ok {
		return h, true
	}
	return noop, false
}

func build() *Table {
	t := &Table{handlers: make(map[string]Handler)}

	t.handlers["b"] = Handler{Analyze: analyzeBranch, Recompile: recompileBranch}
	t.handlers["bc"] = Handler{Analyze: analyzeBranch, Recompile: recompileBranch}
	t.handlers["bclr"] = Handler{Analyze: analyzeBranchToSpr(ppc.SprLR), Recompile: recompileBranch}
	t.handlers["bcctr"] = Handler{Analyze: analyzeBranchToSpr(ppc.SprCTR), Recompile: recompileBranch}

	t.handlers["addi"] = Handler{Analyze: analyzeRtRaImm, Recompile: recompileALU}
	t.handlers["ori"] = Handler{Analyze: analyzeRtRaImm, Recompile: recompileALU}
	t.handlers["cmpi"] = Handler{Analyze: analyzeReadRaOnly, Recompile: recompileALU}
	t.handlers["rlwinm"] = Handler{Analyze: analyzeRtRaImm, Recompile: recompileALU}
	t.handlers["add"] = Handler{Analyze: analyzeRtRaRb, Recompile: recompileALU}
	t.handlers["or"] = Handler{Analyze: analyzeRtRaRb, Recompile: recompileALU}

	t.handlers["lwz"] = Handler{Analyze: analyzeLoadGPR, Recompile: recompileMem}
	t.handlers["ld"] = Handler{Analyze: analyzeLoadGPR, Recompile: recompileMem}
	t.handlers["stw"] = Handler{Analyze: analyzeStoreGPR, Recompile: recompileMem}
	t.handlers["std"] = Handler{Analyze: analyzeStoreGPR, Recompile: recompileMem}

	t.handlers["lfs"] = Handler{Analyze: analyzeLoadFPR, Recompile: recompileMem}
	t.handlers["lfd"] = Handler{Analyze: analyzeLoadFPR, Recompile: recompileMem}
	t.handlers["stfs"] = Handler{Analyze: analyzeStoreFPR, Recompile: recompileMem}
	t.handlers["stfd"] = Handler{Analyze: analyzeStoreFPR, Recompile: recompileMem}
	t.handlers["fmr"] = Handler{Analyze: analyzeFmr, Recompile: recompileALU}

	t.handlers["lvx"] = Handler{Analyze: analyzeLoadVR, Recompile: recompileMem}
	t.handlers["stvx"] = Handler{Analyze: analyzeStoreVR, Recompile: recompileMem}
	t.handlers["vor"] = Handler{Analyze: analyzeVorVR, Recompile: recompileALU}

	t.handlers["mtspr"] = Handler{Analyze: analyzeMtspr, Recompile: recompileALU}
	t.handlers["mfspr"] = Handler{Analyze: analyzeMfspr, Recompile: recompileALU}

	return t
}
