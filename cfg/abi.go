package cfg

import (
	"github.com/cellforge/ppuxlate/guest"
	"github.com/cellforge/ppuxlate/opcode"
	"github.com/cellforge/ppuxlate/ppc"
	"github.com/cellforge/ppuxlate/regstate"
)

// Classify walks the function's entry path with the register-usage
// analyzer, then projects the resulting Status into TypeIn/TypeOut,
// writing both onto fn. decode resolves each instruction along the way
// (nil selects a fresh uncached decoder); warnUnknown, when non-nil, is
// called for every instruction the opcode table has no handler for.
func Classify(mem guest.Memory, fn *Function, decode ppc.DecodeFunc, warnUnknown func(addr uint32, inst ppc.Instruction)) {
	status := walkEntryPath(mem, fn.Address, decode, warnUnknown)
	fn.TypeIn = projectArgs(status)
	fn.TypeOut = projectReturn(status)
}

// walkEntryPath starts at the function's entry and decodes and analyzes
// instructions in sequence. An unconditional
// non-call branch redirects the walk to its target and continues; a
// conditional branch, a return, or the indirect-terminal bcctr form ends
// the walk. The walk never revisits a block (guards against an
// unconditional branch cycle feeding the walk forever).
func walkEntryPath(mem guest.Memory, entry uint32, decode ppc.DecodeFunc, warnUnknown func(uint32, ppc.Instruction)) *regstate.Status {
	if decode == nil {
		dec := ppc.NewDecoder()
		decode = func(addr uint32) ppc.Instruction { return dec.Decode(mem.Read32(addr)) }
	}
	table := opcode.Default()
	status := regstate.New()

	visited := map[uint32]bool{}
	pc := entry

	for {
		if visited[pc] {
			return status
		}
		visited[pc] = true

		for {
			addr := pc
			inst := decode(pc)
			handler := table.LookupWarn(inst, func(i ppc.Instruction) {
				if warnUnknown != nil {
					warnUnknown(addr, i)
				}
			})
			handler.Analyze(status, inst)

			next := pc + 4

			if !inst.IsBranch || inst.IsCall {
				pc = next
				continue
			}

			// A branch that isn't a call ends straight-line execution
			// within this block.
			if inst.IsConditional || inst.IsReturn || inst.IsIndirectTerminal {
				return status
			}

			target, ok := inst.Target(pc)
			if !ok {
				return status
			}
			pc = target
			break
		}
	}
}

// argGPR/argFPR/argVR are the fixed register ranges scanned, in order,
// to build TypeIn.
var (
	argGPR = []uint8{3, 4, 5, 6, 7, 8, 9, 10, 11}
	argFPR = []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	argVR  = []uint8{2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
)

// projectArgs scans GPR r3..r11, then FPR f1..f14, then VR v2..v14, in
// that fixed order, emitting one ArgType entry per register whose
// status is READ_ORIG (read before any write on the entry path).
func projectArgs(status *regstate.Status) []ArgType {
	var out []ArgType
	for _, r := range argGPR {
		if status.GPR(r).Has(regstate.ReadOrig) {
			out = append(out, ArgInteger)
		}
	}
	for _, r := range argFPR {
		if status.FPR(r).Has(regstate.ReadOrig) {
			out = append(out, ArgFloat)
		}
	}
	for _, r := range argVR {
		if status.VR(r).Has(regstate.ReadOrig) {
			out = append(out, ArgVector)
		}
	}
	return out
}

// projectReturn applies the return-type priority: a written FPR1 wins
// first, promoted to FLOAT_X2/X3/X4 when FPR2-4 were also written
// contiguously from FPR1; otherwise a written VR2 wins; otherwise a
// written GPR3 wins; otherwise VOID.
func projectReturn(status *regstate.Status) RetType {
	if status.FPR(1).Has(regstate.Write) {
		switch {
		case !status.FPR(2).Has(regstate.Write):
			return RetFloat
		case !status.FPR(3).Has(regstate.Write):
			return RetFloatX2
		case !status.FPR(4).Has(regstate.Write):
			return RetFloatX3
		default:
			return RetFloatX4
		}
	}
	if status.VR(2).Has(regstate.Write) {
		return RetVector
	}
	if status.GPR(3).Has(regstate.Write) {
		return RetInteger
	}
	return RetVoid
}
