// Package segment is the function-entry scanner and per-segment
// recompiler driver, tying the ppc, regstate, cfg, opcode, and ir
// packages into the top-level Segment type.
package segment

import (
	"github.com/cellforge/ppuxlate/ppc"
)

// ScanEntries makes a single linear 4-byte-aligned pass over
// [address, address+size) that classifies every instruction address as
// a block start, a direct-jump target, or a call target. The returned
// set is
//
//	(labelBlocks \ labelJumps) ∪ labelCalls
//
// i.e. every address that starts a straight-line run and is never
// jumped to directly, plus every address any instruction in the segment
// calls — the function entry candidates handed to the CFG builder. decode
// resolves each instruction; a cache-backed DecodeFunc lets ScanEntries
// and the CFG builder share decoded words for the same segment.
func ScanEntries(decode ppc.DecodeFunc, address, size uint32) []uint32 {
	labelBlocks := map[uint32]bool{address: true}
	labelJumps := map[uint32]bool{}
	labelCalls := map[uint32]bool{}

	for pc := address; pc < address+size; pc += 4 {
		inst := decode(pc)
		next := pc + 4

		if !inst.Valid {
			continue
		}

		if !inst.IsBranch {
			continue
		}

		if inst.IsCall {
			if target, ok := inst.Target(pc); ok && target >= address && target < address+size {
				labelCalls[target] = true
			}
			// A call never ends the current straight-line run; it falls
			// through to the next instruction.
			continue
		}

		// A non-call branch ends the current block; whatever follows it
		// starts a new one.
		if next < address+size {
			labelBlocks[next] = true
			// A conditional branch's fall-through is reached from the
			// branch itself, so it is an internal label just like the
			// taken target.
			if inst.IsConditional {
				labelJumps[next] = true
			}
		}

		if inst.IsIndirectTerminal || inst.IsReturn {
			continue
		}

		target, ok := inst.Target(pc)
		if !ok || target < address || target >= address+size {
			continue
		}

		// A direct branch's target, conditional or not, is an internal
		// label of the function doing the branching, never a separate
		// function entry on its own.
		labelBlocks[target] = true
		labelJumps[target] = true
	}

	var entries []uint32
	seen := map[uint32]bool{}
	for addr := range labelBlocks {
		if labelJumps[addr] {
			continue
		}
		if !seen[addr] {
			seen[addr] = true
			entries = append(entries, addr)
		}
	}
	for addr := range labelCalls {
		if !seen[addr] {
			seen[addr] = true
			entries = append(entries, addr)
		}
	}

	return entries
}
