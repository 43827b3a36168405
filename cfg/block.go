// Package cfg builds a per-function control-flow graph from decoded
// instructions and classifies each function's calling-convention
// signature from register liveness on its entry path.
package cfg

// Block is a maximal straight-line run of instructions. A Block holds no
// reference to its parent Function at all: its only link is its own
// integer Address, the key the owning Function's Blocks map stores it
// under, avoiding a pointer cycle.
type Block struct {
	Address uint32
	Size    uint32

	// BranchA is the taken edge for a conditional branch, or the sole
	// successor of an unconditional branch. Zero means none.
	BranchA uint32
	// BranchB is the fall-through edge of a conditional branch. Zero
	// means none; always zero for unconditional branches.
	BranchB uint32

	// Recompiled is the lowering worklist's "already processed" guard.
	Recompiled bool
}

// End returns the address one past the block's last byte.
func (b *Block) End() uint32 { return b.Address + b.Size }

// Contains reports whether addr falls strictly inside the block,
// excluding its own start address — the test used to decide whether a
// label must split this block.
func (b *Block) Contains(addr uint32) bool {
	return b.Address < addr && addr < b.End()
}

// Split reports whether this block must be stitched to the block at
// Address+Size during lowering. A block is split exactly when neither
// successor was resolved — which includes single-block stubs ending in
// bcctr, even though that instruction is itself a branch.
func (b *Block) Split() bool {
	return b.BranchA == 0 && b.BranchB == 0
}

// Successors returns the block's non-zero successor addresses, in
// BranchA, BranchB order.
func (b *Block) Successors() []uint32 {
	var out []uint32
	if b.BranchA != 0 {
		out = append(out, b.BranchA)
	}
	if b.BranchB != 0 {
		out = append(out, b.BranchB)
	}
	return out
}
