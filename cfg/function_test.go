package cfg_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cellforge/ppuxlate/cfg"
)

// fakeMemory is a flat guest address space backed by a map, with every
// unmapped word defaulting to a blr (0x4E800020) so a runaway walk
// terminates instead of looping through zero words forever.
type fakeMemory map[uint32]uint32

func (m fakeMemory) Read32(addr uint32) uint32 {
	if w, ok := m[addr]; ok {
		return w
	}
	return 0x4E800020
}

func nop() uint32 { return uint32(31)<<26 | uint32(444)<<1 } // or r0,r0,r0

func blr() uint32 { return 0x4E800020 }

func bctr() uint32 { return uint32(19)<<26 | uint32(20)<<21 | uint32(528)<<1 }

// b encodes an unconditional branch from addr to target (LK=0, AA=0).
func b(addr, target uint32) uint32 {
	disp := int32(target) - int32(addr)
	li := uint32(disp/4) & 0xFFFFFF
	return uint32(18)<<26 | li<<2
}

// bl encodes an unconditional call from addr to target (LK=1, AA=0).
func bl(addr, target uint32) uint32 {
	return b(addr, target) | 1
}

// bc encodes a conditional branch (BO != always) from addr to target.
func bc(addr, target uint32, bo, bi uint8) uint32 {
	disp := int32(target) - int32(addr)
	bd := uint32(disp/4) & 0x3FFF
	return uint32(16)<<26 | uint32(bo)<<21 | uint32(bi)<<16 | bd<<2
}

var bounds = cfg.Bounds{Address: 0, Size: 0x10000}

var _ = Describe("Analyze", func() {
	It("builds a single straight-line block for a function ending in blr", func() {
		mem := fakeMemory{
			0x1000: nop(),
			0x1004: nop(),
			0x1008: blr(),
		}

		fn, err := cfg.Analyze(mem, bounds, 0x1000, nil, cfg.AnalyzeOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(fn.Blocks).To(HaveLen(1))

		blk := fn.Blocks[0x1000]
		Expect(blk.Size).To(Equal(uint32(12)))
		Expect(blk.Split()).To(BeTrue())
		Expect(blk.Successors()).To(BeEmpty())
	})

	It("splits a block when a conditional branch targets its own interior", func() {
		mem := fakeMemory{
			0x1000: nop(),
			0x1004: nop(),
			0x1008: bc(0x1008, 0x1004, 12, 2), // backward, into the middle of 0x1000's run
			0x100C: blr(),
		}

		fn, err := cfg.Analyze(mem, bounds, 0x1000, nil, cfg.AnalyzeOptions{})
		Expect(err).NotTo(HaveOccurred())

		// head (0x1000, truncated by the split), tail (0x1004, carved
		// out of head, keeping the bc terminator), and the fall-through
		// block at 0x100C (the blr).
		Expect(fn.Blocks).To(HaveLen(3))

		head := fn.Blocks[0x1000]
		Expect(head.Size).To(Equal(uint32(4)))
		Expect(head.BranchA).To(Equal(uint32(0x1004)))
		Expect(head.BranchB).To(Equal(uint32(0)))

		tail := fn.Blocks[0x1004]
		Expect(tail.Address).To(Equal(uint32(0x1004)))
		Expect(tail.Size).To(Equal(uint32(8)))
		Expect(tail.BranchA).To(Equal(uint32(0x1004)))
		Expect(tail.BranchB).To(Equal(uint32(0x100C)))

		Expect(fn.Blocks).To(HaveKey(uint32(0x100C)))
	})

	It("gives a conditional branch two successors: taken and fall-through", func() {
		mem := fakeMemory{
			0x1000: bc(0x1000, 0x2000, 12, 2), // BO=12 is not "always"
			0x1004: nop(),
			0x1008: blr(),
			0x2000: nop(),
			0x2004: blr(),
		}

		fn, err := cfg.Analyze(mem, bounds, 0x1000, nil, cfg.AnalyzeOptions{})
		Expect(err).NotTo(HaveOccurred())

		entry := fn.Blocks[0x1000]
		Expect(entry.BranchA).To(Equal(uint32(0x2000)))
		Expect(entry.BranchB).To(Equal(uint32(0x1004)))
		Expect(entry.Split()).To(BeFalse())

		Expect(fn.Blocks).To(HaveKey(uint32(0x1004)))
		Expect(fn.Blocks).To(HaveKey(uint32(0x2000)))
	})

	It("terminates cleanly on a backward branch to its own block start", func() {
		mem := fakeMemory{
			0x1000: nop(),
			0x1004: b(0x1004, 0x1000), // loop back to the block's own label
		}

		fn, err := cfg.Analyze(mem, bounds, 0x1000, nil, cfg.AnalyzeOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(fn.Blocks).To(HaveLen(1))

		blk := fn.Blocks[0x1000]
		Expect(blk.BranchA).To(Equal(uint32(0x1000)))
	})

	It("treats a single-block stub ending in bcctr as split with no successors", func() {
		mem := fakeMemory{
			0x1000: nop(),
			0x1004: bctr(),
		}

		fn, err := cfg.Analyze(mem, bounds, 0x1000, nil, cfg.AnalyzeOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(fn.Blocks).To(HaveLen(1))

		blk := fn.Blocks[0x1000]
		Expect(blk.Split()).To(BeTrue())
		Expect(blk.Successors()).To(BeEmpty())
	})

	It("truncates a function's growth at a sibling function's entry point", func() {
		mem := fakeMemory{
			0x1000: nop(),
			0x1004: nop(), // no terminating branch before the sibling's entry
			0x1008: nop(), // this belongs to function B, not A
			0x100C: blr(),
		}

		fn, err := cfg.Analyze(mem, bounds, 0x1000, []uint32{0x1008}, cfg.AnalyzeOptions{})
		Expect(err).NotTo(HaveOccurred())

		blk := fn.Blocks[0x1000]
		Expect(blk.End()).To(Equal(uint32(0x1008)))
		Expect(blk.Successors()).To(BeEmpty())
		Expect(fn.Blocks).NotTo(HaveKey(uint32(0x1008)))
	})

	It("calls do not terminate a block", func() {
		mem := fakeMemory{
			0x1000: bl(0x1000, 0x5000),
			0x1004: nop(),
			0x1008: blr(),
			0x5000: blr(),
		}

		fn, err := cfg.Analyze(mem, bounds, 0x1000, nil, cfg.AnalyzeOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(fn.Blocks).To(HaveLen(1))
		Expect(fn.Blocks[0x1000].Size).To(Equal(uint32(12)))
	})

	It("rejects a branch target outside the segment bounds", func() {
		mem := fakeMemory{
			0x1000: b(0x1000, 0x20000),
		}
		narrow := cfg.Bounds{Address: 0, Size: 0x2000}

		_, err := cfg.Analyze(mem, narrow, 0x1000, nil, cfg.AnalyzeOptions{})
		Expect(err).To(HaveOccurred())

		var oob *cfg.OutOfBoundsError
		Expect(err).To(BeAssignableToTypeOf(oob))
	})

	It("gives up once a function's blocks grow past MaxFunctionSize", func() {
		mem := fakeMemory{
			0x1000: nop(),
			0x1004: nop(),
			0x1008: nop(),
			0x100C: blr(),
		}

		_, err := cfg.Analyze(mem, bounds, 0x1000, nil, cfg.AnalyzeOptions{MaxFunctionSize: 8})
		Expect(err).To(HaveOccurred())

		var tooLarge *cfg.FunctionTooLargeError
		Expect(err).To(BeAssignableToTypeOf(tooLarge))
	})
})

var _ = Describe("Classify", func() {
	It("infers an integer argument read before any write and an integer return", func() {
		mem := fakeMemory{
			0x1000: encodeOr(0, 3, 3), // reads r0 and r3, writes r3
			0x1004: encodeOr(3, 0, 0), // reads r3 (post-write) and r0, writes r0
			0x1008: blr(),
		}

		fn, err := cfg.Analyze(mem, bounds, 0x1000, nil, cfg.AnalyzeOptions{})
		Expect(err).NotTo(HaveOccurred())

		cfg.Classify(mem, fn, nil, nil)
		Expect(fn.TypeIn).To(Equal([]cfg.ArgType{cfg.ArgInteger}))
		Expect(fn.TypeOut).To(Equal(cfg.RetInteger))
	})

	It("infers VOID when nothing is written on the entry path", func() {
		mem := fakeMemory{
			0x1000: nop(),
			0x1004: blr(),
		}

		fn, err := cfg.Analyze(mem, bounds, 0x1000, nil, cfg.AnalyzeOptions{})
		Expect(err).NotTo(HaveOccurred())

		cfg.Classify(mem, fn, nil, nil)
		Expect(fn.TypeOut).To(Equal(cfg.RetVoid))
	})
})

// encodeOr encodes "or ra, rt, rb" (primary 31, extended 444): rt fills
// the RS source field, ra the RA destination field, rb the RB field.
func encodeOr(rt, ra, rb uint8) uint32 {
	return uint32(31)<<26 | uint32(rt)<<21 | uint32(ra)<<16 | uint32(rb)<<11 | uint32(444)<<1
}
