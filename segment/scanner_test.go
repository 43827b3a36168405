package segment_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cellforge/ppuxlate/ppc"
	"github.com/cellforge/ppuxlate/segment"
)

type fakeMemory map[uint32]uint32

func (m fakeMemory) Read32(addr uint32) uint32 {
	if w, ok := m[addr]; ok {
		return w
	}
	return 0x4E800020 // blr
}

func nop() uint32 { return uint32(31)<<26 | uint32(444)<<1 }
func blr() uint32 { return 0x4E800020 }

func b(addr, target uint32) uint32 {
	disp := int32(target) - int32(addr)
	li := uint32(disp/4) & 0xFFFFFF
	return uint32(18)<<26 | li<<2
}

func bl(addr, target uint32) uint32 { return b(addr, target) | 1 }

func bc(addr, target uint32, bo, bi uint8) uint32 {
	disp := int32(target) - int32(addr)
	bd := uint32(disp/4) & 0x3FFF
	return uint32(16)<<26 | uint32(bo)<<21 | uint32(bi)<<16 | bd<<2
}

func decodeOf(mem fakeMemory) ppc.DecodeFunc {
	dec := ppc.NewDecoder()
	return func(addr uint32) ppc.Instruction { return dec.Decode(mem.Read32(addr)) }
}

var _ = Describe("ScanEntries", func() {
	It("finds a called function's entry even though it is never the segment start", func() {
		mem := fakeMemory{
			0x1000: bl(0x1000, 0x1020),
			0x1004: blr(),
			0x1020: nop(),
			0x1024: blr(),
		}

		entries := segment.ScanEntries(decodeOf(mem), 0x1000, 0x40)
		Expect(entries).To(ContainElement(uint32(0x1000)))
		Expect(entries).To(ContainElement(uint32(0x1020)))
	})

	It("excludes an internal conditional-branch label from the entry set", func() {
		mem := fakeMemory{
			0x1000: bc(0x1000, 0x1010, 12, 2),
			0x1004: nop(),
			0x1008: nop(),
			0x100C: blr(),
			0x1010: nop(),
			0x1014: blr(),
		}

		entries := segment.ScanEntries(decodeOf(mem), 0x1000, 0x40)
		Expect(entries).To(ContainElement(uint32(0x1000)))
		Expect(entries).NotTo(ContainElement(uint32(0x1010)))
	})
})
