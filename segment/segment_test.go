package segment_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cellforge/ppuxlate/cfg"
	"github.com/cellforge/ppuxlate/dcache"
	"github.com/cellforge/ppuxlate/ir"
	"github.com/cellforge/ppuxlate/ppc"
	"github.com/cellforge/ppuxlate/segment"
)

func encodeOr(rt, ra, rb uint8) uint32 {
	return uint32(31)<<26 | uint32(rt)<<21 | uint32(ra)<<16 | uint32(rb)<<11 | uint32(444)<<1
}

var _ = Describe("Analyze", func() {
	It("discovers two functions and classifies the caller's integer argument", func() {
		mem := fakeMemory{
			0x1000: encodeOr(0, 3, 3), // reads r0,r3, writes r3
			0x1004: bl(0x1004, 0x1020),
			0x1008: blr(),
			0x1020: nop(),
			0x1024: blr(),
		}

		seg, err := segment.Analyze(mem, 0x1000, 0x40, segment.Options{})
		Expect(err).NotTo(HaveOccurred())

		Expect(seg.Functions).To(HaveKey(uint32(0x1000)))
		Expect(seg.Functions).To(HaveKey(uint32(0x1020)))

		caller := seg.Functions[0x1000]
		Expect(caller.TypeIn).To(Equal([]cfg.ArgType{cfg.ArgInteger}))
		Expect(caller.TypeOut).To(Equal(cfg.RetInteger))
	})

	It("gives up on a function once it grows past MaxFunctionSize", func() {
		mem := fakeMemory{
			0x1000: nop(),
			0x1004: nop(),
			0x1008: nop(),
			0x100C: blr(),
		}

		var skipped uint32
		opts := segment.Options{
			MaxFunctionSize: 8,
			OnUnknownFunction: func(entry uint32, err error) {
				skipped = entry
			},
		}

		seg, err := segment.Analyze(mem, 0x1000, 0x40, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(skipped).To(Equal(uint32(0x1000)))
		Expect(seg.Functions).NotTo(HaveKey(uint32(0x1000)))
	})

	It("routes decode through the shared cache when one is configured", func() {
		mem := fakeMemory{
			0x1000: nop(),
			0x1004: blr(),
		}

		cache := dcache.New(dcache.DefaultConfig())
		_, err := segment.Analyze(mem, 0x1000, 0x40, segment.Options{Cache: cache})
		Expect(err).NotTo(HaveOccurred())
		Expect(cache.Stats().Lookups).To(BeNumerically(">", 0))
	})

	It("warns once per unknown opcode during classification", func() {
		mem := fakeMemory{
			0x1000: 0xFFFFFFFF, // never decodes to a known mnemonic
			0x1004: blr(),
		}

		var warned []uint32
		opts := segment.Options{
			WarnUnknownOpcode: func(addr uint32, inst ppc.Instruction) {
				warned = append(warned, addr)
			},
		}

		_, err := segment.Analyze(mem, 0x1000, 0x40, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(warned).To(Equal([]uint32{0x1000}))
	})
})

var _ = Describe("Translate", func() {
	It("lowers every discovered function into the reference module without error", func() {
		mem := fakeMemory{
			0x1000: encodeOr(0, 3, 3),
			0x1004: blr(),
			0x1020: nop(),
			0x1024: blr(),
		}

		seg, err := segment.Analyze(mem, 0x1000, 0x40, segment.Options{})
		Expect(err).NotTo(HaveOccurred())

		err = segment.Translate("demo", ir.NewReferenceModule, seg, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(seg.Module).NotTo(BeNil())
		dump := seg.Module.Dump()
		Expect(dump).To(ContainSubstring("fn_00001000"))
	})

	It("walks every instruction in a block during recompilation, not just its terminator", func() {
		mem := fakeMemory{
			0x1000: 0xFFFFFFFF, // unknown opcode, mid-block
			0x1004: blr(),
		}

		var warned []uint32
		opts := segment.Options{
			WarnUnknownOpcode: func(addr uint32, inst ppc.Instruction) {
				warned = append(warned, addr)
			},
		}

		seg, err := segment.Analyze(mem, 0x1000, 0x40, opts)
		Expect(err).NotTo(HaveOccurred())

		warned = nil
		err = segment.Translate("demo", ir.NewReferenceModule, seg, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(warned).To(ContainElement(uint32(0x1000)))
	})
})
