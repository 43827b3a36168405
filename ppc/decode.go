// Package ppc decodes 32-bit big-endian PowerPC instruction words and
// classifies their branch/call structure. It has no mutable state: every
// word maps to exactly one Instruction value.
package ppc

// Reg identifies a register within one of the guest register files.
type Reg = uint8

// Form names the branch encoding family of a decoded instruction, when it
// is a branch at all.
type Form uint8

// Branch forms. NoBranch is also the zero value for non-branch instructions.
const (
	NoBranch Form = iota
	FormB              // unconditional branch (primary 18)
	FormBC             // branch conditional (primary 16)
	FormBCLR           // branch conditional to link register (primary 19, ext 16)
	FormBCCTR          // branch conditional to count register (primary 19, ext 528)
)

// Instruction is a decoded 32-bit PowerPC word together with the
// structural predicates a translator needs. It carries no reference to the
// word's address; Target takes the instruction's own PC explicitly.
type Instruction struct {
	Raw   uint32
	Valid bool

	// Branch classification. Form is NoBranch for everything else.
	Form          Form
	IsBranch      bool
	IsConditional bool
	IsUnconditional bool
	IsCall        bool // link register is spilled (LK=1)
	IsReturn      bool // branch-to-link-register with no link
	// IsIndirectTerminal marks the bcctr case (primary=0x13,
	// extended=0x210). It is a branch with no computable target; blocks
	// ending in it are terminal.
	IsIndirectTerminal bool

	LK bool
	AA bool
	BO uint8
	BI uint8

	// Displacement is the signed branch offset in bytes, valid when the
	// branch form carries an immediate target (FormB, FormBC).
	Displacement int32
	// AbsoluteTarget is valid when AA is set.
	AbsoluteTarget uint32

	// Non-branch operand fields. Only the opcodes ppc populates a handler
	// for ever set these; everything else leaves them zero.
	Rt, Ra, Rb, Rc    Reg
	Frt, Fra, Frb     Reg
	Vrt, Vra, Vrb     Reg
	Spr               uint16
	Imm               int64
	Mnemonic          string
}

// Target computes the absolute guest address of the taken edge for a
// direct branch (FormB, FormBC). It returns false for non-branches and
// for the register-indirect forms: bclr (with or without link) and the
// indirect-terminal bcctr case.
func (i Instruction) Target(pc uint32) (uint32, bool) {
	if !i.IsBranch || i.IsIndirectTerminal || i.IsReturn {
		return 0, false
	}
	if i.Form != FormB && i.Form != FormBC {
		return 0, false
	}
	if i.AA {
		return i.AbsoluteTarget, true
	}
	return uint32(int64(pc) + int64(i.Displacement)), true
}

// Decoder decodes guest words into Instruction values. It holds no state;
// NewDecoder exists to mirror the construction idiom used throughout this
// codebase's other components.
type Decoder struct{}

// NewDecoder returns a Decoder. Decoders are stateless and may be shared
// across goroutines, though a single translation never does so.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeFunc resolves the instruction at a guest address. It abstracts
// over a plain decode-on-every-call and a cache-backed lookup, so
// callers that walk guest code don't need to know which one they hold.
type DecodeFunc func(addr uint32) Instruction

// Decode classifies a 32-bit big-endian PowerPC instruction word.
func (d *Decoder) Decode(word uint32) Instruction {
	primary := uint8(word >> 26)

	switch primary {
	case 18:
		return decodeB(word)
	case 16:
		return decodeBC(word)
	case 19:
		return decodeXL19(word)
	case 14:
		return decodeAddi(word)
	case 24:
		return decodeOri(word)
	case 11:
		return decodeCmpi(word)
	case 21:
		return decodeRlwinm(word)
	case 32:
		return decodeLoadStore(word, "lwz", true, false)
	case 36:
		return decodeLoadStore(word, "stw", false, false)
	case 58:
		return decodeLoadStore(word, "ld", true, false)
	case 62:
		return decodeLoadStore(word, "std", false, false)
	case 48:
		return decodeLoadStore(word, "lfs", true, true)
	case 50:
		return decodeLoadStore(word, "lfd", true, true)
	case 52:
		return decodeLoadStore(word, "stfs", false, true)
	case 54:
		return decodeLoadStore(word, "stfd", false, true)
	case 4:
		return decodeVX4(word)
	case 31:
		return decodeX31(word)
	case 63:
		return decodeXFP63(word)
	default:
		return Instruction{Raw: word, Valid: false}
	}
}

// xfields extracts the X-form register fields common to many 31-primary
// forms: the 6-10 field (RT/RS), the 11-15 field (RA), and the 16-20 field
// (RB), plus the 21-30 extended opcode and the trailing Rc bit.
func xfields(word uint32) (f1, f2, f3 uint8, ext uint16, rc bool) {
	f1 = uint8((word >> 21) & 0x1F)
	f2 = uint8((word >> 16) & 0x1F)
	f3 = uint8((word >> 11) & 0x1F)
	ext = uint16((word >> 1) & 0x3FF)
	rc = word&0x1 == 1
	return
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func decodeB(word uint32) Instruction {
	li := (word >> 2) & 0xFFFFFF
	disp := signExtend(li, 24) * 4
	aa := (word>>1)&1 == 1
	lk := word&1 == 1

	inst := Instruction{
		Raw: word, Valid: true,
		Form: FormB, IsBranch: true, IsUnconditional: true,
		IsCall: lk, LK: lk, AA: aa,
		Displacement: disp,
		Mnemonic:     "b",
	}
	if aa {
		inst.AbsoluteTarget = uint32(disp)
	}
	return inst
}

func decodeBC(word uint32) Instruction {
	bo := uint8((word >> 21) & 0x1F)
	bi := uint8((word >> 16) & 0x1F)
	bd := (word >> 2) & 0x3FFF
	disp := signExtend(bd, 14) * 4
	aa := (word>>1)&1 == 1
	lk := word&1 == 1
	unconditional := isAlwaysBO(bo)

	inst := Instruction{
		Raw: word, Valid: true,
		Form: FormBC, IsBranch: true,
		IsConditional:   !unconditional,
		IsUnconditional: unconditional,
		IsCall:          lk, LK: lk, AA: aa, BO: bo, BI: bi,
		Displacement: disp,
		Mnemonic:     "bc",
	}
	if aa {
		inst.AbsoluteTarget = uint32(disp)
	}
	return inst
}

// decodeXL19 decodes the two XL-form branches that share primary opcode
// 19: bclr (branch to link register) and bcctr (branch to count
// register).
func decodeXL19(word uint32) Instruction {
	bo := uint8((word >> 21) & 0x1F)
	bi := uint8((word >> 16) & 0x1F)
	ext := uint16((word >> 1) & 0x3FF)
	lk := word&1 == 1
	unconditional := isAlwaysBO(bo)

	switch ext {
	case 16: // bclr
		return Instruction{
			Raw: word, Valid: true,
			Form: FormBCLR, IsBranch: true,
			IsConditional:   !unconditional,
			IsUnconditional: unconditional,
			IsCall:          lk,
			IsReturn:        !lk,
			LK:              lk, BO: bo, BI: bi,
			Mnemonic: "bclr",
		}
	case 528: // bcctr - primary 0x13, extended 0x210
		return Instruction{
			Raw: word, Valid: true,
			Form: FormBCCTR, IsBranch: true,
			IsIndirectTerminal: true,
			IsCall:             lk,
			LK:                 lk, BO: bo, BI: bi,
			Mnemonic: "bcctr",
		}
	default:
		return Instruction{Raw: word, Valid: false}
	}
}

// isAlwaysBO reports whether a BO field encodes "branch always",
// ignoring both the condition register and the count register. This is
// the BO=0b1z1zz pattern; compilers emit BO=20 (0b10100) for plain
// unconditional bc/bclr/bcctr.
func isAlwaysBO(bo uint8) bool {
	return bo&0b10100 == 0b10100
}

func decodeAddi(word uint32) Instruction {
	rt := uint8((word >> 21) & 0x1F)
	ra := uint8((word >> 16) & 0x1F)
	imm := int64(int16(word & 0xFFFF))
	return Instruction{
		Raw: word, Valid: true,
		Rt: rt, Ra: ra, Imm: imm,
		Mnemonic: "addi",
	}
}

func decodeOri(word uint32) Instruction {
	rs := uint8((word >> 21) & 0x1F)
	ra := uint8((word >> 16) & 0x1F)
	imm := int64(uint16(word & 0xFFFF))
	return Instruction{
		Raw: word, Valid: true,
		Rt: ra, Ra: rs, Imm: imm,
		Mnemonic: "ori",
	}
}

func decodeCmpi(word uint32) Instruction {
	ra := uint8((word >> 16) & 0x1F)
	imm := int64(int16(word & 0xFFFF))
	return Instruction{
		Raw: word, Valid: true,
		Ra: ra, Imm: imm,
		Mnemonic: "cmpi",
	}
}

func decodeRlwinm(word uint32) Instruction {
	rs := uint8((word >> 21) & 0x1F)
	ra := uint8((word >> 16) & 0x1F)
	return Instruction{
		Raw: word, Valid: true,
		Rt: ra, Ra: rs,
		Mnemonic: "rlwinm",
	}
}

// decodeLoadStore handles the D-form integer/float load and store
// opcodes. isLoad selects whether Rt/Frt is written (load) or read
// (store); isFloat selects the FPR file over the GPR file.
func decodeLoadStore(word uint32, mnemonic string, isLoad, isFloat bool) Instruction {
	rt := uint8((word >> 21) & 0x1F)
	ra := uint8((word >> 16) & 0x1F)
	imm := int64(int16(word & 0xFFFF))

	inst := Instruction{Raw: word, Valid: true, Ra: ra, Imm: imm, Mnemonic: mnemonic}
	if isFloat {
		inst.Frt = rt
	} else {
		inst.Rt = rt
	}
	_ = isLoad // the analyzer, not the decoder, distinguishes read vs write
	return inst
}

// decodeVX4 handles the AltiVec VX-form vector instructions living under
// primary opcode 4 (e.g. vor).
func decodeVX4(word uint32) Instruction {
	vrt := uint8((word >> 21) & 0x1F)
	vra := uint8((word >> 16) & 0x1F)
	vrb := uint8((word >> 11) & 0x1F)
	ext := uint16(word & 0x7FF)

	switch ext {
	case 1156: // vor
		return Instruction{
			Raw: word, Valid: true,
			Vrt: vrt, Vra: vra, Vrb: vrb,
			Mnemonic: "vor",
		}
	default:
		return Instruction{Raw: word, Valid: false}
	}
}

// decodeX31 handles the X-form/XO-form instructions under primary opcode
// 31: add, or, mtspr, mfspr, lvx, stvx.
func decodeX31(word uint32) Instruction {
	f1, f2, f3, ext, _ := xfields(word)

	switch ext {
	case 444: // or
		return Instruction{Raw: word, Valid: true, Rt: f2, Ra: f1, Rb: f3, Mnemonic: "or"}
	case 266: // add
		return Instruction{Raw: word, Valid: true, Rt: f1, Ra: f2, Rb: f3, Mnemonic: "add"}
	case 467: // mtspr
		return Instruction{Raw: word, Valid: true, Rt: f1, Spr: decodeSpr(f2, f3), Mnemonic: "mtspr"}
	case 339: // mfspr
		return Instruction{Raw: word, Valid: true, Rt: f1, Spr: decodeSpr(f2, f3), Mnemonic: "mfspr"}
	case 103: // lvx
		return Instruction{Raw: word, Valid: true, Vrt: f1, Ra: f2, Rb: f3, Mnemonic: "lvx"}
	case 231: // stvx
		return Instruction{Raw: word, Valid: true, Vrt: f1, Ra: f2, Rb: f3, Mnemonic: "stvx"}
	default:
		return Instruction{Raw: word, Valid: false}
	}
}

// decodeSpr reassembles the 10-bit SPR number from its two swapped
// 5-bit halves, as PowerPC's mtspr/mfspr encode it.
func decodeSpr(lo5, hi5 uint8) uint16 {
	return uint16(hi5)<<5 | uint16(lo5)
}

// decodeXFP63 handles the X-form floating point ops under primary 63
// (fmr).
func decodeXFP63(word uint32) Instruction {
	f1, _, f3, ext, _ := xfields(word)

	switch ext {
	case 72: // fmr
		return Instruction{Raw: word, Valid: true, Frt: f1, Frb: f3, Mnemonic: "fmr"}
	default:
		return Instruction{Raw: word, Valid: false}
	}
}

// SPR numbers tracked by the register-usage analyzer. They are tracked
// for completeness but never feed the ABI classifier.
const (
	SprLR  = 8
	SprCTR = 9
)
