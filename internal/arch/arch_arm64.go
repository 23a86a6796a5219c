package arch

import "debug/elf"

func init() {
	register(&Info{
		Name:       "arm64",
		Machine:    elf.EM_AARCH64,
		PageSize:   0x1000,
		WordSize:   8,
		PLTEntSize: 132,
		Classify:   classifyARM64,
		Width:      widthARM64,
	})
}

// widthARM64 reports the field size R_AARCH64_ABS32/_PREL32 actually write
// (4 bytes, not the native 8, both signed range checks); every other kind
// uses the full 8-byte word.
func widthARM64(relocType uint32) (int, bool) {
	switch elf.R_AARCH64(relocType) {
	case elf.R_AARCH64_ABS32, elf.R_AARCH64_PREL32:
		return 4, false
	default:
		return 8, false
	}
}

func classifyARM64(relocType uint32) RelocClass {
	switch elf.R_AARCH64(relocType) {
	case elf.R_AARCH64_NONE:
		return ClassNone
	case elf.R_AARCH64_ABS64, elf.R_AARCH64_ABS32:
		return ClassAbsolute
	case elf.R_AARCH64_PREL64, elf.R_AARCH64_PREL32:
		return ClassPCRelative
	case elf.R_AARCH64_RELATIVE:
		return ClassRelative
	case elf.R_AARCH64_COPY:
		return ClassCopy
	case elf.R_AARCH64_GLOB_DAT:
		return ClassGlobDat
	case elf.R_AARCH64_JUMP_SLOT:
		return ClassJumpSlot
	case elf.R_AARCH64_IRELATIVE:
		return ClassIRelative
	case elf.R_AARCH64_TLS_DTPMOD64:
		return ClassTLSModule
	case elf.R_AARCH64_TLS_DTPREL64:
		return ClassTLSOffset
	case elf.R_AARCH64_TLS_TPREL64:
		return ClassTLSTPOffset
	case elf.R_AARCH64_TLSDESC:
		return ClassTLSDesc
	default:
		return ClassUnknown
	}
}

// ARM64LandingPad builds the lazy-binding stub for one PLT slot under
// AAPCS64. x0-x7 are the integer/pointer argument registers the caller
// just set up for the real call; since this stub has to clobber x0/x1 to
// pass (token, slot) to the resolver, and the resolver call itself may
// clobber any of x0-x7, it saves all eight to the stack first and
// restores them afterward, so the eventually-jumped-to function sees its
// arguments exactly as the caller left them. x16 (IP0) is AAPCS64's
// reserved intra-procedure-call scratch register, used here both to hold
// the resolve entry point and, after the call, the resolved target — it
// is never part of the argument set so it needs no save/restore.
func ARM64LandingPad(resolveEntry uintptr, token, slot uint64) []byte {
	var buf []byte
	buf = append(buf, armWord(0xD10103FF)...) // sub sp, sp, #64
	for reg := 0; reg < 8; reg++ {
		buf = append(buf, armWord(strXImm(reg, reg*8))...)
	}
	buf = append(buf, movImm64(16, uint64(resolveEntry))...) // x16 = resolveEntry
	buf = append(buf, movImm64(0, token)...)                 // x0 = token
	buf = append(buf, movImm64(1, slot)...)                  // x1 = slot
	buf = append(buf, armWord(0xD63F0000|(16<<5))...)        // blr x16
	buf = append(buf, armWord(0xAA0003F0)...)                // mov x16, x0 (resolved target)
	for reg := 7; reg >= 0; reg-- {
		buf = append(buf, armWord(ldrXImm(reg, reg*8))...)
	}
	buf = append(buf, armWord(0x910103FF)...)         // add sp, sp, #64
	buf = append(buf, armWord(0xD61F0000|(16<<5))...) // br x16
	return buf
}

// strXImm/ldrXImm encode STR/LDR Xt, [sp, #offsetBytes] (unsigned
// immediate offset, scaled by 8 for the 64-bit register size).
func strXImm(rt, offsetBytes int) uint32 {
	return 0xF9000000 | (uint32(offsetBytes/8) << 10) | (31 << 5) | uint32(rt)
}

func ldrXImm(rt, offsetBytes int) uint32 {
	return 0xF9400000 | (uint32(offsetBytes/8) << 10) | (31 << 5) | uint32(rt)
}

func armWord(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}

// movImm64 emits MOVZ followed by three MOVK instructions loading a
// full 64-bit immediate into Xd, least-significant 16 bits first.
func movImm64(reg uint32, imm uint64) []byte {
	var out []byte
	for chunk := 0; chunk < 4; chunk++ {
		hw := uint32(chunk)
		imm16 := uint32(imm>>(16*chunk)) & 0xFFFF
		var opc uint32
		if chunk == 0 {
			opc = 0b10 // MOVZ
		} else {
			opc = 0b11 // MOVK
		}
		word := (uint32(1) << 31) | (opc << 29) | (0b100101 << 23) | (hw << 21) | (imm16 << 5) | reg
		out = append(out, armWord(word)...)
	}
	return out
}

func currentArchInfo() (*Info, bool) {
	i, ok := registry[elf.EM_AARCH64]
	return i, ok
}
