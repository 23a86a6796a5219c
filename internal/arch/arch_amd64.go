package arch

import "debug/elf"

func init() {
	register(&Info{
		Name:       "amd64",
		Machine:    elf.EM_X86_64,
		PageSize:   0x1000,
		WordSize:   8,
		PLTEntSize: 150,
		Classify:   classifyAMD64,
		Width:      widthAMD64,
	})
}

// widthAMD64 reports the field size R_X86_64_32/_32S/_PC32 actually write
// (4 bytes, not the native 8) and their range-check signedness; every
// other kind uses the full 8-byte word.
func widthAMD64(relocType uint32) (int, bool) {
	switch elf.R_X86_64(relocType) {
	case elf.R_X86_64_32:
		return 4, true
	case elf.R_X86_64_32S, elf.R_X86_64_PC32:
		return 4, false
	default:
		return 8, false
	}
}

func classifyAMD64(relocType uint32) RelocClass {
	switch elf.R_X86_64(relocType) {
	case elf.R_X86_64_NONE:
		return ClassNone
	case elf.R_X86_64_64, elf.R_X86_64_32, elf.R_X86_64_32S:
		return ClassAbsolute
	case elf.R_X86_64_PC32, elf.R_X86_64_PC64:
		return ClassPCRelative
	case elf.R_X86_64_RELATIVE:
		return ClassRelative
	case elf.R_X86_64_COPY:
		return ClassCopy
	case elf.R_X86_64_GLOB_DAT:
		return ClassGlobDat
	case elf.R_X86_64_JMP_SLOT:
		return ClassJumpSlot
	case elf.R_X86_64_IRELATIVE:
		return ClassIRelative
	case elf.R_X86_64_DTPMOD64:
		return ClassTLSModule
	case elf.R_X86_64_DTPOFF64, elf.R_X86_64_DTPOFF32:
		return ClassTLSOffset
	case elf.R_X86_64_TPOFF64, elf.R_X86_64_TPOFF32:
		return ClassTLSTPOffset
	case elf.R_X86_64_TLSDESC:
		return ClassTLSDesc
	default:
		return ClassUnknown
	}
}

// AMD64LandingPad builds the machine code for one PLT slot's lazy-binding
// stub. The caller has already loaded rdi/rsi/rdx/rcx/r8/r9, xmm0-7, and
// rax (the AL vector-count for variadic calls) with the real call's
// arguments before reaching the PLT; this stub needs rdi/rsi to pass
// (token, slot) to the resolver, and the resolver call itself may clobber
// any caller-saved register, so it saves the full SysV integer and vector
// argument set to the stack, resolves, restores everything, and only then
// tail-jumps — using r11 (never an argument register, the same scratch
// register real PLT stubs use) to carry the resolved address so rax stays
// untouched for the eventual callee.
//
//	50                        push   rax
//	57                        push   rdi
//	56                        push   rsi
//	52                        push   rdx
//	51                        push   rcx
//	41 50                     push   r8
//	41 51                     push   r9
//	48 81 EC 80 00 00 00      sub    rsp, 128
//	0F 11 44/4C/.../7C 24 nn  movups [rsp+16*n], xmm0..xmm7
//	48 B8 imm64               movabs rax, resolveEntry
//	48 BF imm64               movabs rdi, token
//	48 BE imm64               movabs rsi, slot
//	FF D0                     call   rax
//	49 89 C3                  mov    r11, rax
//	0F 10 44/4C/.../7C 24 nn  movups xmm0..xmm7, [rsp+16*n]
//	48 81 C4 80 00 00 00      add    rsp, 128
//	41 59 / 41 58             pop    r9 / r8
//	59 / 5A / 5E / 5F         pop    rcx / rdx / rsi / rdi
//	58                        pop    rax
//	41 FF E3                  jmp    r11
func AMD64LandingPad(resolveEntry uintptr, token, slot uint64) []byte {
	buf := make([]byte, 0, 150)
	buf = append(buf, 0x50)       // push rax
	buf = append(buf, 0x57)       // push rdi
	buf = append(buf, 0x56)       // push rsi
	buf = append(buf, 0x52)       // push rdx
	buf = append(buf, 0x51)       // push rcx
	buf = append(buf, 0x41, 0x50) // push r8
	buf = append(buf, 0x41, 0x51) // push r9
	buf = append(buf, 0x48, 0x81, 0xEC, 0x80, 0x00, 0x00, 0x00) // sub rsp, 128
	for i := 0; i < 8; i++ {
		buf = appendMovups(buf, 0x11, i, i*16) // store xmm[i] at [rsp+16*i]
	}

	buf = append(buf, 0x48, 0xB8)
	buf = appendLE64(buf, uint64(resolveEntry))
	buf = append(buf, 0x48, 0xBF)
	buf = appendLE64(buf, token)
	buf = append(buf, 0x48, 0xBE)
	buf = appendLE64(buf, slot)
	buf = append(buf, 0xFF, 0xD0)       // call rax
	buf = append(buf, 0x49, 0x89, 0xC3) // mov r11, rax

	for i := 0; i < 8; i++ {
		buf = appendMovups(buf, 0x10, i, i*16) // reload xmm[i] from [rsp+16*i]
	}
	buf = append(buf, 0x48, 0x81, 0xC4, 0x80, 0x00, 0x00, 0x00) // add rsp, 128
	buf = append(buf, 0x41, 0x59)       // pop r9
	buf = append(buf, 0x41, 0x58)       // pop r8
	buf = append(buf, 0x59)             // pop rcx
	buf = append(buf, 0x5A)             // pop rdx
	buf = append(buf, 0x5E)             // pop rsi
	buf = append(buf, 0x5F)             // pop rdi
	buf = append(buf, 0x58)             // pop rax
	buf = append(buf, 0x41, 0xFF, 0xE3) // jmp r11
	return buf
}

// appendMovups encodes `MOVUPS [rsp+disp8], xmmN` (opcode 0x11, store) or
// `MOVUPS xmmN, [rsp+disp8]` (opcode 0x10, load) — the ModRM/SIB pair is
// identical either way since rsp as a base always needs a SIB byte.
func appendMovups(buf []byte, opcode byte, xmmReg, disp int) []byte {
	modrm := byte(0x40 | (xmmReg << 3) | 0x04)
	return append(buf, 0x0F, opcode, modrm, 0x24, byte(disp))
}

func appendLE64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56),
	)
}

func currentArchInfo() (*Info, bool) {
	i, ok := registry[elf.EM_X86_64]
	return i, ok
}
