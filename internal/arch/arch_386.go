package arch

import "debug/elf"

func init() {
	register(&Info{
		Name:     "386",
		Machine:  elf.EM_386,
		PageSize: 0x1000,
		WordSize: 4,
		// PLTEntSize 0 signals to internal/trampoline that lazy binding has
		// no landing-pad template on this architecture; 386 images can
		// still be loaded, only BIND_NOW (eager) relocation is supported.
		PLTEntSize: 0,
		Classify:   classify386,
		Width:      widthDefault,
	})
}

// widthDefault reports the native word width for every relocation kind:
// 386's word size is already 4 bytes, so there is no narrower field to
// distinguish.
func widthDefault(relocType uint32) (int, bool) { return 4, false }

func classify386(relocType uint32) RelocClass {
	switch elf.R_386(relocType) {
	case elf.R_386_NONE:
		return ClassNone
	case elf.R_386_32:
		return ClassAbsolute
	case elf.R_386_PC32:
		return ClassPCRelative
	case elf.R_386_RELATIVE:
		return ClassRelative
	case elf.R_386_COPY:
		return ClassCopy
	case elf.R_386_GLOB_DAT:
		return ClassGlobDat
	case elf.R_386_JMP_SLOT:
		return ClassJumpSlot
	case elf.R_386_IRELATIVE:
		return ClassIRelative
	case elf.R_386_TLS_DTPMOD32:
		return ClassTLSModule
	case elf.R_386_TLS_DTPOFF32:
		return ClassTLSOffset
	case elf.R_386_TLS_TPOFF, elf.R_386_TLS_TPOFF32:
		return ClassTLSTPOffset
	default:
		return ClassUnknown
	}
}

func currentArchInfo() (*Info, bool) {
	i, ok := registry[elf.EM_386]
	return i, ok
}
