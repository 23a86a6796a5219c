// Package arch holds the per-architecture constants the rest of elfdyn is
// parameterised over: page size, the machine code an image must declare,
// the relocation-kind dispatch table, and the lazy-PLT landing-pad
// template. It carries no TLS layout constants. Selection is compile-time
// (one file per GOARCH)
// rather than a runtime table, so the relocation hot path stays monomorphic.
package arch

import "debug/elf"

// RelocClass buckets a relocation kind into the application order spec'd
// for the engine: copy relocations first, then data, then PLT/JUMP_SLOT.
type RelocClass int

const (
	ClassUnknown RelocClass = iota
	ClassNone
	ClassAbsolute
	ClassPCRelative
	ClassRelative
	ClassCopy
	ClassGlobDat
	ClassJumpSlot
	ClassIRelative
	ClassTLSModule
	ClassTLSOffset
	ClassTLSTPOffset
	ClassTLSDesc
)

// Info describes one supported architecture.
type Info struct {
	Name       string
	Machine    elf.Machine
	PageSize   uint64
	WordSize   int // 4 or 8
	PLTEntSize int // size of a landing-pad stub for this arch, in bytes

	// Classify maps a raw r_type to a RelocClass. Unknown codes return
	// ClassUnknown so the engine can report UnknownRelocationKind with the
	// offending numeric code intact.
	Classify func(relocType uint32) RelocClass

	// Width reports the field size a given r_type actually writes (4 or 8)
	// and, for 4-byte fields, whether the value is range-checked as
	// unsigned (R_X86_64_32) or signed (R_X86_64_32S, *_PC32/_PREL32).
	// Defaults to (WordSize, false) for relocation kinds with no narrower
	// form than the native word.
	Width func(relocType uint32) (width int, unsigned bool)
}

var registry = map[elf.Machine]*Info{}

func register(i *Info) {
	registry[i.Machine] = i
}

// Lookup returns the Info for a machine value, or (nil, false) if this
// build of elfdyn was not compiled with support for it.
func Lookup(m elf.Machine) (*Info, bool) {
	i, ok := registry[m]
	return i, ok
}

// Current returns the Info matching the architecture elfdyn itself was
// built for — used to validate that a loaded image is a native one.
func Current() (*Info, bool) {
	return currentArchInfo()
}
