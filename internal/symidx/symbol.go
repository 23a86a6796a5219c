package symidx

import "debug/elf"

// Symbol is spec.md's Symbol: the fields needed to resolve and rebase a
// dynamic symbol, independent of how it was found (GNU hash, SysV hash, or
// linear scan).
type Symbol struct {
	Name    string
	Value   uint64 // unrelocated; caller adds base
	Size    uint64
	Bind    elf.SymBind
	Type    elf.SymType
	Section elf.SectionIndex
	VerNdx  uint16 // raw Elf64_Versym entry, 0 if the image has no DT_VERSYM
	Index   int    // index into the dynamic symbol table
}

// Defined reports whether the symbol has a definition in this object.
func (s Symbol) Defined() bool {
	return s.Section != elf.SHN_UNDEF
}

// VerHidden reports whether the VERSYM hidden bit (0x8000) is set, which
// excludes the symbol from unversioned lookups.
func (s Symbol) VerHidden() bool {
	const verHidden = 0x8000
	return s.VerNdx&verHidden != 0
}

// VerIndex returns the version index with the hidden bit masked off.
func (s Symbol) VerIndex() uint16 {
	const verHidden = 0x8000
	return s.VerNdx &^ verHidden
}

const (
	VerNdxLocal  = 0
	VerNdxGlobal = 1
)

// Version identifies a symbol version by name and hash. Index.Lookup takes
// a *VersionEntry, which has the same fields, rather than this type.
type Version struct {
	Name string
	Hash uint32 // ELF (SysV) hash of Name, as VERNEED/VERDEF record it
}
