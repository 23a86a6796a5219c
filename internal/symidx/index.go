// Package symidx builds and queries the dynamic symbol index: a GNU-hash
// or SysV-hash table over an object's dynamic symbol table, with the
// binding tie-break and symbol-version matching rules spec.md requires.
package symidx

import "debug/elf"

// VersionEntry names one version definition or requirement: the string and
// its ELF hash (computed with the same algorithm as a symbol hash —
// SysVHash, per the ELF gABI).
type VersionEntry struct {
	Name string
	Hash uint32
}

// Index is the queryable symbol table for one mapped object.
type Index struct {
	mem  Memory
	syms []Symbol

	hasGNU  bool
	gnu     gnuHashTable
	hasSysV bool
	sysv    sysvHashTable

	// versions maps a VERDEF/VERNEED version index (as found in a
	// Symbol's VerNdx) to its name/hash, for the compatibility check in
	// Lookup.
	versions map[uint16]VersionEntry
}

// BuildParams carries every live (already-rebased) address and count
// needed to build an Index, as recorded by the loader after step 4 of
// spec.md §4.2.
type BuildParams struct {
	Mem      Memory
	Class    elf.Class
	SymtabAddr uintptr
	StrtabAddr uintptr
	NumSyms    int

	GNUHashAddr  uintptr // 0 if absent
	SysVHashAddr uintptr // 0 if absent (and GNUHashAddr absent too)

	VersymAddr  uintptr // 0 if the object carries no DT_VERSYM
	VerdefAddr  uintptr // 0 if absent
	VerdefNum   int
	VerneedAddr uintptr // 0 if absent
	VerneedNum  int
}

// Build parses the dynamic symbol table and whichever hash table the
// object provides into a queryable Index.
func Build(p BuildParams) *Index {
	idx := &Index{mem: p.Mem}
	idx.syms = readSymtab(p.Mem, p.Class, p.SymtabAddr, p.StrtabAddr, p.NumSyms, p.VersymAddr)

	if p.GNUHashAddr != 0 {
		wordSize := 8
		if p.Class == elf.ELFCLASS32 {
			wordSize = 4
		}
		idx.gnu = parseGNUHash(p.Mem, p.GNUHashAddr, wordSize, p.NumSyms)
		idx.hasGNU = true
	} else if p.SysVHashAddr != 0 {
		idx.sysv = parseSysVHash(p.Mem, p.SysVHashAddr)
		idx.hasSysV = true
	}

	if p.VersymAddr != 0 {
		idx.versions = make(map[uint16]VersionEntry)
		if p.VerdefAddr != 0 {
			parseVerdef(p.Mem, p.VerdefAddr, p.StrtabAddr, p.VerdefNum, idx.versions)
		}
		if p.VerneedAddr != 0 {
			parseVerneed(p.Mem, p.VerneedAddr, p.StrtabAddr, p.VerneedNum, idx.versions)
		}
	}

	return idx
}

func readSymtab(mem Memory, class elf.Class, symtabAddr, strtabAddr uintptr, n int, versymAddr uintptr) []Symbol {
	out := make([]Symbol, n)
	entSize := uintptr(24)
	if class == elf.ELFCLASS32 {
		entSize = 16
	}
	for i := 0; i < n; i++ {
		addr := symtabAddr + uintptr(i)*entSize
		var nameOff uint32
		var value, size uint64
		var info, other byte
		var shndx uint16

		if class == elf.ELFCLASS64 {
			nameOff = mem.Uint32(addr)
			raw := mem.Bytes(addr+4, 12)
			info = raw[0]
			other = raw[1]
			shndx = uint16(raw[2]) | uint16(raw[3])<<8
			value = mem.Uint64(addr + 8)
			size = mem.Uint64(addr + 16)
		} else {
			nameOff = mem.Uint32(addr)
			value = uint64(mem.Uint32(addr + 4))
			size = uint64(mem.Uint32(addr + 8))
			raw := mem.Bytes(addr+12, 4)
			info = raw[0]
			other = raw[1]
			shndx = uint16(raw[2]) | uint16(raw[3])<<8
		}
		_ = other

		sym := Symbol{
			Name:    CString(mem, strtabAddr+uintptr(nameOff)),
			Value:   value,
			Size:    size,
			Bind:    elf.SymBind(info >> 4),
			Type:    elf.SymType(info & 0xf),
			Section: elf.SectionIndex(shndx),
			Index:   i,
		}
		if versymAddr != 0 {
			sym.VerNdx = readVersym(mem, versymAddr, i)
		}
		out[i] = sym
	}
	return out
}

func readVersym(mem Memory, versymAddr uintptr, i int) uint16 {
	b := mem.Bytes(versymAddr+uintptr(i)*2, 2)
	return uint16(b[0]) | uint16(b[1])<<8
}

// SymbolByIndex returns the dynamic symbol table entry at idx (0 is the
// reserved STN_UNDEF entry, always present).
func (idx *Index) SymbolByIndex(i int) (Symbol, bool) {
	if i < 0 || i >= len(idx.syms) {
		return Symbol{}, false
	}
	return idx.syms[i], true
}

// Lookup is C6's public operation: find the best-matching defined symbol
// for name, applying the binding tie-break (GLOBAL beats WEAK, first hit
// in chain order wins among equals) and, if ver is non-nil, the version
// compatibility rule of spec.md §4.3.
func (idx *Index) Lookup(name string, ver *VersionEntry) (Symbol, bool) {
	match := func(symIndex int) (Symbol, bool) {
		sym, ok := idx.SymbolByIndex(symIndex)
		if !ok || !sym.Defined() || sym.Name != name {
			return Symbol{}, false
		}
		if !idx.versionCompatible(sym, ver) {
			return Symbol{}, false
		}
		return sym, true
	}

	if idx.hasGNU {
		return idx.gnu.lookup(idx.mem, name, match)
	}
	if idx.hasSysV {
		return idx.sysv.lookup(name, match)
	}
	// No hash table (e.g. a relocatable object's .symtab): linear scan
	// over every entry, applying the same GLOBAL-beats-WEAK tie-break the
	// hashed paths do rather than stopping at the first hit.
	var best Symbol
	found := false
	for i := range idx.syms {
		if sym, ok := match(i); ok {
			if !found || preferBinding(sym, best) {
				best, found = sym, true
			}
		}
	}
	return best, found
}

// preferBinding reports whether candidate should replace current as the
// best match found so far for a name: a STB_GLOBAL definition always
// beats a non-GLOBAL one (STB_WEAK in practice); among equals, whichever
// was found first is kept.
func preferBinding(candidate, current Symbol) bool {
	return candidate.Bind == elf.STB_GLOBAL && current.Bind != elf.STB_GLOBAL
}

func (idx *Index) versionCompatible(sym Symbol, req *VersionEntry) bool {
	if req == nil {
		// Unversioned request: VER_HIDDEN symbols are not visible.
		return !sym.VerHidden()
	}
	if idx.versions == nil {
		// The object carries no version info at all: any request for a
		// specific version fails, since it cannot be verified.
		return false
	}
	vi := sym.VerIndex()
	if vi == VerNdxLocal || vi == VerNdxGlobal {
		return true
	}
	entry, ok := idx.versions[vi]
	if !ok {
		return false
	}
	return entry.Name == req.Name && entry.Hash == req.Hash
}
