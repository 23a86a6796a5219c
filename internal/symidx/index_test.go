package symidx

import (
	"debug/elf"
	"encoding/binary"
	"testing"
)

// buildSysVIndex lays out a dynamic symtab/strtab/DT_HASH table for the
// given symbol names (all global functions, values equal to their 1-based
// position) and returns an Index built over it — enough to exercise the
// SysV-hash lookup path end to end.
func buildSysVIndex(t *testing.T, names []string) *Index {
	t.Helper()

	strtab := []byte{0}
	nameOff := map[string]uint32{}
	for _, n := range names {
		nameOff[n] = uint32(len(strtab))
		strtab = append(strtab, append([]byte(n), 0)...)
	}

	const entSize = 24
	symtab := make([]byte, entSize*(len(names)+1))
	for i, n := range names {
		off := entSize * (i + 1)
		binary.LittleEndian.PutUint32(symtab[off:], nameOff[n])
		symtab[off+4] = uint8(elf.STB_GLOBAL)<<4 | uint8(elf.STT_FUNC)
		binary.LittleEndian.PutUint16(symtab[off+6:], 1)
		binary.LittleEndian.PutUint64(symtab[off+8:], uint64(i+1))
	}

	nbucket := uint32(4)
	nchain := uint32(len(names) + 1)
	buckets := make([]uint32, nbucket)
	chain := make([]uint32, nchain)
	for i, n := range names {
		idx := uint32(i + 1)
		h := SysVHash(n) % nbucket
		chain[idx] = buckets[h]
		buckets[h] = idx
	}
	hashTab := make([]byte, 8+4*nbucket+4*nchain)
	binary.LittleEndian.PutUint32(hashTab, nbucket)
	binary.LittleEndian.PutUint32(hashTab[4:], nchain)
	for i, b := range buckets {
		binary.LittleEndian.PutUint32(hashTab[8+4*i:], b)
	}
	for i, c := range chain {
		binary.LittleEndian.PutUint32(hashTab[8+4*int(nbucket)+4*i:], c)
	}

	const symtabAddr = 0x1000
	const strtabAddr = 0x2000
	const hashAddr = 0x3000
	buf := make([]byte, 0x4000)
	copy(buf[symtabAddr-0x1000:], symtab)
	copy(buf[strtabAddr-0x1000:], strtab)
	copy(buf[hashAddr-0x1000:], hashTab)

	mem := SliceMemory{Base: 0x1000, Data: buf}
	return Build(BuildParams{
		Mem:          mem,
		Class:        elf.ELFCLASS64,
		SymtabAddr:   symtabAddr,
		StrtabAddr:   strtabAddr,
		NumSyms:      len(names) + 1,
		SysVHashAddr: hashAddr,
	})
}

// buildDuplicateNameIndex lays out two dynsym entries sharing the same
// name — weakIdx with STB_WEAK, globalIdx with STB_GLOBAL — chained so
// that the weak entry is visited first, to exercise the binding tie-break
// rather than "first hit in chain order wins".
func buildDuplicateNameIndex(t *testing.T) *Index {
	t.Helper()

	const name = "dup"
	strtab := []byte{0}
	nameOff := uint32(len(strtab))
	strtab = append(strtab, append([]byte(name), 0)...)

	const entSize = 24
	const weakIdx, globalIdx = 1, 2
	symtab := make([]byte, entSize*3)
	writeSym := func(i int, bind elf.SymBind, value uint64) {
		off := entSize * i
		binary.LittleEndian.PutUint32(symtab[off:], nameOff)
		symtab[off+4] = uint8(bind)<<4 | uint8(elf.STT_FUNC)
		binary.LittleEndian.PutUint16(symtab[off+6:], 1)
		binary.LittleEndian.PutUint64(symtab[off+8:], value)
	}
	writeSym(weakIdx, elf.STB_WEAK, 0xAA)
	writeSym(globalIdx, elf.STB_GLOBAL, 0xBB)

	nbucket, nchain := uint32(1), uint32(3)
	hashTab := make([]byte, 8+4*nbucket+4*nchain)
	binary.LittleEndian.PutUint32(hashTab, nbucket)
	binary.LittleEndian.PutUint32(hashTab[4:], nchain)
	const chainBase = 8 + 4*1 // header (8) + bucket array (nbucket*4)
	binary.LittleEndian.PutUint32(hashTab[8:], weakIdx)                    // bucket[0] -> weak entry first
	binary.LittleEndian.PutUint32(hashTab[chainBase+4*weakIdx:], globalIdx) // chain[weakIdx] -> global entry
	binary.LittleEndian.PutUint32(hashTab[chainBase+4*globalIdx:], 0)       // chain[globalIdx] -> end

	const symtabAddr = 0x1000
	const strtabAddr = 0x2000
	const hashAddr = 0x3000
	buf := make([]byte, 0x4000)
	copy(buf[symtabAddr-0x1000:], symtab)
	copy(buf[strtabAddr-0x1000:], strtab)
	copy(buf[hashAddr-0x1000:], hashTab)

	mem := SliceMemory{Base: 0x1000, Data: buf}
	return Build(BuildParams{
		Mem:          mem,
		Class:        elf.ELFCLASS64,
		SymtabAddr:   symtabAddr,
		StrtabAddr:   strtabAddr,
		NumSyms:      3,
		SysVHashAddr: hashAddr,
	})
}

func TestLookupPrefersGlobalOverWeakAmongDuplicateNames(t *testing.T) {
	idx := buildDuplicateNameIndex(t)

	sym, ok := idx.Lookup("dup", nil)
	if !ok {
		t.Fatal("expected to find \"dup\"")
	}
	if sym.Bind != elf.STB_GLOBAL || sym.Value != 0xBB {
		t.Fatalf("expected the GLOBAL definition (value 0xBB), got bind=%v value=%#x", sym.Bind, sym.Value)
	}
}

func TestIndexLookupViaSysVHash(t *testing.T) {
	idx := buildSysVIndex(t, []string{"alpha", "beta", "gamma", "delta"})

	for i, n := range []string{"alpha", "beta", "gamma", "delta"} {
		sym, ok := idx.Lookup(n, nil)
		if !ok {
			t.Fatalf("expected to find %q", n)
		}
		if sym.Value != uint64(i+1) {
			t.Fatalf("%q: got value %d, want %d", n, sym.Value, i+1)
		}
	}

	if _, ok := idx.Lookup("missing", nil); ok {
		t.Fatal("expected lookup of an absent symbol to fail")
	}
}

func TestVersionCompatibleUnversionedRequestExcludesHidden(t *testing.T) {
	idx := &Index{}
	hidden := Symbol{VerNdx: 0x8000 | 3}
	visible := Symbol{VerNdx: 3}

	if idx.versionCompatible(hidden, nil) {
		t.Fatal("a VER_HIDDEN symbol must not satisfy an unversioned request")
	}
	if !idx.versionCompatible(visible, nil) {
		t.Fatal("a visible versioned symbol should satisfy an unversioned request")
	}
}

func TestVersionCompatibleMatchesByNameAndHash(t *testing.T) {
	idx := &Index{versions: map[uint16]VersionEntry{
		2: {Name: "LIBFOO_1.0", Hash: SysVHash("LIBFOO_1.0")},
	}}
	sym := Symbol{VerNdx: 2}

	ok := idx.versionCompatible(sym, &VersionEntry{Name: "LIBFOO_1.0", Hash: SysVHash("LIBFOO_1.0")})
	if !ok {
		t.Fatal("expected matching version name+hash to be compatible")
	}

	ok = idx.versionCompatible(sym, &VersionEntry{Name: "LIBFOO_2.0", Hash: SysVHash("LIBFOO_2.0")})
	if ok {
		t.Fatal("expected mismatched version to be incompatible")
	}
}

func TestVersionCompatibleLocalAndGlobalAlwaysPass(t *testing.T) {
	idx := &Index{versions: map[uint16]VersionEntry{}}
	req := &VersionEntry{Name: "ANY", Hash: 1}

	if !idx.versionCompatible(Symbol{VerNdx: VerNdxLocal}, req) {
		t.Fatal("VER_NDX_LOCAL should always satisfy a versioned request")
	}
	if !idx.versionCompatible(Symbol{VerNdx: VerNdxGlobal}, req) {
		t.Fatal("VER_NDX_GLOBAL should always satisfy a versioned request")
	}
}
