package loader

import (
	"context"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/go-elfdyn/elfdyn/internal/source"
)

// buildBasicSharedObject assembles a minimal ET_DYN ELF64/x86-64 image:
// one PT_LOAD spanning the whole file (vaddr == file offset, so no
// rebasing math is needed to read dynamic-tag-addressed tables), a
// PT_DYNAMIC with DT_SYMTAB/DT_STRTAB/DT_HASH/DT_STRSZ, and a single
// exported global function symbol "answer" whose value is 0x55.
func buildBasicSharedObject(t *testing.T) []byte {
	t.Helper()

	const (
		ehsize  = 64
		phentsz = 56
		phnum   = 2
		dynOff  = ehsize + phentsz*phnum
	)

	strtab := []byte{0}
	nameOff := len(strtab)
	strtab = append(strtab, append([]byte("answer"), 0)...)

	const symEntSize = 24
	symtabOff := dynOff + 5*16 // after 5 dyn entries (SYMTAB,STRTAB,STRSZ,HASH,NULL)
	symtab := make([]byte, symEntSize*2)
	binary.LittleEndian.PutUint32(symtab[symEntSize:], uint32(nameOff))
	symtab[symEntSize+4] = uint8(elf.STB_GLOBAL)<<4 | uint8(elf.STT_FUNC)
	binary.LittleEndian.PutUint16(symtab[symEntSize+6:], 1) // shndx != SHN_UNDEF
	binary.LittleEndian.PutUint64(symtab[symEntSize+8:], 0x55)

	hashOff := symtabOff + len(symtab)
	nbucket, nchain := uint32(1), uint32(2)
	hashTab := make([]byte, 8+4*nbucket+4*nchain)
	binary.LittleEndian.PutUint32(hashTab, nbucket)
	binary.LittleEndian.PutUint32(hashTab[4:], nchain)
	binary.LittleEndian.PutUint32(hashTab[8:], 1) // bucket[0] -> sym index 1
	binary.LittleEndian.PutUint32(hashTab[12:], 0)
	binary.LittleEndian.PutUint32(hashTab[16:], 0) // chain[1] -> end of chain

	strtabOff := hashOff + len(hashTab)
	total := strtabOff + len(strtab)

	buf := make([]byte, total)
	le := binary.LittleEndian

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2
	buf[5] = 1
	buf[6] = 1
	le.PutUint16(buf[16:], uint16(elf.ET_DYN))
	le.PutUint16(buf[18:], uint16(elf.EM_X86_64))
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[32:], ehsize)
	le.PutUint16(buf[52:], ehsize)
	le.PutUint16(buf[54:], phentsz)
	le.PutUint16(buf[56:], phnum)

	writePhdr := func(off int, typ elf.ProgType, foff, vaddr, filesz, memsz uint64, flags uint32) {
		le.PutUint32(buf[off:], uint32(typ))
		le.PutUint32(buf[off+4:], flags)
		le.PutUint64(buf[off+8:], foff)
		le.PutUint64(buf[off+16:], vaddr)
		le.PutUint64(buf[off+24:], vaddr)
		le.PutUint64(buf[off+32:], filesz)
		le.PutUint64(buf[off+40:], memsz)
		le.PutUint64(buf[off+48:], 0x1000)
	}
	writePhdr(ehsize, elf.PT_LOAD, 0, 0, uint64(total), uint64(total), 6)
	writePhdr(ehsize+phentsz, elf.PT_DYNAMIC, uint64(dynOff), uint64(dynOff), 5*16, 5*16, 6)

	type dynEnt struct {
		tag elf.DynTag
		val uint64
	}
	dyn := []dynEnt{
		{elf.DT_SYMTAB, uint64(symtabOff)},
		{elf.DT_STRTAB, uint64(strtabOff)},
		{elf.DT_STRSZ, uint64(len(strtab))},
		{elf.DT_HASH, uint64(hashOff)},
		{elf.DT_NULL, 0},
	}
	for i, e := range dyn {
		off := dynOff + i*16
		le.PutUint64(buf[off:], uint64(e.tag))
		le.PutUint64(buf[off+8:], e.val)
	}

	copy(buf[symtabOff:], symtab)
	copy(buf[hashOff:], hashTab)
	copy(buf[strtabOff:], strtab)

	return buf
}

func TestLoadAndGetExportedSymbol(t *testing.T) {
	data := buildBasicSharedObject(t)
	mapper := newFakeMapper()

	obj, err := Load(context.Background(), "basic.so", source.NewBytes(data), mapper, LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := Relocate(obj, RelocateOptions{}); err != nil {
		t.Fatalf("Relocate: %v", err)
	}

	addr, err := Get(obj, "answer")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := obj.Base() + 0x55
	if addr != want {
		t.Fatalf("got %#x, want %#x", addr, want)
	}

	if _, err := Get(obj, "missing"); err == nil {
		t.Fatal("expected an error resolving a symbol the object does not export")
	}
}

func TestLoadUnsupportedMachine(t *testing.T) {
	data := buildBasicSharedObject(t)
	// e_machine lives at byte offset 18.
	binary.LittleEndian.PutUint16(data[18:], uint16(elf.EM_S390))

	_, err := Load(context.Background(), "basic.so", source.NewBytes(data), newFakeMapper(), LoadOptions{})
	if err == nil {
		t.Fatal("expected ErrUnsupportedMachine")
	}
	if _, ok := err.(*ErrUnsupportedMachine); !ok {
		t.Fatalf("expected *ErrUnsupportedMachine, got %T: %v", err, err)
	}
}
