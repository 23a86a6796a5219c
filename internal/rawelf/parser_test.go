package rawelf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
)

// buildMinimalDynamicELF assembles a minimal little-endian ELF64 ET_DYN
// image with one PT_LOAD spanning the whole file (vaddr == file offset,
// so no rebasing arithmetic is needed to follow dynamic-tag offsets) and
// one PT_DYNAMIC carrying DT_STRTAB/DT_STRSZ/DT_SONAME/DT_NEEDED.
func buildMinimalDynamicELF(t *testing.T) []byte {
	t.Helper()

	const (
		ehsize  = 64
		phentsz = 56
		phnum   = 2
		dynOff  = ehsize + phentsz*phnum // 176
	)

	soname := "libfoo.so.1"
	needed := "libneeded.so"

	var strtab bytes.Buffer
	strtab.WriteByte(0)
	sonameOff := strtab.Len()
	strtab.WriteString(soname)
	strtab.WriteByte(0)
	neededOff := strtab.Len()
	strtab.WriteString(needed)
	strtab.WriteByte(0)

	type dynEnt struct {
		tag elf.DynTag
		val uint64
	}
	dyn := []dynEnt{
		{elf.DT_STRTAB, uint64(dynOff + 5*16)}, // filled below once strtab offset known
		{elf.DT_STRSZ, uint64(strtab.Len())},
		{elf.DT_SONAME, uint64(sonameOff)},
		{elf.DT_NEEDED, uint64(neededOff)},
		{elf.DT_NULL, 0},
	}
	strtabOff := dynOff + len(dyn)*16
	dyn[0].val = uint64(strtabOff)

	total := strtabOff + strtab.Len()

	buf := make([]byte, total)
	le := binary.LittleEndian

	// e_ident
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le.PutUint16(buf[16:], uint16(elf.ET_DYN))
	le.PutUint16(buf[18:], uint16(elf.EM_X86_64))
	le.PutUint32(buf[20:], 1) // e_version
	le.PutUint64(buf[24:], 0) // e_entry
	le.PutUint64(buf[32:], ehsize) // e_phoff
	le.PutUint64(buf[40:], 0)      // e_shoff
	le.PutUint32(buf[48:], 0)      // e_flags
	le.PutUint16(buf[52:], ehsize)
	le.PutUint16(buf[54:], phentsz)
	le.PutUint16(buf[56:], phnum)
	le.PutUint16(buf[58:], 0) // e_shentsize
	le.PutUint16(buf[60:], 0) // e_shnum
	le.PutUint16(buf[62:], 0) // e_shstrndx

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
	writePhdr(ehsize+phentsz, elf.PT_DYNAMIC, uint64(dynOff), uint64(dynOff), uint64(len(dyn)*16), uint64(len(dyn)*16), 6)

	for i, e := range dyn {
		off := dynOff + i*16
		le.PutUint64(buf[off:], uint64(e.tag))
		le.PutUint64(buf[off+8:], e.val)
	}
	copy(buf[strtabOff:], strtab.Bytes())

	return buf
}

func TestParseDynamicELF(t *testing.T) {
	data := buildMinimalDynamicELF(t)
	img, err := Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if img.Class != elf.ELFCLASS64 {
		t.Fatalf("got class %v", img.Class)
	}
	if img.Machine != elf.EM_X86_64 {
		t.Fatalf("got machine %v", img.Machine)
	}

	soname, err := img.SoName()
	if err != nil {
		t.Fatalf("SoName: %v", err)
	}
	if soname != "libfoo.so.1" {
		t.Fatalf("got soname %q", soname)
	}

	needed, err := img.Needed()
	if err != nil {
		t.Fatalf("Needed: %v", err)
	}
	if len(needed) != 1 || needed[0] != "libneeded.so" {
		t.Fatalf("got needed %v", needed)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := buildMinimalDynamicELF(t)
	data[0] = 0x00
	if _, err := Parse(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("expected an error for corrupted ELF magic")
	}
}

func TestParseMissingDynamicSegment(t *testing.T) {
	data := buildMinimalDynamicELF(t)
	// Turn the PT_DYNAMIC entry into a second PT_LOAD so no PT_DYNAMIC
	// remains.
	const phOff = 64 + 56
	binary.LittleEndian.PutUint32(data[phOff:], uint32(elf.PT_LOAD))

	_, err := Parse(bytes.NewReader(data), int64(len(data)))
	if err == nil {
		t.Fatal("expected ErrMissingDynamic")
	}
	if _, ok := err.(*ErrMissingDynamic); !ok {
		t.Fatalf("expected *ErrMissingDynamic, got %T: %v", err, err)
	}
}
