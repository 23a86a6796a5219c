// Package rawelf parses an ELF byte source into an immutable Image: class,
// endianness, machine, entry point, program headers, and the raw dynamic
// tag table. It wraps debug/elf for header/program-header/section parsing
// (exactly as a plain Go ELF reader would) and adds a manual walk of
// PT_DYNAMIC because debug/elf does not surface DT_GNU_HASH, DT_RELR,
// DT_VERSYM, DT_VERDEF, DT_VERNEED, or DT_FLAGS_1 as addressable values.
package rawelf

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
)

// DynEntry is one {tag, value} pair out of PT_DYNAMIC, in file order.
type DynEntry struct {
	Tag elf.DynTag
	Val uint64
}

// Image is a parsed, not-yet-mapped ELF. It is immutable after Parse.
type Image struct {
	File *elf.File // program headers, sections, symbol tables

	Class   elf.Class
	Data    elf.Data
	Machine elf.Machine
	Type    elf.Type
	Entry   uint64

	Dyn []DynEntry // raw PT_DYNAMIC entries, in file order

	Source io.ReaderAt
	Size   int64
}

// Parse validates the ELF header and derives the dynamic-entry table.
func Parse(source io.ReaderAt, size int64) (*Image, error) {
	f, err := elf.NewFile(io.NewSectionReader(source, 0, size))
	if err != nil {
		return nil, &ErrMalformedHeader{Reason: err.Error()}
	}

	if f.Class != elf.ELFCLASS32 && f.Class != elf.ELFCLASS64 {
		return nil, &ErrUnsupportedClass{Class: f.Class.String()}
	}
	if f.Data != elf.ELFDATA2LSB && f.Data != elf.ELFDATA2MSB {
		return nil, &ErrUnsupportedEndian{Data: f.Data.String()}
	}
	if f.Data != elf.ELFDATA2LSB {
		// The relocation engine and symbol index are only implemented for
		// little-endian targets, so a big-endian image is rejected here.
		return nil, &ErrUnsupportedEndian{Data: f.Data.String()}
	}

	img := &Image{
		File:    f,
		Class:   f.Class,
		Data:    f.Data,
		Machine: f.Machine,
		Type:    f.Type,
		Entry:   f.Entry,
		Source:  source,
		Size:    size,
	}

	if f.Type != elf.ET_REL {
		dyn, err := parseDynamic(f, source, size)
		if err != nil {
			return nil, err
		}
		img.Dyn = dyn
	}

	return img, nil
}

// parseDynamic walks the PT_DYNAMIC program header's file range and decodes
// it as a sequence of Elf32_Dyn/Elf64_Dyn entries.
func parseDynamic(f *elf.File, source io.ReaderAt, size int64) ([]DynEntry, error) {
	var dynProg *elf.Prog
	for _, p := range f.Progs {
		if p.Type == elf.PT_DYNAMIC {
			dynProg = p
			break
		}
	}
	if dynProg == nil {
		return nil, &ErrMissingDynamic{}
	}
	if dynProg.Off > uint64(size) || dynProg.Filesz > uint64(size)-dynProg.Off {
		return nil, &ErrTruncatedTable{Name: "PT_DYNAMIC"}
	}

	buf := make([]byte, dynProg.Filesz)
	if _, err := source.ReadAt(buf, int64(dynProg.Off)); err != nil && err != io.EOF {
		return nil, &ErrTruncatedTable{Name: "PT_DYNAMIC"}
	}

	entSize := 16
	if f.Class == elf.ELFCLASS32 {
		entSize = 8
	}
	if len(buf)%entSize != 0 {
		return nil, &ErrInvalidDynamicEntry{Tag: "PT_DYNAMIC size"}
	}

	var entries []DynEntry
	for off := 0; off+entSize <= len(buf); off += entSize {
		var tag int64
		var val uint64
		if f.Class == elf.ELFCLASS64 {
			tag = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
			val = binary.LittleEndian.Uint64(buf[off+8 : off+16])
		} else {
			tag = int64(int32(binary.LittleEndian.Uint32(buf[off : off+4])))
			val = uint64(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		}
		if elf.DynTag(tag) == elf.DT_NULL {
			break
		}
		entries = append(entries, DynEntry{Tag: elf.DynTag(tag), Val: val})
	}
	return entries, nil
}

// DynValue returns the value of the first occurrence of tag, if present.
func (img *Image) DynValue(tag elf.DynTag) (uint64, bool) {
	for _, e := range img.Dyn {
		if e.Tag == tag {
			return e.Val, true
		}
	}
	return 0, false
}

// DynValues returns every value recorded for tag, in file order — used for
// repeated tags such as DT_NEEDED.
func (img *Image) DynValues(tag elf.DynTag) []uint64 {
	var out []uint64
	for _, e := range img.Dyn {
		if e.Tag == tag {
			out = append(out, e.Val)
		}
	}
	return out
}

// Flags returns DT_FLAGS (0 if absent).
func (img *Image) Flags() uint64 {
	v, _ := img.DynValue(elf.DT_FLAGS)
	return v
}

// Flags1 returns DT_FLAGS_1 (0 if absent). elf.DT_FLAGS_1 is 0x6ffffffb.
const dtFlags1 = elf.DynTag(0x6ffffffb)

func (img *Image) Flags1() uint64 {
	v, _ := img.DynValue(dtFlags1)
	return v
}

// Symbolic reports whether DF_SYMBOLIC (bit 1) is set in DT_FLAGS.
func (img *Image) Symbolic() bool {
	const dfSymbolic = 0x2
	return img.Flags()&dfSymbolic != 0
}

// BindNow reports whether DF_BIND_NOW / DF_1_NOW requests eager binding.
func (img *Image) BindNow() bool {
	const dfBindNow = 0x8
	const dfP1BindNow = 0x1
	return img.Flags()&dfBindNow != 0 || img.Flags1()&dfP1BindNow != 0
}

// SoName returns DT_SONAME resolved through dynstr, if present.
func (img *Image) SoName() (string, error) {
	return img.dynString(elf.DT_SONAME)
}

// Needed returns every DT_NEEDED entry resolved through dynstr, in order.
func (img *Image) Needed() ([]string, error) {
	var out []string
	for _, off := range img.DynValues(elf.DT_NEEDED) {
		s, err := img.stringAt(off)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (img *Image) dynString(tag elf.DynTag) (string, error) {
	off, ok := img.DynValue(tag)
	if !ok {
		return "", nil
	}
	return img.stringAt(off)
}

// stringAt reads a NUL-terminated string out of DT_STRTAB at the given
// table-relative offset.
func (img *Image) stringAt(off uint64) (string, error) {
	strtabAddr, ok := img.DynValue(elf.DT_STRTAB)
	if !ok {
		return "", &ErrInvalidDynamicEntry{Tag: "DT_STRTAB"}
	}
	strsz, ok := img.DynValue(elf.DT_STRSZ)
	if !ok {
		return "", &ErrInvalidDynamicEntry{Tag: "DT_STRSZ"}
	}
	if off >= strsz {
		return "", &ErrInvalidDynamicEntry{Tag: "DT_STRTAB offset"}
	}

	fileOff, err := img.vaddrToFileOffset(strtabAddr + off)
	if err != nil {
		return "", err
	}

	const maxStr = 4096
	buf := make([]byte, maxStr)
	n, err := img.Source.ReadAt(buf, fileOff)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("rawelf: read string: %w", err)
	}
	buf = buf[:n]
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf), nil
}

// vaddrToFileOffset maps a virtual address as it appears in the file (i.e.
// before any load bias) to a file offset, via the PT_LOAD segment that
// contains it.
func (img *Image) vaddrToFileOffset(vaddr uint64) (int64, error) {
	for _, p := range img.File.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if vaddr >= p.Vaddr && vaddr < p.Vaddr+p.Filesz {
			return int64(p.Off + (vaddr - p.Vaddr)), nil
		}
	}
	return 0, &ErrInvalidDynamicEntry{Tag: "vaddr out of PT_LOAD range"}
}
