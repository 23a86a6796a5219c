package symidx

import "encoding/binary"

// Memory is the minimal random-access read capability the symbol index
// needs once an object is mapped: everything it touches (hash table,
// symtab, strtab, version tables) is addressed by live virtual address,
// i.e. already rebased by the object's base.
type Memory interface {
	Uint32(addr uintptr) uint32
	Uint64(addr uintptr) uint64
	Bytes(addr uintptr, n int) []byte
}

// SliceMemory implements Memory over a plain byte slice whose index 0
// corresponds to virtual address Base. loader uses this over the mapped
// segment; tests use it over a hand-built buffer.
type SliceMemory struct {
	Base uintptr
	Data []byte
}

func (m SliceMemory) off(addr uintptr) int {
	return int(addr - m.Base)
}

func (m SliceMemory) Uint32(addr uintptr) uint32 {
	o := m.off(addr)
	return binary.LittleEndian.Uint32(m.Data[o : o+4])
}

func (m SliceMemory) Uint64(addr uintptr) uint64 {
	o := m.off(addr)
	return binary.LittleEndian.Uint64(m.Data[o : o+8])
}

func (m SliceMemory) Bytes(addr uintptr, n int) []byte {
	o := m.off(addr)
	return m.Data[o : o+n]
}

// CString reads a NUL-terminated string starting at addr.
func CString(m Memory, addr uintptr) string {
	const chunk = 64
	var out []byte
	for {
		b := m.Bytes(addr+uintptr(len(out)), chunk)
		for i, c := range b {
			if c == 0 {
				return string(append(out, b[:i]...))
			}
		}
		out = append(out, b...)
		if len(out) > 1<<20 {
			return string(out)
		}
	}
}
