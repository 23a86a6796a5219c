package loader

import (
	"errors"
	"io"
	"unsafe"

	"github.com/go-elfdyn/elfdyn/internal/mapping"
)

// fakeMapper backs mapping.Mapper with a real, page-ignorant Go byte
// slice: Reserve allocates it, MapFile/MapAnon copy into it, Protect and
// Unmap are no-ops beyond bookkeeping. It exists so loader's tests can
// exercise the real Load/Relocate code paths — including the unsafe
// pointer arithmetic in mappedSlice — without a real OS mmap.
type fakeMapper struct {
	buf []byte
}

func newFakeMapper() *fakeMapper { return &fakeMapper{} }

func (m *fakeMapper) Reserve(size uintptr) (mapping.Region, error) {
	if size == 0 {
		return mapping.Region{}, errors.New("fakeMapper: zero size")
	}
	m.buf = make([]byte, size)
	return mapping.Region{Addr: uintptr(unsafe.Pointer(&m.buf[0])), Size: size}, nil
}

func (m *fakeMapper) MapFile(region mapping.Region, offsetInRegion, length uintptr, file io.ReaderAt, fileOffset int64, prot mapping.Prot) error {
	seg := m.segment(region, offsetInRegion, length)
	n, err := file.ReadAt(seg, fileOffset)
	if err != nil && err != io.EOF {
		return err
	}
	_ = n
	return nil
}

func (m *fakeMapper) MapAnon(region mapping.Region, offsetInRegion, length uintptr, prot mapping.Prot) error {
	return nil // m.buf is already zeroed by make([]byte, ...)
}

func (m *fakeMapper) Protect(addr, length uintptr, prot mapping.Prot) error { return nil }

func (m *fakeMapper) Unmap(region mapping.Region) error {
	m.buf = nil
	return nil
}

func (m *fakeMapper) segment(region mapping.Region, offsetInRegion, length uintptr) []byte {
	start := int(region.Addr - uintptr(unsafe.Pointer(&m.buf[0])) + offsetInRegion)
	return m.buf[start : start+int(length)]
}
