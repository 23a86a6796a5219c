//go:build linux && (386 || amd64 || arm64)

// Package nativemap is the default mapping.Mapper backend: anonymous
// reservation via unix.Mmap plus per-range unix.Mprotect, the same
// primitives the teacher's memmod package used directly, now behind the
// mapping.Mapper interface so the loader package never imports
// golang.org/x/sys/unix itself.
package nativemap

import (
	"errors"
	"fmt"
	"io"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/go-elfdyn/elfdyn/internal/mapping"
)

// Host is the default, OS-backed mapping.Mapper.
type Host struct{}

// New returns the default native mapper.
func New() *Host { return &Host{} }

func (Host) Reserve(size uintptr) (mapping.Region, error) {
	if size == 0 {
		return mapping.Region{}, errors.New("nativemap: reserve size must be non-zero")
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return mapping.Region{}, fmt.Errorf("nativemap: reserve: %w", err)
	}
	return mapping.Region{Addr: uintptr(unsafe.Pointer(&data[0])), Size: size}, nil
}

func (Host) MapAnon(region mapping.Region, offsetInRegion, length uintptr, prot mapping.Prot) error {
	if !region.Contains(region.Addr+offsetInRegion, length) {
		return errors.New("nativemap: MapAnon range outside region")
	}
	addr := region.Addr + offsetInRegion
	seg := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
	return unix.Mprotect(seg, toUnixProt(prot))
}

func (Host) MapFile(region mapping.Region, offsetInRegion, length uintptr, file io.ReaderAt, fileOffset int64, prot mapping.Prot) error {
	if !region.Contains(region.Addr+offsetInRegion, length) {
		return errors.New("nativemap: MapFile range outside region")
	}
	addr := region.Addr + offsetInRegion
	seg := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
	if err := unix.Mprotect(seg, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("nativemap: mprotect for copy: %w", err)
	}
	if _, err := file.ReadAt(seg, fileOffset); err != nil && err != io.EOF {
		return fmt.Errorf("nativemap: read segment: %w", err)
	}
	return unix.Mprotect(seg, toUnixProt(prot))
}

func (Host) Protect(addr, length uintptr, prot mapping.Prot) error {
	seg := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
	if err := unix.Mprotect(seg, toUnixProt(prot)); err != nil {
		return fmt.Errorf("nativemap: mprotect: %w", err)
	}
	return nil
}

func (Host) Unmap(region mapping.Region) error {
	data := unsafe.Slice((*byte)(unsafe.Pointer(region.Addr)), region.Size)
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("nativemap: unmap: %w", err)
	}
	return nil
}

func toUnixProt(p mapping.Prot) int {
	prot := unix.PROT_NONE
	if p&mapping.ProtRead != 0 {
		prot |= unix.PROT_READ
	}
	if p&mapping.ProtWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if p&mapping.ProtExec != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}
