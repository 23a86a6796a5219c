//go:build !(linux && (386 || amd64 || arm64))

package nativemap

import (
	"errors"
	"io"

	"github.com/go-elfdyn/elfdyn/internal/mapping"
)

var errUnsupported = errors.New("nativemap: unsupported on this platform; elfdyn's core targets linux/{386,amd64,arm64}")

// Host is a stub on platforms the default backend doesn't cover. The
// capability interface itself (mapping.Mapper) still works fine with a
// caller-supplied implementation.
type Host struct{}

func New() *Host { return &Host{} }

func (Host) Reserve(size uintptr) (mapping.Region, error) { return mapping.Region{}, errUnsupported }

func (Host) MapAnon(region mapping.Region, offsetInRegion, length uintptr, prot mapping.Prot) error {
	return errUnsupported
}

func (Host) MapFile(region mapping.Region, offsetInRegion, length uintptr, file io.ReaderAt, fileOffset int64, prot mapping.Prot) error {
	return errUnsupported
}

func (Host) Protect(addr, length uintptr, prot mapping.Prot) error { return errUnsupported }

func (Host) Unmap(region mapping.Region) error { return errUnsupported }
