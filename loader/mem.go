package loader

import (
	"unsafe"

	"github.com/go-elfdyn/elfdyn/internal/mapping"
)

// mappedSlice views a reserved region as a byte slice for the relocation
// and symbol-index readers, which only ever run in-process against
// memory this same process just mapped.
func mappedSlice(region mapping.Region) []byte {
	if region.Size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(region.Addr)), region.Size)
}
