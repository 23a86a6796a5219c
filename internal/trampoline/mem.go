package trampoline

import "unsafe"

// writeAt copies buf into the live memory at addr. The page must already
// be mapped writable by the caller (Install maps it ProtRead|ProtWrite
// before calling this, and flips it to ProtRead|ProtExec immediately
// after).
func writeAt(addr uintptr, buf []byte) error {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(buf))
	copy(dst, buf)
	return nil
}
