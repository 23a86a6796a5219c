//go:build linux && cgo && (amd64 || arm64)

package trampoline

/*
#include <stdint.h>

extern uintptr_t elfdyn_resolve_trampoline(uint64_t token, uint64_t slot);

static uintptr_t elfdyn_resolve_entry(void) {
	return (uintptr_t)&elfdyn_resolve_trampoline;
}
*/
import "C"

//export elfdyn_resolve_trampoline
func elfdyn_resolve_trampoline(token, slot C.uint64_t) C.uintptr_t {
	return C.uintptr_t(resolveOne(uint64(token), uint64(slot)))
}

// resolveEntryAddr returns the address every landing pad calls into: the C
// symbol above, exported back out of Go and addressed the same way the
// teacher's bridge addresses its own static helpers — just in the opposite
// call direction (native calling into Go, not Go calling into native).
func resolveEntryAddr() uintptr {
	return uintptr(C.elfdyn_resolve_entry())
}

// Available reports whether this build can host lazy PLT binding.
const Available = true
