//go:build linux && cgo && (386 || amd64 || arm64)

// Package callable bridges raw function-pointer calls from Go code into
// native code at a runtime address (ifunc resolvers, DT_INIT/DT_FINI
// entries); the opposite direction lives in internal/trampoline. It is
// grounded on the small static C helper pattern
// the teacher uses to call into mapped PE exports from Go.
package callable

/*
#include <stdint.h>

typedef uintptr_t (*elfdyn_fn0)(void);
typedef void (*elfdyn_voidfn0)(void);

static uintptr_t elfdyn_call0(uintptr_t fn) {
	return ((elfdyn_fn0)fn)();
}

static void elfdyn_callvoid0(uintptr_t fn) {
	((elfdyn_voidfn0)fn)();
}
*/
import "C"

// CallIFunc invokes an IRELATIVE resolver (uintptr_t (*)(void)) and returns
// the address it selects.
func CallIFunc(resolver uintptr) uintptr {
	return uintptr(C.elfdyn_call0(C.uintptr_t(resolver)))
}

// CallVoid invokes a void(void) function: a DT_INIT/DT_FINI entry or one
// slot of DT_INIT_ARRAY/DT_FINI_ARRAY.
func CallVoid(fn uintptr) {
	C.elfdyn_callvoid0(C.uintptr_t(fn))
}

// Available reports whether native calls can actually be made in this
// build (compiled with cgo).
const Available = true
