// Package loader is elfdyn's public core: map an ELF image, relocate it
// against a caller-supplied symbol scope, look up its exported symbols,
// and run its init/fini arrays. Everything it touches goes through the
// small capability interfaces in internal/mapping, internal/source,
// internal/resolve, and internal/lifetime, so none of the mechanism below
// is tied to a real OS mmap or a real process — a test can swap any of
// them out.
package loader

import (
	"debug/elf"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/go-elfdyn/elfdyn/internal/arch"
	"github.com/go-elfdyn/elfdyn/internal/callable"
	"github.com/go-elfdyn/elfdyn/internal/lifetime"
	"github.com/go-elfdyn/elfdyn/internal/mapping"
	"github.com/go-elfdyn/elfdyn/internal/obslog"
	"github.com/go-elfdyn/elfdyn/internal/rawelf"
	"github.com/go-elfdyn/elfdyn/internal/relocate"
	"github.com/go-elfdyn/elfdyn/internal/resolve"
	"github.com/go-elfdyn/elfdyn/internal/symidx"
	"github.com/go-elfdyn/elfdyn/internal/trampoline"
)

// Object is one mapped, (optionally) relocated ELF image.
type Object struct {
	Name  string
	Image *rawelf.Image
	Arch  *arch.Info

	mapper mapping.Mapper
	region mapping.Region
	base   uintptr

	index *symidx.Index
	mem   relocate.SliceMemory

	node *lifetime.Node
	deps []*Object

	symbolic  bool
	tlsModule uint64

	trampolineToken uint64
	pendingSlots    map[uint64]uint32 // GOT addr -> dynsym index, awaiting BindLazy
	scope           resolve.Scope
	preFind         resolve.PreFindFunc

	initDone, finiDone bool
}

// Base returns the runtime load bias: every file vaddr maps to vaddr+Base.
func (o *Object) Base() uintptr { return o.base }

// SymbolIndex implements resolve.Scoped.
func (o *Object) SymbolIndex() *symidx.Index { return o.index }

// Symbolic implements resolve.Scoped.
func (o *Object) Symbolic() bool { return o.symbolic }

// Node returns the lifetime graph node wrapping this object.
func (o *Object) Node() *lifetime.Node { return o.node }

// releasableObject adapts *Object to lifetime.Releasable without exposing
// fini/unmap as part of Object's own public surface (callers use RunFini
// and the lifetime graph, not this directly).
type releasableObject struct{ o *Object }

func (r releasableObject) RunFini() { RunFini(r.o) }
func (r releasableObject) Unmap() error {
	if r.o.region.Size == 0 {
		return nil
	}
	return r.o.mapper.Unmap(r.o.region)
}

// BindLazy implements trampoline.Binder: resolve the symbol for one
// deferred JUMP_SLOT and patch the GOT slot so future calls skip the
// landing pad entirely.
func (o *Object) BindLazy(slot uint64) (uintptr, error) {
	symIdx, ok := o.pendingSlots[slot]
	if !ok {
		return 0, fmt.Errorf("elfdyn: unknown lazy slot %#x", slot)
	}
	sym, ok := o.index.SymbolByIndex(int(symIdx))
	if !ok {
		return 0, fmt.Errorf("elfdyn: dynsym index %d out of range", symIdx)
	}
	ver := o.symbolVersion(sym)
	addr, err := resolve.Resolve(o, o.scope, o.preFind, sym.Name, ver, sym.Bind == elf.STB_WEAK)
	if err != nil {
		return 0, err
	}
	if addr != 0 {
		// Release store, so a thread that observes the new GOT value never
		// sees a partially written one.
		atomic.StoreUintptr((*uintptr)(unsafe.Pointer(uintptr(slot))), addr)
	}
	delete(o.pendingSlots, slot)
	return addr, nil
}

func (o *Object) symbolVersion(sym symidx.Symbol) *symidx.VersionEntry {
	// Version requirements are resolved against the referencing object's
	// own VERNEED table elsewhere (spec.md §4.3); BindLazy re-resolves by
	// name only, matching how JUMP_SLOT relocations carry no version index
	// of their own in the common case (they reference the PLT's r_sym,
	// whose version comes from VERSYM on the defining side, not the call
	// site).
	return nil
}

// Get is C5's symbol-lookup operation: the runtime address of name in
// obj's own export set (not its dependency scope).
func Get(obj *Object, name string) (uintptr, error) {
	sym, ok := obj.index.Lookup(name, nil)
	if !ok {
		return 0, &resolve.ErrUnresolvedSymbol{Name: name}
	}
	return obj.base + uintptr(sym.Value), nil
}

// RunInit runs DT_INIT then every DT_INIT_ARRAY entry in order, exactly
// once. Without a cgo build this is a no-op: there is no safe way to
// transfer control to native code, matching the degraded-capability
// behavior documented for IRELATIVE and lazy binding.
func RunInit(obj *Object) {
	if obj.initDone || !callable.Available {
		obj.initDone = true
		return
	}
	obj.initDone = true

	if addr, ok := obj.Image.DynValue(elf.DT_INIT); ok && addr != 0 {
		callable.CallVoid(obj.base + uintptr(addr))
	}
	if addr, ok := obj.Image.DynValue(elf.DT_INIT_ARRAY); ok {
		sz, _ := obj.Image.DynValue(elf.DT_INIT_ARRAYSZ)
		obj.runArray(addr, sz)
	}
}

// RunFini runs every DT_FINI_ARRAY entry in reverse order, then DT_FINI,
// exactly once — the mirror image of RunInit, per spec.md §4.6.
func RunFini(obj *Object) {
	if obj.finiDone || !callable.Available {
		obj.finiDone = true
		return
	}
	obj.finiDone = true

	if addr, ok := obj.Image.DynValue(elf.DT_FINI_ARRAY); ok {
		sz, _ := obj.Image.DynValue(elf.DT_FINI_ARRAYSZ)
		obj.runArrayReverse(addr, sz)
	}
	if addr, ok := obj.Image.DynValue(elf.DT_FINI); ok && addr != 0 {
		callable.CallVoid(obj.base + uintptr(addr))
	}
}

func (o *Object) runArray(addr, size uint64) {
	n := int(size) / o.Arch.WordSize
	base := o.base + uintptr(addr)
	for i := 0; i < n; i++ {
		fn := o.readWord(base + uintptr(i*o.Arch.WordSize))
		if fn != 0 {
			callable.CallVoid(uintptr(fn))
		}
	}
}

func (o *Object) runArrayReverse(addr, size uint64) {
	n := int(size) / o.Arch.WordSize
	base := o.base + uintptr(addr)
	for i := n - 1; i >= 0; i-- {
		fn := o.readWord(base + uintptr(i*o.Arch.WordSize))
		if fn != 0 {
			callable.CallVoid(uintptr(fn))
		}
	}
}

func (o *Object) readWord(addr uintptr) uint64 {
	if o.Arch.WordSize == 4 {
		return uint64(o.mem.Uint32(addr))
	}
	return o.mem.Uint64(addr)
}

var log = obslog.L
