package loader

import (
	"debug/elf"
	"fmt"

	"github.com/go-elfdyn/elfdyn/internal/callable"
	"github.com/go-elfdyn/elfdyn/internal/obslog"
	"github.com/go-elfdyn/elfdyn/internal/relocate"
	"github.com/go-elfdyn/elfdyn/internal/resolve"
	"github.com/go-elfdyn/elfdyn/internal/trampoline"
)

// RelocateOptions configures one Relocate call.
type RelocateOptions struct {
	// Scope is searched, in order, for every reference obj itself cannot
	// satisfy. Defaults to obj's own DT_NEEDED dependencies (in load
	// order) if nil and obj was loaded with a Locator.
	Scope resolve.Scope
	// PreFind gets one shot at a reference Scope could not satisfy.
	PreFind resolve.PreFindFunc
	// Lazy requests deferred PLT binding: JUMP_SLOT entries get a
	// trampoline landing pad instead of being resolved up front. Ignored
	// (treated as false) on architectures with no landing-pad support,
	// and downgraded to eager with a logged warning if trampoline support
	// was not compiled in (no cgo).
	Lazy bool
}

// Relocate is C5's second step: apply every relocation table obj carries,
// in copy-then-data-then-PLT order, resolving symbol references against
// opts.Scope (falling back to opts.PreFind), and installing lazy-binding
// stubs for JUMP_SLOT entries when requested and supported.
func Relocate(obj *Object, opts RelocateOptions) error {
	scope := opts.Scope
	if scope == nil {
		scope = defaultScope(obj)
	}
	obj.scope = scope
	obj.preFind = opts.PreFind

	lazy := opts.Lazy && obj.Arch.PLTEntSize != 0 && trampoline.Available
	if opts.Lazy && !lazy {
		log().Warn("lazy binding unavailable, falling back to eager",
			obslog.Object(obj.Name))
	}

	eng := &relocate.Engine{
		Arch:     obj.Arch,
		Base:     obj.base,
		Mem:      obj.mem,
		HasIFunc: callable.Available,
		Resolve:  obj.makeResolver(),
	}

	var allPending []relocate.LazyJumpSlot

	for _, set := range obj.relocationSets() {
		entries := set.read(obj)
		pending, err := eng.Apply(entries, lazy && set.isPLT)
		if err != nil {
			return fmt.Errorf("elfdyn: relocating %s: %w", obj.Name, err)
		}
		allPending = append(allPending, pending...)
	}

	if addrs, size, ok := obj.relrTable(); ok {
		eng.ApplyRELR(relocate.DecodeRELR(relocate.ReadRELRWords(obj.mem, addrs, int(size), obj.Arch.WordSize), obj.Arch.WordSize))
	}

	if len(allPending) > 0 {
		if err := obj.installLazyStubs(allPending); err != nil {
			return err
		}
	}

	return nil
}

func defaultScope(obj *Object) resolve.Scope {
	scope := make(resolve.Scope, len(obj.deps))
	for i, d := range obj.deps {
		scope[i] = d
	}
	return scope
}

func (o *Object) makeResolver() relocate.Resolver {
	return func(symIndex uint32) (uint64, uint64, error) {
		sym, ok := o.index.SymbolByIndex(int(symIndex))
		if !ok {
			return 0, 0, fmt.Errorf("elfdyn: dynsym index %d out of range", symIndex)
		}
		if sym.Name == "" {
			return 0, 0, nil
		}
		addr, err := resolve.Resolve(o, o.scope, o.preFind, sym.Name, nil, sym.Bind == elf.STB_WEAK)
		if err != nil {
			return 0, 0, err
		}
		return uint64(addr), sym.Size, nil
	}
}

type relocSet struct {
	isPLT bool
	read  func(*Object) []relocate.Entry
}

func (o *Object) relocationSets() []relocSet {
	var sets []relocSet
	img := o.Image

	if addr, ok := img.DynValue(elf.DT_RELA); ok {
		sz, _ := img.DynValue(elf.DT_RELASZ)
		sets = append(sets, relocSet{read: func(o *Object) []relocate.Entry {
			return relocate.ReadRela(o.mem, o.base+uintptr(addr), countEntries(sz, img.Class, true), img.Class)
		}})
	}
	if addr, ok := img.DynValue(elf.DT_REL); ok {
		sz, _ := img.DynValue(elf.DT_RELSZ)
		sets = append(sets, relocSet{read: func(o *Object) []relocate.Entry {
			return relocate.ReadRel(o.mem, o.base+uintptr(addr), countEntries(sz, img.Class, false), img.Class)
		}})
	}
	if addr, ok := img.DynValue(elf.DT_JMPREL); ok {
		sz, _ := img.DynValue(elf.DT_PLTRELSZ)
		relaPLT := true
		if t, ok := img.DynValue(elf.DT_PLTREL); ok {
			relaPLT = elf.DynTag(t) == elf.DT_RELA
		}
		sets = append(sets, relocSet{isPLT: true, read: func(o *Object) []relocate.Entry {
			if relaPLT {
				return relocate.ReadRela(o.mem, o.base+uintptr(addr), countEntries(sz, img.Class, true), img.Class)
			}
			return relocate.ReadRel(o.mem, o.base+uintptr(addr), countEntries(sz, img.Class, false), img.Class)
		}})
	}
	return sets
}

func countEntries(totalBytes uint64, class elf.Class, rela bool) int {
	var entSize uint64
	switch {
	case rela && class == elf.ELFCLASS64:
		entSize = 24
	case rela:
		entSize = 12
	case class == elf.ELFCLASS64:
		entSize = 16
	default:
		entSize = 8
	}
	return int(totalBytes / entSize)
}

// dtRelr and friends are not in debug/elf; RELR tags per the gABI RELR
// proposal.
const (
	dtRelr   = elf.DynTag(36)
	dtRelrSz = elf.DynTag(35)
)

func (o *Object) relrTable() (addr uintptr, size uint64, ok bool) {
	v, has := o.Image.DynValue(dtRelr)
	if !has {
		return 0, 0, false
	}
	sz, _ := o.Image.DynValue(dtRelrSz)
	return o.base + uintptr(v), sz, true
}

func (o *Object) installLazyStubs(pending []relocate.LazyJumpSlot) error {
	if o.trampolineToken == 0 {
		o.trampolineToken = trampoline.Register(o)
	}

	slots := make([]uint64, len(pending))
	for i, p := range pending {
		slots[i] = uint64(p.GOTAddr)
		o.pendingSlots[uint64(p.GOTAddr)] = p.Sym
	}

	in := &trampoline.Installer{Arch: o.Arch, Mapper: o.mapper}
	placements, err := in.Install(o.trampolineToken, slots)
	if err != nil {
		return err
	}
	for _, pl := range placements {
		o.mem.PutUint64(uintptr(pl.Slot), uint64(pl.Addr))
	}
	return nil
}
