package loader

import (
	"context"
	"debug/elf"
	"fmt"

	"github.com/go-elfdyn/elfdyn/internal/arch"
	"github.com/go-elfdyn/elfdyn/internal/lifetime"
	"github.com/go-elfdyn/elfdyn/internal/mapping"
	"github.com/go-elfdyn/elfdyn/internal/obslog"
	"github.com/go-elfdyn/elfdyn/internal/rawelf"
	"github.com/go-elfdyn/elfdyn/internal/relocate"
	"github.com/go-elfdyn/elfdyn/internal/source"
	"github.com/go-elfdyn/elfdyn/internal/symidx"
)

// ErrUnsupportedMachine reports that no internal/arch backend is compiled
// in for the image's e_machine.
type ErrUnsupportedMachine struct{ Machine elf.Machine }

func (e *ErrUnsupportedMachine) Error() string {
	return fmt.Sprintf("elfdyn: unsupported machine %s", e.Machine)
}

// LocatorFunc resolves a DT_NEEDED name (typically a SONAME) to a
// readable source, for recursive dependency loading. Returning
// (nil, false, nil) means "skip", used for libraries the caller knows are
// already satisfied by the host process.
type LocatorFunc func(name string) (source.Reader, bool, error)

// LoadOptions configures one Load call.
type LoadOptions struct {
	// Graph tracks dependency identity/lifetime across a related set of
	// Load calls; pass the same Graph across a process's lifetime of
	// loads that should share dependencies, or nil to load standalone
	// (with a Locator set, every DT_NEEDED is then loaded afresh, with no
	// sharing or cycle detection).
	Graph *ObjectGraph
	// Locator resolves DT_NEEDED entries recursively. Nil means "don't
	// chase dependencies" — the caller is responsible for supplying an
	// equivalent scope to Relocate.
	Locator LocatorFunc
	// Mapper is reused for every recursively loaded dependency; Load sets
	// it from its own mapper argument if the caller left it nil.
	Mapper mapping.Mapper
}

// Load implements C5's five-step mapping algorithm: span computation,
// reservation, per-PT_LOAD mapping (temporarily writable, to allow
// relocation before the final Protect), BSS zero-fill, and dynamic
// metadata capture including eager base-rebasing and symbol index
// construction.
func Load(ctx context.Context, name string, src source.Reader, mapper mapping.Mapper, opts LoadOptions) (*Object, error) {
	img, err := rawelf.Parse(src, src.Size())
	if err != nil {
		return nil, err
	}

	info, ok := arch.Lookup(img.Machine)
	if !ok {
		return nil, &ErrUnsupportedMachine{Machine: img.Machine}
	}

	loads := loadSegments(img)
	if len(loads) == 0 {
		return nil, &rawelf.ErrMalformedHeader{Reason: "no PT_LOAD segments"}
	}

	minVaddr, maxVaddr := spanOf(loads)
	span := maxVaddr - minVaddr

	region, err := mapper.Reserve(uintptr(span))
	if err != nil {
		return nil, err
	}

	unwind := func(cause error) (*Object, error) {
		_ = mapper.Unmap(region)
		return nil, cause
	}

	for _, p := range loads {
		offsetInRegion := uintptr(p.Vaddr - minVaddr)
		if p.Filesz > 0 {
			if err := mapper.MapFile(region, offsetInRegion, uintptr(p.Filesz), src, int64(p.Off), mapping.ProtRead|mapping.ProtWrite); err != nil {
				return unwind(err)
			}
		}
		if p.Memsz > p.Filesz {
			bssOff := offsetInRegion + uintptr(p.Filesz)
			bssLen := uintptr(p.Memsz - p.Filesz)
			if err := mapper.MapAnon(region, bssOff, bssLen, mapping.ProtRead|mapping.ProtWrite); err != nil {
				return unwind(err)
			}
		}
	}

	base := region.Addr - uintptr(minVaddr)

	obj := &Object{
		Name:         name,
		Image:        img,
		Arch:         info,
		mapper:       mapper,
		region:       region,
		base:         base,
		pendingSlots: make(map[uint64]uint32),
	}
	obj.mem = relocate.SliceMemory{symidx.SliceMemory{Base: region.Addr, Data: mappedSlice(region)}}

	if err := obj.buildIndex(); err != nil {
		return unwind(err)
	}

	obj.symbolic = img.Symbolic()

	for _, p := range img.File.Progs {
		if p.Type == elf.PT_TLS {
			obj.tlsModule = lifetime.NextTLSModuleID()
			break
		}
	}

	obj.node = lifetime.NewNode(name, releasableObject{obj})

	log().Debug("loaded object",
		obslog.Object(name),
		obslog.Addr("base", base),
	)

	if opts.Mapper == nil {
		opts.Mapper = mapper
	}
	if opts.Locator != nil {
		if err := loadDependencies(ctx, obj, opts); err != nil {
			return unwind(err)
		}
	}

	return obj, nil
}

type progHeader = elf.ProgHeader

func loadSegments(img *rawelf.Image) []progHeader {
	var out []progHeader
	for _, p := range img.File.Progs {
		if p.Type == elf.PT_LOAD {
			out = append(out, p.ProgHeader)
		}
	}
	return out
}

func spanOf(loads []progHeader) (min, max uint64) {
	min = ^uint64(0)
	for _, p := range loads {
		if p.Vaddr < min {
			min = p.Vaddr
		}
		if end := p.Vaddr + p.Memsz; end > max {
			max = end
		}
	}
	return min, max
}

func (o *Object) buildIndex() error {
	img := o.Image
	strtabAddr, _ := img.DynValue(elf.DT_STRTAB)
	symtabAddr, ok := img.DynValue(elf.DT_SYMTAB)
	if !ok {
		// A PIE/shared object with no dynamic symbol table at all: still
		// valid, it just exports and imports nothing.
		o.index = symidx.Build(symidx.BuildParams{Mem: o.mem, Class: img.Class, NumSyms: 0})
		return nil
	}

	numSyms := o.estimateSymCount(symtabAddr, strtabAddr)

	p := symidx.BuildParams{
		Mem:        o.mem,
		Class:      img.Class,
		SymtabAddr: o.base + uintptr(symtabAddr),
		StrtabAddr: o.base + uintptr(strtabAddr),
		NumSyms:    numSyms,
	}
	if v, ok := img.DynValue(elf.DT_GNU_HASH); ok {
		p.GNUHashAddr = o.base + uintptr(v)
	} else if v, ok := img.DynValue(elf.DT_HASH); ok {
		p.SysVHashAddr = o.base + uintptr(v)
	}
	if v, ok := img.DynValue(elf.DT_VERSYM); ok {
		p.VersymAddr = o.base + uintptr(v)
	}
	if v, ok := img.DynValue(elf.DT_VERDEF); ok {
		p.VerdefAddr = o.base + uintptr(v)
		n, _ := img.DynValue(elf.DT_VERDEFNUM)
		p.VerdefNum = int(n)
	}
	if v, ok := img.DynValue(elf.DT_VERNEED); ok {
		p.VerneedAddr = o.base + uintptr(v)
		n, _ := img.DynValue(elf.DT_VERNEEDNUM)
		p.VerneedNum = int(n)
	}

	o.index = symidx.Build(p)
	return nil
}

// estimateSymCount derives the dynamic symtab's entry count. debug/elf
// does not surface a DT_SYMTAB size tag (none exists in the gABI — a real
// dynamic linker infers it the same way): the table runs from DT_SYMTAB up
// to whatever follows it in the dynamic string/hash layout, so the byte
// distance to DT_STRTAB divided by the symbol entry size is used as the
// count, matching the layout every mainstream linker emits (symtab
// immediately followed by strtab or by the hash table, whichever the
// producer places first — strtab is used here since it's universally
// present).
func (o *Object) estimateSymCount(symtabAddr, strtabAddr uint64) int {
	if strtabAddr <= symtabAddr {
		return 0
	}
	entSize := uint64(24)
	if o.Image.Class == elf.ELFCLASS32 {
		entSize = 16
	}
	return int((strtabAddr - symtabAddr) / entSize)
}
