// Package trampoline implements lazy PLT binding: a process-wide registry
// of pending GOT slots keyed by (object token, slot index), landing-pad
// stubs written into an executable page that call back into resolveOne,
// and the GOT patch that completes the bind.
package trampoline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-elfdyn/elfdyn/internal/arch"
	"github.com/go-elfdyn/elfdyn/internal/mapping"
)

// Binder is the loader-side capability trampoline calls back into to
// actually resolve a deferred JUMP_SLOT the first time it is hit.
type Binder interface {
	// BindLazy resolves the symbol for GOT slot `slot` and returns the
	// address the call should land at. It is invoked at most once per
	// slot: after the first call the GOT has been patched directly, so
	// later calls never reach the landing pad again.
	BindLazy(slot uint64) (uintptr, error)
}

var (
	registry   sync.Map // uint64 token -> Binder
	nextToken  uint64
)

// Register mints a token for obj and records it so the shared resolve
// entry point can route a landing-pad call back to the right object. The
// token must be embedded in every landing pad installed for that object.
func Register(b Binder) uint64 {
	token := atomic.AddUint64(&nextToken, 1)
	registry.Store(token, b)
	return token
}

// Unregister drops an object's binder once it is released; a landing pad
// for that token reached after this calls OnFailure with an unknown-token
// error.
func Unregister(token uint64) {
	registry.Delete(token)
}

// ErrLazyBindingUnavailable reports that this build cannot host a
// lazy-binding landing pad: native code calling back into Go requires the
// cgo export bridge in resolve_cgo_linux.go, present only on linux/cgo for
// amd64 and arm64.
type ErrLazyBindingUnavailable struct{}

func (ErrLazyBindingUnavailable) Error() string {
	return "elfdyn: lazy binding requires a cgo build on amd64 or arm64"
}

// OnFailure is invoked when a landing pad's deferred bind fails to
// resolve. The default aborts the process, matching how a native dynamic
// linker treats an unresolvable lazy symbol (spec.md's fatal-abort path);
// tests replace it to observe the failure instead of crashing.
var OnFailure = func(token, slot uint64, err error) {
	panic(fmt.Sprintf("elfdyn: lazy bind failed for token=%d slot=%d: %v", token, slot, err))
}

// resolveOne is the single entry point every architecture's landing pad
// calls into (via the cgo bridge in resolve_cgo_linux.go). It looks up the
// registered Binder for token, asks it to resolve slot, and returns the
// final address — which is also, per the landing-pad contract, what the
// stub tail-jumps to.
func resolveOne(token, slot uint64) uintptr {
	v, ok := registry.Load(token)
	if !ok {
		OnFailure(token, slot, fmt.Errorf("unknown object token"))
		return 0
	}
	b := v.(Binder)
	addr, err := b.BindLazy(slot)
	if err != nil {
		OnFailure(token, slot, err)
		return 0
	}
	return addr
}

// Installer writes landing-pad stubs into an executable page obtained
// through a mapping.Mapper, one per deferred PLT slot.
type Installer struct {
	Arch   *arch.Info
	Mapper mapping.Mapper
}

// StubPlacement records where one slot's landing pad ended up, so the
// caller can patch that slot's GOT entry to point at it.
type StubPlacement struct {
	Slot uint64
	Addr uintptr
}

// Install reserves and writes one executable region, rounded up to whole
// pages, holding a landing pad for every given slot, tagged with token so
// resolveOne can route calls
// back to the right object.
func (in *Installer) Install(token uint64, slots []uint64) ([]StubPlacement, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	if in.Arch.PLTEntSize == 0 {
		return nil, fmt.Errorf("elfdyn: %s has no lazy-binding landing pad; use eager binding", in.Arch.Name)
	}
	if !Available {
		return nil, ErrLazyBindingUnavailable{}
	}

	total := uintptr(len(slots) * in.Arch.PLTEntSize)
	pageSize := uintptr(in.Arch.PageSize)
	pages := (total + pageSize - 1) / pageSize * pageSize

	region, err := in.Mapper.Reserve(pages)
	if err != nil {
		return nil, err
	}
	if err := in.Mapper.MapAnon(region, 0, pages, mapping.ProtRead|mapping.ProtWrite); err != nil {
		return nil, err
	}

	entry := resolveEntryAddr()
	placements := make([]StubPlacement, len(slots))
	buf := make([]byte, 0, total)
	for i, slot := range slots {
		stub := landingPad(in.Arch, entry, token, slot)
		placements[i] = StubPlacement{Slot: slot, Addr: region.Addr + uintptr(len(buf))}
		buf = append(buf, stub...)
	}

	if err := writeAt(region.Addr, buf); err != nil {
		return nil, err
	}
	if err := in.Mapper.Protect(region.Addr, pages, mapping.ProtRead|mapping.ProtExec); err != nil {
		return nil, err
	}
	return placements, nil
}

func landingPad(info *arch.Info, entry uintptr, token, slot uint64) []byte {
	switch info.Name {
	case "amd64":
		return arch.AMD64LandingPad(entry, token, slot)
	case "arm64":
		return arch.ARM64LandingPad(entry, token, slot)
	default:
		return nil
	}
}
