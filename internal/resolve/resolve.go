// Package resolve implements the dynamic symbol search order: the three
// tiers a reference walks through before it is considered unresolved.
package resolve

import "github.com/go-elfdyn/elfdyn/internal/symidx"

// ErrUnresolvedSymbol reports that name (optionally versioned) could not be
// found in self, in scope, or via preFind, and was not a weak reference.
type ErrUnresolvedSymbol struct {
	Name    string
	Version string
}

func (e *ErrUnresolvedSymbol) Error() string {
	if e.Version != "" {
		return "elfdyn: unresolved symbol " + e.Name + "@" + e.Version
	}
	return "elfdyn: unresolved symbol " + e.Name
}

// Scoped is the minimal capability a loaded object exposes to the resolver:
// its own symbol index and base address, enough to turn a matched Symbol
// into an absolute runtime address.
type Scoped interface {
	SymbolIndex() *symidx.Index
	Base() uintptr
	// Symbolic reports whether this object was linked -Bsymbolic: if so it
	// is consulted before the rest of scope even for references it makes
	// against its own undefined symbols.
	Symbolic() bool
}

// Scope is the ordered list of objects searched after the referencing
// object itself. When Relocate is given no explicit scope, the loader
// builds one from the object's loaded DT_NEEDED dependencies, in order.
type Scope []Scoped

// PreFindFunc lets an embedder intercept a lookup before the scope search,
// e.g. to serve symbols out of the hosting process's own symbol table
// (dlsym(RTLD_DEFAULT, ...) in a native dynamic linker).
type PreFindFunc func(name string, ver *symidx.VersionEntry) (uintptr, bool)

// Resolve implements spec.md's three-tier search order for one relocation
// reference:
//
//  1. If current is linked -Bsymbolic, current's own symbol table is tried
//     first. The binding of the reference is not consulted: a locally
//     bound reference in a non-symbolic object goes straight to step 2.
//  2. Otherwise (and always as a fallback after 1), scope is searched in
//     order; the first object exposing a matching defined, version-compatible
//     symbol wins.
//  3. If still unresolved and preFind is non-nil, it gets one shot.
//
// A weak reference that remains unresolved returns (0, nil) — value zero,
// no error — rather than ErrUnresolvedSymbol; the caller treats it as a
// deliberately absent weak symbol.
func Resolve(current Scoped, scope Scope, preFind PreFindFunc, name string, ver *symidx.VersionEntry, weak bool) (uintptr, error) {
	if current != nil && current.Symbolic() {
		if addr, ok := tryObject(current, name, ver); ok {
			return addr, nil
		}
	}

	for _, obj := range scope {
		if addr, ok := tryObject(obj, name, ver); ok {
			return addr, nil
		}
	}

	if preFind != nil {
		if addr, ok := preFind(name, ver); ok {
			return addr, nil
		}
	}

	if weak {
		return 0, nil
	}

	verName := ""
	if ver != nil {
		verName = ver.Name
	}
	return 0, &ErrUnresolvedSymbol{Name: name, Version: verName}
}

func tryObject(obj Scoped, name string, ver *symidx.VersionEntry) (uintptr, bool) {
	if obj == nil {
		return 0, false
	}
	idx := obj.SymbolIndex()
	if idx == nil {
		return 0, false
	}
	sym, ok := idx.Lookup(name, ver)
	if !ok {
		return 0, false
	}
	return obj.Base() + uintptr(sym.Value), true
}
