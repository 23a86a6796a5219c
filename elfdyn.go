// Package elfdyn is the top-level facade: Library wraps loader.Load +
// loader.Relocate + a lifetime-tracked handle behind the same three-call
// shape the teacher's reflektor.Library offers over memmod.Module —
// LoadLibrary, CallExport, Close — generalized to ELF's Get/RunInit/Lazy
// options instead of PE's fixed-ABI export call.
package elfdyn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-elfdyn/elfdyn/internal/nativemap"
	"github.com/go-elfdyn/elfdyn/internal/source"
	"github.com/go-elfdyn/elfdyn/loader"
)

// ErrLibraryClosed is returned by any Library method called after Close.
var ErrLibraryClosed = errors.New("elfdyn: library is closed")

// Library is one loaded, relocated ELF object with a safe-to-call-twice
// Close.
type Library struct {
	mu     sync.RWMutex
	obj    *loader.Object
	closed bool
}

// Options configures LoadLibrary.
type Options struct {
	// Lazy requests deferred PLT binding where the target architecture
	// and build support it.
	Lazy bool
	// Locator resolves DT_NEEDED dependencies; nil means don't chase them.
	Locator loader.LocatorFunc
	// Graph shares dependency identity/lifetime across a set of related
	// LoadLibrary calls; nil loads standalone.
	Graph *loader.ObjectGraph
}

// LoadLibrary loads and relocates a shared object image already resident
// in memory.
func LoadLibrary(name string, data []byte, opts Options) (*Library, error) {
	if len(data) == 0 {
		return nil, errors.New("elfdyn: empty library image")
	}
	return loadFrom(name, source.NewBytes(data), opts)
}

// LoadLibraryFile loads and relocates a shared object from disk.
func LoadLibraryFile(path string, opts Options) (*Library, error) {
	f, err := source.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("elfdyn: open library file: %w", err)
	}
	return loadFrom(path, f, opts)
}

func loadFrom(name string, src source.Reader, opts Options) (*Library, error) {
	mapper := nativemap.New()
	obj, err := loader.Load(context.Background(), name, src, mapper, loader.LoadOptions{
		Graph:   opts.Graph,
		Locator: opts.Locator,
	})
	if err != nil {
		return nil, fmt.Errorf("elfdyn: load library: %w", err)
	}

	if err := loader.Relocate(obj, loader.RelocateOptions{Lazy: opts.Lazy}); err != nil {
		obj.Node().Release()
		return nil, fmt.Errorf("elfdyn: relocate library: %w", err)
	}

	loader.RunInit(obj)

	return &Library{obj: obj}, nil
}

// Get resolves an exported symbol's runtime address.
func (l *Library) Get(name string) (uintptr, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0, ErrLibraryClosed
	}
	addr, err := loader.Get(l.obj, name)
	if err != nil {
		return 0, fmt.Errorf("elfdyn: get %q: %w", name, err)
	}
	return addr, nil
}

// Close runs the library's fini array and releases its mapped memory (and,
// if it is the last referent, its dependencies'). Safe to call more than
// once.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.obj == nil {
		return nil
	}
	err := l.obj.Node().Release()
	l.obj = nil
	if err != nil {
		return fmt.Errorf("elfdyn: close library: %w", err)
	}
	return nil
}
