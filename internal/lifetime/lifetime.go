// Package lifetime tracks the dependency graph between loaded objects:
// strong references that keep a dependency alive while anything needs it,
// cycle detection during loading, and reverse-topological teardown so an
// object's fini runs only after everything that might call into it is
// already gone.
package lifetime

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Releasable is whatever a Node wraps: the loader's Object, behind a small
// interface so this package never imports loader (which itself needs to
// reference Node, via Graph.Load's build callback).
type Releasable interface {
	// RunFini runs the object's DT_FINI_ARRAY/DT_FINI and is called
	// exactly once, after every dependent has already had its own
	// RunFini called.
	RunFini()
	// Unmap releases the object's mapped memory. Called once, after
	// RunFini.
	Unmap() error
}

// Node is one loaded object's place in the dependency graph.
type Node struct {
	Name string
	Obj  Releasable

	deps     []*Node
	refCount int32 // strong references: 1 for the initial load, +1 per dependent after the first
	adopted  int32 // 1 once a dependent has taken over the initial load's reference
}

// NewNode wraps obj in a Node holding exactly one strong reference: the
// caller's own handle, released via Node.Release when the caller is done
// with it. If the node is instead recorded as a dependency via AddDep, the
// first dependent takes over that reference.
func NewNode(name string, obj Releasable) *Node {
	return &Node{Name: name, Obj: obj, refCount: 1}
}

// AddDep records that n depends on dep. The first dependent recorded for
// dep takes over dep's initial reference; every later dependent takes an
// additional strong reference.
func (n *Node) AddDep(dep *Node) {
	if !atomic.CompareAndSwapInt32(&dep.adopted, 0, 1) {
		atomic.AddInt32(&dep.refCount, 1)
	}
	n.deps = append(n.deps, dep)
}

// ErrCircularDependency reports a DT_NEEDED cycle discovered while
// loading, naming the chain of object names that closes the loop.
type ErrCircularDependency struct {
	Chain []string
}

func (e *ErrCircularDependency) Error() string {
	return fmt.Sprintf("elfdyn: circular dependency: %s", strings.Join(e.Chain, " -> "))
}

// Graph tracks every live Node by name (an object's DT_SONAME or load
// path) so a repeated DT_NEEDED reference reuses the existing Node instead
// of reloading and remapping the same object.
type Graph struct {
	mu       sync.Mutex
	nodes    map[string]*Node
	inFlight map[string]bool // names currently being built, for cycle detection
	order    []string        // load order of successfully built names (recorded, not read)
}

// NewGraph returns an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		inFlight: make(map[string]bool),
	}
}

// Load returns the existing Node for name if already loaded, or calls
// build to construct one. build is called with the graph's lock released,
// so it may itself call Load for this object's own dependencies; a name
// that reappears while still in-flight is a cycle and fails with
// ErrCircularDependency instead of deadlocking or recursing forever.
func (g *Graph) Load(name string, build func() (*Node, error)) (*Node, error) {
	g.mu.Lock()
	if n, ok := g.nodes[name]; ok {
		g.mu.Unlock()
		return n, nil
	}
	if g.inFlight[name] {
		chain := g.inflightChain(name)
		g.mu.Unlock()
		return nil, &ErrCircularDependency{Chain: chain}
	}
	g.inFlight[name] = true
	g.mu.Unlock()

	n, err := build()

	g.mu.Lock()
	delete(g.inFlight, name)
	if err == nil {
		g.nodes[name] = n
		g.order = append(g.order, name)
	}
	g.mu.Unlock()

	return n, err
}

// inflightChain renders the set of names currently being built as a
// readable chain, for error reporting. Graph does not track precise edge
// order for in-flight names (a map has none), so this lists them
// alongside the name that closed the cycle rather than claiming an exact
// call path.
func (g *Graph) inflightChain(name string) []string {
	chain := make([]string, 0, len(g.inFlight)+1)
	for n := range g.inFlight {
		chain = append(chain, n)
	}
	chain = append(chain, name)
	return chain
}

// Release drops the caller's strong reference to n and, once its
// refcount reaches zero, runs its fini and unmaps it, then recursively
// releases its own dependencies in the same way — so a dependency's fini
// runs before any of its dependencies', matching reverse load order.
func (n *Node) Release() error {
	if atomic.AddInt32(&n.refCount, -1) > 0 {
		return nil
	}

	n.Obj.RunFini()
	err := n.Obj.Unmap()

	for _, dep := range n.deps {
		if depErr := dep.Release(); depErr != nil && err == nil {
			err = depErr
		}
	}
	return err
}

// nextTLSModuleID is the process-wide TLS module-id counter; module id 1
// is reserved for the initial executable in a native dynamic linker, so
// elfdyn's counter starts at 2 for the first dynamically loaded object.
var nextTLSModuleID uint64 = 1

// NextTLSModuleID allocates the next TLS module id for a newly loaded
// object carrying a PT_TLS segment.
func NextTLSModuleID() uint64 {
	return atomic.AddUint64(&nextTLSModuleID, 1)
}
