package loader

import (
	"sync"

	"github.com/go-elfdyn/elfdyn/internal/lifetime"
)

// ObjectGraph dedups dependency loads by name across a set of related
// Load calls, backed by internal/lifetime.Graph for cycle detection and
// reverse-topological release. It is the loader-level counterpart of
// lifetime.Graph: lifetime tracks Nodes, this tracks the *Object each
// Node wraps, so Relocate can build a dependency Scope directly.
type ObjectGraph struct {
	mu   sync.Mutex
	lg   *lifetime.Graph
	objs map[string]*Object
}

// NewObjectGraph returns an empty graph.
func NewObjectGraph() *ObjectGraph {
	return &ObjectGraph{lg: lifetime.NewGraph(), objs: make(map[string]*Object)}
}

// Load returns the existing Object for name, or calls build once and
// records the result. A name re-entered while its own build is still
// running (a DT_NEEDED cycle) fails with *lifetime.ErrCircularDependency.
func (g *ObjectGraph) Load(name string, build func() (*Object, error)) (*Object, error) {
	_, err := g.lg.Load(name, func() (*lifetime.Node, error) {
		obj, err := build()
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.objs[name] = obj
		g.mu.Unlock()
		return obj.node, nil
	})
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	obj := g.objs[name]
	g.mu.Unlock()
	return obj, nil
}
