package loader

import (
	"context"
	"fmt"
)

// loadDependencies resolves obj's DT_NEEDED entries via opts.Locator,
// recursively loading (or, via opts.Graph, reusing) each one and
// recording it both in obj.deps (Relocate's default scope) and as a
// lifetime strong reference.
func loadDependencies(ctx context.Context, obj *Object, opts LoadOptions) error {
	needed, err := obj.Image.Needed()
	if err != nil {
		return err
	}

	for _, name := range needed {
		dep, err := resolveDependency(ctx, name, opts)
		if err != nil {
			return fmt.Errorf("elfdyn: loading dependency %q: %w", name, err)
		}
		if dep == nil {
			continue // locator chose to skip (already satisfied by host)
		}
		obj.deps = append(obj.deps, dep)
		if obj.node != nil && dep.node != nil {
			obj.node.AddDep(dep.node)
		}
	}
	return nil
}

func resolveDependency(ctx context.Context, name string, opts LoadOptions) (*Object, error) {
	src, ok, err := opts.Locator(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	build := func() (*Object, error) {
		return Load(ctx, name, src, opts.Mapper, LoadOptions{Graph: opts.Graph, Locator: opts.Locator, Mapper: opts.Mapper})
	}

	if opts.Graph == nil {
		return build()
	}
	return opts.Graph.Load(name, build)
}
