package relationships

import (
	"context"
	"fmt"
	"strings"

	"github.com/armelgeek/better-query/internal/adapter"
)

// ResolveIncludes expands dot-path include requests ("author",
// "author.posts") into an ordered tree of resolved includes. Depth is
// tracked explicitly per path and bounded by the root relation's max depth
// (default 3), so cyclic relationship graphs cannot drive unbounded
// expansion.
func (r *Resolver) ResolveIncludes(resource string, includes []string) ([]*ResolvedInclude, error) {
	roots := make([]*ResolvedInclude, 0, len(includes))
	index := make(map[string]*ResolvedInclude)

	for _, include := range includes {
		segments := strings.Split(include, ".")

		parentResource := resource
		parentPath := ""
		var parent *ResolvedInclude
		maxDepth := 0

		for depth, segment := range segments {
			path := segment
			if parentPath != "" {
				path = parentPath + "." + segment
			}

			if existing, ok := index[path]; ok {
				if depth == 0 {
					maxDepth = existing.Descriptor.EffectiveMaxDepth()
				}
				parent = existing
				parentPath = path
				parentResource = existing.Descriptor.TargetResource
				continue
			}

			rel, ok := r.registry.Relationship(parentResource, segment)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, parentResource, segment)
			}
			if depth == 0 {
				maxDepth = rel.EffectiveMaxDepth()
			}
			if depth+1 > maxDepth {
				return nil, fmt.Errorf("%w: %s exceeds depth %d", ErrMaxDepthExceeded, include, maxDepth)
			}

			target, ok := r.registry.Get(rel.TargetResource)
			if !ok {
				return nil, fmt.Errorf("unknown resource: %s", rel.TargetResource)
			}

			node := &ResolvedInclude{
				Relation:   segment,
				Path:       path,
				Alias:      strings.ReplaceAll(path, ".", aliasSeparator),
				Descriptor: rel,
				Target:     target,
				Depth:      depth + 1,
			}
			index[path] = node

			if parent == nil {
				roots = append(roots, node)
			} else {
				parent.Nested = append(parent.Nested, node)
			}

			parent = node
			parentPath = path
			parentResource = rel.TargetResource
		}
	}

	return roots, nil
}

// LoadIncludes implements adapter.IncludeResolver: it resolves the include
// request and loads related records into the given batch, choosing a joined
// query when the backend supports joins and sequential per-relation fetches
// otherwise.
func (r *Resolver) LoadIncludes(ctx context.Context, resource string, records []adapter.Record, includes []string) error {
	if len(records) == 0 || len(includes) == 0 {
		return nil
	}

	resolved, err := r.ResolveIncludes(resource, includes)
	if err != nil {
		return err
	}

	if r.adapter.Capabilities().Joins {
		return r.loadJoined(ctx, resource, records, resolved)
	}
	return r.loadSequential(ctx, records, resolved)
}

// flatten returns the include tree in depth-first order.
func flatten(resolved []*ResolvedInclude) []*ResolvedInclude {
	var out []*ResolvedInclude
	stack := make([]*ResolvedInclude, len(resolved))
	copy(stack, resolved)
	for len(stack) > 0 {
		node := stack[0]
		stack = stack[1:]
		out = append(out, node)
		stack = append(node.Nested, stack...)
	}
	return out
}
