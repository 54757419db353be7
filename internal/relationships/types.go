// Package relationships turns include requests into join plans or sequential
// fetch plans and assembles nested results. It implements the adapter's
// IncludeResolver so findMany with an include never degrades into per-row
// lookups.
package relationships

import (
	"errors"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/schema"
)

var (
	// ErrMaxDepthExceeded is returned when nested include expansion passes
	// the relationship's depth bound.
	ErrMaxDepthExceeded = errors.New("maximum relationship depth exceeded")

	// ErrUnknownRelationship is returned when an include names a relation
	// the resource does not declare.
	ErrUnknownRelationship = errors.New("unknown relationship")
)

// ResolvedInclude is one node of an expanded include request. Alias is the
// column prefix used to demultiplex joined rows; nested includes alias
// relative to their parent.
type ResolvedInclude struct {
	Relation   string
	Path       string
	Alias      string
	Descriptor *schema.RelationshipDescriptor
	Target     *schema.ResourceDefinition
	Depth      int
	Nested     []*ResolvedInclude
}

// Resolver resolves includes over the schema registry, executing against the
// backend through the adapter.
type Resolver struct {
	adapter  *adapter.Adapter
	registry *schema.Registry
	logger   *zap.Logger
}

// NewResolver creates a relationship resolver. The caller is expected to
// wire it back into the adapter with SetResolver.
func NewResolver(a *adapter.Adapter, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		adapter:  a,
		registry: a.Registry(),
		logger:   logger,
	}
}

// aliasSeparator joins path segments into column prefixes. Double underscore
// keeps generated aliases collision-free against snake_case field names.
const aliasSeparator = "__"
