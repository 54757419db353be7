package schema

import (
	"fmt"
	"sync"

	"github.com/armelgeek/better-query/internal/errs"
)

// Registry manages all resource definitions and their relationships.
type Registry struct {
	resources     map[string]*ResourceDefinition
	order         []string
	relationships map[string]map[string]*RelationshipDescriptor
	relOrder      map[string][]string
	mu            sync.RWMutex
}

// NewRegistry creates a new schema registry.
func NewRegistry() *Registry {
	return &Registry{
		resources:     make(map[string]*ResourceDefinition),
		relationships: make(map[string]map[string]*RelationshipDescriptor),
		relOrder:      make(map[string][]string),
	}
}

// Register registers a resource definition. Registering the same name twice
// is a conflict.
func (r *Registry) Register(def *ResourceDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[def.Name]; exists {
		return errs.Conflictf("resource %s is already registered", def.Name)
	}

	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", def.Name, err)
	}

	r.resources[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// RegisterRelationship declares a named relationship on a resource. The
// target resource may be registered later; cross-resource consistency is
// checked by ValidateAll.
func (r *Registry) RegisterRelationship(resource, name string, rel *RelationshipDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[resource]; !exists {
		return errs.NotFoundf("resource %s", resource)
	}
	if _, exists := r.relationships[resource][name]; exists {
		return errs.Conflictf("relationship %s.%s is already registered", resource, name)
	}

	if r.relationships[resource] == nil {
		r.relationships[resource] = make(map[string]*RelationshipDescriptor)
	}
	r.relationships[resource][name] = rel
	r.relOrder[resource] = append(r.relOrder[resource], name)
	return nil
}

// Get retrieves a resource definition by name.
func (r *Registry) Get(name string) (*ResourceDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.resources[name]
	return def, ok
}

// Exists checks if a resource is registered.
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns resource names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns a copy of the definition map.
func (r *Registry) All() map[string]*ResourceDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*ResourceDefinition, len(r.resources))
	for k, v := range r.resources {
		result[k] = v
	}
	return result
}

// Definitions returns the definitions in registration order.
func (r *Registry) Definitions() []*ResourceDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*ResourceDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.resources[name])
	}
	return defs
}

// Relationship retrieves a single relationship descriptor.
func (r *Registry) Relationship(resource, name string) (*RelationshipDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rel, ok := r.relationships[resource][name]
	return rel, ok
}

// Relationships returns a resource's relationships keyed by name.
func (r *Registry) Relationships(resource string) map[string]*RelationshipDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rels := r.relationships[resource]
	result := make(map[string]*RelationshipDescriptor, len(rels))
	for k, v := range rels {
		result[k] = v
	}
	return result
}

// RelationshipNames returns a resource's relationship names in declaration
// order.
func (r *Registry) RelationshipNames(resource string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.relOrder[resource]))
	copy(names, r.relOrder[resource])
	return names
}

// Count returns the number of registered resources.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

// ValidateAll performs cross-resource validation: every relationship target
// must exist, foreign/target keys must exist on the respective resources, and
// belongsToMany must carry the full junction configuration. Called once after
// all resources are registered.
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for resource, rels := range r.relationships {
		source := r.resources[resource]
		for _, name := range r.relOrder[resource] {
			rel := rels[name]
			if err := r.validateRelationship(source, name, rel); err != nil {
				return fmt.Errorf("relationship %s.%s: %w", resource, name, err)
			}
		}
	}

	for _, def := range r.resources {
		for _, f := range def.Fields {
			if f.Reference == nil {
				continue
			}
			target, ok := r.resources[f.Reference.TargetResource]
			if !ok {
				return fmt.Errorf("field %s.%s references unknown resource %s", def.Name, f.Name, f.Reference.TargetResource)
			}
			if !target.HasField(f.Reference.TargetField) {
				return fmt.Errorf("field %s.%s references unknown field %s.%s",
					def.Name, f.Name, target.Name, f.Reference.TargetField)
			}
		}
	}

	return nil
}

func (r *Registry) validateRelationship(source *ResourceDefinition, name string, rel *RelationshipDescriptor) error {
	target, ok := r.resources[rel.TargetResource]
	if !ok {
		return fmt.Errorf("target resource %s is not registered", rel.TargetResource)
	}

	switch rel.Kind {
	case BelongsTo:
		if !source.HasField(rel.ForeignKey) {
			return fmt.Errorf("foreign key %s does not exist on %s", rel.ForeignKey, source.Name)
		}
		if !target.HasField(rel.targetKeyOrID()) {
			return fmt.Errorf("target key %s does not exist on %s", rel.targetKeyOrID(), target.Name)
		}
	case HasOne, HasMany:
		if !target.HasField(rel.ForeignKey) {
			return fmt.Errorf("foreign key %s does not exist on %s", rel.ForeignKey, target.Name)
		}
		if !source.HasField(rel.targetKeyOrID()) {
			return fmt.Errorf("target key %s does not exist on %s", rel.targetKeyOrID(), source.Name)
		}
	case BelongsToMany:
		if rel.JunctionTable == "" || rel.SourceKey == "" || rel.TargetForeignKey == "" {
			return fmt.Errorf("belongsToMany requires junctionTable, sourceKey and targetForeignKey")
		}
	default:
		return fmt.Errorf("unknown relation kind %d", rel.Kind)
	}

	return nil
}

// targetKeyOrID returns the configured target key, defaulting to "id".
func (r *RelationshipDescriptor) targetKeyOrID() string {
	if r.TargetKey != "" {
		return r.TargetKey
	}
	return "id"
}

// ResolvedTargetKey is the exported form of the target key default.
func (r *RelationshipDescriptor) ResolvedTargetKey() string {
	return r.targetKeyOrID()
}
