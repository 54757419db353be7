package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/errs"
	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// relationPayload is one nested relation value split out of a mutation
// payload before the scalar fields reach the adapter.
type relationPayload struct {
	name  string
	rel   *schema.RelationshipDescriptor
	value interface{}
}

// CreateWithRelations creates a record together with nested relation
// payloads in one transaction. belongsTo objects are created first so the
// root can carry their foreign key; hasOne/hasMany objects are created after
// with the root's key filled in; belongsToMany takes a list of target ids
// and links them through the junction table.
func (e *Engine) CreateWithRelations(ctx context.Context, resource string, data adapter.Record) (adapter.Record, error) {
	def, err := e.definition(resource)
	if err != nil {
		return nil, err
	}

	fields, nested, err := e.splitRelations(resource, data)
	if err != nil {
		return nil, err
	}

	if err := validateRecord(def, fields, false); err != nil {
		return nil, err
	}

	var created adapter.Record
	err = e.adapter.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, np := range nested {
			if np.rel.Kind != schema.BelongsTo {
				continue
			}
			child, ok := np.value.(map[string]interface{})
			if !ok {
				return errs.NotSupportedf("relation %s.%s expects an object payload", resource, np.name)
			}
			parent, err := e.adapter.CreateTx(ctx, tx, np.rel.TargetResource, child)
			if err != nil {
				return err
			}
			fields[np.rel.ForeignKey] = parent[np.rel.ResolvedTargetKey()]
		}

		record, err := e.adapter.CreateTx(ctx, tx, resource, fields)
		if err != nil {
			return err
		}

		for _, np := range nested {
			if err := e.createNested(ctx, tx, resource, record, np); err != nil {
				return err
			}
		}

		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	relNames := make([]string, 0, len(nested))
	for _, np := range nested {
		relNames = append(relNames, np.name)
	}
	return e.FindByID(ctx, resource, created["id"].(string), relNames)
}

// UpdateWithRelations updates a record's scalar fields and replaces its
// belongsToMany associations in one transaction. To-many child payloads are
// not diffed here; callers manage those through the relation endpoints.
func (e *Engine) UpdateWithRelations(ctx context.Context, resource, id string, data adapter.Record) (adapter.Record, error) {
	def, err := e.definition(resource)
	if err != nil {
		return nil, err
	}

	fields, nested, err := e.splitRelations(resource, data)
	if err != nil {
		return nil, err
	}

	if err := validateRecord(def, fields, true); err != nil {
		return nil, err
	}

	err = e.adapter.WithTransaction(ctx, func(tx *sql.Tx) error {
		if len(fields) > 0 {
			updated, err := e.adapter.UpdateTx(ctx, tx, resource, []query.Condition{query.Eq("id", id)}, fields)
			if err != nil {
				return err
			}
			if len(updated) == 0 {
				return errs.NotFoundf("%s %s not found", resource, id)
			}
		}

		for _, np := range nested {
			if np.rel.Kind != schema.BelongsToMany {
				return errs.NotSupportedf("relation %s.%s cannot be replaced through update", resource, np.name)
			}
			ids, err := targetIDList(np.value)
			if err != nil {
				return fmt.Errorf("relation %s.%s: %w", resource, np.name, err)
			}
			if err := e.resolver.ReplaceTx(ctx, tx, resource, id, np.name, ids); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	relNames := make([]string, 0, len(nested))
	for _, np := range nested {
		relNames = append(relNames, np.name)
	}
	return e.FindByID(ctx, resource, id, relNames)
}

// createNested writes the to-many side of one nested payload after the root
// record exists. belongsTo payloads were consumed before the root insert.
func (e *Engine) createNested(ctx context.Context, tx *sql.Tx, resource string, root adapter.Record, np relationPayload) error {
	switch np.rel.Kind {
	case schema.BelongsTo:
		return nil

	case schema.HasOne:
		child, ok := np.value.(map[string]interface{})
		if !ok {
			return errs.NotSupportedf("relation %s.%s expects an object payload", resource, np.name)
		}
		child[np.rel.ForeignKey] = root[np.rel.ResolvedTargetKey()]
		_, err := e.adapter.CreateTx(ctx, tx, np.rel.TargetResource, child)
		return err

	case schema.HasMany:
		children, ok := np.value.([]interface{})
		if !ok {
			return errs.NotSupportedf("relation %s.%s expects an array payload", resource, np.name)
		}
		for _, item := range children {
			child, ok := item.(map[string]interface{})
			if !ok {
				return errs.NotSupportedf("relation %s.%s expects object elements", resource, np.name)
			}
			child[np.rel.ForeignKey] = root[np.rel.ResolvedTargetKey()]
			if _, err := e.adapter.CreateTx(ctx, tx, np.rel.TargetResource, child); err != nil {
				return err
			}
		}
		return nil

	case schema.BelongsToMany:
		ids, err := targetIDList(np.value)
		if err != nil {
			return fmt.Errorf("relation %s.%s: %w", resource, np.name, err)
		}
		return e.resolver.LinkTx(ctx, tx, resource, root["id"], np.name, ids)

	default:
		return errs.NotSupportedf("relation kind %v", np.rel.Kind)
	}
}

// splitRelations separates scalar field values from nested relation payloads.
func (e *Engine) splitRelations(resource string, data adapter.Record) (adapter.Record, []relationPayload, error) {
	fields := make(adapter.Record, len(data))
	var nested []relationPayload

	for key, value := range data {
		if rel, ok := e.registry.Relationship(resource, key); ok {
			nested = append(nested, relationPayload{name: key, rel: rel, value: value})
			continue
		}
		fields[key] = value
	}
	return fields, nested, nil
}

// targetIDList coerces a nested belongsToMany payload into target ids.
func targetIDList(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			id, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: expected target id strings", errs.ErrNotSupported)
			}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("%w: expected a list of target ids", errs.ErrNotSupported)
	}
}
