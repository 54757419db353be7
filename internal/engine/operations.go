package engine

import (
	"context"
	"encoding/json"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/errs"
	"github.com/armelgeek/better-query/internal/plugin"
	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/relationships"
)

// Create validates the input, runs the before/after hook chains and inserts
// the record through the adapter.
func (e *Engine) Create(ctx context.Context, resource string, data adapter.Record) (adapter.Record, error) {
	def, err := e.definition(resource)
	if err != nil {
		return nil, err
	}

	hctx := plugin.NewContext(ctx, resource, "create")
	hctx.Input = data
	if err := e.plugins.RunHooks(plugin.BeforeCreate, hctx); err != nil {
		return nil, err
	}
	if hctx.Handled {
		return hctx.Record, nil
	}

	if err := validateRecord(def, hctx.Input, false); err != nil {
		return nil, err
	}

	record, err := e.adapter.Create(ctx, resource, hctx.Input)
	if err != nil {
		return nil, err
	}

	hctx.Record = record
	if err := e.plugins.RunHooks(plugin.AfterCreate, hctx); err != nil {
		return nil, err
	}
	return hctx.Record, nil
}

// FindFirst returns the first record matching the options, or a not-found
// error when nothing matches.
func (e *Engine) FindFirst(ctx context.Context, resource string, opts adapter.FindOptions) (adapter.Record, error) {
	if _, err := e.definition(resource); err != nil {
		return nil, err
	}

	hctx := plugin.NewContext(ctx, resource, "read")
	hctx.Query = findOptionsQuery(opts)
	hctx.RecordID = idFromWhere(opts.Where)
	if err := e.plugins.RunHooks(plugin.BeforeRead, hctx); err != nil {
		return nil, err
	}
	if hctx.Handled {
		return hctx.Record, nil
	}

	record, err := e.adapter.FindFirst(ctx, resource, opts)
	if err != nil {
		return nil, err
	}

	hctx.Record = record
	if err := e.plugins.RunHooks(plugin.AfterRead, hctx); err != nil {
		return nil, err
	}
	return hctx.Record, nil
}

// FindByID is a convenience wrapper over FindFirst.
func (e *Engine) FindByID(ctx context.Context, resource, id string, include []string) (adapter.Record, error) {
	return e.FindFirst(ctx, resource, adapter.FindOptions{
		Where:   []query.Condition{query.Eq("id", id)},
		Include: include,
	})
}

// FindMany returns every record matching the options.
func (e *Engine) FindMany(ctx context.Context, resource string, opts adapter.FindOptions) ([]adapter.Record, error) {
	if _, err := e.definition(resource); err != nil {
		return nil, err
	}

	hctx := plugin.NewContext(ctx, resource, "list")
	hctx.Query = findOptionsQuery(opts)
	if err := e.plugins.RunHooks(plugin.BeforeList, hctx); err != nil {
		return nil, err
	}
	if hctx.Handled {
		return hctx.Records, nil
	}

	records, err := e.adapter.FindMany(ctx, resource, opts)
	if err != nil {
		return nil, err
	}

	hctx.Records = records
	if err := e.plugins.RunHooks(plugin.AfterList, hctx); err != nil {
		return nil, err
	}
	return hctx.Records, nil
}

// Count returns the number of records matching the conditions.
func (e *Engine) Count(ctx context.Context, resource string, where []query.Condition) (int64, error) {
	if _, err := e.definition(resource); err != nil {
		return 0, err
	}
	return e.adapter.Count(ctx, resource, where)
}

// Update validates the supplied fields, runs hooks and applies the update.
func (e *Engine) Update(ctx context.Context, resource, id string, data adapter.Record) (adapter.Record, error) {
	def, err := e.definition(resource)
	if err != nil {
		return nil, err
	}

	hctx := plugin.NewContext(ctx, resource, "update")
	hctx.Input = data
	hctx.RecordID = id
	if err := e.plugins.RunHooks(plugin.BeforeUpdate, hctx); err != nil {
		return nil, err
	}
	if hctx.Handled {
		return hctx.Record, nil
	}

	if err := validateRecord(def, hctx.Input, true); err != nil {
		return nil, err
	}

	updated, err := e.adapter.Update(ctx, resource, []query.Condition{query.Eq("id", id)}, hctx.Input)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, errs.NotFoundf("%s %s not found", resource, id)
	}

	hctx.Record = updated[0]
	if err := e.plugins.RunHooks(plugin.AfterUpdate, hctx); err != nil {
		return nil, err
	}
	return hctx.Record, nil
}

// Delete removes a record. Referencing required foreign keys abort the delete
// unless cascade is set, in which case dependents are removed in the same
// transaction.
func (e *Engine) Delete(ctx context.Context, resource, id string, cascade bool) error {
	if _, err := e.definition(resource); err != nil {
		return err
	}

	hctx := plugin.NewContext(ctx, resource, "delete")
	hctx.RecordID = id
	if err := e.plugins.RunHooks(plugin.BeforeDelete, hctx); err != nil {
		return err
	}
	if hctx.Handled {
		return nil
	}

	deleted, err := e.adapter.Delete(ctx, resource, []query.Condition{query.Eq("id", id)}, cascade)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return errs.NotFoundf("%s %s not found", resource, id)
	}

	return e.plugins.RunHooks(plugin.AfterDelete, hctx)
}

// ManageRelation adjusts a many-to-many association on one source record.
func (e *Engine) ManageRelation(ctx context.Context, resource, id, relation string, op relationships.JunctionOp, targetIDs []string) error {
	if _, err := e.definition(resource); err != nil {
		return err
	}
	return e.resolver.ManageManyToMany(ctx, resource, id, relation, targetIDs, op)
}

// ExecuteOperation dispatches a named custom operation: plugin endpoints take
// precedence, then adapter-registered operations.
func (e *Engine) ExecuteOperation(ctx context.Context, name string, payload adapter.Record) (interface{}, error) {
	if op, ok := e.plugins.Endpoint(name); ok {
		return op(ctx, payload)
	}
	return e.adapter.ExecuteOperation(ctx, name, payload)
}

// Operations lists every dispatchable operation name.
func (e *Engine) Operations() []string {
	names := e.plugins.EndpointNames()
	names = append(names, e.adapter.Operations()...)
	return names
}

// findOptionsQuery serializes find options into a canonical string for the
// hook context; the cache plugin keys entries by it. encoding/json sorts map
// keys, so equal queries always serialize identically.
func findOptionsQuery(opts adapter.FindOptions) string {
	q := make(map[string]interface{})
	if len(opts.Where) > 0 {
		where := make([]map[string]interface{}, 0, len(opts.Where))
		for _, c := range opts.Where {
			where = append(where, map[string]interface{}{
				"field":    c.Field,
				"operator": c.Operator.String(),
				"value":    c.Value,
			})
		}
		q["where"] = where
	}
	if len(opts.OrderBy) > 0 {
		order := make([]map[string]interface{}, 0, len(opts.OrderBy))
		for _, o := range opts.OrderBy {
			order = append(order, map[string]interface{}{"field": o.Field, "desc": o.Desc})
		}
		q["orderBy"] = order
	}
	if opts.Limit > 0 {
		q["limit"] = opts.Limit
	}
	if opts.Offset > 0 {
		q["offset"] = opts.Offset
	}
	if len(opts.Include) > 0 {
		q["include"] = opts.Include
	}
	if len(q) == 0 {
		return ""
	}
	encoded, err := json.Marshal(q)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// idFromWhere extracts a single equality filter on id, if present, so read
// hooks can key caches by record id.
func idFromWhere(where []query.Condition) string {
	for _, c := range where {
		if c.Field != "id" || c.Operator != query.OpEqual {
			continue
		}
		if id, ok := c.Value.(string); ok {
			return id
		}
	}
	return ""
}
