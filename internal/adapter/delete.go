package adapter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/armelgeek/better-query/internal/errs"
	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// Delete removes records matching the conditions. The default behavior is
// restrict: when another resource still points at a targeted row through a
// required reference, the delete fails with a conflict. With cascade enabled
// referencing rows are deleted recursively; a visited set terminates the
// recursion on self-referential or mutually-referential resources.
func (a *Adapter) Delete(ctx context.Context, resource string, where []query.Condition, cascade bool) (int64, error) {
	var deleted int64
	err := a.WithTransaction(ctx, func(tx *sql.Tx) error {
		visited := make(map[string]map[string]bool)
		n, err := a.deleteInTx(ctx, tx, resource, where, cascade, visited)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	})
	return deleted, err
}

func (a *Adapter) deleteInTx(
	ctx context.Context,
	q Querier,
	resource string,
	where []query.Condition,
	cascade bool,
	visited map[string]map[string]bool,
) (int64, error) {
	def, err := a.definition(resource)
	if err != nil {
		return 0, err
	}

	ids, err := a.selectIDs(ctx, q, def, where)
	if err != nil {
		return 0, err
	}

	// Skip rows already scheduled for deletion higher up the recursion.
	if visited[resource] == nil {
		visited[resource] = make(map[string]bool)
	}
	pending := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		key := fmt.Sprint(id)
		if visited[resource][key] {
			continue
		}
		visited[resource][key] = true
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := a.resolveReferences(ctx, q, resource, pending, cascade, visited); err != nil {
		return 0, err
	}
	if err := a.deleteJunctionRows(ctx, q, resource, pending); err != nil {
		return 0, err
	}

	counter := 1
	var args []interface{}
	whereSQL, err := query.BuildWhere([]query.Condition{
		{Field: "id", Operator: query.OpIn, Value: pending},
	}, "", &counter, &args)
	if err != nil {
		return 0, err
	}

	result, err := q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s", query.QuoteIdent(def.TableName), whereSQL), args...)
	if err != nil {
		return 0, ConvertDBError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, ConvertDBError(err)
	}
	return affected, nil
}

// resolveReferences inspects every registered resource for fields pointing at
// the rows being deleted and applies restrict, set-null or cascade.
func (a *Adapter) resolveReferences(
	ctx context.Context,
	q Querier,
	resource string,
	ids []interface{},
	cascade bool,
	visited map[string]map[string]bool,
) error {
	for _, other := range a.registry.Definitions() {
		for i := range other.Fields {
			field := &other.Fields[i]
			if field.Reference == nil || field.Reference.TargetResource != resource {
				continue
			}

			cond := []query.Condition{{Field: field.Name, Operator: query.OpIn, Value: ids}}
			count, err := a.CountTx(ctx, q, other.Name, cond)
			if err != nil {
				return err
			}
			if count == 0 {
				continue
			}

			switch {
			case cascade:
				if _, err := a.deleteInTx(ctx, q, other.Name, cond, true, visited); err != nil {
					return err
				}
			case field.Required:
				return fmt.Errorf("%w: cannot delete %s: still referenced by %d %s record(s) via %s",
					errs.ErrConflict, resource, count, other.Name, field.Name)
			default:
				// Optional reference: detach instead of blocking.
				if err := a.clearReference(ctx, q, other, field.Name, ids); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (a *Adapter) clearReference(ctx context.Context, q Querier, def *schema.ResourceDefinition, field string, ids []interface{}) error {
	counter := 1
	var args []interface{}
	whereSQL, err := query.BuildWhere([]query.Condition{
		{Field: field, Operator: query.OpIn, Value: ids},
	}, "", &counter, &args)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s",
		query.QuoteIdent(def.TableName), query.QuoteIdent(field), whereSQL)
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return ConvertDBError(err)
	}
	return nil
}

// deleteJunctionRows removes junction pairs involving the deleted rows from
// every belongsToMany relation on either side.
func (a *Adapter) deleteJunctionRows(ctx context.Context, q Querier, resource string, ids []interface{}) error {
	seen := make(map[string]bool)
	for _, owner := range a.registry.List() {
		for _, rel := range a.registry.Relationships(owner) {
			if rel.Kind != schema.BelongsToMany {
				continue
			}

			var key string
			switch {
			case owner == resource:
				key = rel.SourceKey
			case rel.TargetResource == resource:
				key = rel.TargetForeignKey
			default:
				continue
			}

			dedupe := rel.JunctionTable + ":" + key
			if seen[dedupe] {
				continue
			}
			seen[dedupe] = true

			counter := 1
			var args []interface{}
			whereSQL, err := query.BuildWhere([]query.Condition{
				{Field: key, Operator: query.OpIn, Value: ids},
			}, "", &counter, &args)
			if err != nil {
				return err
			}
			stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", query.QuoteIdent(rel.JunctionTable), whereSQL)
			if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
				return ConvertDBError(err)
			}
		}
	}
	return nil
}

// selectIDs returns the ids of rows matching the conditions.
func (a *Adapter) selectIDs(ctx context.Context, q Querier, def *schema.ResourceDefinition, where []query.Condition) ([]interface{}, error) {
	where, err := transformWhere(def, where)
	if err != nil {
		return nil, err
	}

	counter := 1
	var args []interface{}
	whereSQL, err := query.BuildWhere(where, "", &counter, &args)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", query.QuoteIdent("id"), query.QuoteIdent(def.TableName))
	if whereSQL != "" {
		stmt += " WHERE " + whereSQL
	}

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var ids []interface{}
	for rows.Next() {
		var id interface{}
		if err := rows.Scan(&id); err != nil {
			return nil, ConvertDBError(err)
		}
		ids = append(ids, normalizeValue(id))
	}
	if err := rows.Err(); err != nil {
		return nil, ConvertDBError(err)
	}
	return ids, nil
}
