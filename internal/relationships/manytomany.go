package relationships

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/errs"
	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// JunctionOp is the kind of many-to-many mutation.
type JunctionOp string

const (
	// JunctionSet replaces all associations with the given ids.
	JunctionSet JunctionOp = "set"
	// JunctionAdd inserts only ids not already associated.
	JunctionAdd JunctionOp = "add"
	// JunctionRemove deletes only the given ids.
	JunctionRemove JunctionOp = "remove"
)

// ManageManyToMany mutates the junction rows of a belongsToMany relation in
// one transaction, so set/add/remove are all-or-nothing. A set immediately
// followed by another set leaves exactly the second call's ids associated.
func (r *Resolver) ManageManyToMany(ctx context.Context, resource string, id interface{}, relationName string, targetIDs []string, op JunctionOp) error {
	rel, ok := r.registry.Relationship(resource, relationName)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, resource, relationName)
	}
	if rel.Kind != schema.BelongsToMany {
		return fmt.Errorf("%w: %s.%s is not a belongsToMany relation", errs.ErrNotSupported, resource, relationName)
	}

	return r.adapter.WithTransaction(ctx, func(tx *sql.Tx) error {
		switch op {
		case JunctionSet:
			if err := r.deleteAllPairs(ctx, tx, rel, id); err != nil {
				return err
			}
			return r.insertPairs(ctx, tx, rel, id, targetIDs)

		case JunctionAdd:
			existing, err := r.existingTargets(ctx, tx, rel, id)
			if err != nil {
				return err
			}
			var missing []string
			for _, target := range targetIDs {
				if !existing[target] {
					missing = append(missing, target)
				}
			}
			return r.insertPairs(ctx, tx, rel, id, missing)

		case JunctionRemove:
			return r.deletePairs(ctx, tx, rel, id, targetIDs)

		default:
			return fmt.Errorf("%w: junction operation %q", errs.ErrNotSupported, op)
		}
	})
}

// LinkTx inserts junction rows inside a caller-owned transaction. Nested
// writes use it so the root record and its associations commit together.
func (r *Resolver) LinkTx(ctx context.Context, q adapter.Querier, resource string, id interface{}, relationName string, targetIDs []string) error {
	rel, ok := r.registry.Relationship(resource, relationName)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, resource, relationName)
	}
	if rel.Kind != schema.BelongsToMany {
		return fmt.Errorf("%w: %s.%s is not a belongsToMany relation", errs.ErrNotSupported, resource, relationName)
	}
	return r.insertPairs(ctx, q, rel, id, targetIDs)
}

// ReplaceTx swaps all junction rows for the given source inside a
// caller-owned transaction, leaving exactly targetIDs associated.
func (r *Resolver) ReplaceTx(ctx context.Context, q adapter.Querier, resource string, id interface{}, relationName string, targetIDs []string) error {
	rel, ok := r.registry.Relationship(resource, relationName)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, resource, relationName)
	}
	if rel.Kind != schema.BelongsToMany {
		return fmt.Errorf("%w: %s.%s is not a belongsToMany relation", errs.ErrNotSupported, resource, relationName)
	}
	if err := r.deleteAllPairs(ctx, q, rel, id); err != nil {
		return err
	}
	return r.insertPairs(ctx, q, rel, id, targetIDs)
}

func (r *Resolver) insertPairs(ctx context.Context, q adapter.Querier, rel *schema.RelationshipDescriptor, id interface{}, targetIDs []string) error {
	if len(targetIDs) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(adapter.StoredDateLayout)
	stmt := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3)",
		query.QuoteIdent(rel.JunctionTable),
		query.QuoteIdent(rel.SourceKey),
		query.QuoteIdent(rel.TargetForeignKey),
		query.QuoteIdent("createdAt"),
	)

	for _, target := range targetIDs {
		if _, err := q.ExecContext(ctx, stmt, id, target, now); err != nil {
			return adapter.ConvertDBError(err)
		}
	}
	return nil
}

func (r *Resolver) deleteAllPairs(ctx context.Context, q adapter.Querier, rel *schema.RelationshipDescriptor, id interface{}) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		query.QuoteIdent(rel.JunctionTable), query.QuoteIdent(rel.SourceKey))
	if _, err := q.ExecContext(ctx, stmt, id); err != nil {
		return adapter.ConvertDBError(err)
	}
	return nil
}

func (r *Resolver) deletePairs(ctx context.Context, q adapter.Querier, rel *schema.RelationshipDescriptor, id interface{}, targetIDs []string) error {
	if len(targetIDs) == 0 {
		return nil
	}

	counter := 2
	args := []interface{}{id}
	whereSQL, err := query.BuildWhere([]query.Condition{
		{Field: rel.TargetForeignKey, Operator: query.OpIn, Value: targetIDs},
	}, "", &counter, &args)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND %s",
		query.QuoteIdent(rel.JunctionTable), query.QuoteIdent(rel.SourceKey), whereSQL)
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return adapter.ConvertDBError(err)
	}
	return nil
}

func (r *Resolver) existingTargets(ctx context.Context, q adapter.Querier, rel *schema.RelationshipDescriptor, id interface{}) (map[string]bool, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		query.QuoteIdent(rel.TargetForeignKey),
		query.QuoteIdent(rel.JunctionTable),
		query.QuoteIdent(rel.SourceKey))

	rows, err := q.QueryContext(ctx, stmt, id)
	if err != nil {
		return nil, adapter.ConvertDBError(err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, adapter.ConvertDBError(err)
		}
		existing[target] = true
	}
	if err := rows.Err(); err != nil {
		return nil, adapter.ConvertDBError(err)
	}
	return existing, nil
}
