package relationships

import (
	"context"
	"fmt"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// loadSequential loads each relation with one batched query per relation per
// root batch, for backends without join support.
func (r *Resolver) loadSequential(ctx context.Context, records []adapter.Record, resolved []*ResolvedInclude) error {
	for _, node := range resolved {
		if err := r.loadRelation(ctx, records, node); err != nil {
			return fmt.Errorf("failed to load relationship %s: %w", node.Path, err)
		}

		if len(node.Nested) > 0 {
			nested := collectRelated(records, node)
			if len(nested) > 0 {
				if err := r.loadSequential(ctx, nested, node.Nested); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *Resolver) loadRelation(ctx context.Context, records []adapter.Record, node *ResolvedInclude) error {
	switch node.Descriptor.Kind {
	case schema.BelongsTo:
		return r.loadBelongsTo(ctx, records, node)
	case schema.HasOne, schema.HasMany:
		return r.loadHas(ctx, records, node)
	case schema.BelongsToMany:
		return r.loadBelongsToMany(ctx, records, node)
	default:
		return fmt.Errorf("unknown relation kind %s", node.Descriptor.Kind)
	}
}

// loadBelongsTo fetches the parents of a batch in one IN query and attaches
// each match under the relation name. Records with no match keep the field
// absent.
func (r *Resolver) loadBelongsTo(ctx context.Context, records []adapter.Record, node *ResolvedInclude) error {
	rel := node.Descriptor

	keys := distinctValues(records, rel.ForeignKey)
	if len(keys) == 0 {
		return nil
	}

	related, err := r.adapter.FindManyTx(ctx, r.adapter.DB(), rel.TargetResource, adapter.FindOptions{
		Where: []query.Condition{{Field: rel.ResolvedTargetKey(), Operator: query.OpIn, Value: keys}},
	})
	if err != nil {
		return err
	}

	byKey := make(map[string]adapter.Record, len(related))
	for _, rec := range related {
		byKey[fmt.Sprint(rec[rel.ResolvedTargetKey()])] = rec
	}

	for _, record := range records {
		fk := record[rel.ForeignKey]
		if fk == nil {
			continue
		}
		if match, ok := byKey[fmt.Sprint(fk)]; ok {
			record[node.Relation] = match
		}
	}
	return nil
}

// loadHas fetches all children of a batch in one IN query; hasOne attaches
// the first match per parent, hasMany collects all in query order.
func (r *Resolver) loadHas(ctx context.Context, records []adapter.Record, node *ResolvedInclude) error {
	rel := node.Descriptor

	keys := distinctValues(records, rel.ResolvedTargetKey())
	if len(keys) == 0 {
		return nil
	}

	related, err := r.adapter.FindManyTx(ctx, r.adapter.DB(), rel.TargetResource, adapter.FindOptions{
		Where: []query.Condition{{Field: rel.ForeignKey, Operator: query.OpIn, Value: keys}},
	})
	if err != nil {
		return err
	}

	grouped := make(map[string][]adapter.Record)
	for _, rec := range related {
		key := fmt.Sprint(rec[rel.ForeignKey])
		grouped[key] = append(grouped[key], rec)
	}

	for _, record := range records {
		key := fmt.Sprint(record[rel.ResolvedTargetKey()])
		matches := grouped[key]
		if rel.Kind == schema.HasOne {
			if len(matches) > 0 {
				record[node.Relation] = matches[0]
			}
			continue
		}
		if matches == nil {
			matches = []adapter.Record{}
		}
		record[node.Relation] = matches
	}
	return nil
}

// loadBelongsToMany reads the junction pairs for the batch, then the target
// rows, and attaches targets per source in pair order.
func (r *Resolver) loadBelongsToMany(ctx context.Context, records []adapter.Record, node *ResolvedInclude) error {
	rel := node.Descriptor

	ids := distinctValues(records, "id")
	if len(ids) == 0 {
		return nil
	}

	pairs, err := r.junctionPairs(ctx, rel, ids)
	if err != nil {
		return err
	}

	targetIDs := make([]interface{}, 0, len(pairs))
	seen := make(map[string]bool)
	for _, pair := range pairs {
		key := fmt.Sprint(pair.target)
		if !seen[key] {
			seen[key] = true
			targetIDs = append(targetIDs, pair.target)
		}
	}

	byID := make(map[string]adapter.Record)
	if len(targetIDs) > 0 {
		related, err := r.adapter.FindManyTx(ctx, r.adapter.DB(), rel.TargetResource, adapter.FindOptions{
			Where: []query.Condition{{Field: "id", Operator: query.OpIn, Value: targetIDs}},
		})
		if err != nil {
			return err
		}
		for _, rec := range related {
			byID[fmt.Sprint(rec["id"])] = rec
		}
	}

	grouped := make(map[string][]adapter.Record)
	for _, pair := range pairs {
		if target, ok := byID[fmt.Sprint(pair.target)]; ok {
			source := fmt.Sprint(pair.source)
			grouped[source] = append(grouped[source], target)
		}
	}

	for _, record := range records {
		matches := grouped[fmt.Sprint(record["id"])]
		if matches == nil {
			matches = []adapter.Record{}
		}
		record[node.Relation] = matches
	}
	return nil
}

type junctionPair struct {
	source interface{}
	target interface{}
}

func (r *Resolver) junctionPairs(ctx context.Context, rel *schema.RelationshipDescriptor, ids []interface{}) ([]junctionPair, error) {
	counter := 1
	var args []interface{}
	whereSQL, err := query.BuildWhere([]query.Condition{
		{Field: rel.SourceKey, Operator: query.OpIn, Value: ids},
	}, "", &counter, &args)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s",
		query.QuoteIdent(rel.SourceKey),
		query.QuoteIdent(rel.TargetForeignKey),
		query.QuoteIdent(rel.JunctionTable),
		whereSQL,
	)

	rows, err := r.adapter.DB().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, adapter.ConvertDBError(err)
	}
	defer rows.Close()

	var pairs []junctionPair
	for rows.Next() {
		var source, target interface{}
		if err := rows.Scan(&source, &target); err != nil {
			return nil, adapter.ConvertDBError(err)
		}
		if b, ok := source.([]byte); ok {
			source = string(b)
		}
		if b, ok := target.([]byte); ok {
			target = string(b)
		}
		pairs = append(pairs, junctionPair{source: source, target: target})
	}
	if err := rows.Err(); err != nil {
		return nil, adapter.ConvertDBError(err)
	}
	return pairs, nil
}

// collectRelated gathers the loaded related records of a batch, deduplicated
// by id, so nested includes can be loaded on them in turn.
func collectRelated(records []adapter.Record, node *ResolvedInclude) []adapter.Record {
	var nested []adapter.Record
	seen := make(map[string]bool)

	add := func(rec adapter.Record) {
		id := fmt.Sprint(rec["id"])
		if !seen[id] {
			seen[id] = true
			nested = append(nested, rec)
		}
	}

	for _, record := range records {
		value, ok := record[node.Relation]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case adapter.Record:
			add(v)
		case []adapter.Record:
			for _, rec := range v {
				add(rec)
			}
		}
	}
	return nested
}

// distinctValues collects the distinct non-nil values of a field across a
// batch, preserving first-seen order.
func distinctValues(records []adapter.Record, field string) []interface{} {
	var values []interface{}
	seen := make(map[string]bool)
	for _, record := range records {
		value := record[field]
		if value == nil {
			continue
		}
		key := fmt.Sprint(value)
		if !seen[key] {
			seen[key] = true
			values = append(values, value)
		}
	}
	return values
}
