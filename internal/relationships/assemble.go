package relationships

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/query"
)

// loadJoined executes one joined query for the whole root batch and merges
// the assembled relations back into the caller's records.
func (r *Resolver) loadJoined(ctx context.Context, resource string, records []adapter.Record, resolved []*ResolvedInclude) error {
	def, ok := r.registry.Get(resource)
	if !ok {
		return fmt.Errorf("unknown resource: %s", resource)
	}

	ids := make([]interface{}, 0, len(records))
	for _, record := range records {
		if id := record["id"]; id != nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	joins, columns, err := r.GenerateJoinPlan(resource, resolved)
	if err != nil {
		return err
	}

	stmt := query.SelectStatement{
		Table:      def.TableName,
		TableAlias: rootAlias,
		Columns:    columns,
		Joins:      joins,
		Where:      []query.Condition{{Field: "id", Operator: query.OpIn, Value: ids}},
	}
	sqlText, args, err := stmt.Build()
	if err != nil {
		return err
	}

	rows, err := r.adapter.DB().QueryContext(ctx, sqlText, args...)
	if err != nil {
		return adapter.ConvertDBError(err)
	}
	defer rows.Close()

	flat, err := scanFlatRows(rows)
	if err != nil {
		return adapter.ConvertDBError(err)
	}

	assembled, err := r.TransformJoinedResults(flat, resolved)
	if err != nil {
		return err
	}

	byID := make(map[interface{}]adapter.Record, len(assembled))
	for _, root := range assembled {
		byID[fmt.Sprint(root["id"])] = root
	}
	for _, record := range records {
		root, ok := byID[fmt.Sprint(record["id"])]
		if !ok {
			continue
		}
		for _, node := range resolved {
			if related, ok := root[node.Relation]; ok {
				record[node.Relation] = related
			}
		}
	}
	return nil
}

// TransformJoinedResults groups flat joined rows by root id and nests
// related rows under their relation names. Each root appears exactly once in
// the output; to-many relations collect distinct related rows by id in
// first-seen order, and a to-one relation with no matching row is left
// absent rather than set to an empty object.
func (r *Resolver) TransformJoinedResults(rows []adapter.Record, resolved []*ResolvedInclude) ([]adapter.Record, error) {
	var roots []adapter.Record
	rootIndex := make(map[string]adapter.Record)

	for _, row := range rows {
		rootID := fmt.Sprint(row["id"])
		root, ok := rootIndex[rootID]
		if !ok {
			root = extractAliased(row, "", nil)
			rootIndex[rootID] = root
			roots = append(roots, root)
		}

		if err := r.attachRow(root, row, resolved); err != nil {
			return nil, err
		}
	}

	return roots, nil
}

// attachRow merges one flat row's related columns into an assembled record,
// recursing through nested includes.
func (r *Resolver) attachRow(parent adapter.Record, row adapter.Record, resolved []*ResolvedInclude) error {
	for _, node := range resolved {
		related := extractAliased(row, node.Alias+aliasSeparator, node.Target.FieldNames())
		if related == nil {
			continue
		}
		transformed, err := adapter.TransformRecordIn(node.Target, related)
		if err != nil {
			return err
		}

		var target adapter.Record
		if node.Descriptor.Kind.IsToMany() {
			target = appendDistinct(parent, node.Relation, transformed)
		} else {
			existing, ok := parent[node.Relation].(adapter.Record)
			if !ok {
				parent[node.Relation] = transformed
				target = transformed
			} else {
				target = existing
			}
		}

		if len(node.Nested) > 0 && target != nil {
			if err := r.attachRow(target, row, node.Nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// appendDistinct appends a related record to a to-many slot, deduplicated by
// id, and returns the stored record for that id.
func appendDistinct(parent adapter.Record, relation string, related adapter.Record) adapter.Record {
	slice, _ := parent[relation].([]adapter.Record)

	id := fmt.Sprint(related["id"])
	for _, existing := range slice {
		if fmt.Sprint(existing["id"]) == id {
			return existing
		}
	}

	parent[relation] = append(slice, related)
	return related
}

// extractAliased pulls the columns under the given prefix out of a flat row.
// Returns nil when the sub-record's id is NULL, i.e. the LEFT JOIN found no
// match. An empty prefix extracts the root columns (those without any alias
// separator).
func extractAliased(row adapter.Record, prefix string, fields []string) adapter.Record {
	if prefix == "" {
		record := make(adapter.Record)
		for key, value := range row {
			if !containsSeparator(key) {
				record[key] = value
			}
		}
		return record
	}

	record := make(adapter.Record, len(fields))
	for _, field := range fields {
		record[field] = row[prefix+field]
	}
	if record["id"] == nil {
		return nil
	}
	return record
}

func containsSeparator(key string) bool {
	for i := 0; i+len(aliasSeparator) <= len(key); i++ {
		if key[i:i+len(aliasSeparator)] == aliasSeparator {
			return true
		}
	}
	return false
}

// scanFlatRows scans joined rows keeping the aliased column names.
func scanFlatRows(rows *sql.Rows) ([]adapter.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []adapter.Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(adapter.Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
