package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/armelgeek/better-query/internal/query"
)

// Update stamps updatedAt, applies the outbound transform and returns the
// updated rows after the inbound transform.
func (a *Adapter) Update(ctx context.Context, resource string, where []query.Condition, data Record) ([]Record, error) {
	return a.UpdateTx(ctx, a.db, resource, where, data)
}

// UpdateTx runs the update on the given querier.
func (a *Adapter) UpdateTx(ctx context.Context, q Querier, resource string, where []query.Condition, data Record) ([]Record, error) {
	def, err := a.definition(resource)
	if err != nil {
		return nil, err
	}

	record := make(Record, len(data)+1)
	for k, v := range data {
		record[k] = v
	}
	record["updatedAt"] = time.Now().UTC()
	// id and createdAt never change after create.
	delete(record, "id")
	delete(record, "createdAt")

	stored, err := TransformRecordOut(def, record)
	if err != nil {
		return nil, err
	}

	var assignments []string
	var args []interface{}
	counter := 1

	for _, name := range def.FieldNames() {
		value, ok := stored[name]
		if !ok {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = $%d", query.QuoteIdent(name), counter))
		args = append(args, value)
		counter++
	}
	if len(assignments) == 0 {
		return nil, fmt.Errorf("no fields to update for %s", resource)
	}

	where, err = transformWhere(def, where)
	if err != nil {
		return nil, err
	}
	whereSQL, err := query.BuildWhere(where, "", &counter, &args)
	if err != nil {
		return nil, err
	}

	returning := make([]string, 0, len(def.Fields))
	for _, name := range def.FieldNames() {
		returning = append(returning, query.QuoteIdent(name))
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s", query.QuoteIdent(def.TableName), strings.Join(assignments, ", "))
	if whereSQL != "" {
		stmt += " WHERE " + whereSQL
	}
	stmt += " RETURNING " + strings.Join(returning, ", ")

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	updated, err := scanRows(rows)
	if err != nil {
		return nil, ConvertDBError(err)
	}

	for i, row := range updated {
		if updated[i], err = TransformRecordIn(def, row); err != nil {
			return nil, err
		}
	}
	return updated, nil
}
