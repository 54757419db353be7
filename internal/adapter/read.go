package adapter

import (
	"context"

	"github.com/armelgeek/better-query/internal/errs"
	"github.com/armelgeek/better-query/internal/query"
)

// FindFirst returns the first record matching the options, or ErrNotFound.
func (a *Adapter) FindFirst(ctx context.Context, resource string, opts FindOptions) (Record, error) {
	opts.Limit = 1
	records, err := a.FindMany(ctx, resource, opts)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errs.NotFoundf("%s matching query", resource)
	}
	return records[0], nil
}

// FindMany returns all records matching the options. When an include is
// present the relationship resolver loads related records for the whole
// batch, avoiding per-row lookups.
func (a *Adapter) FindMany(ctx context.Context, resource string, opts FindOptions) ([]Record, error) {
	records, err := a.FindManyTx(ctx, a.db, resource, opts)
	if err != nil {
		return nil, err
	}

	if err := a.loadIncludes(ctx, resource, records, opts.Include); err != nil {
		return nil, err
	}
	return records, nil
}

// FindManyTx runs the root query on the given querier without include
// resolution.
func (a *Adapter) FindManyTx(ctx context.Context, q Querier, resource string, opts FindOptions) ([]Record, error) {
	def, err := a.definition(resource)
	if err != nil {
		return nil, err
	}

	where, err := transformWhere(def, opts.Where)
	if err != nil {
		return nil, err
	}

	stmt := query.SelectStatement{
		Table:   def.TableName,
		Where:   where,
		OrderBy: opts.OrderBy,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}
	sqlText, args, err := stmt.Build()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, ConvertDBError(err)
	}

	for i, record := range records {
		if records[i], err = TransformRecordIn(def, record); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Count returns the number of records matching the conditions.
func (a *Adapter) Count(ctx context.Context, resource string, where []query.Condition) (int64, error) {
	return a.CountTx(ctx, a.db, resource, where)
}

// CountTx runs a count on the given querier.
func (a *Adapter) CountTx(ctx context.Context, q Querier, resource string, where []query.Condition) (int64, error) {
	def, err := a.definition(resource)
	if err != nil {
		return 0, err
	}

	where, err = transformWhere(def, where)
	if err != nil {
		return 0, err
	}

	stmt := query.SelectStatement{
		Table:     def.TableName,
		Where:     where,
		CountOnly: true,
	}
	sqlText, args, err := stmt.Build()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := q.QueryRowContext(ctx, sqlText, args...).Scan(&count); err != nil {
		return 0, ConvertDBError(err)
	}
	return count, nil
}
