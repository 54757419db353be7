package adapter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/armelgeek/better-query/internal/errs"
)

// RegisterOperation registers a named custom operation. Registering the same
// name twice is a conflict.
func (a *Adapter) RegisterOperation(name string, op CustomOperation) error {
	if _, exists := a.ops[name]; exists {
		return errs.Conflictf("custom operation %s is already registered", name)
	}
	a.ops[name] = op
	return nil
}

// ExecuteOperation invokes a named custom operation. Unknown names fail with
// ErrNotSupported.
func (a *Adapter) ExecuteOperation(ctx context.Context, name string, payload Record) (interface{}, error) {
	op, ok := a.ops[name]
	if !ok {
		return nil, errs.NotSupportedf("custom operation %s", name)
	}
	return op(ctx, payload)
}

// Operations returns the registered custom operation names.
func (a *Adapter) Operations() []string {
	names := make([]string, 0, len(a.ops))
	for name := range a.ops {
		names = append(names, name)
	}
	return names
}

// registerBuiltinOperations wires the operations every SQL adapter exposes.
func (a *Adapter) registerBuiltinOperations() {
	a.ops["batchCreate"] = a.batchCreate
	a.ops["rawQuery"] = a.rawQuery
}

// batchCreate inserts multiple records of one resource in a single
// transaction. Payload: {"resource": string, "records": []Record}.
func (a *Adapter) batchCreate(ctx context.Context, payload Record) (interface{}, error) {
	resource, _ := payload["resource"].(string)
	if resource == "" {
		return nil, fmt.Errorf("%w: batchCreate requires a resource name", errs.ErrValidation)
	}

	var records []Record
	switch v := payload["records"].(type) {
	case []Record:
		records = v
	case []interface{}:
		for _, item := range v {
			r, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: batchCreate records must be objects", errs.ErrValidation)
			}
			records = append(records, r)
		}
	default:
		return nil, fmt.Errorf("%w: batchCreate requires a records array", errs.ErrValidation)
	}

	var created []Record
	err := a.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			inserted, err := a.CreateTx(ctx, tx, resource, record)
			if err != nil {
				return err
			}
			created = append(created, inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// rawQuery executes an arbitrary read statement. Payload: {"sql": string,
// "args": []interface{}}.
func (a *Adapter) rawQuery(ctx context.Context, payload Record) (interface{}, error) {
	sqlText, _ := payload["sql"].(string)
	if sqlText == "" {
		return nil, fmt.Errorf("%w: rawQuery requires a sql string", errs.ErrValidation)
	}
	args, _ := payload["args"].([]interface{})

	rows, err := a.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	return scanRows(rows)
}
