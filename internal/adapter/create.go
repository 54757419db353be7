package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// Create inserts a new record, filling missing id/createdAt/updatedAt and
// applying value transforms in both directions. When includes are given the
// returned record carries its resolved relations.
func (a *Adapter) Create(ctx context.Context, resource string, data Record, includes ...string) (Record, error) {
	created, err := a.CreateTx(ctx, a.db, resource, data)
	if err != nil {
		return nil, err
	}

	if err := a.loadIncludes(ctx, resource, []Record{created}, includes); err != nil {
		return nil, err
	}
	return created, nil
}

// CreateTx inserts a record using the given querier, so multi-step
// operations can share one transaction.
func (a *Adapter) CreateTx(ctx context.Context, q Querier, resource string, data Record) (Record, error) {
	def, err := a.definition(resource)
	if err != nil {
		return nil, err
	}

	record := make(Record, len(data)+3)
	for k, v := range data {
		record[k] = v
	}
	populateAutoFields(record)
	applyDefaults(def, record)

	stored, err := TransformRecordOut(def, record)
	if err != nil {
		return nil, err
	}

	var columns []string
	var placeholders []string
	var values []interface{}
	counter := 1

	for _, name := range def.FieldNames() {
		value, ok := stored[name]
		if !ok {
			continue
		}
		columns = append(columns, query.QuoteIdent(name))
		placeholders = append(placeholders, fmt.Sprintf("$%d", counter))
		values = append(values, value)
		counter++
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no fields to insert for %s", resource)
	}

	returning := make([]string, 0, len(def.Fields))
	for _, name := range def.FieldNames() {
		returning = append(returning, query.QuoteIdent(name))
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		query.QuoteIdent(def.TableName),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(returning, ", "),
	)

	row := q.QueryRowContext(ctx, stmt, values...)
	inserted, err := scanRowColumns(row, def.FieldNames())
	if err != nil {
		return nil, ConvertDBError(err)
	}

	return TransformRecordIn(def, inserted)
}

// populateAutoFields fills id/createdAt/updatedAt when absent.
func populateAutoFields(record Record) {
	now := time.Now().UTC()
	if _, ok := record["id"]; !ok {
		record["id"] = uuid.NewString()
	}
	if _, ok := record["createdAt"]; !ok {
		record["createdAt"] = now
	}
	if _, ok := record["updatedAt"]; !ok {
		record["updatedAt"] = now
	}
}

// applyDefaults fills declared defaults for absent fields.
func applyDefaults(def *schema.ResourceDefinition, record Record) {
	for i := range def.Fields {
		f := &def.Fields[i]
		if f.Default == nil {
			continue
		}
		if _, ok := record[f.Name]; !ok {
			record[f.Name] = f.Default
		}
	}
}
