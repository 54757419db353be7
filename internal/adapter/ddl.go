package adapter

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// CreateSchema emits idempotent DDL for the given resource definitions plus
// the junction tables of their belongsToMany relations. Existing tables are
// left untouched; there is no migration diffing.
func (a *Adapter) CreateSchema(ctx context.Context, defs ...*schema.ResourceDefinition) error {
	if len(defs) == 0 {
		defs = a.registry.Definitions()
	}

	for _, def := range defs {
		stmt := buildCreateTable(def)
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", def.TableName, ConvertDBError(err))
		}
		a.logger.Debug("ensured table", zap.String("table", def.TableName))
	}

	for _, def := range defs {
		for _, rel := range a.registry.Relationships(def.Name) {
			if rel.Kind != schema.BelongsToMany {
				continue
			}
			stmt := buildCreateJunctionTable(rel)
			if _, err := a.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create junction table %s: %w", rel.JunctionTable, ConvertDBError(err))
			}
			a.logger.Debug("ensured junction table", zap.String("table", rel.JunctionTable))
		}
	}

	return nil
}

func buildCreateTable(def *schema.ResourceDefinition) string {
	columns := make([]string, 0, len(def.Fields))
	for i := range def.Fields {
		f := &def.Fields[i]
		col := query.QuoteIdent(f.Name) + " " + columnType(f.Kind)
		if f.Name == "id" {
			col += " PRIMARY KEY"
		} else {
			if f.Required {
				col += " NOT NULL"
			}
			if f.Unique {
				col += " UNIQUE"
			}
		}
		columns = append(columns, col)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		query.QuoteIdent(def.TableName), strings.Join(columns, ", "))
}

func buildCreateJunctionTable(rel *schema.RelationshipDescriptor) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s TEXT NOT NULL, %s TEXT NOT NULL, %s TEXT NOT NULL, PRIMARY KEY (%s, %s))",
		query.QuoteIdent(rel.JunctionTable),
		query.QuoteIdent(rel.SourceKey),
		query.QuoteIdent(rel.TargetForeignKey),
		query.QuoteIdent("createdAt"),
		query.QuoteIdent(rel.SourceKey),
		query.QuoteIdent(rel.TargetForeignKey),
	)
}

// columnType maps a field kind to its column type. Dates and json values are
// stored in their transformed string form.
func columnType(kind schema.FieldKind) string {
	switch kind {
	case schema.KindNumber:
		return "DOUBLE PRECISION"
	case schema.KindBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
