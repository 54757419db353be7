package relationships

import (
	"fmt"
	"strings"

	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// rootAlias is the alias of the root table in joined queries.
const rootAlias = "root"

// GenerateJoinPlan produces the LEFT JOIN clauses and aliased projections
// for an include tree. belongsTo/hasOne/hasMany contribute one join each;
// belongsToMany contributes two, through the junction table. Nested includes
// join against their parent's alias.
func (r *Resolver) GenerateJoinPlan(resource string, resolved []*ResolvedInclude) ([]query.JoinClause, []query.SelectColumn, error) {
	def, ok := r.registry.Get(resource)
	if !ok {
		return nil, nil, fmt.Errorf("unknown resource: %s", resource)
	}

	columns := make([]query.SelectColumn, 0, len(def.Fields))
	for _, name := range def.FieldNames() {
		columns = append(columns, query.SelectColumn{Table: rootAlias, Column: name, Alias: name})
	}

	var joins []query.JoinClause
	for _, node := range flatten(resolved) {
		parentAlias := rootAlias
		if parent := parentPathOf(node.Path); parent != "" {
			parentAlias = aliasOfPath(parent)
		}

		nodeJoins, err := joinsFor(node, parentAlias)
		if err != nil {
			return nil, nil, err
		}
		joins = append(joins, nodeJoins...)

		for _, name := range node.Target.FieldNames() {
			columns = append(columns, query.SelectColumn{
				Table:  node.Alias,
				Column: name,
				Alias:  node.Alias + aliasSeparator + name,
			})
		}
	}

	return joins, columns, nil
}

func joinsFor(node *ResolvedInclude, parentAlias string) ([]query.JoinClause, error) {
	rel := node.Descriptor

	switch rel.Kind {
	case schema.BelongsTo:
		return []query.JoinClause{{
			Kind:  query.LeftJoin,
			Table: node.Target.TableName,
			Alias: node.Alias,
			Condition: fmt.Sprintf("%s = %s",
				query.QualifyIdent(node.Alias, rel.ResolvedTargetKey()),
				query.QualifyIdent(parentAlias, rel.ForeignKey)),
		}}, nil

	case schema.HasOne, schema.HasMany:
		return []query.JoinClause{{
			Kind:  query.LeftJoin,
			Table: node.Target.TableName,
			Alias: node.Alias,
			Condition: fmt.Sprintf("%s = %s",
				query.QualifyIdent(node.Alias, rel.ForeignKey),
				query.QualifyIdent(parentAlias, rel.ResolvedTargetKey())),
		}}, nil

	case schema.BelongsToMany:
		junctionAlias := node.Alias + aliasSeparator + "junction"
		return []query.JoinClause{
			{
				Kind:  query.LeftJoin,
				Table: rel.JunctionTable,
				Alias: junctionAlias,
				Condition: fmt.Sprintf("%s = %s",
					query.QualifyIdent(junctionAlias, rel.SourceKey),
					query.QualifyIdent(parentAlias, "id")),
			},
			{
				Kind:  query.LeftJoin,
				Table: node.Target.TableName,
				Alias: node.Alias,
				Condition: fmt.Sprintf("%s = %s",
					query.QualifyIdent(node.Alias, "id"),
					query.QualifyIdent(junctionAlias, rel.TargetForeignKey)),
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown relation kind %s", rel.Kind)
	}
}

func parentPathOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return ""
}

func aliasOfPath(path string) string {
	return strings.ReplaceAll(path, ".", aliasSeparator)
}
