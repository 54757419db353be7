package query

import (
	"fmt"
	"strings"
)

// JoinKind represents the kind of SQL join.
type JoinKind int

const (
	LeftJoin JoinKind = iota
	InnerJoin
)

// String returns the SQL keyword for the join kind.
func (j JoinKind) String() string {
	switch j {
	case InnerJoin:
		return "INNER"
	default:
		return "LEFT"
	}
}

// JoinClause is an intermediate artifact produced by the relationship
// resolver and consumed by the adapter when executing a joined query. The
// condition is pre-rendered SQL over already-quoted identifiers.
type JoinClause struct {
	Kind      JoinKind
	Table     string
	Alias     string
	Condition string
}

// SQL renders the join clause.
func (j JoinClause) SQL() string {
	return fmt.Sprintf("%s JOIN %s %s ON %s", j.Kind, QuoteIdent(j.Table), QuoteIdent(j.Alias), j.Condition)
}

// SelectColumn is a single projected column, aliased so joined results can
// be demultiplexed per relation.
type SelectColumn struct {
	Table  string
	Column string
	Alias  string
}

// SQL renders the column projection.
func (c SelectColumn) SQL() string {
	s := QualifyIdent(c.Table, c.Column)
	if c.Alias != "" {
		s += " AS " + QuoteIdent(c.Alias)
	}
	return s
}

// SelectStatement assembles a SELECT with optional joins, conditions,
// ordering and pagination into SQL text plus positional arguments.
type SelectStatement struct {
	Table      string
	TableAlias string
	Columns    []SelectColumn
	Joins      []JoinClause
	Where      []Condition
	OrderBy    []OrderBy
	Limit      int
	Offset     int
	CountOnly  bool
}

// Build renders the statement. Where conditions are qualified with the root
// table alias when joins are present so field names stay unambiguous.
func (s *SelectStatement) Build() (string, []interface{}, error) {
	alias := s.TableAlias
	if alias == "" {
		alias = s.Table
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")

	switch {
	case s.CountOnly:
		sb.WriteString("COUNT(*)")
	case len(s.Columns) == 0:
		sb.WriteString(QuoteIdent(alias) + ".*")
	default:
		cols := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = c.SQL()
		}
		sb.WriteString(strings.Join(cols, ", "))
	}

	sb.WriteString(" FROM " + QuoteIdent(s.Table))
	if s.TableAlias != "" && s.TableAlias != s.Table {
		sb.WriteString(" " + QuoteIdent(s.TableAlias))
	}

	for _, join := range s.Joins {
		sb.WriteString(" " + join.SQL())
	}

	paramCounter := 1
	var args []interface{}

	qualifier := ""
	if len(s.Joins) > 0 {
		qualifier = alias
	}
	where, err := BuildWhere(s.Where, qualifier, &paramCounter, &args)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}

	if !s.CountOnly {
		if order := BuildOrderBy(s.OrderBy, qualifier); order != "" {
			sb.WriteString(" ORDER BY " + order)
		}
		if s.Limit > 0 {
			sb.WriteString(fmt.Sprintf(" LIMIT %d", s.Limit))
		}
		if s.Offset > 0 {
			sb.WriteString(fmt.Sprintf(" OFFSET %d", s.Offset))
		}
	}

	return sb.String(), args, nil
}
