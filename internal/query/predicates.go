// Package query provides predicate and statement construction for the
// adapter. SQL is assembled by hand with positional parameters, the same way
// across every operation, so no dialect abstraction is needed.
package query

import (
	"fmt"
	"strings"
)

// Operator represents a comparison operator in a where condition.
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpNotLike
)

// String returns the SQL representation of the operator.
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpLike:
		return "LIKE"
	case OpNotLike:
		return "NOT LIKE"
	default:
		return "UNKNOWN"
	}
}

// ParseOperator converts a wire-level operator name to an Operator. The
// empty string defaults to eq.
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "", "eq":
		return OpEqual, nil
	case "ne":
		return OpNotEqual, nil
	case "lt":
		return OpLessThan, nil
	case "lte":
		return OpLessThanOrEqual, nil
	case "gt":
		return OpGreaterThan, nil
	case "gte":
		return OpGreaterThanOrEqual, nil
	case "in":
		return OpIn, nil
	case "notIn":
		return OpNotIn, nil
	case "like":
		return OpLike, nil
	case "notLike":
		return OpNotLike, nil
	default:
		return 0, fmt.Errorf("unknown operator: %s", s)
	}
}

// Condition represents a single WHERE condition.
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Eq is shorthand for an equality condition.
func Eq(field string, value interface{}) Condition {
	return Condition{Field: field, Operator: OpEqual, Value: value}
}

// OrderBy represents a single ORDER BY term.
type OrderBy struct {
	Field string
	Desc  bool
}

// QuoteIdent quotes a SQL identifier so camelCase field names survive the
// backend's case folding.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifyIdent quotes a table-qualified identifier.
func QualifyIdent(table, name string) string {
	return QuoteIdent(table) + "." + QuoteIdent(name)
}

// conditionToSQL renders one condition with parameterized values. paramCounter
// is shared across the whole statement.
func conditionToSQL(cond Condition, qualifier string, paramCounter *int, args *[]interface{}) (string, error) {
	field := QuoteIdent(cond.Field)
	if qualifier != "" {
		field = QuoteIdent(qualifier) + "." + field
	}

	switch cond.Operator {
	case OpEqual, OpNotEqual, OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLike, OpNotLike:
		*args = append(*args, cond.Value)
		sql := fmt.Sprintf("%s %s $%d", field, cond.Operator, *paramCounter)
		*paramCounter++
		return sql, nil

	case OpIn, OpNotIn:
		values, err := toValueSlice(cond.Value)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", cond.Field, err)
		}
		if len(values) == 0 {
			// IN over an empty set matches nothing; NOT IN matches everything.
			if cond.Operator == OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			*args = append(*args, v)
			placeholders[i] = fmt.Sprintf("$%d", *paramCounter)
			*paramCounter++
		}
		return fmt.Sprintf("%s %s (%s)", field, cond.Operator, strings.Join(placeholders, ", ")), nil

	default:
		return "", fmt.Errorf("unsupported operator %s", cond.Operator)
	}
}

// BuildWhere renders a list of conditions joined with AND. qualifier, when
// non-empty, table-qualifies every field. Returns the clause without the
// WHERE keyword, and appends bound values to args.
func BuildWhere(conds []Condition, qualifier string, paramCounter *int, args *[]interface{}) (string, error) {
	if len(conds) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(conds))
	for _, cond := range conds {
		sql, err := conditionToSQL(cond, qualifier, paramCounter, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, " AND "), nil
}

// BuildOrderBy renders an ORDER BY clause body.
func BuildOrderBy(orderBy []OrderBy, qualifier string) string {
	if len(orderBy) == 0 {
		return ""
	}
	parts := make([]string, len(orderBy))
	for i, o := range orderBy {
		field := QuoteIdent(o.Field)
		if qualifier != "" {
			field = QuoteIdent(qualifier) + "." + field
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts[i] = field + " " + dir
	}
	return strings.Join(parts, ", ")
}

func toValueSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		return v, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []int64:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("in/notIn requires a slice value, got %T", value)
	}
}
