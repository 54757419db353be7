package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectStatement_Basic(t *testing.T) {
	stmt := SelectStatement{
		Table: "users",
		Where: []Condition{Eq("email", "a@b.c")},
		Limit: 10,
	}

	sql, args, err := stmt.Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "users".* FROM "users" WHERE "email" = $1 LIMIT 10`, sql)
	assert.Equal(t, []interface{}{"a@b.c"}, args)
}

func TestSelectStatement_OrderAndOffset(t *testing.T) {
	stmt := SelectStatement{
		Table:   "posts",
		OrderBy: []OrderBy{{Field: "createdAt", Desc: true}},
		Limit:   5,
		Offset:  10,
	}

	sql, _, err := stmt.Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "posts".* FROM "posts" ORDER BY "createdAt" DESC LIMIT 5 OFFSET 10`, sql)
}

func TestSelectStatement_CountOnly(t *testing.T) {
	stmt := SelectStatement{
		Table:     "posts",
		Where:     []Condition{Eq("published", true)},
		OrderBy:   []OrderBy{{Field: "createdAt"}},
		Limit:     5,
		CountOnly: true,
	}

	sql, args, err := stmt.Build()
	require.NoError(t, err)
	// Ordering and pagination are dropped from counts.
	assert.Equal(t, `SELECT COUNT(*) FROM "posts" WHERE "published" = $1`, sql)
	assert.Equal(t, []interface{}{true}, args)
}

func TestSelectStatement_WithJoins(t *testing.T) {
	stmt := SelectStatement{
		Table:      "posts",
		TableAlias: "root",
		Columns: []SelectColumn{
			{Table: "root", Column: "id"},
			{Table: "author", Column: "id", Alias: "author__id"},
		},
		Joins: []JoinClause{
			{Kind: LeftJoin, Table: "users", Alias: "author",
				Condition: `"author"."id" = "root"."authorId"`},
		},
		Where: []Condition{Eq("id", "p1")},
	}

	sql, args, err := stmt.Build()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "root"."id", "author"."id" AS "author__id" FROM "posts" "root" `+
			`LEFT JOIN "users" "author" ON "author"."id" = "root"."authorId" `+
			`WHERE "root"."id" = $1`,
		sql)
	assert.Equal(t, []interface{}{"p1"}, args)
}

func TestJoinClause_InnerJoin(t *testing.T) {
	j := JoinClause{Kind: InnerJoin, Table: "tags", Alias: "t", Condition: "1 = 1"}
	assert.Equal(t, `INNER JOIN "tags" "t" ON 1 = 1`, j.SQL())
}
