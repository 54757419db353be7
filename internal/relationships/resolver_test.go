package relationships

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

func blogRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()

	require.NoError(t, r.Register(schema.NewResourceDefinition("user",
		schema.FieldDescriptor{Name: "name", Kind: schema.KindString, Required: true},
	)))
	require.NoError(t, r.Register(schema.NewResourceDefinition("post",
		schema.FieldDescriptor{Name: "title", Kind: schema.KindString, Required: true},
		schema.FieldDescriptor{Name: "authorId", Kind: schema.KindString},
	)))
	require.NoError(t, r.Register(schema.NewResourceDefinition("comment",
		schema.FieldDescriptor{Name: "body", Kind: schema.KindString, Required: true},
		schema.FieldDescriptor{Name: "postId", Kind: schema.KindString, Required: true},
	)))
	require.NoError(t, r.Register(schema.NewResourceDefinition("tag",
		schema.FieldDescriptor{Name: "label", Kind: schema.KindString, Required: true},
	)))

	require.NoError(t, r.RegisterRelationship("post", "author", &schema.RelationshipDescriptor{
		Kind:           schema.BelongsTo,
		TargetResource: "user",
		ForeignKey:     "authorId",
	}))
	require.NoError(t, r.RegisterRelationship("post", "comments", &schema.RelationshipDescriptor{
		Kind:           schema.HasMany,
		TargetResource: "comment",
		ForeignKey:     "postId",
	}))
	require.NoError(t, r.RegisterRelationship("post", "tags", &schema.RelationshipDescriptor{
		Kind:             schema.BelongsToMany,
		TargetResource:   "tag",
		JunctionTable:    "post_tags",
		SourceKey:        "postId",
		TargetForeignKey: "tagId",
	}))
	require.NoError(t, r.RegisterRelationship("user", "posts", &schema.RelationshipDescriptor{
		Kind:           schema.HasMany,
		TargetResource: "post",
		ForeignKey:     "authorId",
	}))
	return r
}

func newTestResolver(t *testing.T, joins bool) (*Resolver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := adapter.New(db, blogRegistry(t), adapter.Capabilities{Joins: joins}, nil)
	r := NewResolver(a, nil)
	a.SetResolver(r)
	return r, mock
}

func TestResolveIncludes_SharesCommonPrefix(t *testing.T) {
	r, _ := newTestResolver(t, true)

	resolved, err := r.ResolveIncludes("post", []string{"author", "author.posts", "comments"})
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	author := resolved[0]
	assert.Equal(t, "author", author.Relation)
	assert.Equal(t, "author", author.Alias)
	assert.Equal(t, 1, author.Depth)
	require.Len(t, author.Nested, 1)
	assert.Equal(t, "author.posts", author.Nested[0].Path)
	assert.Equal(t, "author__posts", author.Nested[0].Alias)
	assert.Equal(t, 2, author.Nested[0].Depth)

	assert.Equal(t, "comments", resolved[1].Relation)
	assert.Empty(t, resolved[1].Nested)
}

func TestResolveIncludes_UnknownRelation(t *testing.T) {
	r, _ := newTestResolver(t, true)

	_, err := r.ResolveIncludes("post", []string{"reviewer"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRelationship)

	_, err = r.ResolveIncludes("post", []string{"author.reviews"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRelationship)
}

func TestResolveIncludes_DepthBound(t *testing.T) {
	r, _ := newTestResolver(t, true)
	registry := r.registry

	require.NoError(t, registry.RegisterRelationship("comment", "post", &schema.RelationshipDescriptor{
		Kind:           schema.BelongsTo,
		TargetResource: "post",
		ForeignKey:     "postId",
		MaxDepth:       2,
	}))

	_, err := r.ResolveIncludes("comment", []string{"post.author"})
	require.NoError(t, err)

	_, err = r.ResolveIncludes("comment", []string{"post.author.posts"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
}

func TestGenerateJoinPlan(t *testing.T) {
	r, _ := newTestResolver(t, true)

	resolved, err := r.ResolveIncludes("post", []string{"author", "tags"})
	require.NoError(t, err)

	joins, columns, err := r.GenerateJoinPlan("post", resolved)
	require.NoError(t, err)
	require.Len(t, joins, 3)

	assert.Equal(t, "users", joins[0].Table)
	assert.Equal(t, "author", joins[0].Alias)
	assert.Equal(t, `"author"."id" = "root"."authorId"`, joins[0].Condition)

	assert.Equal(t, "post_tags", joins[1].Table)
	assert.Equal(t, "tags__junction", joins[1].Alias)
	assert.Equal(t, `"tags__junction"."postId" = "root"."id"`, joins[1].Condition)

	assert.Equal(t, "tags", joins[2].Table)
	assert.Equal(t, "tags", joins[2].Alias)
	assert.Equal(t, `"tags"."id" = "tags__junction"."tagId"`, joins[2].Condition)

	// Root fields keep their bare names; related fields get the alias prefix.
	assert.Equal(t, query.SelectColumn{Table: "root", Column: "id", Alias: "id"}, columns[0])
	assert.Contains(t, columns, query.SelectColumn{Table: "author", Column: "name", Alias: "author__name"})
	assert.Contains(t, columns, query.SelectColumn{Table: "tags", Column: "label", Alias: "tags__label"})
}

func TestTransformJoinedResults_GroupsAndDedupes(t *testing.T) {
	r, _ := newTestResolver(t, true)

	resolved, err := r.ResolveIncludes("post", []string{"author", "comments"})
	require.NoError(t, err)

	rows := []adapter.Record{
		{"id": "p1", "title": "first", "author__id": "u1", "author__name": "ada", "comments__id": "c1", "comments__body": "hi", "comments__postId": "p1"},
		{"id": "p1", "title": "first", "author__id": "u1", "author__name": "ada", "comments__id": "c2", "comments__body": "yo", "comments__postId": "p1"},
		{"id": "p2", "title": "second", "author__id": nil, "author__name": nil, "comments__id": nil},
	}

	roots, err := r.TransformJoinedResults(rows, resolved)
	require.NoError(t, err)
	require.Len(t, roots, 2)

	first := roots[0]
	assert.Equal(t, "p1", first["id"])
	author, ok := first["author"].(adapter.Record)
	require.True(t, ok)
	assert.Equal(t, "ada", author["name"])

	comments, ok := first["comments"].([]adapter.Record)
	require.True(t, ok)
	require.Len(t, comments, 2)
	assert.Equal(t, "c1", comments[0]["id"])
	assert.Equal(t, "c2", comments[1]["id"])

	// No joined match: to-one stays absent, to-many stays absent too.
	second := roots[1]
	_, hasAuthor := second["author"]
	assert.False(t, hasAuthor)
}

func TestTransformJoinedResults_NestedRelations(t *testing.T) {
	r, _ := newTestResolver(t, true)

	resolved, err := r.ResolveIncludes("post", []string{"author.posts"})
	require.NoError(t, err)

	rows := []adapter.Record{
		{"id": "p1", "author__id": "u1", "author__name": "ada", "author__posts__id": "p1", "author__posts__title": "first"},
		{"id": "p1", "author__id": "u1", "author__name": "ada", "author__posts__id": "p9", "author__posts__title": "older"},
	}

	roots, err := r.TransformJoinedResults(rows, resolved)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	author, ok := roots[0]["author"].(adapter.Record)
	require.True(t, ok)
	posts, ok := author["posts"].([]adapter.Record)
	require.True(t, ok)
	require.Len(t, posts, 2)
	assert.Equal(t, "p1", posts[0]["id"])
	assert.Equal(t, "p9", posts[1]["id"])
}

func TestLoadIncludes_Joined(t *testing.T) {
	r, mock := newTestResolver(t, true)

	mock.ExpectQuery(`SELECT .* FROM "posts" "root" LEFT JOIN "users" "author" ON "author"\."id" = "root"\."authorId" WHERE "root"\."id" IN \(\$1\)`).
		WithArgs("p1").
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "title", "authorId", "author__id", "author__name"}).
				AddRow("p1", "first", "u1", "u1", "ada"))

	records := []adapter.Record{{"id": "p1", "title": "first", "authorId": "u1"}}
	err := r.LoadIncludes(context.Background(), "post", records, []string{"author"})
	require.NoError(t, err)

	author, ok := records[0]["author"].(adapter.Record)
	require.True(t, ok)
	assert.Equal(t, "ada", author["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadIncludes_SequentialBelongsTo(t *testing.T) {
	r, mock := newTestResolver(t, false)

	mock.ExpectQuery(`SELECT "users"\.\* FROM "users" WHERE "id" IN \(\$1, \$2\)`).
		WithArgs("u1", "u2").
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "name"}).
				AddRow("u1", "ada").
				AddRow("u2", "grace"))

	records := []adapter.Record{
		{"id": "p1", "authorId": "u1"},
		{"id": "p2", "authorId": "u2"},
		{"id": "p3", "authorId": nil},
	}
	err := r.LoadIncludes(context.Background(), "post", records, []string{"author"})
	require.NoError(t, err)

	assert.Equal(t, "ada", records[0]["author"].(adapter.Record)["name"])
	assert.Equal(t, "grace", records[1]["author"].(adapter.Record)["name"])
	_, hasAuthor := records[2]["author"]
	assert.False(t, hasAuthor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadIncludes_SequentialHasMany(t *testing.T) {
	r, mock := newTestResolver(t, false)

	mock.ExpectQuery(`SELECT "comments"\.\* FROM "comments" WHERE "postId" IN \(\$1, \$2\)`).
		WithArgs("p1", "p2").
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "body", "postId"}).
				AddRow("c1", "hi", "p1").
				AddRow("c2", "yo", "p1"))

	records := []adapter.Record{
		{"id": "p1"},
		{"id": "p2"},
	}
	err := r.LoadIncludes(context.Background(), "post", records, []string{"comments"})
	require.NoError(t, err)

	require.Len(t, records[0]["comments"], 2)
	// Parents without children get an empty collection, not a missing field.
	assert.Equal(t, []adapter.Record{}, records[1]["comments"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadIncludes_SequentialBelongsToMany(t *testing.T) {
	r, mock := newTestResolver(t, false)

	mock.ExpectQuery(`SELECT "postId", "tagId" FROM "post_tags" WHERE "postId" IN \(\$1\)`).
		WithArgs("p1").
		WillReturnRows(
			sqlmock.NewRows([]string{"postId", "tagId"}).
				AddRow("p1", "t1").
				AddRow("p1", "t2"))
	mock.ExpectQuery(`SELECT "tags"\.\* FROM "tags" WHERE "id" IN \(\$1, \$2\)`).
		WithArgs("t1", "t2").
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "label"}).
				AddRow("t1", "go").
				AddRow("t2", "sql"))

	records := []adapter.Record{{"id": "p1"}}
	err := r.LoadIncludes(context.Background(), "post", records, []string{"tags"})
	require.NoError(t, err)

	tags, ok := records[0]["tags"].([]adapter.Record)
	require.True(t, ok)
	require.Len(t, tags, 2)
	assert.Equal(t, "go", tags[0]["label"])
	assert.Equal(t, "sql", tags[1]["label"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
