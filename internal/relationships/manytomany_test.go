package relationships

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armelgeek/better-query/internal/errs"
)

func TestManageManyToMany_Set(t *testing.T) {
	r, mock := newTestResolver(t, true)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "post_tags" WHERE "postId" = \$1`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO "post_tags" \("postId", "tagId", "createdAt"\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs("p1", "t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "post_tags" \("postId", "tagId", "createdAt"\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs("p1", "t2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := r.ManageManyToMany(context.Background(), "post", "p1", "tags", []string{"t1", "t2"}, JunctionSet)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManageManyToMany_SetEmptyClearsAll(t *testing.T) {
	r, mock := newTestResolver(t, true)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "post_tags" WHERE "postId" = \$1`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := r.ManageManyToMany(context.Background(), "post", "p1", "tags", nil, JunctionSet)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManageManyToMany_AddSkipsExisting(t *testing.T) {
	r, mock := newTestResolver(t, true)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "tagId" FROM "post_tags" WHERE "postId" = \$1`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"tagId"}).AddRow("t1"))
	mock.ExpectExec(`INSERT INTO "post_tags" \("postId", "tagId", "createdAt"\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs("p1", "t2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := r.ManageManyToMany(context.Background(), "post", "p1", "tags", []string{"t1", "t2"}, JunctionAdd)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManageManyToMany_Remove(t *testing.T) {
	r, mock := newTestResolver(t, true)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "post_tags" WHERE "postId" = \$1 AND "tagId" IN \(\$2, \$3\)`).
		WithArgs("p1", "t1", "t2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := r.ManageManyToMany(context.Background(), "post", "p1", "tags", []string{"t1", "t2"}, JunctionRemove)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManageManyToMany_Errors(t *testing.T) {
	r, _ := newTestResolver(t, true)

	err := r.ManageManyToMany(context.Background(), "post", "p1", "reviewers", []string{"t1"}, JunctionSet)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRelationship)

	err = r.ManageManyToMany(context.Background(), "post", "p1", "author", []string{"t1"}, JunctionSet)
	require.Error(t, err)
	assert.True(t, errs.IsNotSupported(err))
}

func TestManageManyToMany_UnknownOp(t *testing.T) {
	r, mock := newTestResolver(t, true)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := r.ManageManyToMany(context.Background(), "post", "p1", "tags", []string{"t1"}, JunctionOp("toggle"))
	require.Error(t, err)
	assert.True(t, errs.IsNotSupported(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
