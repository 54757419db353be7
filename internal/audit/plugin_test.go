package audit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/plugin"
	"github.com/armelgeek/better-query/internal/schema"
)

func newTestPlugin(t *testing.T, exclude ...string) (*Plugin, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := NewPlugin(exclude...)

	registry := schema.NewRegistry()
	require.NoError(t, registry.Register(schema.NewResourceDefinition("user",
		schema.FieldDescriptor{Name: "email", Kind: schema.KindString, Required: true},
	)))
	for _, def := range p.Resources() {
		require.NoError(t, registry.Register(def))
	}

	a := adapter.New(db, registry, adapter.Capabilities{Joins: true}, nil)
	require.NoError(t, p.Init(context.Background(), &plugin.Host{Adapter: a, Registry: registry, Logger: zap.NewNop()}))
	return p, mock
}

func auditRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "resource", "operation", "recordId", "data", "createdAt", "updatedAt"})
}

func TestPlugin_RecordsMutations(t *testing.T) {
	p, mock := newTestPlugin(t)

	mock.ExpectQuery(`INSERT INTO "audit_log"`).
		WithArgs(sqlmock.AnyArg(), "user", "create", "u1", `{"email":"a@b.c","id":"u1"}`, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(auditRows().
			AddRow("a1", "user", "create", "u1", `{"id":"u1"}`, "2024-06-01T10:00:00Z", "2024-06-01T10:00:00Z"))

	hc := plugin.NewContext(context.Background(), "user", "create")
	hc.Record = adapter.Record{"id": "u1", "email": "a@b.c"}
	require.NoError(t, p.record(hc))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlugin_DeleteRecordsID(t *testing.T) {
	p, mock := newTestPlugin(t)

	mock.ExpectQuery(`INSERT INTO "audit_log"`).
		WithArgs(sqlmock.AnyArg(), "user", "delete", "u1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(auditRows().
			AddRow("a1", "user", "delete", "u1", nil, "2024-06-01T10:00:00Z", "2024-06-01T10:00:00Z"))

	hc := plugin.NewContext(context.Background(), "user", "delete")
	hc.RecordID = "u1"
	require.NoError(t, p.record(hc))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlugin_ExcludedResourcesAreSkipped(t *testing.T) {
	p, mock := newTestPlugin(t, "user")

	hc := plugin.NewContext(context.Background(), "user", "create")
	hc.Record = adapter.Record{"id": "u1"}
	require.NoError(t, p.record(hc))

	// The audit log itself is never audited.
	hc = plugin.NewContext(context.Background(), ResourceAuditLog, "create")
	hc.Record = adapter.Record{"id": "a1"}
	require.NoError(t, p.record(hc))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlugin_WriteFailureDoesNotFailOperation(t *testing.T) {
	p, mock := newTestPlugin(t)

	mock.ExpectQuery(`INSERT INTO "audit_log"`).
		WillReturnError(assert.AnError)

	hc := plugin.NewContext(context.Background(), "user", "create")
	hc.Record = adapter.Record{"id": "u1"}
	assert.NoError(t, p.record(hc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlugin_QueryEndpoint(t *testing.T) {
	p, mock := newTestPlugin(t)

	mock.ExpectQuery(`SELECT "audit_log"\.\* FROM "audit_log" WHERE "resource" = \$1 AND "recordId" = \$2 ORDER BY "createdAt" DESC LIMIT 10`).
		WithArgs("user", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "resource", "operation", "recordId"}).
			AddRow("a1", "user", "update", "u1"))

	result, err := p.queryEndpoint(context.Background(), adapter.Record{
		"resource": "user",
		"recordId": "u1",
		"limit":    float64(10),
	})
	require.NoError(t, err)

	rows, ok := result.([]adapter.Record)
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "update", rows[0]["operation"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
