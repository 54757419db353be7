// Package adapter executes create/read/update/delete/count/list operations
// against the storage backend and applies value transforms for field kinds
// the backend cannot store natively.
package adapter

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// Record is a resource row keyed by field name.
type Record = map[string]interface{}

// Querier is the subset of database/sql used by the adapter, satisfied by
// both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Capabilities describes what the backend supports. The relationship
// resolver selects joined versus sequential loading based on Joins.
type Capabilities struct {
	Joins bool
}

// IncludeResolver loads related records into a batch of root records. It is
// implemented by the relationships package; the indirection avoids an import
// cycle.
type IncludeResolver interface {
	LoadIncludes(ctx context.Context, resource string, records []Record, includes []string) error
}

// CustomOperation is a named adapter-level operation such as batch insert or
// raw query.
type CustomOperation func(ctx context.Context, payload Record) (interface{}, error)

// FindOptions carries the query shape for findFirst/findMany/count.
type FindOptions struct {
	Where   []query.Condition
	OrderBy []query.OrderBy
	Limit   int
	Offset  int
	Include []string
}

// Adapter executes typed CRUD against a SQL backend.
type Adapter struct {
	db       *sql.DB
	registry *schema.Registry
	caps     Capabilities
	resolver IncludeResolver
	ops      map[string]CustomOperation
	logger   *zap.Logger
}

// New creates an adapter over the given database handle.
func New(db *sql.DB, registry *schema.Registry, caps Capabilities, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		db:       db,
		registry: registry,
		caps:     caps,
		ops:      make(map[string]CustomOperation),
		logger:   logger,
	}
	a.registerBuiltinOperations()
	return a
}

// SetResolver wires the relationship resolver. Called once during engine
// assembly, before any operation runs.
func (a *Adapter) SetResolver(r IncludeResolver) {
	a.resolver = r
}

// DB returns the underlying database handle.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// Registry returns the schema registry the adapter operates over.
func (a *Adapter) Registry() *schema.Registry {
	return a.registry
}

// Capabilities returns the backend capability flags.
func (a *Adapter) Capabilities() Capabilities {
	return a.caps
}

// WithTransaction runs fn inside a transaction, committing on nil error.
func (a *Adapter) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return ConvertDBError(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return ConvertDBError(err)
	}
	return nil
}

// definition resolves a resource name to its definition.
func (a *Adapter) definition(resource string) (*schema.ResourceDefinition, error) {
	def, ok := a.registry.Get(resource)
	if !ok {
		return nil, notFoundResource(resource)
	}
	return def, nil
}

// loadIncludes resolves an include request on a batch of records, when both
// the request and the resolver are present.
func (a *Adapter) loadIncludes(ctx context.Context, resource string, records []Record, includes []string) error {
	if len(includes) == 0 || len(records) == 0 || a.resolver == nil {
		return nil
	}
	return a.resolver.LoadIncludes(ctx, resource, records, includes)
}
