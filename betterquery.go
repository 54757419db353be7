// Package betterquery is a declarative resource data-access engine: resources
// are described by field schemas and relationship declarations, and the
// engine generates CRUD operations over Postgres, resolves relationship
// includes via joins or sequential fetches, and composes plugin hooks for
// caching, auditing, background jobs and realtime change notification.
//
// The package re-exports the internal building blocks a host process needs
// to assemble an engine; the HTTP routing layer on top is out of scope.
package betterquery

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/audit"
	"github.com/armelgeek/better-query/internal/cache"
	"github.com/armelgeek/better-query/internal/config"
	"github.com/armelgeek/better-query/internal/engine"
	"github.com/armelgeek/better-query/internal/jobs"
	"github.com/armelgeek/better-query/internal/plugin"
	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/realtime"
	"github.com/armelgeek/better-query/internal/relationships"
	"github.com/armelgeek/better-query/internal/schema"
)

// Schema building blocks.
type (
	FieldDescriptor        = schema.FieldDescriptor
	FieldKind              = schema.FieldKind
	Reference              = schema.Reference
	ResourceDefinition     = schema.ResourceDefinition
	RelationshipDescriptor = schema.RelationshipDescriptor
	RelationKind           = schema.RelationKind
	Registry               = schema.Registry
)

const (
	KindString    = schema.KindString
	KindNumber    = schema.KindNumber
	KindBoolean   = schema.KindBoolean
	KindDate      = schema.KindDate
	KindJSON      = schema.KindJSON
	KindReference = schema.KindReference

	HasOne        = schema.HasOne
	HasMany       = schema.HasMany
	BelongsTo     = schema.BelongsTo
	BelongsToMany = schema.BelongsToMany
)

// Query building blocks.
type (
	Condition   = query.Condition
	Operator    = query.Operator
	OrderBy     = query.OrderBy
	Record      = adapter.Record
	FindOptions = adapter.FindOptions
)

// Eq is shorthand for an equality condition.
func Eq(field string, value interface{}) Condition { return query.Eq(field, value) }

// Engine and plugins.
type (
	Engine         = engine.Engine
	Plugin         = plugin.Plugin
	Hook           = plugin.Hook
	HookContext    = plugin.Context
	JunctionOp     = relationships.JunctionOp
	Config         = config.Config
	CachePlugin    = cache.Plugin
	JobsPlugin     = jobs.Plugin
	RealtimePlugin = realtime.Plugin
	AuditPlugin    = audit.Plugin
	JobHandler     = jobs.Handler
)

const (
	JunctionSet    = relationships.JunctionSet
	JunctionAdd    = relationships.JunctionAdd
	JunctionRemove = relationships.JunctionRemove
)

// NewResourceDefinition builds a resource definition with the implicit id,
// createdAt and updatedAt fields.
func NewResourceDefinition(name string, fields ...FieldDescriptor) *ResourceDefinition {
	return schema.NewResourceDefinition(name, fields...)
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry { return schema.NewRegistry() }

// LoadConfig reads betterquery.yml and the environment.
func LoadConfig() (*Config, error) { return config.Load() }

// OpenDB opens and pings a Postgres connection pool.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	return engine.OpenDB(ctx, dsn)
}

// NewEngine assembles an engine over a registry and an open database.
func NewEngine(registry *Registry, db *sql.DB, logger *zap.Logger) *Engine {
	a := adapter.New(db, registry, adapter.Capabilities{Joins: true}, logger)
	return engine.New(registry, a, logger)
}

// NewMemoryCachePlugin creates the cache plugin over an in-process store.
func NewMemoryCachePlugin(resources map[string]cache.ResourceConfig) *CachePlugin {
	return cache.NewPlugin(cache.NewMemoryStore(), resources)
}

// NewRedisCachePlugin creates the cache plugin over Redis.
func NewRedisCachePlugin(cfg cache.RedisConfig, resources map[string]cache.ResourceConfig) (*CachePlugin, error) {
	store, err := cache.NewRedisStore(cfg)
	if err != nil {
		return nil, err
	}
	return cache.NewPlugin(store, resources), nil
}

// NewJobsPlugin creates the background jobs plugin.
func NewJobsPlugin(opts jobs.Options) *JobsPlugin { return jobs.NewPlugin(opts) }

// NewRealtimePlugin creates the realtime fanout plugin.
func NewRealtimePlugin(opts realtime.Options) *RealtimePlugin { return realtime.NewPlugin(opts) }

// NewAuditPlugin creates the audit log plugin.
func NewAuditPlugin(exclude ...string) *AuditPlugin { return audit.NewPlugin(exclude...) }
