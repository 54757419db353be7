// Package plugin manages optional modules that contribute lifecycle hooks,
// resource schemas, named endpoints and background behavior to the engine.
package plugin

import (
	"context"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/schema"
)

// HookType identifies a lifecycle event.
type HookType int

const (
	BeforeCreate HookType = iota
	AfterCreate
	BeforeRead
	AfterRead
	BeforeList
	AfterList
	BeforeUpdate
	AfterUpdate
	BeforeDelete
	AfterDelete
)

// String returns the string representation of the hook type.
func (h HookType) String() string {
	switch h {
	case BeforeCreate:
		return "beforeCreate"
	case AfterCreate:
		return "afterCreate"
	case BeforeRead:
		return "beforeRead"
	case AfterRead:
		return "afterRead"
	case BeforeList:
		return "beforeList"
	case AfterList:
		return "afterList"
	case BeforeUpdate:
		return "beforeUpdate"
	case AfterUpdate:
		return "afterUpdate"
	case BeforeDelete:
		return "beforeDelete"
	case AfterDelete:
		return "afterDelete"
	default:
		return "unknown"
	}
}

// Context carries one operation's state through a hook chain. A before-hook
// may set Result and Handled to short-circuit the underlying operation; the
// cache layer uses this on a hit.
type Context struct {
	context.Context

	Resource  string
	Operation string

	// Input is the mutation payload for create/update.
	Input adapter.Record
	// Record is the single-record result, populated for after-hooks.
	Record adapter.Record
	// Records is the list result, populated for after-list hooks.
	Records []adapter.Record
	// RecordID identifies the targeted record when known.
	RecordID string
	// Query is the serialized query shape, used for cache keys.
	Query string

	Result  interface{}
	Handled bool
}

// NewContext creates a hook context for an operation on a resource.
func NewContext(ctx context.Context, resource, operation string) *Context {
	return &Context{Context: ctx, Resource: resource, Operation: operation}
}

// HookFunc is a single lifecycle hook.
type HookFunc func(hc *Context) error

// Hook binds a hook function to a lifecycle event, optionally scoped to one
// resource. An empty Resource applies to every resource.
type Hook struct {
	Type     HookType
	Resource string
	Fn       HookFunc
}

// Operation is a plugin-contributed named operation; the HTTP layer maps
// these onto routes.
type Operation func(ctx context.Context, payload adapter.Record) (interface{}, error)

// Endpoint is a named operation contribution.
type Endpoint struct {
	Name    string
	Handler Operation
}

// Host gives plugins access to the engine internals they are allowed to
// touch during init and hook execution.
type Host struct {
	Adapter  *adapter.Adapter
	Registry *schema.Registry
	Logger   *zap.Logger
}

// Plugin is an optional engine module. Implementations typically embed Base
// and override what they need.
type Plugin interface {
	// ID uniquely identifies the plugin; collisions are a startup error.
	ID() string
	// Hooks returns the plugin's lifecycle hooks in execution order.
	Hooks() []Hook
	// Resources returns schema contributions registered at startup.
	Resources() []*schema.ResourceDefinition
	// Endpoints returns named operation contributions.
	Endpoints() []Endpoint
	// Init is called exactly once, in registration order; an error aborts
	// engine startup.
	Init(ctx context.Context, host *Host) error
	// Destroy releases plugin resources; failures are logged, not fatal.
	Destroy(ctx context.Context) error
}

// Base is a no-op Plugin implementation for embedding.
type Base struct{}

func (Base) Hooks() []Hook                           { return nil }
func (Base) Resources() []*schema.ResourceDefinition { return nil }
func (Base) Endpoints() []Endpoint                   { return nil }
func (Base) Init(context.Context, *Host) error       { return nil }
func (Base) Destroy(context.Context) error           { return nil }
