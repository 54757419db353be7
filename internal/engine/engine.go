// Package engine exposes the per-resource operation surface consumed by the
// HTTP layer: generated CRUD wrapped in plugin hook chains, with eager
// loading through the relationship resolver.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/errs"
	"github.com/armelgeek/better-query/internal/plugin"
	"github.com/armelgeek/better-query/internal/relationships"
	"github.com/armelgeek/better-query/internal/schema"
)

// Engine wires the schema registry, query adapter, relationship resolver and
// plugin manager into one operation surface.
type Engine struct {
	registry *schema.Registry
	adapter  *adapter.Adapter
	resolver *relationships.Resolver
	plugins  *plugin.Manager
	logger   *zap.Logger
}

// New assembles an engine over the given registry and adapter.
func New(registry *schema.Registry, a *adapter.Adapter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	resolver := relationships.NewResolver(a, logger)
	a.SetResolver(resolver)

	return &Engine{
		registry: registry,
		adapter:  a,
		resolver: resolver,
		plugins:  plugin.NewManager(logger),
		logger:   logger,
	}
}

// Use registers a plugin. Must be called before Start.
func (e *Engine) Use(p plugin.Plugin) error {
	return e.plugins.Register(p)
}

// Start validates the schema, registers plugin-contributed resources, emits
// idempotent DDL and initializes plugins. Any failure is fatal to startup.
func (e *Engine) Start(ctx context.Context) error {
	for _, def := range e.plugins.Resources() {
		if err := e.registry.Register(def); err != nil {
			return fmt.Errorf("plugin schema contribution: %w", err)
		}
	}

	if err := e.registry.ValidateAll(); err != nil {
		return err
	}

	if err := e.adapter.CreateSchema(ctx); err != nil {
		return err
	}

	host := &plugin.Host{
		Adapter:  e.adapter,
		Registry: e.registry,
		Logger:   e.logger,
	}
	if err := e.plugins.Initialize(ctx, host); err != nil {
		return err
	}

	e.logger.Info("engine started",
		zap.Int("resources", e.registry.Count()),
		zap.Int("plugins", len(e.plugins.Plugins())))
	return nil
}

// Stop destroys plugins best-effort.
func (e *Engine) Stop(ctx context.Context) {
	e.plugins.Destroy(ctx)
}

// definition resolves a resource name to its definition.
func (e *Engine) definition(resource string) (*schema.ResourceDefinition, error) {
	def, ok := e.registry.Get(resource)
	if !ok {
		return nil, errs.NotFoundf("resource %s is not registered", resource)
	}
	return def, nil
}

// Registry returns the schema registry.
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Adapter returns the query adapter.
func (e *Engine) Adapter() *adapter.Adapter {
	return e.adapter
}

// Resolver returns the relationship resolver.
func (e *Engine) Resolver() *relationships.Resolver {
	return e.resolver
}

// Plugins returns the plugin manager.
func (e *Engine) Plugins() *plugin.Manager {
	return e.plugins
}
