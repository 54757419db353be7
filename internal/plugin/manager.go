package plugin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/errs"
	"github.com/armelgeek/better-query/internal/schema"
)

// Manager registers plugins, composes their hooks into ordered chains and
// merges their schema/endpoint contributions.
type Manager struct {
	plugins   []Plugin
	ids       map[string]bool
	chains    map[chainKey][]HookFunc
	endpoints map[string]Operation
	epOrder   []string
	resources map[string]*schema.ResourceDefinition
	resOrder  []string

	initialized bool
	logger      *zap.Logger
}

type chainKey struct {
	hookType HookType
	resource string
}

// NewManager creates a plugin manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		ids:       make(map[string]bool),
		chains:    make(map[chainKey][]HookFunc),
		endpoints: make(map[string]Operation),
		resources: make(map[string]*schema.ResourceDefinition),
		logger:    logger,
	}
}

// Register records a plugin and merges its contributions. A duplicate plugin
// id, endpoint name or contributed resource name is a conflict; nothing is
// silently overwritten.
func (m *Manager) Register(p Plugin) error {
	if m.initialized {
		return fmt.Errorf("cannot register plugin %s after initialization", p.ID())
	}
	if m.ids[p.ID()] {
		return errs.Conflictf("plugin %s is already registered", p.ID())
	}

	// Check contribution collisions before mutating any state, so a failed
	// registration leaves the manager untouched.
	for _, ep := range p.Endpoints() {
		if _, exists := m.endpoints[ep.Name]; exists {
			return errs.Conflictf("plugin %s: endpoint %s is already contributed", p.ID(), ep.Name)
		}
	}
	for _, def := range p.Resources() {
		if _, exists := m.resources[def.Name]; exists {
			return errs.Conflictf("plugin %s: resource %s is already contributed", p.ID(), def.Name)
		}
	}

	m.ids[p.ID()] = true
	m.plugins = append(m.plugins, p)

	for _, hook := range p.Hooks() {
		key := chainKey{hookType: hook.Type, resource: hook.Resource}
		m.chains[key] = append(m.chains[key], hook.Fn)
	}
	for _, ep := range p.Endpoints() {
		m.endpoints[ep.Name] = ep.Handler
		m.epOrder = append(m.epOrder, ep.Name)
	}
	for _, def := range p.Resources() {
		m.resources[def.Name] = def
		m.resOrder = append(m.resOrder, def.Name)
	}

	m.logger.Debug("registered plugin", zap.String("plugin", p.ID()))
	return nil
}

// RunHooks executes the hook chain for an event: first the hooks registered
// for all resources, then the resource-specific ones, each in plugin
// registration order. Hooks run strictly sequentially; the first error
// aborts the remaining hooks and the triggering operation.
func (m *Manager) RunHooks(hookType HookType, hc *Context) error {
	for _, fn := range m.chains[chainKey{hookType: hookType}] {
		if err := fn(hc); err != nil {
			return fmt.Errorf("hook %s failed: %w", hookType, err)
		}
		if hc.Handled {
			return nil
		}
	}
	for _, fn := range m.chains[chainKey{hookType: hookType, resource: hc.Resource}] {
		if err := fn(hc); err != nil {
			return fmt.Errorf("hook %s failed: %w", hookType, err)
		}
		if hc.Handled {
			return nil
		}
	}
	return nil
}

// Initialize invokes each plugin's Init exactly once, in registration order.
// Any failure aborts startup entirely.
func (m *Manager) Initialize(ctx context.Context, host *Host) error {
	if m.initialized {
		return nil
	}
	for _, p := range m.plugins {
		if err := p.Init(ctx, host); err != nil {
			return fmt.Errorf("plugin %s init failed: %w", p.ID(), err)
		}
		m.logger.Info("initialized plugin", zap.String("plugin", p.ID()))
	}
	m.initialized = true
	return nil
}

// Destroy invokes each plugin's Destroy in registration order. A failure is
// logged and does not prevent subsequent plugins from being destroyed.
func (m *Manager) Destroy(ctx context.Context) {
	for _, p := range m.plugins {
		if err := p.Destroy(ctx); err != nil {
			m.logger.Error("plugin destroy failed",
				zap.String("plugin", p.ID()), zap.Error(err))
		}
	}
}

// Endpoint returns a contributed operation by name.
func (m *Manager) Endpoint(name string) (Operation, bool) {
	op, ok := m.endpoints[name]
	return op, ok
}

// EndpointNames returns contributed endpoint names in registration order.
func (m *Manager) EndpointNames() []string {
	names := make([]string, len(m.epOrder))
	copy(names, m.epOrder)
	return names
}

// Resources returns contributed resource definitions in registration order.
func (m *Manager) Resources() []*schema.ResourceDefinition {
	defs := make([]*schema.ResourceDefinition, 0, len(m.resOrder))
	for _, name := range m.resOrder {
		defs = append(defs, m.resources[name])
	}
	return defs
}

// Plugins returns the registered plugins in registration order.
func (m *Manager) Plugins() []Plugin {
	out := make([]Plugin, len(m.plugins))
	copy(out, m.plugins)
	return out
}
