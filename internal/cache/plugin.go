package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/plugin"
)

// ResourceConfig controls caching for one resource.
type ResourceConfig struct {
	// Enabled turns caching on for the resource.
	Enabled bool
	// ReadTTL applies to single-record reads.
	ReadTTL time.Duration
	// ListTTL applies to list results.
	ListTTL time.Duration
	// InvalidationPatterns are the glob patterns deleted on any mutation of
	// the resource. Empty means the resource's default pattern.
	InvalidationPatterns []string
}

// Stats counts cache plugin activity.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Sets          int64 `json:"sets"`
	Invalidations int64 `json:"invalidations"`
}

// Plugin is the read-through cache: a before-hook serves reads and lists
// from the store, an after-hook fills misses, and any mutation deletes every
// key matching the resource's invalidation patterns.
type Plugin struct {
	plugin.Base

	store     Store
	resources map[string]ResourceConfig
	logger    *zap.Logger

	hits          atomic.Int64
	misses        atomic.Int64
	sets          atomic.Int64
	invalidations atomic.Int64
}

// NewPlugin creates the cache plugin over a store. Only resources present in
// the config map with Enabled set participate.
func NewPlugin(store Store, resources map[string]ResourceConfig) *Plugin {
	return &Plugin{
		store:     store,
		resources: resources,
		logger:    zap.NewNop(),
	}
}

// ID implements plugin.Plugin.
func (p *Plugin) ID() string { return "cache" }

// Init captures the host logger.
func (p *Plugin) Init(_ context.Context, host *plugin.Host) error {
	p.logger = host.Logger
	return nil
}

// Destroy closes the store.
func (p *Plugin) Destroy(context.Context) error {
	return p.store.Close()
}

// Hooks wires the read-through and invalidation behavior.
func (p *Plugin) Hooks() []plugin.Hook {
	return []plugin.Hook{
		{Type: plugin.BeforeRead, Fn: p.beforeRead},
		{Type: plugin.AfterRead, Fn: p.afterRead},
		{Type: plugin.BeforeList, Fn: p.beforeList},
		{Type: plugin.AfterList, Fn: p.afterList},
		{Type: plugin.AfterCreate, Fn: p.invalidate},
		{Type: plugin.AfterUpdate, Fn: p.invalidate},
		{Type: plugin.AfterDelete, Fn: p.invalidate},
	}
}

// Endpoints exposes stats and clear operations.
func (p *Plugin) Endpoints() []plugin.Endpoint {
	return []plugin.Endpoint{
		{Name: "cache.stats", Handler: p.statsEndpoint},
		{Name: "cache.clear", Handler: p.clearEndpoint},
	}
}

func (p *Plugin) config(resource string) (ResourceConfig, bool) {
	cfg, ok := p.resources[resource]
	if !ok || !cfg.Enabled {
		return ResourceConfig{}, false
	}
	return cfg, true
}

func (p *Plugin) beforeRead(hc *plugin.Context) error {
	if _, ok := p.config(hc.Resource); !ok {
		return nil
	}

	key := BuildKey(hc.Resource, hc.Operation, hc.RecordID, hc.Query)
	data, err := p.store.Get(hc, key)
	if err != nil {
		if !IsCacheMiss(err) {
			p.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		p.misses.Add(1)
		return nil
	}

	var record adapter.Record
	if err := json.Unmarshal(data, &record); err != nil {
		p.misses.Add(1)
		return nil
	}

	p.hits.Add(1)
	hc.Record = record
	hc.Handled = true
	return nil
}

func (p *Plugin) afterRead(hc *plugin.Context) error {
	cfg, ok := p.config(hc.Resource)
	if !ok || hc.Handled || hc.Record == nil {
		return nil
	}
	p.storeValue(hc, BuildKey(hc.Resource, hc.Operation, hc.RecordID, hc.Query), hc.Record, cfg.ReadTTL)
	return nil
}

func (p *Plugin) beforeList(hc *plugin.Context) error {
	if _, ok := p.config(hc.Resource); !ok {
		return nil
	}

	key := BuildKey(hc.Resource, hc.Operation, "", hc.Query)
	data, err := p.store.Get(hc, key)
	if err != nil {
		if !IsCacheMiss(err) {
			p.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		p.misses.Add(1)
		return nil
	}

	var records []adapter.Record
	if err := json.Unmarshal(data, &records); err != nil {
		p.misses.Add(1)
		return nil
	}

	p.hits.Add(1)
	hc.Records = records
	hc.Handled = true
	return nil
}

func (p *Plugin) afterList(hc *plugin.Context) error {
	cfg, ok := p.config(hc.Resource)
	if !ok || hc.Handled || hc.Records == nil {
		return nil
	}
	p.storeValue(hc, BuildKey(hc.Resource, hc.Operation, "", hc.Query), hc.Records, cfg.ListTTL)
	return nil
}

func (p *Plugin) storeValue(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := p.store.Set(ctx, key, data, ttl); err != nil {
		p.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	p.sets.Add(1)
}

// invalidate runs after every mutation: deletes all keys matching the
// resource's patterns, coarse-grained so list staleness is bounded by TTL.
func (p *Plugin) invalidate(hc *plugin.Context) error {
	cfg, ok := p.config(hc.Resource)
	if !ok {
		return nil
	}

	patterns := cfg.InvalidationPatterns
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern(hc.Resource)}
	}

	for _, pattern := range patterns {
		deleted, err := p.store.DeletePattern(hc, pattern)
		if err != nil {
			p.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		p.invalidations.Add(int64(deleted))
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (p *Plugin) Stats() Stats {
	return Stats{
		Hits:          p.hits.Load(),
		Misses:        p.misses.Load(),
		Sets:          p.sets.Load(),
		Invalidations: p.invalidations.Load(),
	}
}

func (p *Plugin) statsEndpoint(context.Context, adapter.Record) (interface{}, error) {
	return p.Stats(), nil
}

func (p *Plugin) clearEndpoint(ctx context.Context, payload adapter.Record) (interface{}, error) {
	if resource, ok := payload["resource"].(string); ok && resource != "" {
		deleted, err := p.store.DeletePattern(ctx, DefaultPattern(resource))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": deleted}, nil
	}
	if err := p.store.Clear(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{"cleared": true}, nil
}
