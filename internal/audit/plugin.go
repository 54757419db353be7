// Package audit provides the audit-log plugin: one immutable row per
// mutation, written by after-hooks, queryable by resource and record.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/plugin"
	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// ResourceAuditLog is the resource name contributed to the registry.
const ResourceAuditLog = "auditLog"

// Plugin records every create, update and delete.
type Plugin struct {
	plugin.Base

	adapter *adapter.Adapter
	logger  *zap.Logger
	// exclude lists resources whose mutations are not recorded. The audit
	// log itself is always excluded to avoid recursion.
	exclude map[string]bool
}

// NewPlugin creates the audit plugin. Mutations of the listed resources are
// not recorded.
func NewPlugin(exclude ...string) *Plugin {
	skip := map[string]bool{ResourceAuditLog: true}
	for _, name := range exclude {
		skip[name] = true
	}
	return &Plugin{logger: zap.NewNop(), exclude: skip}
}

// ID implements plugin.Plugin.
func (p *Plugin) ID() string { return "audit" }

// Resources contributes the audit log schema.
func (p *Plugin) Resources() []*schema.ResourceDefinition {
	return []*schema.ResourceDefinition{
		schema.NewResourceDefinition(ResourceAuditLog,
			schema.FieldDescriptor{Name: "resource", Kind: schema.KindString, Required: true},
			schema.FieldDescriptor{Name: "operation", Kind: schema.KindString, Required: true},
			schema.FieldDescriptor{Name: "recordId", Kind: schema.KindString},
			schema.FieldDescriptor{Name: "data", Kind: schema.KindJSON},
		).WithTable("audit_log"),
	}
}

// Hooks record after every mutation.
func (p *Plugin) Hooks() []plugin.Hook {
	return []plugin.Hook{
		{Type: plugin.AfterCreate, Fn: p.record},
		{Type: plugin.AfterUpdate, Fn: p.record},
		{Type: plugin.AfterDelete, Fn: p.record},
	}
}

// Endpoints exposes the audit query operation.
func (p *Plugin) Endpoints() []plugin.Endpoint {
	return []plugin.Endpoint{
		{Name: "audit.query", Handler: p.queryEndpoint},
	}
}

// Init captures the adapter.
func (p *Plugin) Init(_ context.Context, host *plugin.Host) error {
	p.adapter = host.Adapter
	p.logger = host.Logger
	return nil
}

// record writes one audit row. A write failure is logged, never surfaced,
// so auditing cannot fail the audited operation.
func (p *Plugin) record(hc *plugin.Context) error {
	if p.exclude[hc.Resource] {
		return nil
	}

	entry := adapter.Record{
		"resource":  hc.Resource,
		"operation": hc.Operation,
	}
	if hc.RecordID != "" {
		entry["recordId"] = hc.RecordID
	}
	if hc.Record != nil {
		entry["data"] = map[string]interface{}(hc.Record)
		if id, ok := hc.Record["id"].(string); ok {
			entry["recordId"] = id
		}
	}

	if _, err := p.adapter.Create(hc, ResourceAuditLog, entry); err != nil {
		p.logger.Error("audit write failed",
			zap.String("resource", hc.Resource),
			zap.String("operation", hc.Operation),
			zap.Error(err))
	}
	return nil
}

// queryEndpoint lists audit rows filtered by resource, operation and record
// id, newest first.
func (p *Plugin) queryEndpoint(ctx context.Context, payload adapter.Record) (interface{}, error) {
	var where []query.Condition
	if v, ok := payload["resource"].(string); ok && v != "" {
		where = append(where, query.Eq("resource", v))
	}
	if v, ok := payload["operation"].(string); ok && v != "" {
		where = append(where, query.Eq("operation", v))
	}
	if v, ok := payload["recordId"].(string); ok && v != "" {
		where = append(where, query.Eq("recordId", v))
	}

	limit := 100
	if v, ok := payload["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	return p.adapter.FindMany(ctx, ResourceAuditLog, adapter.FindOptions{
		Where:   where,
		OrderBy: []query.OrderBy{{Field: "createdAt", Desc: true}},
		Limit:   limit,
	})
}
