package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/errs"
	"github.com/armelgeek/better-query/internal/plugin"
	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// Options configures the jobs plugin.
type Options struct {
	// PollInterval is how often the scheduler checks for due jobs.
	PollInterval time.Duration
	// History enables per-attempt history rows.
	History bool
	// Handlers maps handler names to their functions.
	Handlers map[string]Handler
}

// Plugin contributes the job resources, the scheduler and job management
// endpoints.
type Plugin struct {
	plugin.Base

	opts      Options
	adapter   *adapter.Adapter
	scheduler *Scheduler
	logger    *zap.Logger
}

// NewPlugin creates the jobs plugin.
func NewPlugin(opts Options) *Plugin {
	return &Plugin{opts: opts, logger: zap.NewNop()}
}

// ID implements plugin.Plugin.
func (p *Plugin) ID() string { return "jobs" }

// Resources contributes the job and jobHistory schemas.
func (p *Plugin) Resources() []*schema.ResourceDefinition {
	defs := []*schema.ResourceDefinition{JobDefinition()}
	if p.opts.History {
		defs = append(defs, HistoryDefinition())
	}
	return defs
}

// Endpoints exposes job management operations to the routing layer.
func (p *Plugin) Endpoints() []plugin.Endpoint {
	return []plugin.Endpoint{
		{Name: "job.create", Handler: p.createJob},
		{Name: "job.list", Handler: p.listJobs},
		{Name: "job.get", Handler: p.getJob},
		{Name: "job.cancel", Handler: p.cancelJob},
		{Name: "job.delete", Handler: p.deleteJob},
		{Name: "job.trigger", Handler: p.triggerJob},
	}
}

// Init starts the scheduler.
func (p *Plugin) Init(ctx context.Context, host *plugin.Host) error {
	p.adapter = host.Adapter
	p.logger = host.Logger

	p.scheduler = NewScheduler(host.Adapter, p.opts.PollInterval, p.opts.History, host.Logger)
	for name, h := range p.opts.Handlers {
		p.scheduler.RegisterHandler(name, h)
	}
	p.scheduler.Start(ctx)
	return nil
}

// Destroy stops the scheduler.
func (p *Plugin) Destroy(context.Context) error {
	if p.scheduler != nil {
		p.scheduler.Stop()
	}
	return nil
}

// Scheduler returns the running scheduler, for handler registration after
// startup.
func (p *Plugin) Scheduler() *Scheduler { return p.scheduler }

// createJob validates the schedule, computes the first run time and inserts
// the job as pending.
func (p *Plugin) createJob(ctx context.Context, payload adapter.Record) (interface{}, error) {
	now := time.Now().UTC()
	next := now

	if schedule, ok := payload["schedule"].(string); ok && schedule != "" {
		parsed, err := ParseSchedule(schedule)
		if err != nil {
			return nil, err
		}
		next = parsed.Next(now)
	}

	record := adapter.Record{
		"name":        payload["name"],
		"handlerName": payload["handlerName"],
		"status":      string(StatusPending),
		"nextRunAt":   next,
	}
	if v, ok := payload["payload"]; ok {
		record["payload"] = v
	}
	if v, ok := payload["schedule"]; ok {
		record["schedule"] = v
	}
	if v, ok := payload["maxAttempts"]; ok {
		record["maxAttempts"] = v
	}

	return p.adapter.Create(ctx, ResourceJob, record)
}

func (p *Plugin) listJobs(ctx context.Context, payload adapter.Record) (interface{}, error) {
	var where []query.Condition
	if status, ok := payload["status"].(string); ok && status != "" {
		where = append(where, query.Eq("status", status))
	}
	return p.adapter.FindMany(ctx, ResourceJob, adapter.FindOptions{
		Where:   where,
		OrderBy: []query.OrderBy{{Field: "createdAt", Desc: true}},
	})
}

func (p *Plugin) getJob(ctx context.Context, payload adapter.Record) (interface{}, error) {
	id, err := requireID(payload)
	if err != nil {
		return nil, err
	}
	return p.adapter.FindFirst(ctx, ResourceJob, adapter.FindOptions{
		Where: []query.Condition{query.Eq("id", id)},
	})
}

// cancelJob parks a pending or running job. Running handlers are not
// interrupted; the job simply never transitions back to pending.
func (p *Plugin) cancelJob(ctx context.Context, payload adapter.Record) (interface{}, error) {
	id, err := requireID(payload)
	if err != nil {
		return nil, err
	}

	updated, err := p.adapter.Update(ctx, ResourceJob,
		[]query.Condition{
			query.Eq("id", id),
			{Field: "status", Operator: query.OpIn, Value: []interface{}{
				string(StatusPending), string(StatusRunning),
			}},
		},
		adapter.Record{"status": string(StatusCancelled), "nextRunAt": nil})
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, errs.NotFoundf("no cancellable job %s", id)
	}
	return updated[0], nil
}

func (p *Plugin) deleteJob(ctx context.Context, payload adapter.Record) (interface{}, error) {
	id, err := requireID(payload)
	if err != nil {
		return nil, err
	}

	deleted, err := p.adapter.Delete(ctx, ResourceJob,
		[]query.Condition{query.Eq("id", id)}, true)
	if err != nil {
		return nil, err
	}
	if deleted == 0 {
		return nil, errs.NotFoundf("job %s not found", id)
	}
	return map[string]interface{}{"deleted": deleted}, nil
}

// triggerJob makes a job due immediately.
func (p *Plugin) triggerJob(ctx context.Context, payload adapter.Record) (interface{}, error) {
	id, err := requireID(payload)
	if err != nil {
		return nil, err
	}

	updated, err := p.adapter.Update(ctx, ResourceJob,
		[]query.Condition{query.Eq("id", id)},
		adapter.Record{
			"status":    string(StatusPending),
			"attempts":  float64(0),
			"nextRunAt": time.Now().UTC(),
			"lastError": nil,
		})
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, errs.NotFoundf("job %s not found", id)
	}
	return updated[0], nil
}

func requireID(payload adapter.Record) (string, error) {
	id, ok := payload["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: job id is required", errs.ErrValidation)
	}
	return id, nil
}
