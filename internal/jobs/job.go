// Package jobs provides the background job scheduler plugin: job and history
// resources, schedule parsing and a polling execution loop with retries.
package jobs

import (
	"time"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/schema"
)

// Status represents the current state of a job.
type Status string

const (
	// StatusPending indicates the job is waiting to be picked up.
	StatusPending Status = "pending"
	// StatusRunning indicates the job is currently executing.
	StatusRunning Status = "running"
	// StatusCompleted indicates a one-shot job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the job failed after all retries.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the job was cancelled via the API.
	StatusCancelled Status = "cancelled"
)

// ResourceJob and ResourceHistory are the resource names the plugin
// contributes to the schema registry.
const (
	ResourceJob     = "job"
	ResourceHistory = "jobHistory"
)

// Handler executes one job. The returned value is recorded in the job's
// history entry.
type Handler func(ctx *ExecutionContext) (interface{}, error)

// ExecutionContext carries one execution attempt's inputs.
type ExecutionContext struct {
	JobID   string
	Name    string
	Payload map[string]interface{}
	Attempt int
}

// Job is the in-memory view of one job record.
type Job struct {
	ID          string
	Name        string
	HandlerName string
	Payload     map[string]interface{}
	Schedule    string
	Status      Status
	Attempts    int
	MaxAttempts int
	LastRunAt   *time.Time
	NextRunAt   *time.Time
	LastError   string
}

// jobFromRecord maps an adapter record onto a Job.
func jobFromRecord(record adapter.Record) *Job {
	job := &Job{
		Status:      StatusPending,
		MaxAttempts: 1,
	}
	if v, ok := record["id"].(string); ok {
		job.ID = v
	}
	if v, ok := record["name"].(string); ok {
		job.Name = v
	}
	if v, ok := record["handlerName"].(string); ok {
		job.HandlerName = v
	}
	if v, ok := record["payload"].(map[string]interface{}); ok {
		job.Payload = v
	}
	if v, ok := record["schedule"].(string); ok {
		job.Schedule = v
	}
	if v, ok := record["status"].(string); ok {
		job.Status = Status(v)
	}
	if v, ok := asInt(record["attempts"]); ok {
		job.Attempts = v
	}
	if v, ok := asInt(record["maxAttempts"]); ok {
		job.MaxAttempts = v
	}
	if v, ok := record["lastRunAt"].(time.Time); ok {
		job.LastRunAt = &v
	}
	if v, ok := record["nextRunAt"].(time.Time); ok {
		job.NextRunAt = &v
	}
	if v, ok := record["lastError"].(string); ok {
		job.LastError = v
	}
	return job
}

func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// JobDefinition returns the schema contribution for the job resource.
func JobDefinition() *schema.ResourceDefinition {
	return schema.NewResourceDefinition(ResourceJob,
		schema.FieldDescriptor{Name: "name", Kind: schema.KindString, Required: true},
		schema.FieldDescriptor{Name: "handlerName", Kind: schema.KindString, Required: true},
		schema.FieldDescriptor{Name: "payload", Kind: schema.KindJSON},
		schema.FieldDescriptor{Name: "schedule", Kind: schema.KindString},
		schema.FieldDescriptor{Name: "status", Kind: schema.KindString, Required: true, Default: string(StatusPending)},
		schema.FieldDescriptor{Name: "attempts", Kind: schema.KindNumber, Required: true, Default: float64(0)},
		schema.FieldDescriptor{Name: "maxAttempts", Kind: schema.KindNumber, Required: true, Default: float64(3)},
		schema.FieldDescriptor{Name: "lastRunAt", Kind: schema.KindDate},
		schema.FieldDescriptor{Name: "nextRunAt", Kind: schema.KindDate},
		schema.FieldDescriptor{Name: "lastError", Kind: schema.KindString},
	).WithTable("jobs")
}

// HistoryDefinition returns the schema contribution for the job history
// resource. Rows are written once per execution attempt and never updated.
func HistoryDefinition() *schema.ResourceDefinition {
	return schema.NewResourceDefinition(ResourceHistory,
		schema.FieldDescriptor{
			Name:     "jobId",
			Kind:     schema.KindString,
			Required: true,
			Reference: &schema.Reference{
				TargetResource: ResourceJob,
				TargetField:    "id",
				OnDelete:       schema.CascadeCascade,
			},
		},
		schema.FieldDescriptor{Name: "status", Kind: schema.KindString, Required: true},
		schema.FieldDescriptor{Name: "startedAt", Kind: schema.KindDate, Required: true},
		schema.FieldDescriptor{Name: "completedAt", Kind: schema.KindDate},
		schema.FieldDescriptor{Name: "error", Kind: schema.KindString},
		schema.FieldDescriptor{Name: "result", Kind: schema.KindJSON},
		schema.FieldDescriptor{Name: "durationMs", Kind: schema.KindNumber},
	).WithTable("job_history")
}
