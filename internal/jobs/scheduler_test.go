package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/schema"
)

func newTestScheduler(t *testing.T, history bool) (*Scheduler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := schema.NewRegistry()
	require.NoError(t, registry.Register(JobDefinition()))
	require.NoError(t, registry.Register(HistoryDefinition()))

	a := adapter.New(db, registry, adapter.Capabilities{Joins: true}, nil)
	return NewScheduler(a, time.Hour, history, nil), mock
}

func expectClaim(mock sqlmock.Sqlmock, id string, claimed bool) {
	rows := sqlmock.NewRows([]string{"id", "status"})
	if claimed {
		rows.AddRow(id, "running")
	}
	mock.ExpectQuery(`UPDATE "jobs" SET "status" = \$1, "attempts" = \$2, "lastRunAt" = \$3, "updatedAt" = \$4 WHERE "id" = \$5 AND "status" = \$6`).
		WithArgs("running", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), id, "pending").
		WillReturnRows(rows)
}

func expectHistory(mock sqlmock.Sqlmock, status string) {
	mock.ExpectQuery(`INSERT INTO "job_history"`).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "jobId", "status", "startedAt", "completedAt", "error", "result", "durationMs", "createdAt", "updatedAt"}).
				AddRow("h1", "j1", status, "2024-06-01T10:00:00Z", "2024-06-01T10:00:00Z", nil, nil, 0.0, "2024-06-01T10:00:00Z", "2024-06-01T10:00:00Z"))
}

func TestScheduler_ExecuteOneShotSuccess(t *testing.T) {
	s, mock := newTestScheduler(t, true)
	s.RegisterHandler("send", func(ctx *ExecutionContext) (interface{}, error) {
		assert.Equal(t, "j1", ctx.JobID)
		assert.Equal(t, 1, ctx.Attempt)
		return "sent", nil
	})

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	expectClaim(mock, "j1", true)
	expectHistory(mock, "completed")
	mock.ExpectQuery(`UPDATE "jobs" SET "status" = \$1, "nextRunAt" = \$2, "lastError" = \$3, "updatedAt" = \$4 WHERE "id" = \$5`).
		WithArgs("completed", nil, nil, sqlmock.AnyArg(), "j1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("j1", "completed"))

	job := &Job{ID: "j1", Name: "welcome mail", HandlerName: "send", MaxAttempts: 3, Status: StatusPending}
	s.execute(context.Background(), job, now)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_HistoryEncodesStringResult(t *testing.T) {
	s, mock := newTestScheduler(t, true)
	s.RegisterHandler("send", func(ctx *ExecutionContext) (interface{}, error) {
		return "sent", nil
	})

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	expectClaim(mock, "j1", true)
	mock.ExpectQuery(`INSERT INTO "job_history" \("id", "jobId", "status", "startedAt", "completedAt", "result", "durationMs", "createdAt", "updatedAt"\)`).
		WithArgs(sqlmock.AnyArg(), "j1", "completed", sqlmock.AnyArg(), sqlmock.AnyArg(), `"sent"`,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "jobId", "status", "startedAt", "completedAt", "error", "result", "durationMs", "createdAt", "updatedAt"}).
				AddRow("h1", "j1", "completed", "2024-06-01T10:00:00Z", "2024-06-01T10:00:00Z", nil, `"sent"`, 0.0, "2024-06-01T10:00:00Z", "2024-06-01T10:00:00Z"))
	mock.ExpectQuery(`UPDATE "jobs" SET "status" = \$1, "nextRunAt" = \$2, "lastError" = \$3, "updatedAt" = \$4 WHERE "id" = \$5`).
		WithArgs("completed", nil, nil, sqlmock.AnyArg(), "j1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("j1", "completed"))

	job := &Job{ID: "j1", Name: "welcome mail", HandlerName: "send", MaxAttempts: 3, Status: StatusPending}
	s.execute(context.Background(), job, now)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_ExecuteRecurringSuccessResetsAttempts(t *testing.T) {
	s, mock := newTestScheduler(t, false)
	s.RegisterHandler("sync", func(ctx *ExecutionContext) (interface{}, error) {
		return nil, nil
	})

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	expectClaim(mock, "j1", true)
	mock.ExpectQuery(`UPDATE "jobs" SET "status" = \$1, "attempts" = \$2, "nextRunAt" = \$3, "lastError" = \$4, "updatedAt" = \$5 WHERE "id" = \$6`).
		WithArgs("pending", 0.0, "2024-06-01T10:05:00.000000000Z", nil, sqlmock.AnyArg(), "j1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("j1", "pending"))

	job := &Job{ID: "j1", HandlerName: "sync", Schedule: "5m", Attempts: 2, MaxAttempts: 3, Status: StatusPending}
	s.execute(context.Background(), job, now)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_ExecuteFailureRetries(t *testing.T) {
	s, mock := newTestScheduler(t, false)
	s.RegisterHandler("flaky", func(ctx *ExecutionContext) (interface{}, error) {
		return nil, errors.New("boom")
	})

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	expectClaim(mock, "j1", true)
	// One-shot jobs retry at the next poll.
	mock.ExpectQuery(`UPDATE "jobs" SET "status" = \$1, "nextRunAt" = \$2, "lastError" = \$3, "updatedAt" = \$4 WHERE "id" = \$5`).
		WithArgs("pending", "2024-06-01T10:00:00.000000000Z", "boom", sqlmock.AnyArg(), "j1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("j1", "pending"))

	job := &Job{ID: "j1", HandlerName: "flaky", MaxAttempts: 3, Status: StatusPending}
	s.execute(context.Background(), job, now)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_ExecuteFailureExhaustsRetries(t *testing.T) {
	s, mock := newTestScheduler(t, false)
	s.RegisterHandler("flaky", func(ctx *ExecutionContext) (interface{}, error) {
		return nil, errors.New("boom")
	})

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	expectClaim(mock, "j1", true)
	mock.ExpectQuery(`UPDATE "jobs" SET "status" = \$1, "nextRunAt" = \$2, "lastError" = \$3, "updatedAt" = \$4 WHERE "id" = \$5`).
		WithArgs("failed", nil, "boom", sqlmock.AnyArg(), "j1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("j1", "failed"))

	job := &Job{ID: "j1", HandlerName: "flaky", Attempts: 2, MaxAttempts: 3, Status: StatusPending}
	s.execute(context.Background(), job, now)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_ExecutePanicIsFailure(t *testing.T) {
	s, mock := newTestScheduler(t, false)
	s.RegisterHandler("panicky", func(ctx *ExecutionContext) (interface{}, error) {
		panic("nope")
	})

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	expectClaim(mock, "j1", true)
	mock.ExpectQuery(`UPDATE "jobs" SET "status" = \$1, "nextRunAt" = \$2, "lastError" = \$3, "updatedAt" = \$4 WHERE "id" = \$5`).
		WithArgs("failed", nil, "handler panic: nope", sqlmock.AnyArg(), "j1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("j1", "failed"))

	job := &Job{ID: "j1", HandlerName: "panicky", MaxAttempts: 1, Status: StatusPending}
	s.execute(context.Background(), job, now)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_LostClaimSkipsExecution(t *testing.T) {
	s, mock := newTestScheduler(t, true)
	var ran bool
	s.RegisterHandler("send", func(ctx *ExecutionContext) (interface{}, error) {
		ran = true
		return nil, nil
	})

	expectClaim(mock, "j1", false)

	job := &Job{ID: "j1", HandlerName: "send", MaxAttempts: 3, Status: StatusPending}
	s.execute(context.Background(), job, time.Now().UTC())

	assert.False(t, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, false)

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	s.Stop()
	s.Stop()

	// Restartable after a stop.
	s.Start(ctx)
	s.Stop()
}

func TestJobFromRecord(t *testing.T) {
	last := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	next := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	job := jobFromRecord(adapter.Record{
		"id":          "j1",
		"name":        "digest",
		"handlerName": "send",
		"payload":     map[string]interface{}{"to": "ops"},
		"schedule":    "1h",
		"status":      "running",
		"attempts":    float64(2),
		"maxAttempts": int64(5),
		"lastRunAt":   last,
		"nextRunAt":   next,
		"lastError":   "timeout",
	})

	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, "digest", job.Name)
	assert.Equal(t, "send", job.HandlerName)
	assert.Equal(t, map[string]interface{}{"to": "ops"}, job.Payload)
	assert.Equal(t, "1h", job.Schedule)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, 5, job.MaxAttempts)
	require.NotNil(t, job.LastRunAt)
	assert.Equal(t, last, *job.LastRunAt)
	require.NotNil(t, job.NextRunAt)
	assert.Equal(t, next, *job.NextRunAt)
	assert.Equal(t, "timeout", job.LastError)
}

func TestJobFromRecord_Defaults(t *testing.T) {
	job := jobFromRecord(adapter.Record{"id": "j1"})

	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, 1, job.MaxAttempts)
	assert.Nil(t, job.LastRunAt)
	assert.Nil(t, job.NextRunAt)
}
