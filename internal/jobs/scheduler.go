package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/query"
)

// DefaultPollInterval is how often the scheduler checks for due jobs when no
// interval is configured.
const DefaultPollInterval = time.Second

// Scheduler polls for due jobs and executes them sequentially within each
// tick. It owns its ticker, so Start and Stop may be called any number of
// times without leaking timer resources.
type Scheduler struct {
	adapter      *adapter.Adapter
	handlers     map[string]Handler
	pollInterval time.Duration
	history      bool
	logger       *zap.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler over the adapter. History recording is
// enabled by default.
func NewScheduler(a *adapter.Adapter, pollInterval time.Duration, history bool, logger *zap.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		adapter:      a,
		handlers:     make(map[string]Handler),
		pollInterval: pollInterval,
		history:      history,
		logger:       logger,
	}
}

// RegisterHandler binds a handler name to its function. Jobs referencing an
// unregistered handler fail at execution time.
func (s *Scheduler) RegisterHandler(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Start launches the polling loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go s.run(ctx, s.stopChan)
	s.logger.Info("job scheduler started", zap.Duration("pollInterval", s.pollInterval))
}

// Stop halts the polling loop and releases the ticker. Calling Stop on a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("job scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now.UTC())
		}
	}
}

// tick selects due jobs and executes them one at a time. A failure in one
// job is recorded on that job and never halts the loop.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	due, err := s.adapter.FindMany(ctx, ResourceJob, adapter.FindOptions{
		Where: []query.Condition{
			query.Eq("status", string(StatusPending)),
			{Field: "nextRunAt", Operator: query.OpLessThanOrEqual, Value: now},
		},
		OrderBy: []query.OrderBy{{Field: "nextRunAt"}},
	})
	if err != nil {
		s.logger.Error("job poll failed", zap.Error(err))
		return
	}

	for _, record := range due {
		job := jobFromRecord(record)
		s.execute(ctx, job, now)
	}
}

// claim transitions the job from pending to running with a conditional
// update, so two schedulers polling the same table cannot both pick it up.
func (s *Scheduler) claim(ctx context.Context, job *Job, now time.Time) (bool, error) {
	updated, err := s.adapter.Update(ctx, ResourceJob,
		[]query.Condition{
			query.Eq("id", job.ID),
			query.Eq("status", string(StatusPending)),
		},
		adapter.Record{
			"status":    string(StatusRunning),
			"attempts":  float64(job.Attempts + 1),
			"lastRunAt": now,
		})
	if err != nil {
		return false, err
	}
	return len(updated) > 0, nil
}

// execute runs one claimed job through a handler and applies the resulting
// state transition.
func (s *Scheduler) execute(ctx context.Context, job *Job, now time.Time) {
	claimed, err := s.claim(ctx, job, now)
	if err != nil {
		s.logger.Error("job claim failed", zap.String("job", job.ID), zap.Error(err))
		return
	}
	if !claimed {
		// Lost the race to another scheduler instance.
		return
	}
	job.Attempts++

	started := time.Now().UTC()
	result, runErr := s.runHandler(ctx, job)
	completed := time.Now().UTC()

	if s.history {
		s.recordHistory(ctx, job, runErr, result, started, completed)
	}

	if err := s.transition(ctx, job, runErr, now); err != nil {
		s.logger.Error("job state update failed", zap.String("job", job.ID), zap.Error(err))
	}
}

// runHandler invokes the job's handler with panic recovery, so a panicking
// handler is recorded as that job's failure.
func (s *Scheduler) runHandler(ctx context.Context, job *Job) (result interface{}, err error) {
	s.mu.Lock()
	handler, ok := s.handlers[job.HandlerName]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for %q", job.HandlerName)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(&ExecutionContext{
		JobID:   job.ID,
		Name:    job.Name,
		Payload: job.Payload,
		Attempt: job.Attempts,
	})
}

// transition applies the post-execution state machine: success reschedules
// recurring jobs and completes one-shot jobs; failure retries until
// maxAttempts, then parks the job as failed with no next run.
func (s *Scheduler) transition(ctx context.Context, job *Job, runErr error, now time.Time) error {
	update := adapter.Record{}

	switch {
	case runErr == nil && job.Schedule != "":
		next, err := nextRun(job.Schedule, now)
		if err != nil {
			return err
		}
		update["status"] = string(StatusPending)
		update["attempts"] = float64(0)
		update["nextRunAt"] = next
		update["lastError"] = nil

	case runErr == nil:
		update["status"] = string(StatusCompleted)
		update["nextRunAt"] = nil
		update["lastError"] = nil

	case job.Attempts < job.MaxAttempts:
		next, err := retryAt(job, now)
		if err != nil {
			return err
		}
		update["status"] = string(StatusPending)
		update["nextRunAt"] = next
		update["lastError"] = runErr.Error()

	default:
		update["status"] = string(StatusFailed)
		update["nextRunAt"] = nil
		update["lastError"] = runErr.Error()
	}

	_, err := s.adapter.Update(ctx, ResourceJob,
		[]query.Condition{query.Eq("id", job.ID)}, update)
	return err
}

// nextRun computes the next run time from the job's schedule.
func nextRun(schedule string, from time.Time) (time.Time, error) {
	parsed, err := ParseSchedule(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.Next(from), nil
}

// retryAt computes when a failed attempt is retried. Scheduled jobs retry at
// their next scheduled slot; one-shot jobs retry after the poll interval.
func retryAt(job *Job, from time.Time) (time.Time, error) {
	if job.Schedule != "" {
		return nextRun(job.Schedule, from)
	}
	return from, nil
}

// recordHistory writes one immutable history row for an execution attempt.
func (s *Scheduler) recordHistory(ctx context.Context, job *Job, runErr error, result interface{}, started, completed time.Time) {
	entry := adapter.Record{
		"jobId":       job.ID,
		"startedAt":   started,
		"completedAt": completed,
		"durationMs":  float64(completed.Sub(started).Milliseconds()),
	}
	if runErr != nil {
		entry["status"] = string(StatusFailed)
		entry["error"] = runErr.Error()
	} else {
		entry["status"] = string(StatusCompleted)
		if result != nil {
			// Handler results are plain values. Encode strings so the json
			// column stores them as JSON strings rather than raw text.
			if s, ok := result.(string); ok {
				encoded, err := json.Marshal(s)
				if err == nil {
					result = string(encoded)
				}
			}
			entry["result"] = result
		}
	}

	if _, err := s.adapter.Create(ctx, ResourceHistory, entry); err != nil {
		s.logger.Error("job history write failed", zap.String("job", job.ID), zap.Error(err))
	}
}
