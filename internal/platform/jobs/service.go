package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"notifycsc/internal/platform/querier"
)

const (
	JobExpiryDigest     = "expiry_digest"
	JobSessionCleanup   = "session_cleanup"
	JobIdempotencyPurge = "idempotency_purge"

	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	runTimeout = 5 * time.Minute
)

// Task does one unit of background work and returns details for job_runs.
type Task func(ctx context.Context) (any, error)

// Recorder persists job_runs rows.
type Recorder interface {
	Begin(ctx context.Context, jobType string) (string, error)
	Finish(ctx context.Context, runID, status string, details []byte) error
}

type DBRecorder struct {
	DB querier.Querier
}

func (r DBRecorder) Begin(ctx context.Context, jobType string) (string, error) {
	var runID string
	err := r.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id
  `, jobType, StatusRunning).Scan(&runID)
	return runID, err
}

func (r DBRecorder) Finish(ctx context.Context, runID, status string, details []byte) error {
	_, err := r.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, runID)
	return err
}

type job struct {
	Type string
	Run  Task
}

type Service struct {
	recorder Recorder
	cron     *cron.Cron
	queue    chan job

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(recorder Recorder, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		recorder: recorder,
		cron:     cron.New(cron.WithLocation(loc)),
		queue:    make(chan job, 128),
	}
}

// Schedule registers task under a standard five-field cron spec. An empty
// spec disables the job.
func (s *Service) Schedule(spec, jobType string, task Task) error {
	if spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Enqueue(jobType, task) }); err != nil {
		return fmt.Errorf("schedule %s: %w", jobType, err)
	}
	slog.Info("job scheduled", "jobType", jobType, "spec", spec)
	return nil
}

// Start runs the worker and the cron engine until ctx ends or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.worker(ctx)
	s.cron.Start()
}

// Stop halts the scheduler and waits for the running job, if any.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	<-s.cron.Stop().Done()
	cancel()
	<-done
}

func (s *Service) Enqueue(jobType string, run Task) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run Task) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	runID := ""
	if s.recorder != nil {
		id, err := s.recorder.Begin(ctx, j.Type)
		if err != nil {
			slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
		}
		runID = id
	}

	started := time.Now()
	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		details = map[string]any{"error": err.Error(), "details": details}
	}
	slog.Info("job finished", "jobType", j.Type, "status", status, "duration", time.Since(started))

	if runID != "" {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			slog.Warn("job details marshal failed", "err", marshalErr)
			detailsJSON = []byte("{}")
		}
		if updErr := s.recorder.Finish(context.WithoutCancel(ctx), runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "jobType", j.Type, "err", updErr)
		}
	}
	return details, err
}
