package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"pms/internal/platform/querier"
)

// RetryPolicy bounds how often a failed job is re-run before it is recorded as failed.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Minute}
}

type Service struct {
	DB     querier.Querier
	Policy RetryPolicy
	queue  chan job
}

type job struct {
	Type string
	Key  string
	Run  func(context.Context) (any, error)
}

// New returns a queue backed by db for run bookkeeping. db may be nil.
func New(db querier.Querier, policy RetryPolicy) *Service {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Service{
		DB:     db,
		Policy: policy,
		queue:  make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
}

func (s *Service) Enqueue(jobType, key string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Key: key, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType, "key", key)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, key string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Key: key, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "key", j.Key, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := s.insertRun(ctx, j)

	var details any
	var err error
	attempts := 0
	delay := s.Policy.InitialDelay
	for attempts < s.Policy.MaxAttempts {
		attempts++
		details, err = j.Run(ctx)
		if err == nil || attempts >= s.Policy.MaxAttempts {
			break
		}
		slog.Info("job attempt failed, retrying", "jobType", j.Type, "key", j.Key, "attempt", attempts, "err", err)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempts = s.Policy.MaxAttempts
		case <-time.After(delay):
		}
		delay *= 2
		if s.Policy.MaxDelay > 0 && delay > s.Policy.MaxDelay {
			delay = s.Policy.MaxDelay
		}
	}

	status := "completed"
	if err != nil {
		status = "failed"
	}
	s.completeRun(ctx, runID, status, attempts, details)
	return details, err
}

func (s *Service) insertRun(ctx context.Context, j job) string {
	if s.DB == nil {
		return ""
	}
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, job_key, status)
    VALUES ($1,$2,$3)
    RETURNING id::text
  `, j.Type, j.Key, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}
	return runID
}

func (s *Service) completeRun(ctx context.Context, runID, status string, attempts int, details any) {
	if s.DB == nil || runID == "" {
		return
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if _, err := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, attempts = $2, details_json = $3, completed_at = now()
    WHERE id::text = $4
  `, status, attempts, detailsJSON, runID); err != nil {
		slog.Warn("job run update failed", "err", err)
	}
}
