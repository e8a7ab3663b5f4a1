package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrJobNotFound is returned when a job id has no record (never existed or
// already purged by the retention sweep).
var ErrJobNotFound = errors.New("job_not_found")

// JobRepository stores conversion job records.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	GetByID(ctx context.Context, jobID string) (*model.Job, error)
	// MarkActive transitions a queued job to active.
	MarkActive(ctx context.Context, jobID string) error
	// UpdateProgress raises the job's progress. Progress never goes
	// backwards; lower values are ignored.
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	Complete(ctx context.Context, jobID string, result []byte) error
	Fail(ctx context.Context, jobID string, reason string) error
	// PurgeFinishedBefore removes completed and failed jobs whose finish time
	// is older than the cutoff. Returns the number of rows removed.
	PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo creates a new JobRepository.
func NewJobRepo(pool *pgxpool.Pool) JobRepository {
	return &jobRepo{pool: pool}
}

func (r *jobRepo) Create(ctx context.Context, job *model.Job) error {
	const q = `
		INSERT INTO jobs (id, priority, class, payload, state, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
	`
	if _, err := r.pool.Exec(ctx, q, job.ID, job.Priority, string(job.Class), job.Payload, string(model.JobQueued)); err != nil {
		return fmt.Errorf("creating job %s: %w", job.ID, err)
	}
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, jobID string) (*model.Job, error) {
	const q = `
		SELECT id, priority, class, payload, state, progress, result, error, created_at, updated_at, finished_at
		FROM jobs
		WHERE id = $1
	`
	var job model.Job
	var class, state string
	var errMsg *string
	err := r.pool.QueryRow(ctx, q, jobID).Scan(
		&job.ID,
		&job.Priority,
		&class,
		&job.Payload,
		&state,
		&job.Progress,
		&job.Result,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching job %s: %w", jobID, err)
	}
	job.Class = model.JobClass(class)
	job.State = model.JobState(state)
	if errMsg != nil {
		job.Error = *errMsg
	}
	return &job, nil
}

func (r *jobRepo) MarkActive(ctx context.Context, jobID string) error {
	const q = `
		UPDATE jobs
		SET state = $2, updated_at = NOW()
		WHERE id = $1 AND state = $3
	`
	if _, err := r.pool.Exec(ctx, q, jobID, string(model.JobActive), string(model.JobQueued)); err != nil {
		return fmt.Errorf("marking job %s active: %w", jobID, err)
	}
	return nil
}

func (r *jobRepo) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	// GREATEST keeps the reported progress monotonically non-decreasing even
	// if worker updates arrive out of order.
	const q = `
		UPDATE jobs
		SET progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $1 AND state = $3
	`
	if _, err := r.pool.Exec(ctx, q, jobID, progress, string(model.JobActive)); err != nil {
		return fmt.Errorf("updating progress for job %s: %w", jobID, err)
	}
	return nil
}

func (r *jobRepo) Complete(ctx context.Context, jobID string, result []byte) error {
	const q = `
		UPDATE jobs
		SET state = $2, progress = 100, result = $3, updated_at = NOW(), finished_at = NOW()
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, q, jobID, string(model.JobCompleted), result); err != nil {
		return fmt.Errorf("completing job %s: %w", jobID, err)
	}
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, jobID string, reason string) error {
	const q = `
		UPDATE jobs
		SET state = $2, error = $3, updated_at = NOW(), finished_at = NOW()
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, q, jobID, string(model.JobFailed), reason); err != nil {
		return fmt.Errorf("failing job %s: %w", jobID, err)
	}
	return nil
}

func (r *jobRepo) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
		DELETE FROM jobs
		WHERE state IN ($1, $2) AND finished_at < $3
	`
	tag, err := r.pool.Exec(ctx, q, string(model.JobCompleted), string(model.JobFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging finished jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
