package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/pgmq"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// numPriorities is the number of tier-derived priority levels; lower is
// served first.
const numPriorities = 3

// Name returns the pgmq queue name for a priority level.
func Name(prefix string, priority int) string {
	return fmt.Sprintf("%s_p%d", prefix, priority)
}

// Names returns all queue names in drain order (highest priority first).
func Names(prefix string) []string {
	names := make([]string, 0, numPriorities)
	for p := 0; p < numPriorities; p++ {
		names = append(names, Name(prefix, p))
	}
	return names
}

// Dispatcher submits conversion jobs and exposes their status. The queue
// itself never retries: a failed job surfaces its reason on the job record
// and stays there until the retention sweep purges it.
type Dispatcher struct {
	client *pgmq.Client
	jobs   repository.JobRepository
	prefix string
	logger zerolog.Logger
}

// NewDispatcher creates a Dispatcher over the pgmq client and job store.
func NewDispatcher(client *pgmq.Client, jobs repository.JobRepository, prefix string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		jobs:   jobs,
		prefix: prefix,
		logger: logger.With().Str("service", "JobDispatcher").Logger(),
	}
}

// Submit creates the job record and enqueues it on the tier's priority
// queue. RAW sources go to the RAW job class, everything else to standard.
func (d *Dispatcher) Submit(ctx context.Context, params model.ConversionParams, inputKey, outputKey string, tier model.Tier) (string, error) {
	jobID := uuid.NewString()
	class := model.JobClassStandard
	if params.SourceFormat.IsRAW() {
		class = model.JobClassRAW
	}

	payload, err := json.Marshal(model.ConversionJobPayload{
		JobID:     jobID,
		Params:    params,
		InputURL:  inputKey,
		OutputKey: outputKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling job payload: %w", err)
	}

	job := &model.Job{
		ID:       jobID,
		Priority: tier.Priority(),
		Class:    class,
		Payload:  payload,
		State:    model.JobQueued,
	}
	if err := d.jobs.Create(ctx, job); err != nil {
		return "", err
	}
	if err := d.client.Send(ctx, Name(d.prefix, job.Priority), payload); err != nil {
		// The record exists but the message does not; fail the job so the
		// caller is not left polling a zombie.
		if failErr := d.jobs.Fail(ctx, jobID, "enqueue failed: "+err.Error()); failErr != nil {
			d.logger.Error().Err(failErr).Str("job_id", jobID).Msg("Failed to mark unenqueued job as failed")
		}
		return "", fmt.Errorf("enqueueing job %s: %w", jobID, err)
	}

	d.logger.Info().Str("job_id", jobID).Str("class", string(class)).Int("priority", job.Priority).Msg("Job submitted")
	return jobID, nil
}

// GetStatus returns the caller-facing view of a job.
func (d *Dispatcher) GetStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	job, err := d.jobs.GetByID(ctx, jobID)
	if err != nil {
		return model.JobStatus{}, err
	}
	return model.JobStatus{
		ID:       job.ID,
		State:    job.State,
		Progress: job.Progress,
		Result:   job.Result,
		Error:    job.Error,
	}, nil
}

// RunRetentionSweeper purges completed and failed jobs older than retention,
// every interval, until ctx is done.
func (d *Dispatcher) RunRetentionSweeper(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := d.jobs.PurgeFinishedBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				d.logger.Error().Err(err).Msg("Job retention sweep failed")
				continue
			}
			if purged > 0 {
				d.logger.Info().Int64("purged", purged).Msg("Purged finished jobs past retention")
			}
		}
	}
}
