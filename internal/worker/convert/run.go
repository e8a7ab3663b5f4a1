package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"app/internal/blob"
	"app/internal/cache"
	"app/internal/config"
	"app/internal/imaging"
	"app/internal/model"
	"app/internal/pgmq"
	"app/internal/queue"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// Deps are the collaborators the conversion worker needs.
type Deps struct {
	Client  *pgmq.Client
	Jobs    repository.JobRepository
	Blobs   blob.Store
	Encoder imaging.Encoder
	Cache   *cache.Cache
	Cfg     *config.Config
}

// Run drains the conversion queues in priority order until ctx is done.
// Each job class has its own concurrency cap; when a class is saturated its
// messages are left unacknowledged and pgmq redelivers them after the
// visibility timeout.
func Run(ctx context.Context, logger zerolog.Logger, deps Deps) error {
	logger = logger.With().Str("worker", "convert").Logger()
	cfg := deps.Cfg
	queues := queue.Names(cfg.QueuePrefix)
	logger.Info().Strs("queues", queues).Msg("Starting conversion worker")

	slots := map[model.JobClass]chan struct{}{
		model.JobClassRAW:      make(chan struct{}, cfg.RawWorkerConcurrency),
		model.JobClassStandard: make(chan struct{}, cfg.StdWorkerConcurrency),
	}
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down conversion worker")
			wg.Wait()
			return nil
		default:
		}

		dispatched := false
		for i, q := range queues {
			// Only the lowest-priority read blocks, so a fresh high-priority
			// message waits at most one poll interval.
			pollSec := 0
			if i == len(queues)-1 {
				pollSec = cfg.QueuePollTimeoutSec
			}
			msgs, err := deps.Client.ReadWithPoll(ctx, q, pollSec, cfg.QueuePollMaxMsg)
			if err != nil {
				logger.Error().Err(err).Str("queue", q).Msg("Error reading conversion queue")
				time.Sleep(time.Second)
				continue
			}

			for _, msg := range msgs {
				var payload model.ConversionJobPayload
				if err := json.Unmarshal(msg.Data, &payload); err != nil {
					logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Failed to unmarshal job payload; deleting message")
					if err := deps.Client.Delete(ctx, q, []int64{msg.ID}); err != nil {
						logger.Error().Err(err).Msg("Error deleting malformed message")
					}
					continue
				}

				class := model.JobClassStandard
				if payload.Params.SourceFormat.IsRAW() {
					class = model.JobClassRAW
				}

				select {
				case slots[class] <- struct{}{}:
					wg.Add(1)
					dispatched = true
					go func(q string, msgID int64, payload model.ConversionJobPayload, class model.JobClass) {
						defer wg.Done()
						defer func() { <-slots[class] }()
						process(ctx, logger, deps, q, msgID, payload)
					}(q, msg.ID, payload, class)
				default:
					// Class saturated; leave the message for redelivery.
					logger.Debug().Str("class", string(class)).Int64("msg_id", msg.ID).Msg("Job class saturated, deferring message")
				}
			}
		}

		// The blocking low-priority read paces the loop when idle; avoid a
		// hot spin when every read returned instantly with nothing usable.
		if !dispatched && cfg.QueuePollTimeoutSec == 0 {
			time.Sleep(time.Second)
		}
	}
}

// jobResult is what a completed job record carries.
type jobResult struct {
	OutputKey string `json:"output_key"`
	SizeBytes int64  `json:"size_bytes"`
	CacheKey  string `json:"cache_key"`
}

func process(ctx context.Context, logger zerolog.Logger, deps Deps, q string, msgID int64, payload model.ConversionJobPayload) {
	jobID := payload.JobID
	logger = logger.With().Str("job_id", jobID).Logger()

	ack := func() {
		if err := deps.Client.Delete(ctx, q, []int64{msgID}); err != nil {
			logger.Error().Err(err).Msg("Error deleting conversion message")
		}
	}
	fail := func(reason string) {
		if err := deps.Jobs.Fail(ctx, jobID, reason); err != nil {
			logger.Error().Err(err).Msg("Failed to record job failure")
		}
		ack() // the queue does not retry; the failure lives on the record
	}

	if err := deps.Jobs.MarkActive(ctx, jobID); err != nil {
		logger.Error().Err(err).Msg("Failed to mark job active; will retry after redelivery")
		return
	}
	progress(ctx, logger, deps, jobID, 10)

	joinTimeout := time.Duration(deps.Cfg.CacheJoinTimeoutSec) * time.Second
	entry, err := deps.Cache.ComputeOrJoin(ctx, payload.Params, func(ctx context.Context) ([]byte, error) {
		input, err := deps.Blobs.Download(ctx, payload.InputURL)
		if err != nil {
			return nil, fmt.Errorf("downloading input: %w", err)
		}
		progress(ctx, logger, deps, jobID, 40)

		out, err := deps.Encoder.Encode(ctx, input, imaging.EncodeOptions{
			OutputFormat: payload.Params.OutputFormat,
			Quality:      payload.Params.Quality,
			Width:        payload.Params.Width,
			Height:       payload.Params.Height,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding: %w", err)
		}
		progress(ctx, logger, deps, jobID, 70)
		return out, nil
	}, joinTimeout)
	if err != nil {
		logger.Error().Err(err).Msg("Conversion failed")
		fail(err.Error())
		return
	}

	contentType := "image/" + string(payload.Params.OutputFormat)
	if err := deps.Blobs.Upload(ctx, payload.OutputKey, entry.Payload, contentType); err != nil {
		logger.Error().Err(err).Msg("Failed to upload conversion output")
		fail("uploading output: " + err.Error())
		return
	}
	progress(ctx, logger, deps, jobID, 90)

	result, err := json.Marshal(jobResult{
		OutputKey: payload.OutputKey,
		SizeBytes: entry.SizeBytes,
		CacheKey:  entry.Key,
	})
	if err != nil {
		fail("marshaling result: " + err.Error())
		return
	}
	if err := deps.Jobs.Complete(ctx, jobID, result); err != nil {
		logger.Error().Err(err).Msg("Failed to record job completion")
		return
	}
	ack()
	logger.Info().Str("output_key", payload.OutputKey).Msg("Conversion job completed")
}

func progress(ctx context.Context, logger zerolog.Logger, deps Deps, jobID string, pct int) {
	if err := deps.Jobs.UpdateProgress(ctx, jobID, pct); err != nil {
		logger.Warn().Err(err).Int("progress", pct).Msg("Failed to update job progress")
	}
}
