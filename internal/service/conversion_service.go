package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/cache"
	"app/internal/model"
	"app/internal/queue"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ConversionService fronts the result cache for synchronous conversions and
// the dispatch queue for asynchronous (RAW) ones.
type ConversionService interface {
	// GetCachedOrCompute returns the cached result for params or computes it
	// under the single-flight guarantee.
	GetCachedOrCompute(ctx context.Context, params model.ConversionParams, fn cache.ComputeFn) (*cache.Entry, error)
	// SubmitJob enqueues an asynchronous conversion at the tier's priority.
	SubmitJob(ctx context.Context, params model.ConversionParams, inputKey, outputKey string, tier model.Tier) (string, error)
	// GetJobStatus returns the job's state, progress and result or error.
	GetJobStatus(ctx context.Context, jobID string) (model.JobStatus, error)
}

type conversionService struct {
	cache       *cache.Cache
	dispatcher  *queue.Dispatcher
	validate    *validator.Validate
	joinTimeout time.Duration
	logger      zerolog.Logger
}

// NewConversionService creates a ConversionService.
func NewConversionService(
	resultCache *cache.Cache,
	dispatcher *queue.Dispatcher,
	validate *validator.Validate,
	joinTimeout time.Duration,
	logger zerolog.Logger,
) ConversionService {
	return &conversionService{
		cache:       resultCache,
		dispatcher:  dispatcher,
		validate:    validate,
		joinTimeout: joinTimeout,
		logger:      logger.With().Str("service", "ConversionService").Logger(),
	}
}

func (s *conversionService) GetCachedOrCompute(ctx context.Context, params model.ConversionParams, fn cache.ComputeFn) (*cache.Entry, error) {
	if err := s.validate.Struct(&params); err != nil {
		return nil, fmt.Errorf("invalid conversion params: %w", err)
	}
	return s.cache.ComputeOrJoin(ctx, params, fn, s.joinTimeout)
}

func (s *conversionService) SubmitJob(ctx context.Context, params model.ConversionParams, inputKey, outputKey string, tier model.Tier) (string, error) {
	if err := s.validate.Struct(&params); err != nil {
		return "", fmt.Errorf("invalid conversion params: %w", err)
	}
	if inputKey == "" || outputKey == "" {
		return "", fmt.Errorf("input and output keys are required")
	}
	return s.dispatcher.Submit(ctx, params, inputKey, outputKey, tier)
}

func (s *conversionService) GetJobStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	return s.dispatcher.GetStatus(ctx, jobID)
}
