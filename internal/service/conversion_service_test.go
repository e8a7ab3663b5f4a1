package service

import (
	"context"
	"testing"
	"time"

	"app/internal/cache"
	"app/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversionTestService(t *testing.T) ConversionService {
	t.Helper()
	local, err := cache.NewLocalTier(16)
	require.NoError(t, err)
	resultCache := cache.New(local, cache.NewMemoryStore(), cache.Options{}, zerolog.Nop())
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewConversionService(resultCache, nil, validate, 5*time.Second, zerolog.Nop())
}

func validParams() model.ConversionParams {
	return model.ConversionParams{
		ContentHash:  "abc123",
		SourceFormat: model.FormatPNG,
		OutputFormat: model.FormatWebP,
		Quality:      80,
		SizeBytes:    1024,
	}
}

func TestGetCachedOrComputeValidatesParams(t *testing.T) {
	svc := newConversionTestService(t)

	params := validParams()
	params.Quality = 101
	_, err := svc.GetCachedOrCompute(context.Background(), params, func(context.Context) ([]byte, error) {
		t.Fatal("compute must not run for invalid params")
		return nil, nil
	})
	assert.Error(t, err)
}

func TestGetCachedOrComputeComputesOnceThenHits(t *testing.T) {
	svc := newConversionTestService(t)
	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("webp-bytes"), nil
	}

	entry, err := svc.GetCachedOrCompute(context.Background(), validParams(), fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("webp-bytes"), entry.Payload)

	entry, err = svc.GetCachedOrCompute(context.Background(), validParams(), fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("webp-bytes"), entry.Payload)
	assert.Equal(t, 1, calls)
}

func TestSubmitJobRequiresKeys(t *testing.T) {
	svc := newConversionTestService(t)
	_, err := svc.SubmitJob(context.Background(), validParams(), "", "out/key", model.TierPro)
	assert.Error(t, err)
	_, err = svc.SubmitJob(context.Background(), validParams(), "in/key", "", model.TierPro)
	assert.Error(t, err)
}
