package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, shared SharedStore) *Cache {
	t.Helper()
	local, err := NewLocalTier(64)
	require.NoError(t, err)
	return New(local, shared, Options{
		BaseTTL:          time.Hour,
		InFlightTTL:      time.Minute,
		JoinPollInterval: 2 * time.Millisecond,
	}, zerolog.Nop())
}

func testParams(hash string) model.ConversionParams {
	return model.ConversionParams{
		ContentHash:  hash,
		SourceFormat: model.FormatJPEG,
		OutputFormat: model.FormatWebP,
		Quality:      80,
		Width:        640,
		Height:       480,
	}
}

func TestComputeOrJoinSingleFlight(t *testing.T) {
	c := newTestCache(t, NewMemoryStore())
	params := testParams("deadbeef")

	var calls int32
	fn := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond) // keep the computation in flight
		return []byte("converted"), nil
	}

	const k = 50
	results := make([][]byte, k)
	errs := make([]error, k)
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := c.ComputeOrJoin(context.Background(), params, fn, 5*time.Second)
			errs[i] = err
			if e != nil {
				results[i] = e.Payload
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "computeFn must run exactly once")
	for i := 0; i < k; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("converted"), results[i])
	}
}

func TestComputeOrJoinHitSkipsCompute(t *testing.T) {
	c := newTestCache(t, NewMemoryStore())
	params := testParams("cafe")

	_, err := c.ComputeOrJoin(context.Background(), params, func(context.Context) ([]byte, error) {
		return []byte("first"), nil
	}, time.Second)
	require.NoError(t, err)

	e, err := c.ComputeOrJoin(context.Background(), params, func(context.Context) ([]byte, error) {
		t.Fatal("computeFn must not run on a cache hit")
		return nil, nil
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), e.Payload)
}

func TestComputeOrJoinFailureNotCachedAndMarkerCleared(t *testing.T) {
	shared := NewMemoryStore()
	c := newTestCache(t, shared)
	params := testParams("badinput")

	boom := errors.New("decode error")
	_, err := c.ComputeOrJoin(context.Background(), params, func(context.Context) ([]byte, error) {
		return nil, boom
	}, time.Second)
	var cf *ComputeFailedError
	require.ErrorAs(t, err, &cf)
	assert.ErrorIs(t, err, boom)

	key := Fingerprint(params)
	inflight, err := shared.InFlight(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, inflight, "marker must be cleared on failure")

	// A later caller retries and succeeds; the failure was never cached.
	e, err := c.ComputeOrJoin(context.Background(), params, func(context.Context) ([]byte, error) {
		return []byte("retry ok"), nil
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("retry ok"), e.Payload)
}

func TestJoinTimedOutIsNotConfirmed(t *testing.T) {
	shared := NewMemoryStore()
	c := newTestCache(t, shared)
	params := testParams("slowpoke")
	key := Fingerprint(params)

	// Simulate another instance holding the marker with no result published.
	acquired, err := shared.AcquireInFlight(context.Background(), key, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = c.ComputeOrJoin(context.Background(), params, func(context.Context) ([]byte, error) {
		t.Fatal("joined caller must not start its own computation")
		return nil, nil
	}, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrComputeNotConfirmed)
}

func TestGetPromotesSharedHitToLocalTier(t *testing.T) {
	shared := NewMemoryStore()
	c := newTestCache(t, shared)

	entry := &Entry{
		Key:       "somekey",
		Payload:   []byte("payload"),
		Format:    model.FormatWebP,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, shared.Set(context.Background(), entry, time.Hour))

	_, ok := c.local.Get("somekey")
	require.False(t, ok)

	got, ok := c.Get(context.Background(), "somekey")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got.Payload)

	_, ok = c.local.Get("somekey")
	assert.True(t, ok, "shared hit must be promoted")
}

func TestLocalTierLRUEviction(t *testing.T) {
	local, err := NewLocalTier(2)
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour)

	local.Put(&Entry{Key: "a", ExpiresAt: exp})
	local.Put(&Entry{Key: "b", ExpiresAt: exp})
	local.Get("a") // "b" is now least recently used
	local.Put(&Entry{Key: "c", ExpiresAt: exp})

	_, okA := local.Get("a")
	_, okB := local.Get("b")
	_, okC := local.Get("c")
	assert.True(t, okA)
	assert.False(t, okB, "LRU entry must be evicted at capacity")
	assert.True(t, okC)
	assert.Equal(t, 2, local.Len())
}

func TestTTLOrderingByFormatClass(t *testing.T) {
	base := time.Hour
	raw := TTLFor(model.FormatRAW, base)
	avif := TTLFor(model.FormatAVIF, base)
	webp := TTLFor(model.FormatWebP, base)
	jpeg := TTLFor(model.FormatJPEG, base)

	assert.Greater(t, raw, avif)
	assert.Greater(t, avif, webp)
	assert.Greater(t, webp, jpeg)
}

func TestSweepStaleReapsUnusedEntries(t *testing.T) {
	shared := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, shared.Set(ctx, &Entry{Key: "old"}, time.Hour))
	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()
	require.NoError(t, shared.Set(ctx, &Entry{Key: "fresh"}, time.Hour))

	reaped, err := shared.SweepStale(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	e, err := shared.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, e)
	e, err = shared.Get(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, e)
}
