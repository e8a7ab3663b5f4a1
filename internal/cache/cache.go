package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/rs/zerolog"
)

// ErrComputeNotConfirmed is returned when a joined caller's wait ends with
// neither a cache entry nor a live in-flight marker. The computation may
// have failed; the caller decides whether to retry ComputeOrJoin, it must
// not assume success.
var ErrComputeNotConfirmed = errors.New("compute_not_confirmed")

// ComputeFailedError wraps a failure from the compute callback. Failures are
// never cached.
type ComputeFailedError struct {
	Cause error
}

func (e *ComputeFailedError) Error() string {
	return fmt.Sprintf("compute failed: %v", e.Cause)
}

func (e *ComputeFailedError) Unwrap() error {
	return e.Cause
}

// Options bound the cache's behavior.
type Options struct {
	// BaseTTL is the retention for the cheapest format class; other classes
	// scale it up (see TTLFor).
	BaseTTL time.Duration
	// InFlightTTL is the hard expiry on in-flight markers. It only bounds
	// damage from a crashed worker, it is not the failure-signaling path.
	InFlightTTL time.Duration
	// JoinPollInterval is how often joined callers re-check for a result.
	JoinPollInterval time.Duration
}

func (o *Options) fillDefaults() {
	if o.BaseTTL <= 0 {
		o.BaseTTL = time.Hour
	}
	if o.InFlightTTL <= 0 {
		o.InFlightTTL = 2 * time.Minute
	}
	if o.JoinPollInterval <= 0 {
		o.JoinPollInterval = 250 * time.Millisecond
	}
}

// Cache is the tiered conversion-result cache with in-flight deduplication.
// Lookups hit the local LRU tier first, then the shared tier; shared hits
// are promoted into the local tier.
type Cache struct {
	local  *LocalTier
	shared SharedStore
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Cache over the given tiers.
func New(local *LocalTier, shared SharedStore, opts Options, logger zerolog.Logger) *Cache {
	opts.fillDefaults()
	return &Cache{
		local:  local,
		shared: shared,
		opts:   opts,
		logger: logger.With().Str("service", "ResultCache").Logger(),
		now:    time.Now,
	}
}

// Get consults the local tier, then the shared tier. Shared-tier errors are
// logged and treated as a miss: the result matters more than cache
// efficiency.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool) {
	if e, ok := c.local.Get(key); ok {
		return e, true
	}
	e, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Shared cache unavailable; treating as miss")
		return nil, false
	}
	if e == nil {
		return nil, false
	}
	c.local.Put(e) // promotion
	return e, true
}

// ComputeFn produces the conversion result payload on a cache miss.
type ComputeFn func(ctx context.Context) ([]byte, error)

// ComputeOrJoin returns the cached result for params, joins an in-flight
// computation for the same fingerprint, or computes the result itself. At
// most one concurrent computation runs per fingerprint system-wide; joined
// callers wait up to joinTimeout.
func (c *Cache) ComputeOrJoin(ctx context.Context, params model.ConversionParams, fn ComputeFn, joinTimeout time.Duration) (*Entry, error) {
	key := Fingerprint(params)

	if e, ok := c.Get(ctx, key); ok {
		return e, nil
	}

	acquired, err := c.shared.AcquireInFlight(ctx, key, c.opts.InFlightTTL)
	if err != nil {
		// The marker store is down; computing without the single-flight
		// guarantee beats refusing the request.
		c.logger.Warn().Err(err).Str("key", key).Msg("In-flight marker unavailable; computing without dedup")
		return c.compute(ctx, key, params, fn, false)
	}
	if acquired {
		// Re-check after winning the marker: a previous winner may have
		// published and released between our miss and our acquisition.
		if e, ok := c.Get(ctx, key); ok {
			if err := c.shared.ReleaseInFlight(ctx, key); err != nil {
				c.logger.Error().Err(err).Str("key", key).Msg("Failed to release in-flight marker")
			}
			return e, nil
		}
		return c.compute(ctx, key, params, fn, true)
	}
	return c.join(ctx, key, joinTimeout)
}

func (c *Cache) compute(ctx context.Context, key string, params model.ConversionParams, fn ComputeFn, marked bool) (*Entry, error) {
	release := func() {
		if !marked {
			return
		}
		// Best effort with a fresh context: the marker must not outlive the
		// computation just because the request context was canceled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.shared.ReleaseInFlight(releaseCtx, key); err != nil {
			c.logger.Error().Err(err).Str("key", key).Msg("Failed to release in-flight marker")
		}
	}

	payload, err := fn(ctx)
	if err != nil {
		release()
		return nil, &ComputeFailedError{Cause: err}
	}

	now := c.now().UTC()
	entry := &Entry{
		Key:          key,
		Payload:      payload,
		SizeBytes:    int64(len(payload)),
		Format:       ttlFormat(params),
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  1,
		ExpiresAt:    now.Add(TTLFor(ttlFormat(params), c.opts.BaseTTL)),
	}
	if err := c.shared.Set(ctx, entry, TTLFor(entry.Format, c.opts.BaseTTL)); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to populate shared cache tier")
	}
	c.local.Put(entry)
	release()
	return entry, nil
}

// join polls until the winning computation publishes an entry, the marker
// disappears without one, or the timeout lapses.
func (c *Cache) join(ctx context.Context, key string, timeout time.Duration) (*Entry, error) {
	deadline := c.now().Add(timeout)
	ticker := time.NewTicker(c.opts.JoinPollInterval)
	defer ticker.Stop()

	for {
		if e, ok := c.Get(ctx, key); ok {
			return e, nil
		}
		inflight, err := c.shared.InFlight(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("polling in-flight marker %s: %w", key, err)
		}
		if !inflight {
			// Marker gone, still no entry: the computation failed or its
			// marker expired. Not a success signal either way.
			return nil, ErrComputeNotConfirmed
		}
		if !c.now().Before(deadline) {
			return nil, ErrComputeNotConfirmed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Invalidate drops an entry from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.local.Remove(key)
	return c.shared.Delete(ctx, key)
}

// Flush clears the local tier. Called at shutdown.
func (c *Cache) Flush() {
	c.local.Flush()
}

// RunSweeper reaps shared-tier entries unused for longer than staleAfter,
// every interval, until ctx is done.
func (c *Cache) RunSweeper(ctx context.Context, interval, staleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := c.now().Add(-staleAfter)
			reaped, err := c.shared.SweepStale(ctx, cutoff)
			if err != nil {
				c.logger.Error().Err(err).Msg("Shared cache sweep failed")
				continue
			}
			if reaped > 0 {
				c.logger.Info().Int("reaped", reaped).Msg("Swept stale shared cache entries")
			}
		}
	}
}
