package cache

import (
	"context"
	"time"
)

// SharedStore is the cross-instance cache tier plus the in-flight marker
// primitive. AcquireInFlight must be atomic set-if-absent at the storage
// layer: it is what guarantees at most one concurrent computation per
// fingerprint system-wide.
type SharedStore interface {
	// Get returns the entry for key, or (nil, nil) on a miss. Implementations
	// record the access for staleness sweeping.
	Get(ctx context.Context, key string) (*Entry, error)
	// Set writes the entry with the given TTL.
	Set(ctx context.Context, entry *Entry, ttl time.Duration) error
	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error

	// AcquireInFlight atomically sets the in-flight marker for key with a
	// hard expiry and reports whether this caller acquired it. The expiry
	// exists solely to bound damage from a crashed worker.
	AcquireInFlight(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// ReleaseInFlight clears the marker. Called on both success and failure.
	ReleaseInFlight(ctx context.Context, key string) error
	// InFlight reports whether a computation is currently marked for key.
	InFlight(ctx context.Context, key string) (bool, error)

	// SweepStale removes entries whose last access is older than the cutoff
	// and returns how many were reaped.
	SweepStale(ctx context.Context, cutoff time.Time) (int, error)
}
