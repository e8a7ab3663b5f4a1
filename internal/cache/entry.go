package cache

import (
	"time"

	"app/internal/model"
)

// Entry is an immutable cached conversion result. New params always produce
// a new key; an entry's payload is never rewritten in place.
type Entry struct {
	Key          string       `json:"key"`
	Payload      []byte       `json:"payload"`
	SizeBytes    int64        `json:"size_bytes"`
	Format       model.Format `json:"format"`
	CreatedAt    time.Time    `json:"created_at"`
	LastAccessed time.Time    `json:"last_accessed"`
	AccessCount  int64        `json:"access_count"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// ttlMultiplier orders retention by how expensive the result was to produce:
// RAW decodes dominate AVIF encodes, which dominate WebP, which dominate
// JPEG/PNG.
func ttlMultiplier(format model.Format) time.Duration {
	switch format {
	case model.FormatRAW:
		return 12
	case model.FormatAVIF:
		return 6
	case model.FormatWebP:
		return 3
	default:
		return 1
	}
}

// TTLFor returns the retention for a result of the given format class under
// the configured base TTL.
func TTLFor(format model.Format, base time.Duration) time.Duration {
	return base * ttlMultiplier(format)
}

// ttlFormat picks the format class that prices a conversion: a RAW source
// dominates whatever the output is.
func ttlFormat(p model.ConversionParams) model.Format {
	if p.SourceFormat.IsRAW() {
		return model.FormatRAW
	}
	return p.OutputFormat
}
