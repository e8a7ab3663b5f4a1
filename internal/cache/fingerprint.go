package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"app/internal/model"
)

// Fingerprint derives the cache key for a conversion from its semantically
// relevant params. The encoding is a fixed-order canonical string, so equal
// params always hash equally, across processes and restarts. Volatile fields
// (request ids, timestamps, input size) are deliberately absent.
func Fingerprint(p model.ConversionParams) string {
	canonical := fmt.Sprintf("ch=%s|sf=%s|of=%s|q=%d|w=%d|h=%d",
		p.ContentHash, p.SourceFormat, p.OutputFormat, p.Quality, p.Width, p.Height)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
