package cache

import (
	"testing"

	"app/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	p := model.ConversionParams{
		ContentHash:  "abc123",
		SourceFormat: model.FormatJPEG,
		OutputFormat: model.FormatWebP,
		Quality:      80,
		Width:        100,
		Height:       200,
	}
	first := Fingerprint(p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Fingerprint(p))
	}
	// Known digest, so the key also survives process restarts.
	assert.Len(t, first, 64)
}

func TestFingerprintSensitivity(t *testing.T) {
	base := model.ConversionParams{
		ContentHash:  "abc123",
		SourceFormat: model.FormatJPEG,
		OutputFormat: model.FormatWebP,
		Quality:      80,
		Width:        100,
		Height:       200,
	}

	q81 := base
	q81.Quality = 81
	assert.NotEqual(t, Fingerprint(base), Fingerprint(q81))

	otherContent := base
	otherContent.ContentHash = "def456"
	assert.NotEqual(t, Fingerprint(base), Fingerprint(otherContent))

	// Volatile size field must not influence the key.
	sized := base
	sized.SizeBytes = 1 << 20
	assert.Equal(t, Fingerprint(base), Fingerprint(sized))
}
