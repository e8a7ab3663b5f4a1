package model

// Format identifies an image format handled by the platform.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
	FormatRAW  Format = "raw"
)

// IsRAW reports whether the format belongs to the expensive RAW job class.
func (f Format) IsRAW() bool {
	return f == FormatRAW
}

// ConversionParams are the semantically relevant inputs of a conversion.
// Volatile fields (request ids, timestamps) deliberately have no place here:
// these params alone determine the cache fingerprint.
type ConversionParams struct {
	ContentHash  string `json:"content_hash" validate:"required"`
	SourceFormat Format `json:"source_format" validate:"required,oneof=jpeg png webp avif raw"`
	OutputFormat Format `json:"output_format" validate:"required,oneof=jpeg png webp avif"`
	Quality      int    `json:"quality" validate:"required,min=1,max=100"`
	Width        int    `json:"width" validate:"min=0,max=16384"`
	Height       int    `json:"height" validate:"min=0,max=16384"`
	SizeBytes    int64  `json:"size_bytes" validate:"min=0"`
}
