package dto

import (
	"encoding/json"
	"time"

	"app/internal/model"
)

// ConvertRequestDTO is an incoming synchronous conversion request. The input
// image must already be uploaded to the blob store under InputKey.
type ConvertRequestDTO struct {
	ContentHash  string `json:"content_hash" validate:"required"`
	SourceFormat string `json:"source_format" validate:"required"`
	OutputFormat string `json:"output_format" validate:"required"`
	Quality      int    `json:"quality" validate:"required,min=1,max=100"`
	Width        int    `json:"width" validate:"min=0,max=16384"`
	Height       int    `json:"height" validate:"min=0,max=16384"`
	SizeBytes    int64  `json:"size_bytes" validate:"min=0"`
	InputKey     string `json:"input_key" validate:"required"`
}

// Params maps the request onto the domain parameter set.
func (d ConvertRequestDTO) Params() model.ConversionParams {
	return model.ConversionParams{
		ContentHash:  d.ContentHash,
		SourceFormat: model.Format(d.SourceFormat),
		OutputFormat: model.Format(d.OutputFormat),
		Quality:      d.Quality,
		Width:        d.Width,
		Height:       d.Height,
		SizeBytes:    d.SizeBytes,
	}
}

// ConvertResponseDTO is returned for a completed synchronous conversion.
type ConvertResponseDTO struct {
	CacheKey  string    `json:"cache_key"`
	Format    string    `json:"format"`
	SizeBytes int64     `json:"size_bytes"`
	Payload   []byte    `json:"payload"` // base64 in JSON
	CreatedAt time.Time `json:"created_at"`
}

// SubmitJobRequestDTO is an incoming asynchronous conversion request.
type SubmitJobRequestDTO struct {
	ConvertRequestDTO
	OutputKey string `json:"output_key" validate:"required"`
}

// SubmitJobResponseDTO acknowledges an enqueued job.
type SubmitJobResponseDTO struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

// JobStatusResponseDTO reports where an asynchronous job stands.
type JobStatusResponseDTO struct {
	JobID    string          `json:"job_id"`
	State    string          `json:"state"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// QuotaDeniedResponseDTO is returned when a plan window or size limit blocks
// the operation.
type QuotaDeniedResponseDTO struct {
	PlanID    string `json:"plan_id"`
	LimitType string `json:"limit_type,omitempty"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message,omitempty"`
}
