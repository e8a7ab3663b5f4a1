package model

import (
	"encoding/json"
	"time"
)

// JobState is the lifecycle state of a conversion job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobClass separates cheap standard conversions from expensive RAW ones so
// each class gets its own worker concurrency cap.
type JobClass string

const (
	JobClassStandard JobClass = "standard"
	JobClassRAW      JobClass = "raw"
)

// Job is a queued conversion. Progress is monotonically non-decreasing while
// the job is active. Completed and failed jobs are retained for a bounded
// window, then purged.
type Job struct {
	ID         string          `db:"id" json:"id"`
	Priority   int             `db:"priority" json:"priority"`
	Class      JobClass        `db:"class" json:"class"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	State      JobState        `db:"state" json:"state"`
	Progress   int             `db:"progress" json:"progress"`
	Result     json.RawMessage `db:"result" json:"result,omitempty"`
	Error      string          `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
	FinishedAt *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// JobStatus is the caller-facing view of a job record.
type JobStatus struct {
	ID       string          `json:"id"`
	State    JobState        `json:"state"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ConversionJobPayload is what conversion jobs carry through the queue.
type ConversionJobPayload struct {
	JobID     string           `json:"job_id"`
	Params    ConversionParams `json:"params"`
	InputURL  string           `json:"input_url"`
	OutputKey string           `json:"output_key"`
}
