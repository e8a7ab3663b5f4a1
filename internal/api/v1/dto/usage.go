package dto

// UsageStatsResponseDTO reports an identity's current window usage.
type UsageStatsResponseDTO struct {
	PlanID       string `json:"plan_id"`
	MonthlyUsed  int    `json:"monthly_used"`
	MonthlyLimit int    `json:"monthly_limit"`
	DailyUsed    int    `json:"daily_used"`
	DailyLimit   int    `json:"daily_limit"`
	HourlyUsed   int    `json:"hourly_used"`
	HourlyLimit  int    `json:"hourly_limit"`
}

// UploadURLResponseDTO carries a presigned upload slot for a pending
// conversion input.
type UploadURLResponseDTO struct {
	UploadURL string `json:"upload_url"`
	InputKey  string `json:"input_key"`
}

// DownloadURLResponseDTO carries a presigned download link for a stored
// object.
type DownloadURLResponseDTO struct {
	DownloadURL string `json:"download_url"`
	Key         string `json:"key"`
}
