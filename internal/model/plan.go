package model

// PlanLimits holds the operation ceilings for a plan. A zero value means the
// window is unlimited.
type PlanLimits struct {
	MonthlyOperations    int    `json:"monthly_operations"`
	MaxOperationsPerDay  int    `json:"max_operations_per_day"`
	MaxOperationsPerHour int    `json:"max_operations_per_hour"`
	ResetPolicy          string `json:"reset_policy"`
	MaxFileSizeBytes     int64  `json:"max_file_size_bytes"`
}

// Plan is a static pricing tier. Plans are immutable at runtime and looked
// up by ID.
type Plan struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Tier        Tier       `json:"tier"`
	Limits      PlanLimits `json:"limits"`
}

// Tier orders plans for queue priority; lower numeric priority is served
// first.
type Tier string

const (
	TierEnterprise Tier = "enterprise"
	TierPro        Tier = "pro"
	TierFree       Tier = "free"
	TierAnonymous  Tier = "anonymous"
)

// Priority maps the tier to its static queue priority.
func (t Tier) Priority() int {
	switch t {
	case TierEnterprise:
		return 0
	case TierPro:
		return 1
	default:
		return 2
	}
}
