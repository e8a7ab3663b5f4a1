package model

import "time"

// OperationResult is the structured outcome of a limit check. Quota denials
// travel through this result, not through error values.
type OperationResult struct {
	Allowed   bool   `json:"allowed"`
	PlanID    string `json:"plan_id"`
	LimitType string `json:"limit_type,omitempty"` // monthly, daily or hourly
	Remaining int    `json:"remaining"`
	Message   string `json:"message,omitempty"`
}

// AuditRecord is one row of the append-only operation log.
type AuditRecord struct {
	At          time.Time `db:"at" json:"at"`
	IdentityKey string    `db:"identity_key" json:"identity_key"`
	Scope       string    `db:"scope" json:"scope"`
	PlanID      string    `db:"plan_id" json:"plan_id"`
	Format      Format    `db:"format" json:"format"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	Outcome     string    `db:"outcome" json:"outcome"`
}
