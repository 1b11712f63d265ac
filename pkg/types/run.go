package types

import "time"

// VerificationRun is one persisted verification outcome, stored for
// review history and audit correlation.
type VerificationRun struct {
	ID              string            `json:"id" db:"id"`
	PatientID       string            `json:"patient_id" db:"patient_id"`
	VisitID         string            `json:"visit_id" db:"visit_id"`
	RequestedBy     string            `json:"requested_by" db:"requested_by"`
	IsSafeToFile    bool              `json:"is_safe_to_file" db:"is_safe_to_file"`
	Score           float64           `json:"score" db:"score"`
	AlertCount      int               `json:"alert_count" db:"alert_count"`
	CriticalCount   int               `json:"critical_count" db:"critical_count"`
	ProtocolVersion string            `json:"protocol_version,omitempty" db:"protocol_version"`
	Alerts          []ComplianceAlert `json:"alerts"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

// VerificationRunFilters represents filters for verification run queries
type VerificationRunFilters struct {
	PatientID     string    `json:"patient_id,omitempty"`
	VisitID       string    `json:"visit_id,omitempty"`
	SafeToFile    *bool     `json:"safe_to_file,omitempty"`
	CreatedAfter  time.Time `json:"created_after,omitempty"`
	CreatedBefore time.Time `json:"created_before,omitempty"`
	Limit         int       `json:"limit,omitempty"`
	Offset        int       `json:"offset,omitempty"`
}
