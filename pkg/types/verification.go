package types

import "fmt"

// Severity classifies the safety impact of a compliance alert.
// The set is closed and ordered: Critical > High > Warning > Info.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// severityRank orders severities for comparison. Higher rank is worse.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// ParseSeverity parses a severity string from configuration. Unknown
// strings are rejected rather than defaulted, so a misconfigured rule
// fails at load time instead of silently downgrading.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if _, ok := severityRank[sev]; !ok {
		return "", fmt.Errorf("unknown severity %q (expected CRITICAL, HIGH, WARNING or INFO)", s)
	}
	return sev, nil
}

// Valid reports whether the severity is a member of the closed set.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether the severity is at or above the given level.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// ComplianceAlert is one verification finding. RuleID is stable across
// runs for audit correlation.
type ComplianceAlert struct {
	RuleID   string   `json:"rule_id"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
}

// VerificationResult is the success payload of a verification call.
// Alerts carries every alert produced, including non-blocking ones.
type VerificationResult struct {
	IsSafeToFile bool              `json:"is_safe_to_file"`
	Score        float64           `json:"score"`
	Alerts       []ComplianceAlert `json:"alerts"`
}

// Result is the two-armed outcome of a verification: exactly one of the
// success payload or a non-empty list of critical alerts is populated.
// The zero value is not a valid Result; construct via Success or Failure.
type Result struct {
	value     *VerificationResult
	criticals []ComplianceAlert
}

// Success wraps a passing verification.
func Success(value VerificationResult) Result {
	return Result{value: &value}
}

// Failure wraps a rejected verification. Requiring the first alert as a
// separate argument makes an empty failure unrepresentable.
func Failure(first ComplianceAlert, rest ...ComplianceAlert) Result {
	criticals := make([]ComplianceAlert, 0, 1+len(rest))
	criticals = append(criticals, first)
	criticals = append(criticals, rest...)
	return Result{criticals: criticals}
}

// IsSuccess reports whether the result carries a success payload.
func (r Result) IsSuccess() bool {
	return r.value != nil
}

// Value returns the success payload. The second return is false for a
// failure result.
func (r Result) Value() (VerificationResult, bool) {
	if r.value == nil {
		return VerificationResult{}, false
	}
	return *r.value, true
}

// CriticalAlerts returns the critical alerts of a failure result. The
// second return is false for a success result.
func (r Result) CriticalAlerts() ([]ComplianceAlert, bool) {
	if r.value != nil {
		return nil, false
	}
	return r.criticals, true
}
