package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/verimed/scribe-verify/internal/protocol"
	"github.com/verimed/scribe-verify/pkg/logger"
	"github.com/verimed/scribe-verify/pkg/types"
)

// Built-in invariant rule identifiers. These are stable across runs for
// audit correlation, like protocol rule IDs.
const (
	RuleIDDateMismatch     = "INVARIANT_DATE_MISMATCH"
	RuleIDProtocolAdhesion = "PROTOCOL_ADHERENCE_MISSING"
	RuleIDPIILeak          = "SAFETY_PII_LEAK"
	RuleIDSSNLeak          = "SAFETY_SSN_LEAK"
)

// Trust score thresholds. The score is deliberately insensitive to alert
// count: two HIGH alerts score the same as one. Auditable over clever.
const (
	scoreClean       = 1.0
	scoreHighAlerts  = 0.7
	scoreMinorAlerts = 0.9
)

var (
	// Medicare number shape: 10 digits, optionally space-separated
	// (e.g. 2222 33333 1).
	medicarePattern = regexp.MustCompile(`\b\d{4}[ ]?\d{5}[ ]?\d{1}\b`)

	// US SSN shape: 123-45-6789.
	ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// Engine is the deterministic verification engine for AI-generated
// clinical documentation. It treats every externally-sourced value as
// unverified until checked against EMR ground truth. A constructed
// Engine is read-only and safe for unlimited concurrent Verify calls.
type Engine struct {
	registry *protocol.Registry
	logger   *logger.Logger
	now      func() time.Time
}

// New creates an engine. The registry may be nil, in which case only the
// built-in invariant checks run.
func New(registry *protocol.Registry, log *logger.Logger) *Engine {
	return &Engine{
		registry: registry,
		logger:   log,
		now:      time.Now,
	}
}

// Verify checks an AI-generated output against EMR ground truth and the
// configured protocol rules. It is a single-pass, side-effect-free
// function over immutable inputs: identical inputs yield identical
// results. Any critical alert rejects the document; the failure carries
// every critical alert so the caller sees all reasons in one pass.
func (e *Engine) Verify(patient types.PatientProfile, context types.EMRContext, aiOutput types.AIGeneratedOutput) types.Result {
	var alerts []types.ComplianceAlert

	// Zero-trust date verification: a hallucinated date is the canonical
	// failure mode this engine exists to catch.
	alerts = append(alerts, e.verifyDateIntegrity(context, aiOutput)...)

	// Administrative protocol enforcement baked into the engine.
	alerts = append(alerts, e.verifyClinicalProtocols(aiOutput)...)

	// PII firewall over the free text.
	alerts = append(alerts, e.verifyDataSafety(aiOutput)...)

	// Configurable medical protocol checks.
	if e.registry != nil {
		extraction := ToExtraction(aiOutput)
		alerts = append(alerts, e.registry.CheckAll(patient, extraction)...)
	}

	var criticals []types.ComplianceAlert
	for _, alert := range alerts {
		if alert.Severity == types.SeverityCritical {
			criticals = append(criticals, alert)
		}
	}

	if len(criticals) > 0 {
		e.logger.WithFields(map[string]interface{}{
			"patient_id":     patient.PatientID,
			"visit_id":       context.VisitID,
			"critical_count": len(criticals),
		}).Warn("Verification rejected with critical alerts")
		return types.Failure(criticals[0], criticals[1:]...)
	}

	score := scoreClean
	switch {
	case hasSeverity(alerts, types.SeverityHigh):
		score = scoreHighAlerts
	case len(alerts) > 0:
		score = scoreMinorAlerts
	}

	e.logger.WithFields(map[string]interface{}{
		"patient_id":  patient.PatientID,
		"visit_id":    context.VisitID,
		"score":       score,
		"alert_count": len(alerts),
	}).Debug("Verification passed")

	return types.Success(types.VerificationResult{
		IsSafeToFile: true,
		Score:        score,
		Alerts:       alerts,
	})
}

// ToExtraction converts an AI output into the structured shape the
// protocol registry evaluates. The mapping is pure and lossless for the
// fields the checkers read.
func ToExtraction(aiOutput types.AIGeneratedOutput) types.StructuredExtraction {
	diagnoses := make([]types.ExtractedDiagnosis, 0, len(aiOutput.ExtractedDiagnoses))
	for _, text := range aiOutput.ExtractedDiagnoses {
		diagnoses = append(diagnoses, types.ExtractedDiagnosis{Text: text})
	}
	return types.StructuredExtraction{
		VisitType:           aiOutput.VisitType,
		Medications:         aiOutput.ExtractedMedications,
		Diagnoses:           diagnoses,
		TemporalExpressions: aiOutput.TemporalExpressions,
		VitalSigns:          aiOutput.VitalSigns,
	}
}

// verifyDateIntegrity checks every AI-asserted date against the clinical
// window [admission, discharge]. An open discharge bounds the window by
// the current day. Dates have zero tolerance: any date outside the
// window is critical.
func (e *Engine) verifyDateIntegrity(context types.EMRContext, aiOutput types.AIGeneratedOutput) []types.ComplianceAlert {
	var alerts []types.ComplianceAlert

	windowStart := dateOnly(context.AdmissionDate)
	var windowEnd time.Time
	if context.DischargeDate != nil {
		windowEnd = dateOnly(*context.DischargeDate)
	} else {
		windowEnd = dateOnly(e.now())
	}

	for _, extracted := range aiOutput.ExtractedDates {
		day := dateOnly(extracted)
		if day.Before(windowStart) || day.After(windowEnd) {
			alerts = append(alerts, types.ComplianceAlert{
				RuleID: RuleIDDateMismatch,
				Message: fmt.Sprintf("Extracted date %s is outside the allowed EMR context window.",
					day.Format("2006-01-02")),
				Severity: types.SeverityCritical,
				Field:    "extracted_dates",
			})
		}
	}
	return alerts
}

// verifyClinicalProtocols enforces the administrative rule that sepsis
// documentation requires explicit antibiotic confirmation.
func (e *Engine) verifyClinicalProtocols(aiOutput types.AIGeneratedOutput) []types.ComplianceAlert {
	isSepsisCase := false
	for _, diagnosis := range aiOutput.ExtractedDiagnoses {
		if strings.Contains(strings.ToLower(diagnosis), "sepsis") {
			isSepsisCase = true
			break
		}
	}

	mentionsAntibiotics := strings.Contains(strings.ToLower(aiOutput.SummaryText), "antibiotic")

	if isSepsisCase && !mentionsAntibiotics {
		return []types.ComplianceAlert{{
			RuleID:   RuleIDProtocolAdhesion,
			Message:  "Clinical Protocol: Sepsis diagnosis requires explicit antibiotic documentation.",
			Severity: types.SeverityHigh,
			Field:    "summary_text",
		}}
	}
	return nil
}

// verifyDataSafety detects identifier shapes that should never appear in
// an administrative summary.
func (e *Engine) verifyDataSafety(aiOutput types.AIGeneratedOutput) []types.ComplianceAlert {
	var alerts []types.ComplianceAlert

	if medicarePattern.MatchString(aiOutput.SummaryText) {
		alerts = append(alerts, types.ComplianceAlert{
			RuleID:   RuleIDPIILeak,
			Message:  "Administrative Safety: Potential PII (Medicare Number pattern) detected in summary.",
			Severity: types.SeverityCritical,
			Field:    "summary_text",
		})
	}

	if ssnPattern.MatchString(aiOutput.SummaryText) {
		alerts = append(alerts, types.ComplianceAlert{
			RuleID:   RuleIDSSNLeak,
			Message:  "Administrative Safety: Potential PII (SSN pattern) detected in summary.",
			Severity: types.SeverityCritical,
			Field:    "summary_text",
		})
	}
	return alerts
}

func hasSeverity(alerts []types.ComplianceAlert, severity types.Severity) bool {
	for _, alert := range alerts {
		if alert.Severity == severity {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
