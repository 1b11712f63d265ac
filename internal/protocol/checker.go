package protocol

import (
	"strings"

	"github.com/verimed/scribe-verify/pkg/types"
)

// Checker evaluates the rules of one checker type against patient and
// extraction data. Implementations are stateless between calls and never
// fail for well-formed input; an unconfigured checker yields no alerts.
type Checker interface {
	// Name returns the stable checker name.
	Name() string

	// Check evaluates every rule of this checker's type and returns the
	// alerts for the rules that fired, in rule order.
	Check(patient types.PatientProfile, extraction types.StructuredExtraction) []types.ComplianceAlert
}

// newAlert builds the alert for a fired rule. The message is taken
// verbatim from the rule; placeholder substitution happens before this.
func newAlert(rule Rule, message string) types.ComplianceAlert {
	return types.ComplianceAlert{
		RuleID:   rule.ID(),
		Message:  message,
		Severity: rule.Severity,
		Field:    "extraction",
	}
}

// DrugInteractionChecker fires a rule when both its trigger and conflict
// medication sets intersect the combined medication list. The roles are
// symmetric: a pre-existing co-prescription fires the same as a newly
// proposed one.
type DrugInteractionChecker struct {
	rules   []Rule
	matcher MedicationMatcher
}

// NewDrugInteractionChecker builds the checker from its rule list.
func NewDrugInteractionChecker(rules []Rule) *DrugInteractionChecker {
	return &DrugInteractionChecker{rules: rules}
}

// Name implements Checker.
func (c *DrugInteractionChecker) Name() string {
	return string(CheckerDrugInteractions)
}

// Check implements Checker.
func (c *DrugInteractionChecker) Check(patient types.PatientProfile, extraction types.StructuredExtraction) []types.ComplianceAlert {
	var alerts []types.ComplianceAlert
	for _, rule := range c.rules {
		pattern := rule.DrugInteraction
		if pattern == nil {
			continue
		}
		hasTrigger := c.matcher.Matches(patient, extraction, pattern.TriggerMedications)
		hasConflict := c.matcher.Matches(patient, extraction, pattern.ConflictMedications)
		if hasTrigger && hasConflict {
			alerts = append(alerts, newAlert(rule, rule.Message))
		}
	}
	return alerts
}

// AllergyChecker fires a rule when the patient carries a named allergy
// and a conflicting medication appears in the combined medication list.
// The two sub-checks are independent and combined with logical AND.
type AllergyChecker struct {
	rules          []Rule
	allergyMatcher AllergyMatcher
	medMatcher     MedicationMatcher
}

// NewAllergyChecker builds the checker from its rule list.
func NewAllergyChecker(rules []Rule) *AllergyChecker {
	return &AllergyChecker{rules: rules}
}

// Name implements Checker.
func (c *AllergyChecker) Name() string {
	return string(CheckerAllergyChecks)
}

// Check implements Checker.
func (c *AllergyChecker) Check(patient types.PatientProfile, extraction types.StructuredExtraction) []types.ComplianceAlert {
	var alerts []types.ComplianceAlert
	for _, rule := range c.rules {
		pattern := rule.Allergy
		if pattern == nil {
			continue
		}
		hasAllergy := c.allergyMatcher.Matches(patient, pattern.PatientAllergies)
		hasConflict := c.medMatcher.Matches(patient, extraction, pattern.ConflictMedications)
		if hasAllergy && hasConflict {
			alerts = append(alerts, newAlert(rule, rule.Message))
		}
	}
	return alerts
}

// RequiredFieldsChecker fires a rule when not all of its required fields
// are present on the extraction. A rule scoped to an encounter type only
// applies when the extraction's visit type matches it, compared
// case-insensitively; an absent discriminator means the rule always
// applies.
type RequiredFieldsChecker struct {
	rules   []Rule
	matcher FieldPresenceMatcher
}

// NewRequiredFieldsChecker builds the checker from its rule list.
func NewRequiredFieldsChecker(rules []Rule) *RequiredFieldsChecker {
	return &RequiredFieldsChecker{rules: rules}
}

// Name implements Checker.
func (c *RequiredFieldsChecker) Name() string {
	return string(CheckerRequiredFields)
}

// Check implements Checker.
func (c *RequiredFieldsChecker) Check(patient types.PatientProfile, extraction types.StructuredExtraction) []types.ComplianceAlert {
	var alerts []types.ComplianceAlert
	for _, rule := range c.rules {
		pattern := rule.RequiredFields
		if pattern == nil {
			continue
		}
		if pattern.EncounterType != "" &&
			!strings.EqualFold(pattern.EncounterType, extraction.VisitType) {
			continue
		}
		missing := c.matcher.Missing(extraction, pattern.Required)
		if len(missing) > 0 {
			message := strings.ReplaceAll(rule.Message, "{missing}", strings.Join(missing, ", "))
			alerts = append(alerts, newAlert(rule, message))
		}
	}
	return alerts
}
