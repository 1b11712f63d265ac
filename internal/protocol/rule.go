package protocol

import (
	"fmt"
	"strings"

	"github.com/verimed/scribe-verify/pkg/types"
)

// CheckerType discriminates which checker evaluates a rule. The set known
// to this build is closed; unknown types found in a rule file are carried
// but never evaluated (see Config).
type CheckerType string

const (
	CheckerDrugInteractions CheckerType = "drug_interactions"
	CheckerAllergyChecks    CheckerType = "allergy_checks"
	CheckerRequiredFields   CheckerType = "required_fields"
)

// KnownCheckerTypes lists the checker types this build can evaluate, in
// the deterministic order the registry runs them.
var KnownCheckerTypes = []CheckerType{
	CheckerDrugInteractions,
	CheckerAllergyChecks,
	CheckerRequiredFields,
}

// Known reports whether the checker type is evaluated by this build.
func (ct CheckerType) Known() bool {
	for _, known := range KnownCheckerTypes {
		if ct == known {
			return true
		}
	}
	return false
}

// DrugInteractionPattern names two medication sets; the rule fires when
// both intersect the combined medication list. Trigger and conflict are
// symmetric roles, order does not matter.
type DrugInteractionPattern struct {
	TriggerMedications  []string
	ConflictMedications []string
}

// AllergyPattern names patient allergies and the medications that
// conflict with them.
type AllergyPattern struct {
	PatientAllergies    []string
	ConflictMedications []string
}

// RequiredFieldsPattern names extraction fields that must all be present.
// EncounterType, when set, scopes the rule to matching visit types.
type RequiredFieldsPattern struct {
	Required      []string
	EncounterType string
}

// Rule is one immutable, validated protocol rule. Exactly one pattern
// field matching CheckerType is populated.
type Rule struct {
	Name        string
	CheckerType CheckerType
	Severity    types.Severity
	Message     string

	DrugInteraction *DrugInteractionPattern
	Allergy         *AllergyPattern
	RequiredFields  *RequiredFieldsPattern
}

// ID derives the stable rule identifier used for audit correlation.
func (r Rule) ID() string {
	name := strings.ToUpper(strings.ReplaceAll(r.Name, " ", "_"))
	return fmt.Sprintf("PROTOCOL_%s_%s", strings.ToUpper(string(r.CheckerType)), name)
}

// validate checks internal consistency of a parsed rule.
func (r Rule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.Message == "" {
		return fmt.Errorf("rule %q: message is required", r.Name)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %q: invalid severity %q", r.Name, r.Severity)
	}

	switch r.CheckerType {
	case CheckerDrugInteractions:
		if r.DrugInteraction == nil {
			return fmt.Errorf("rule %q: drug_interactions pattern is required", r.Name)
		}
		if len(r.DrugInteraction.TriggerMedications) == 0 || len(r.DrugInteraction.ConflictMedications) == 0 {
			return fmt.Errorf("rule %q: trigger and conflict medication lists must be non-empty", r.Name)
		}
	case CheckerAllergyChecks:
		if r.Allergy == nil {
			return fmt.Errorf("rule %q: allergy_checks pattern is required", r.Name)
		}
		if len(r.Allergy.PatientAllergies) == 0 || len(r.Allergy.ConflictMedications) == 0 {
			return fmt.Errorf("rule %q: patient_allergies and conflict medication lists must be non-empty", r.Name)
		}
	case CheckerRequiredFields:
		if r.RequiredFields == nil {
			return fmt.Errorf("rule %q: required_fields pattern is required", r.Name)
		}
		if len(r.RequiredFields.Required) == 0 {
			return fmt.Errorf("rule %q: required field list must be non-empty", r.Name)
		}
		for _, field := range r.RequiredFields.Required {
			if !knownExtractionField(field) {
				return fmt.Errorf("rule %q: unknown extraction field %q", r.Name, field)
			}
		}
	default:
		return fmt.Errorf("rule %q: unknown checker type %q", r.Name, r.CheckerType)
	}

	return nil
}
