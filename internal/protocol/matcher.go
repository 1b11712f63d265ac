package protocol

import (
	"strings"

	"github.com/verimed/scribe-verify/pkg/types"
)

// The matchers are stateless predicates over patient/extraction data.
// Absence of data is treated as no match: incomplete EMR data must not
// block documentation (fail open on ambiguity, not fail closed on
// absence).

// lowerSet builds a case-insensitive lookup set from a name list.
func lowerSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(strings.ToLower(name))
		if trimmed == "" {
			continue
		}
		set[trimmed] = struct{}{}
	}
	return set
}

// intersects reports whether any name is in the set, case-insensitively.
func intersects(set map[string]struct{}, names []string) bool {
	for _, name := range names {
		if _, ok := set[strings.TrimSpace(strings.ToLower(name))]; ok {
			return true
		}
	}
	return false
}

// combinedMedicationNames unions the patient's active medications with
// the medications extracted from the candidate document. Interactions
// are checked against everything the patient would be on, including
// pre-existing co-prescriptions.
func combinedMedicationNames(patient types.PatientProfile, extraction types.StructuredExtraction) []string {
	names := make([]string, 0, len(patient.ActiveMedications)+len(extraction.Medications))
	for _, med := range patient.ActiveMedications {
		names = append(names, med.Name)
	}
	for _, med := range extraction.Medications {
		names = append(names, med.Name)
	}
	return names
}

// MedicationMatcher matches a pattern's medication list against the
// union of patient active medications and extracted medications.
type MedicationMatcher struct{}

// Matches reports whether any pattern medication appears in the combined
// medication set.
func (MedicationMatcher) Matches(patient types.PatientProfile, extraction types.StructuredExtraction, medications []string) bool {
	if len(medications) == 0 {
		return false
	}
	target := lowerSet(medications)
	return intersects(target, combinedMedicationNames(patient, extraction))
}

// AllergyMatcher matches a pattern's allergy list against the patient's
// known allergies.
type AllergyMatcher struct{}

// Matches reports whether the patient carries any of the named allergies.
func (AllergyMatcher) Matches(patient types.PatientProfile, allergies []string) bool {
	if len(allergies) == 0 || len(patient.Allergies) == 0 {
		return false
	}
	target := lowerSet(allergies)
	return intersects(target, patient.Allergies)
}

// FieldPresenceMatcher resolves required field names on an extraction.
// A field is missing when it is absent, empty, or an empty sequence.
type FieldPresenceMatcher struct{}

// Missing returns the required fields not present on the extraction, in
// the order the rule names them. An empty return means all fields are
// present; one missing field fails the whole check.
func (FieldPresenceMatcher) Missing(extraction types.StructuredExtraction, required []string) []string {
	var missing []string
	for _, field := range required {
		if !fieldPresent(extraction, field) {
			missing = append(missing, field)
		}
	}
	return missing
}

// extraction field names addressable from required_fields rules
const (
	fieldPatientName         = "patient_name"
	fieldVisitType           = "visit_type"
	fieldMedications         = "medications"
	fieldDiagnoses           = "diagnoses"
	fieldTemporalExpressions = "temporal_expressions"
	fieldVitalSigns          = "vital_signs"
)

func knownExtractionField(name string) bool {
	switch name {
	case fieldPatientName, fieldVisitType, fieldMedications,
		fieldDiagnoses, fieldTemporalExpressions, fieldVitalSigns:
		return true
	}
	return false
}

func fieldPresent(extraction types.StructuredExtraction, name string) bool {
	switch name {
	case fieldPatientName:
		return extraction.PatientName != ""
	case fieldVisitType:
		return extraction.VisitType != ""
	case fieldMedications:
		return len(extraction.Medications) > 0
	case fieldDiagnoses:
		return len(extraction.Diagnoses) > 0
	case fieldTemporalExpressions:
		return len(extraction.TemporalExpressions) > 0
	case fieldVitalSigns:
		return len(extraction.VitalSigns) > 0
	}
	return false
}
