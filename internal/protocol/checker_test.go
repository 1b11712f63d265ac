package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verimed/scribe-verify/pkg/types"
)

func drugRule(name string, trigger, conflicts []string, severity types.Severity) Rule {
	return Rule{
		Name:        name,
		CheckerType: CheckerDrugInteractions,
		Severity:    severity,
		Message:     name + " interaction detected.",
		DrugInteraction: &DrugInteractionPattern{
			TriggerMedications:  trigger,
			ConflictMedications: conflicts,
		},
	}
}

func allergyRule(name string, allergies, conflicts []string, severity types.Severity) Rule {
	return Rule{
		Name:        name,
		CheckerType: CheckerAllergyChecks,
		Severity:    severity,
		Message:     name + " conflict detected.",
		Allergy: &AllergyPattern{
			PatientAllergies:    allergies,
			ConflictMedications: conflicts,
		},
	}
}

func TestDrugInteractionChecker(t *testing.T) {
	checker := NewDrugInteractionChecker([]Rule{
		drugRule("Warfarin NSAID", []string{"warfarin"}, []string{"ibuprofen", "naproxen", "aspirin"}, types.SeverityCritical),
	})

	t.Run("fires when trigger is active and conflict is newly extracted", func(t *testing.T) {
		patient := types.PatientProfile{
			ActiveMedications: []types.ActiveMedication{{Name: "Warfarin"}},
		}
		extraction := types.StructuredExtraction{
			Medications: []types.ExtractedMedication{{Name: "Ibuprofen", Dosage: "400mg"}},
		}

		alerts := checker.Check(patient, extraction)
		require.Len(t, alerts, 1)
		assert.Equal(t, "PROTOCOL_DRUG_INTERACTIONS_WARFARIN_NSAID", alerts[0].RuleID)
		assert.Equal(t, types.SeverityCritical, alerts[0].Severity)
	})

	t.Run("fires on pre-existing co-prescription", func(t *testing.T) {
		// Both drugs already active on the patient: trigger and conflict
		// roles are symmetric, so this still fires.
		patient := types.PatientProfile{
			ActiveMedications: []types.ActiveMedication{{Name: "warfarin"}, {Name: "aspirin"}},
		}

		alerts := checker.Check(patient, types.StructuredExtraction{})
		assert.Len(t, alerts, 1)
	})

	t.Run("does not fire when only the trigger is present", func(t *testing.T) {
		patient := types.PatientProfile{
			ActiveMedications: []types.ActiveMedication{{Name: "warfarin"}},
		}
		assert.Empty(t, checker.Check(patient, types.StructuredExtraction{}))
	})

	t.Run("does not fire with no medications at all", func(t *testing.T) {
		assert.Empty(t, checker.Check(types.PatientProfile{}, types.StructuredExtraction{}))
	})

	t.Run("unconfigured checker yields no alerts", func(t *testing.T) {
		empty := NewDrugInteractionChecker(nil)
		patient := types.PatientProfile{
			ActiveMedications: []types.ActiveMedication{{Name: "warfarin"}, {Name: "ibuprofen"}},
		}
		assert.Empty(t, empty.Check(patient, types.StructuredExtraction{}))
	})
}

func TestAllergyChecker(t *testing.T) {
	checker := NewAllergyChecker([]Rule{
		allergyRule("Penicillin Allergy", []string{"penicillin"}, []string{"amoxicillin", "ampicillin", "penicillin"}, types.SeverityCritical),
	})

	t.Run("fires when allergy and conflicting medication intersect", func(t *testing.T) {
		patient := types.PatientProfile{Allergies: []string{"penicillin"}}
		extraction := types.StructuredExtraction{
			Medications: []types.ExtractedMedication{{Name: "amoxicillin"}},
		}

		alerts := checker.Check(patient, extraction)
		require.Len(t, alerts, 1)
		assert.Equal(t, "PROTOCOL_ALLERGY_CHECKS_PENICILLIN_ALLERGY", alerts[0].RuleID)
		assert.Equal(t, types.SeverityCritical, alerts[0].Severity)
	})

	t.Run("allergy without conflicting medication does not fire", func(t *testing.T) {
		patient := types.PatientProfile{Allergies: []string{"penicillin"}}
		extraction := types.StructuredExtraction{
			Medications: []types.ExtractedMedication{{Name: "metformin"}},
		}
		assert.Empty(t, checker.Check(patient, extraction))
	})

	t.Run("conflicting medication without the allergy does not fire", func(t *testing.T) {
		extraction := types.StructuredExtraction{
			Medications: []types.ExtractedMedication{{Name: "amoxicillin"}},
		}
		assert.Empty(t, checker.Check(types.PatientProfile{}, extraction))
	})
}

func TestRequiredFieldsChecker(t *testing.T) {
	dischargeRule := Rule{
		Name:        "Discharge Summary",
		CheckerType: CheckerRequiredFields,
		Severity:    types.SeverityHigh,
		Message:     "Missing required documentation: {missing}",
		RequiredFields: &RequiredFieldsPattern{
			Required: []string{"medications", "temporal_expressions"},
		},
	}

	t.Run("fires when a required field is absent and fills the placeholder", func(t *testing.T) {
		checker := NewRequiredFieldsChecker([]Rule{dischargeRule})

		alerts := checker.Check(types.PatientProfile{}, types.StructuredExtraction{})
		require.Len(t, alerts, 1)
		assert.Equal(t, "PROTOCOL_REQUIRED_FIELDS_DISCHARGE_SUMMARY", alerts[0].RuleID)
		assert.Equal(t, types.SeverityHigh, alerts[0].Severity)
		assert.Equal(t, "Missing required documentation: medications, temporal_expressions", alerts[0].Message)
	})

	t.Run("does not fire when all fields are present", func(t *testing.T) {
		checker := NewRequiredFieldsChecker([]Rule{dischargeRule})
		extraction := types.StructuredExtraction{
			Medications:         []types.ExtractedMedication{{Name: "metformin"}},
			TemporalExpressions: []types.TemporalExpression{{Text: "on admission", Type: "relative_date"}},
		}
		assert.Empty(t, checker.Check(types.PatientProfile{}, extraction))
	})

	t.Run("encounter type scopes the rule case-insensitively", func(t *testing.T) {
		scoped := dischargeRule
		scoped.RequiredFields = &RequiredFieldsPattern{
			Required:      []string{"medications"},
			EncounterType: "Discharge",
		}
		checker := NewRequiredFieldsChecker([]Rule{scoped})

		// Matching visit type: rule applies and fires on the empty extraction.
		extraction := types.StructuredExtraction{VisitType: "discharge"}
		assert.Len(t, checker.Check(types.PatientProfile{}, extraction), 1)

		// Different visit type: rule does not apply.
		extraction.VisitType = "follow-up"
		assert.Empty(t, checker.Check(types.PatientProfile{}, extraction))

		// No visit type on the extraction: scoped rule does not apply.
		extraction.VisitType = ""
		assert.Empty(t, checker.Check(types.PatientProfile{}, extraction))
	})

	t.Run("absent discriminator means the rule always applies", func(t *testing.T) {
		checker := NewRequiredFieldsChecker([]Rule{dischargeRule})
		extraction := types.StructuredExtraction{VisitType: "anything"}
		assert.Len(t, checker.Check(types.PatientProfile{}, extraction), 1)
	})
}
