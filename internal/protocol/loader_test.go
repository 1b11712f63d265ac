package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verimed/scribe-verify/pkg/types"
)

const validRulesYAML = `
version: "1.0"
checkers:
  drug_interactions:
    enabled: true
    description: "Checks for dangerous drug combinations"
  allergy_checks:
    enabled: true
    description: "Checks prescriptions against patient allergies"
  required_fields:
    enabled: true
    description: "Checks documentation completeness"
rules:
  drug_interactions:
    - name: "Warfarin NSAID"
      pattern:
        trigger:
          medications: ["warfarin"]
        conflicts:
          medications: ["ibuprofen", "naproxen", "aspirin"]
      severity: "CRITICAL"
      message: "Warfarin combined with NSAID increases bleeding risk."
  allergy_checks:
    - name: "Penicillin Allergy"
      pattern:
        patient_allergies: ["penicillin"]
        conflicts:
          medications: ["amoxicillin", "ampicillin", "penicillin"]
      severity: "CRITICAL"
      message: "Penicillin-class antibiotic prescribed to penicillin-allergic patient."
  required_fields:
    - name: "Discharge Summary"
      pattern:
        required: ["medications", "temporal_expressions"]
        encounter_type: "discharge"
      severity: "HIGH"
      message: "Discharge summary is missing required documentation: {missing}"
`

func TestParseConfig(t *testing.T) {
	t.Run("parses a valid rule file", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(validRulesYAML))
		require.NoError(t, err)

		assert.Equal(t, "1.0", cfg.Version())
		assert.True(t, cfg.Enabled(CheckerDrugInteractions))
		assert.True(t, cfg.Enabled(CheckerAllergyChecks))
		assert.True(t, cfg.Enabled(CheckerRequiredFields))
		assert.Equal(t, 3, cfg.RuleCount())

		drugRules := cfg.Rules(CheckerDrugInteractions)
		require.Len(t, drugRules, 1)
		assert.Equal(t, "Warfarin NSAID", drugRules[0].Name)
		assert.Equal(t, types.SeverityCritical, drugRules[0].Severity)
		require.NotNil(t, drugRules[0].DrugInteraction)
		assert.Equal(t, []string{"warfarin"}, drugRules[0].DrugInteraction.TriggerMedications)
		assert.Equal(t, []string{"ibuprofen", "naproxen", "aspirin"}, drugRules[0].DrugInteraction.ConflictMedications)

		fieldRules := cfg.Rules(CheckerRequiredFields)
		require.Len(t, fieldRules, 1)
		require.NotNil(t, fieldRules[0].RequiredFields)
		assert.Equal(t, "discharge", fieldRules[0].RequiredFields.EncounterType)
	})

	t.Run("derives stable rule identifiers", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(validRulesYAML))
		require.NoError(t, err)

		allergyRules := cfg.Rules(CheckerAllergyChecks)
		require.Len(t, allergyRules, 1)
		assert.Equal(t, "PROTOCOL_ALLERGY_CHECKS_PENICILLIN_ALLERGY", allergyRules[0].ID())

		drugRules := cfg.Rules(CheckerDrugInteractions)
		assert.Equal(t, "PROTOCOL_DRUG_INTERACTIONS_WARFARIN_NSAID", drugRules[0].ID())
	})

	t.Run("rejects missing version", func(t *testing.T) {
		_, err := ParseConfig([]byte("rules: {}\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "version")
	})

	t.Run("rejects missing rules section", func(t *testing.T) {
		_, err := ParseConfig([]byte("version: \"1.0\"\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rules")
	})

	t.Run("rejects unknown severity instead of defaulting", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
version: "1.0"
rules:
  allergy_checks:
    - name: "Bad Severity"
      pattern:
        patient_allergies: ["sulfa"]
        conflicts:
          medications: ["sulfamethoxazole"]
      severity: "MODERATE"
      message: "x"
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "severity")
	})

	t.Run("rejects empty pattern lists", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
version: "1.0"
rules:
  drug_interactions:
    - name: "No Conflicts"
      pattern:
        trigger:
          medications: ["warfarin"]
        conflicts:
          medications: []
      severity: "CRITICAL"
      message: "x"
`))
		require.Error(t, err)
	})

	t.Run("rejects unknown required field names at load time", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
version: "1.0"
rules:
  required_fields:
    - name: "Typo Field"
      pattern:
        required: ["medicattions"]
      severity: "HIGH"
      message: "x"
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown extraction field")
	})

	t.Run("rejects a rule without a message", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
version: "1.0"
rules:
  allergy_checks:
    - name: "No Message"
      pattern:
        patient_allergies: ["latex"]
        conflicts:
          medications: ["something"]
      severity: "HIGH"
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "message")
	})

	t.Run("carries unknown checker types without rejecting them", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
version: "1.0"
checkers:
  dosage_limits:
    enabled: true
rules:
  dosage_limits:
    - name: "Future Category"
      pattern:
        anything: ["x"]
      severity: "WARNING"
      message: "future rule"
`))
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.RuleCount())
		// Not a known checker type, so the registry will never run it.
		assert.False(t, CheckerType("dosage_limits").Known())
	})

	t.Run("malformed YAML fails fast", func(t *testing.T) {
		_, err := ParseConfig([]byte("version: [unclosed"))
		require.Error(t, err)
	})
}
