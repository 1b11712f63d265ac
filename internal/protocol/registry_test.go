package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verimed/scribe-verify/pkg/types"
)

func TestRegistry(t *testing.T) {
	t.Run("builds enabled checkers in deterministic order", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(validRulesYAML))
		require.NoError(t, err)

		registry := NewRegistry(cfg)
		assert.Equal(t, []string{"drug_interactions", "allergy_checks", "required_fields"}, registry.EnabledCheckers())
	})

	t.Run("disabled checkers contribute nothing", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
version: "1.0"
checkers:
  drug_interactions:
    enabled: false
  allergy_checks:
    enabled: true
rules:
  drug_interactions:
    - name: "Warfarin NSAID"
      pattern:
        trigger:
          medications: ["warfarin"]
        conflicts:
          medications: ["ibuprofen"]
      severity: "CRITICAL"
      message: "x"
  allergy_checks:
    - name: "Penicillin Allergy"
      pattern:
        patient_allergies: ["penicillin"]
        conflicts:
          medications: ["amoxicillin"]
      severity: "CRITICAL"
      message: "y"
`))
		require.NoError(t, err)

		registry := NewRegistry(cfg)
		assert.Equal(t, []string{"allergy_checks"}, registry.EnabledCheckers())

		// The disabled drug checker must not fire even though its rule matches.
		patient := types.PatientProfile{
			ActiveMedications: []types.ActiveMedication{{Name: "warfarin"}, {Name: "ibuprofen"}},
		}
		assert.Empty(t, registry.CheckAll(patient, types.StructuredExtraction{}))
	})

	t.Run("checker types absent from config cause no error", func(t *testing.T) {
		cfg, err := ParseConfig([]byte("version: \"1.0\"\nrules: {}\n"))
		require.NoError(t, err)

		registry := NewRegistry(cfg)
		assert.Empty(t, registry.EnabledCheckers())
		assert.Empty(t, registry.CheckAll(types.PatientProfile{}, types.StructuredExtraction{}))
	})

	t.Run("concatenates alerts preserving checker order", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(validRulesYAML))
		require.NoError(t, err)
		registry := NewRegistry(cfg)

		patient := types.PatientProfile{
			Allergies:         []string{"penicillin"},
			ActiveMedications: []types.ActiveMedication{{Name: "warfarin"}},
		}
		extraction := types.StructuredExtraction{
			VisitType:   "discharge",
			Medications: []types.ExtractedMedication{{Name: "ibuprofen"}, {Name: "amoxicillin"}},
		}

		alerts := registry.CheckAll(patient, extraction)
		require.Len(t, alerts, 3)
		assert.Equal(t, "PROTOCOL_DRUG_INTERACTIONS_WARFARIN_NSAID", alerts[0].RuleID)
		assert.Equal(t, "PROTOCOL_ALLERGY_CHECKS_PENICILLIN_ALLERGY", alerts[1].RuleID)
		assert.Equal(t, "PROTOCOL_REQUIRED_FIELDS_DISCHARGE_SUMMARY", alerts[2].RuleID)
	})

	// Core safety property: an allergy/conflict intersection configured as
	// CRITICAL must always surface a critical alert.
	t.Run("no false negatives on configured allergy conflicts", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(validRulesYAML))
		require.NoError(t, err)
		registry := NewRegistry(cfg)

		cases := []struct {
			name      string
			allergies []string
			meds      []string
		}{
			{"exact names", []string{"penicillin"}, []string{"amoxicillin"}},
			{"mixed case", []string{"Penicillin"}, []string{"AMOXICILLIN"}},
			{"among unrelated entries", []string{"latex", "penicillin"}, []string{"metformin", "ampicillin"}},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				patient := types.PatientProfile{Allergies: tc.allergies}
				var meds []types.ExtractedMedication
				for _, name := range tc.meds {
					meds = append(meds, types.ExtractedMedication{Name: name})
				}
				alerts := registry.CheckAll(patient, types.StructuredExtraction{Medications: meds})

				foundCritical := false
				for _, alert := range alerts {
					if alert.Severity == types.SeverityCritical {
						foundCritical = true
					}
				}
				assert.True(t, foundCritical, "configured allergy conflict must produce a critical alert")
			})
		}
	})

	t.Run("fail-open on absence: empty data never triggers medication checkers", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(validRulesYAML))
		require.NoError(t, err)
		registry := NewRegistry(cfg)

		// No allergies, no medications anywhere. Only the unscoped checks
		// that do not depend on medication data may fire.
		alerts := registry.CheckAll(types.PatientProfile{}, types.StructuredExtraction{VisitType: "office visit"})
		for _, alert := range alerts {
			assert.NotEqual(t, "PROTOCOL_DRUG_INTERACTIONS_WARFARIN_NSAID", alert.RuleID)
			assert.NotEqual(t, "PROTOCOL_ALLERGY_CHECKS_PENICILLIN_ALLERGY", alert.RuleID)
		}
	})

	t.Run("identical inputs yield identical alert lists", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(validRulesYAML))
		require.NoError(t, err)
		registry := NewRegistry(cfg)

		patient := types.PatientProfile{
			Allergies:         []string{"penicillin"},
			ActiveMedications: []types.ActiveMedication{{Name: "warfarin"}},
		}
		extraction := types.StructuredExtraction{
			Medications: []types.ExtractedMedication{{Name: "ibuprofen"}, {Name: "amoxicillin"}},
		}

		first := registry.CheckAll(patient, extraction)
		second := registry.CheckAll(patient, extraction)
		assert.Equal(t, first, second)
	})
}
