package protocol

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/verimed/scribe-verify/pkg/types"
)

// yamlConfig mirrors the rule file structure before validation.
type yamlConfig struct {
	Version  string                     `yaml:"version"`
	Checkers map[string]yamlCheckerDecl `yaml:"checkers"`
	Rules    map[string][]yamlRule      `yaml:"rules"`
}

type yamlCheckerDecl struct {
	Enabled     bool   `yaml:"enabled"`
	Description string `yaml:"description"`
}

type yamlRule struct {
	Name     string      `yaml:"name"`
	Pattern  yamlPattern `yaml:"pattern"`
	Severity string      `yaml:"severity"`
	Message  string      `yaml:"message"`
}

// yamlPattern is the superset of all per-checker pattern fields; the
// checker type decides which fields are read and validated.
type yamlPattern struct {
	Trigger          yamlMedicationSet `yaml:"trigger"`
	Conflicts        yamlMedicationSet `yaml:"conflicts"`
	PatientAllergies []string          `yaml:"patient_allergies"`
	Required         []string          `yaml:"required"`
	EncounterType    string            `yaml:"encounter_type"`
}

type yamlMedicationSet struct {
	Medications []string `yaml:"medications"`
}

// LoadConfig reads and validates a protocol rule file. Any malformed
// rule fails the whole load: a misconfigured rule must never be silently
// skipped.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewConfigurationError(types.ErrCodeInvalidConfig,
			fmt.Sprintf("failed to read protocol rules file %q", path), err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates protocol configuration bytes.
func ParseConfig(data []byte) (*Config, error) {
	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, types.NewConfigurationError(types.ErrCodeInvalidConfig,
			"failed to parse protocol rules YAML", err)
	}

	if raw.Version == "" {
		return nil, types.NewConfigurationError(types.ErrCodeInvalidConfig,
			"protocol configuration must have a 'version' field", nil)
	}
	if raw.Rules == nil {
		return nil, types.NewConfigurationError(types.ErrCodeInvalidConfig,
			"protocol configuration must have a 'rules' field", nil)
	}

	checkers := make(map[CheckerType]CheckerSetting, len(raw.Checkers))
	for name, decl := range raw.Checkers {
		checkers[CheckerType(name)] = CheckerSetting{
			Enabled:     decl.Enabled,
			Description: decl.Description,
		}
	}

	rules := make(map[CheckerType][]Rule, len(raw.Rules))
	for name, ruleList := range raw.Rules {
		checkerType := CheckerType(name)
		parsed := make([]Rule, 0, len(ruleList))
		for _, yr := range ruleList {
			rule, err := parseRule(checkerType, yr)
			if err != nil {
				return nil, types.NewConfigurationError(types.ErrCodeInvalidConfig,
					fmt.Sprintf("invalid rule under %q", name), err)
			}
			parsed = append(parsed, rule)
		}
		rules[checkerType] = parsed
	}

	return &Config{
		version:  raw.Version,
		checkers: checkers,
		rules:    rules,
	}, nil
}

// parseRule converts one YAML rule into the typed model. Rules for
// checker types this build does not evaluate are carried with their
// name, severity and message validated but no pattern; the registry
// never runs them (forward compatibility with future rule categories).
func parseRule(checkerType CheckerType, yr yamlRule) (Rule, error) {
	severity, err := types.ParseSeverity(yr.Severity)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", yr.Name, err)
	}

	rule := Rule{
		Name:        yr.Name,
		CheckerType: checkerType,
		Severity:    severity,
		Message:     yr.Message,
	}

	switch checkerType {
	case CheckerDrugInteractions:
		rule.DrugInteraction = &DrugInteractionPattern{
			TriggerMedications:  yr.Pattern.Trigger.Medications,
			ConflictMedications: yr.Pattern.Conflicts.Medications,
		}
	case CheckerAllergyChecks:
		rule.Allergy = &AllergyPattern{
			PatientAllergies:    yr.Pattern.PatientAllergies,
			ConflictMedications: yr.Pattern.Conflicts.Medications,
		}
	case CheckerRequiredFields:
		rule.RequiredFields = &RequiredFieldsPattern{
			Required:      yr.Pattern.Required,
			EncounterType: yr.Pattern.EncounterType,
		}
	default:
		// Unknown checker type: validate the shared fields only.
		if rule.Name == "" {
			return Rule{}, fmt.Errorf("rule name is required")
		}
		if rule.Message == "" {
			return Rule{}, fmt.Errorf("rule %q: message is required", rule.Name)
		}
		return rule, nil
	}

	if err := rule.validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}
