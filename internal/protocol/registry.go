package protocol

import (
	"github.com/verimed/scribe-verify/pkg/types"
)

// Registry owns the enabled checkers for one protocol configuration. It
// is built once at startup, holds no per-request state, and is safe to
// share across concurrent verification calls.
type Registry struct {
	checkers []Checker
}

// checkerConstructors maps each known checker type to its constructor.
// The registry is built from this table, not from runtime string lookup,
// so a typo in a checker name cannot silently drop a checker.
var checkerConstructors = map[CheckerType]func([]Rule) Checker{
	CheckerDrugInteractions: func(rules []Rule) Checker { return NewDrugInteractionChecker(rules) },
	CheckerAllergyChecks:    func(rules []Rule) Checker { return NewAllergyChecker(rules) },
	CheckerRequiredFields:   func(rules []Rule) Checker { return NewRequiredFieldsChecker(rules) },
}

// NewRegistry instantiates one checker per enabled known checker type,
// in the fixed order of KnownCheckerTypes. Disabled or absent checker
// types contribute nothing; rule entries for checker types this build
// does not evaluate are ignored.
func NewRegistry(config *Config) *Registry {
	registry := &Registry{}
	for _, checkerType := range KnownCheckerTypes {
		if !config.Enabled(checkerType) {
			continue
		}
		construct := checkerConstructors[checkerType]
		registry.checkers = append(registry.checkers, construct(config.Rules(checkerType)))
	}
	return registry
}

// CheckAll runs every retained checker in order and concatenates their
// alerts, preserving each checker's internal ordering.
func (r *Registry) CheckAll(patient types.PatientProfile, extraction types.StructuredExtraction) []types.ComplianceAlert {
	var alerts []types.ComplianceAlert
	for _, checker := range r.checkers {
		alerts = append(alerts, checker.Check(patient, extraction)...)
	}
	return alerts
}

// EnabledCheckers returns the names of the retained checkers in run order.
func (r *Registry) EnabledCheckers() []string {
	names := make([]string, 0, len(r.checkers))
	for _, checker := range r.checkers {
		names = append(names, checker.Name())
	}
	return names
}
