package protocol

// CheckerSetting is the per-checker toggle from the rule file.
type CheckerSetting struct {
	Enabled     bool
	Description string
}

// Config is the fully-parsed, validated protocol configuration for one
// run. Once constructed it never changes and is safe to share across
// concurrent verification calls.
type Config struct {
	version  string
	checkers map[CheckerType]CheckerSetting
	rules    map[CheckerType][]Rule
}

// Version returns the configuration version tag.
func (c *Config) Version() string {
	return c.version
}

// Enabled reports whether a checker type is switched on. A checker type
// absent from the file is disabled, not an error.
func (c *Config) Enabled(ct CheckerType) bool {
	setting, ok := c.checkers[ct]
	return ok && setting.Enabled
}

// Rules returns the ordered rule list for a checker type. The returned
// slice is a copy so callers cannot mutate the shared config.
func (c *Config) Rules(ct CheckerType) []Rule {
	rules, ok := c.rules[ct]
	if !ok {
		return nil
	}
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// RuleCount returns the total number of rules across all checker types,
// including rules for checker types this build does not evaluate.
func (c *Config) RuleCount() int {
	total := 0
	for _, rules := range c.rules {
		total += len(rules)
	}
	return total
}
