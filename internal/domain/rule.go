package domain

// RuleConfig is a declarative per-table cleaning rule.
// Type selects the rule; Config holds its parameters as decoded from the config file.
type RuleConfig struct {
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Rule types understood by the transformer.
const (
	RuleMedianFill = "median_fill"
	RuleFillValue  = "fill_value"
	RuleDateRange  = "date_range"
	RuleFilter     = "filter"
	RuleRename     = "rename"
	RuleSelect     = "select"
	RuleDedupe     = "dedupe"
	RuleLimit      = "limit"
	RuleTypeCast   = "type_cast"
	RuleSort       = "sort"
)

// IsImputation reports whether the rule fills missing values.
// Imputation rules run before the general null-drop.
func (r RuleConfig) IsImputation() bool {
	return r.Type == RuleMedianFill || r.Type == RuleFillValue
}
