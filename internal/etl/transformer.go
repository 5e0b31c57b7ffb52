package etl

import (
	"log/slog"

	"etlpipe/internal/domain"
)

// ── Transformer ────────────────────────────────────────────
// Cleans every extracted table. Per table, in order:
//   1. imputation rules (median_fill, fill_value)
//   2. general null-drop
//   3. the remaining rules, in declared order
// Tables are never added or removed.

// Transformer applies the null-drop and each table's declared rules.
type Transformer struct {
	Rules map[string][]domain.RuleConfig // table name → rules
	Log   *slog.Logger
}

// Transform cleans every table and returns the cleaned mapping along with one
// *RuleError per rule that failed. A failed rule leaves its table as it was
// before that rule.
func (tr *Transformer) Transform(tables map[string]*Table) (map[string]*Table, []error) {
	out := make(map[string]*Table, len(tables))
	var errs []error

	for _, name := range sortedKeys(tables) {
		t, rerrs := tr.transformTable(tables[name])
		errs = append(errs, rerrs...)
		out[name] = t
	}
	return out, errs
}

func (tr *Transformer) transformTable(t *Table) (*Table, []error) {
	imputation, post, err := BuildRules(tr.Rules[t.Name])
	if err != nil {
		// Rules are validated at load time; fall back to the null-drop alone.
		rerr := &RuleError{Table: t.Name, Rule: "build", Err: err}
		tr.Log.Error("etl/transform: invalid rules", "table", t.Name, "error", err)
		t, _ = tr.apply(t, DropNulls{})
		return t, []error{rerr}
	}

	var errs []error
	rules := make([]TableRule, 0, len(imputation)+1+len(post))
	rules = append(rules, imputation...)
	rules = append(rules, DropNulls{})
	rules = append(rules, post...)

	for _, rule := range rules {
		var rerr error
		t, rerr = tr.apply(t, rule)
		if rerr != nil {
			errs = append(errs, rerr)
		}
	}
	return t, errs
}

// apply runs one rule, keeping the input table when the rule fails.
func (tr *Transformer) apply(t *Table, rule TableRule) (*Table, error) {
	before := t.Len()
	next, err := rule.Apply(t)
	if err != nil {
		tr.Log.Error("etl/transform: rule failed, table left unchanged",
			"table", t.Name, "rule", rule.Name(), "error", err)
		return t, &RuleError{Table: t.Name, Rule: rule.Name(), Err: err}
	}
	tr.Log.Debug("etl/transform: rule applied",
		"table", t.Name, "rule", rule.Name(), "rows_before", before, "rows_after", next.Len())
	return next, nil
}
