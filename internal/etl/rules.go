package etl

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"etlpipe/internal/domain"
)

// ── Table rules ────────────────────────────────────────────
// A TableRule rewrites a whole table. Apply returns the new table; on error
// the caller keeps the table it passed in, so a rule never half-applies.

// TableRule is one cleaning step applied to a whole table.
type TableRule interface {
	Name() string
	Apply(t *Table) (*Table, error)
}

// DropNulls removes every record with a missing value in any schema column.
type DropNulls struct{}

func (DropNulls) Name() string { return "drop_nulls" }

func (DropNulls) Apply(t *Table) (*Table, error) {
	cols := t.Columns()
	kept := t.Records[:0:0]
	for _, r := range t.Records {
		complete := true
		for _, c := range cols {
			if r.Missing(c) {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, r)
		}
	}
	return &Table{Name: t.Name, Schema: t.Schema, Records: kept}, nil
}

// DateRangeRule keeps records whose Field, read as a date, lies in [Start, End].
// Both bounds are whole calendar days. Every value must parse; otherwise the rule fails.
type DateRangeRule struct {
	Field  string
	Start  time.Time
	End    time.Time
	Layout string // Go reference layout; empty tries the common layouts
}

func (d *DateRangeRule) Name() string { return domain.RuleDateRange }

func (d *DateRangeRule) Apply(t *Table) (*Table, error) {
	if !t.Schema.Has(d.Field) {
		return nil, fmt.Errorf("column %q not found", d.Field)
	}
	start, end := dayOf(d.Start), dayOf(d.End)
	kept := t.Records[:0:0]
	for i, r := range t.Records {
		v, ok := r.Data[d.Field]
		if !ok || v == nil {
			return nil, fmt.Errorf("row %d: missing date in %q", i, d.Field)
		}
		ts, err := ParseDate(v, d.Layout)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if day := dayOf(ts); !day.Before(start) && !day.After(end) {
			kept = append(kept, r)
		}
	}
	return &Table{Name: t.Name, Schema: t.Schema, Records: kept}, nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MedianFillRule replaces missing values in each field with the median of the
// field's numeric values. Fields without any numeric value are left alone.
type MedianFillRule struct {
	Fields []string
}

func (m *MedianFillRule) Name() string { return domain.RuleMedianFill }

func (m *MedianFillRule) Apply(t *Table) (*Table, error) {
	out := t.Clone()
	for _, f := range m.Fields {
		med, ok := median(out.Column(f))
		if !ok {
			continue
		}
		for _, r := range out.Records {
			if r.Missing(f) {
				r.Data[f] = med
			}
		}
		setFieldType(out, f, "number")
	}
	return out, nil
}

func median(values []any) (float64, bool) {
	var nums []float64
	for _, v := range values {
		if v == nil {
			continue
		}
		if _, isStr := v.(string); isStr {
			continue
		}
		if f, ok := toFloatSafe(v); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return 0, false
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return nums[mid], true
	}
	return (nums[mid-1] + nums[mid]) / 2, true
}

// FillValueRule replaces missing values in Field with a literal.
type FillValueRule struct {
	Field string
	Value any
}

func (f *FillValueRule) Name() string { return domain.RuleFillValue }

func (f *FillValueRule) Apply(t *Table) (*Table, error) {
	out := t.Clone()
	for _, r := range out.Records {
		if r.Missing(f.Field) {
			r.Data[f.Field] = f.Value
		}
	}
	if !out.Schema.Has(f.Field) {
		out.Schema.Fields = append(out.Schema.Fields, Field{Name: f.Field, Type: inferType(f.Value)})
	}
	return out, nil
}

// SortRule orders records by one field. The sort is stable.
type SortRule struct {
	Field     string
	Direction string // "asc" | "desc"
}

func (s *SortRule) Name() string { return domain.RuleSort }

func (s *SortRule) Apply(t *Table) (*Table, error) {
	dir := 1
	if s.Direction == "desc" {
		dir = -1
	}
	out := &Table{Name: t.Name, Schema: t.Schema, Records: slices.Clone(t.Records)}
	slices.SortStableFunc(out.Records, func(a, b Record) int {
		av, bv := a.Data[s.Field], b.Data[s.Field]
		switch {
		case av == nil && bv == nil:
			return 0
		case av == nil:
			return 1
		case bv == nil:
			return -1
		}
		return compareValues(av, bv) * dir
	})
	return out, nil
}

// RecordRule runs a chain of record transforms over every record and
// rebuilds the schema from what is left.
type RecordRule struct {
	Label      string
	Transforms []RecordTransform
}

func (rr *RecordRule) Name() string { return rr.Label }

func (rr *RecordRule) Apply(t *Table) (*Table, error) {
	in := t.Clone()
	out := &Table{Name: t.Name}
	for _, r := range in.Records {
		if transformed, keep := ApplyRecordTransforms(r, rr.Transforms); keep {
			out.Records = append(out.Records, transformed)
		}
	}
	out.Schema = deriveSchemaFromRecords(out.Records, &t.Schema)
	return out, nil
}

// deriveSchemaFromRecords builds a schema from the keys present in transformed records.
// Fields of the source schema keep their position and type; new fields follow in name order.
func deriveSchemaFromRecords(records []Record, sourceSchema *Schema) Schema {
	if len(records) == 0 {
		return Schema{Fields: slices.Clone(sourceSchema.Fields)}
	}

	present := make(map[string]bool)
	for _, r := range records {
		for k := range r.Data {
			present[k] = true
		}
	}

	var fields []Field
	for _, f := range sourceSchema.Fields {
		if present[f.Name] {
			fields = append(fields, f)
			delete(present, f.Name)
		}
	}
	for _, name := range sortedKeys(present) {
		kind := ""
		for _, r := range records {
			if v := r.Data[name]; v != nil {
				kind = inferType(v)
				break
			}
		}
		if kind == "" {
			kind = "text"
		}
		fields = append(fields, Field{Name: name, Type: kind})
	}
	return Schema{Fields: fields}
}

func setFieldType(t *Table, name, kind string) {
	for i, f := range t.Schema.Fields {
		if f.Name == name {
			t.Schema.Fields[i].Type = kind
			return
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ── Rule builder ───────────────────────────────────────────

// ErrInvalidRule is returned for a rule config that cannot be built.
var ErrInvalidRule = errors.New("invalid rule")

// BuildRules converts declarative rule configs into imputation rules and the
// rules that run after the null-drop. Consecutive record transforms are
// grouped into a single RecordRule.
func BuildRules(configs []domain.RuleConfig) (imputation, post []TableRule, err error) {
	var pending []RecordTransform
	var labels []string
	flush := func() {
		if len(pending) > 0 {
			post = append(post, &RecordRule{Label: strings.Join(labels, "+"), Transforms: pending})
			pending, labels = nil, nil
		}
	}

	for i, rc := range configs {
		if rc.IsImputation() {
			rule, err := buildTableRule(rc)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %d (%s): %w", i, rc.Type, err)
			}
			imputation = append(imputation, rule)
			continue
		}

		switch rc.Type {
		case domain.RuleDateRange, domain.RuleSort:
			rule, err := buildTableRule(rc)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %d (%s): %w", i, rc.Type, err)
			}
			flush()
			post = append(post, rule)
		default:
			rt, err := buildRecordTransform(rc)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %d (%s): %w", i, rc.Type, err)
			}
			pending = append(pending, rt)
			labels = append(labels, rc.Type)
		}
	}
	flush()
	return imputation, post, nil
}

func buildTableRule(rc domain.RuleConfig) (TableRule, error) {
	c := rc.Config
	switch rc.Type {
	case domain.RuleMedianFill:
		fields := cfgStrings(c, "fields")
		if f := cfgString(c, "field"); f != "" {
			fields = append(fields, f)
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: fields required", ErrInvalidRule)
		}
		return &MedianFillRule{Fields: fields}, nil

	case domain.RuleFillValue:
		field := cfgString(c, "field")
		value, ok := c["value"]
		if field == "" || !ok {
			return nil, fmt.Errorf("%w: field and value required", ErrInvalidRule)
		}
		return &FillValueRule{Field: field, Value: value}, nil

	case domain.RuleDateRange:
		field := cfgString(c, "field")
		if field == "" {
			return nil, fmt.Errorf("%w: field required", ErrInvalidRule)
		}
		start, err := cfgDate(c, "start")
		if err != nil {
			return nil, err
		}
		end, err := cfgDate(c, "end")
		if err != nil {
			return nil, err
		}
		if end.Before(start) {
			return nil, fmt.Errorf("%w: end before start", ErrInvalidRule)
		}
		return &DateRangeRule{Field: field, Start: start, End: end, Layout: cfgString(c, "layout")}, nil

	case domain.RuleSort:
		field := cfgString(c, "field")
		if field == "" {
			return nil, fmt.Errorf("%w: field required", ErrInvalidRule)
		}
		direction := cfgString(c, "direction")
		if direction == "" {
			direction = "asc"
		}
		return &SortRule{Field: field, Direction: direction}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRule, rc.Type)
}

// buildRecordTransform converts a declarative rule into a record transform.
func buildRecordTransform(rc domain.RuleConfig) (RecordTransform, error) {
	c := rc.Config
	switch rc.Type {
	case domain.RuleFilter:
		field := cfgString(c, "field")
		op := cfgString(c, "op")
		if field == "" || op == "" {
			return nil, fmt.Errorf("%w: field and op required", ErrInvalidRule)
		}
		if _, ok := filterOps[op]; !ok {
			return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidRule, op)
		}
		return &FilterTransform{Field: field, Op: op, Value: c["value"]}, nil

	case domain.RuleRename:
		mapping, ok := c["mapping"].(map[string]any)
		if !ok || len(mapping) == 0 {
			return nil, fmt.Errorf("%w: mapping required", ErrInvalidRule)
		}
		m := make(map[string]string, len(mapping))
		for k, v := range mapping {
			m[k] = fmt.Sprint(v)
		}
		return &RenameTransform{Mapping: m}, nil

	case domain.RuleSelect:
		fields := cfgStrings(c, "fields")
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: fields required", ErrInvalidRule)
		}
		return &SelectTransform{Fields: fields}, nil

	case domain.RuleDedupe:
		keys := cfgStrings(c, "keys")
		if k := cfgString(c, "key"); k != "" {
			keys = append(keys, k)
		}
		return NewDedupeTransform(keys...), nil

	case domain.RuleLimit:
		count, ok := cfgInt(c, "count")
		if !ok || count <= 0 {
			return nil, fmt.Errorf("%w: positive count required", ErrInvalidRule)
		}
		return NewLimitTransform(count), nil

	case domain.RuleTypeCast:
		field := cfgString(c, "field")
		castType := cfgString(c, "castType")
		if field == "" || castType == "" {
			return nil, fmt.Errorf("%w: field and castType required", ErrInvalidRule)
		}
		if _, ok := casts[castType]; !ok {
			return nil, fmt.Errorf("%w: unknown castType %q", ErrInvalidRule, castType)
		}
		return &TypeCastTransform{Field: field, CastType: castType}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRule, rc.Type)
}

// ValidateRules checks that every configured rule can be built.
func ValidateRules(rules map[string][]domain.RuleConfig) error {
	for _, table := range sortedKeys(rules) {
		if _, _, err := BuildRules(rules[table]); err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
	}
	return nil
}

// ── Config value helpers ───────────────────────────────────
// Rule parameters come from JSON (float64) or YAML (int, time.Time) decoding.

func cfgString(c map[string]any, key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func cfgStrings(c map[string]any, key string) []string {
	switch v := c[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, fmt.Sprint(s))
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

func cfgInt(c map[string]any, key string) (int, bool) {
	switch v := c[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func cfgDate(c map[string]any, key string) (time.Time, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return time.Time{}, fmt.Errorf("%w: %s required", ErrInvalidRule, key)
	}
	d, err := ParseDate(v, "")
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidRule, key, err)
	}
	return dayOf(d), nil
}
