package etl

import (
	"fmt"
	"strings"
)

// ── Record transforms ──────────────────────────────────────
// Per-record steps behind the filter, rename, select, dedupe, limit and
// type_cast rules. The rule builder chains consecutive ones into a RecordRule.

// RecordTransform rewrites one record and reports whether to keep it.
type RecordTransform interface {
	Transform(Record) (Record, bool)
}

// filterOps holds the comparisons a filter rule accepts.
var filterOps = map[string]func(v, want any) bool{
	"eq":       func(v, want any) bool { return fmt.Sprint(v) == fmt.Sprint(want) },
	"neq":      func(v, want any) bool { return fmt.Sprint(v) != fmt.Sprint(want) },
	"contains": func(v, want any) bool { return strings.Contains(fmt.Sprint(v), fmt.Sprint(want)) },
	"gt":       func(v, want any) bool { return compareValues(v, want) > 0 },
	"gte":      func(v, want any) bool { return compareValues(v, want) >= 0 },
	"lt":       func(v, want any) bool { return compareValues(v, want) < 0 },
	"lte":      func(v, want any) bool { return compareValues(v, want) <= 0 },
}

// FilterTransform keeps records whose Field compares true against Value.
// Records missing the field are dropped.
type FilterTransform struct {
	Field string
	Op    string
	Value any
}

func (t *FilterTransform) Transform(r Record) (Record, bool) {
	if r.Missing(t.Field) {
		return r, false
	}
	match, ok := filterOps[t.Op]
	if !ok {
		return r, false
	}
	return r, match(r.Data[t.Field], t.Value)
}

// RenameTransform moves values from old to new field names.
// Renames are applied in old-name order so chained mappings are deterministic.
type RenameTransform struct {
	Mapping map[string]string
}

func (t *RenameTransform) Transform(r Record) (Record, bool) {
	moved := make(map[string]any, len(t.Mapping))
	for _, old := range sortedKeys(t.Mapping) {
		if v, ok := r.Data[old]; ok {
			moved[t.Mapping[old]] = v
			delete(r.Data, old)
		}
	}
	for k, v := range moved {
		r.Data[k] = v
	}
	return r, true
}

// SelectTransform keeps only Fields.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(r Record) (Record, bool) {
	kept := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		if v, ok := r.Data[f]; ok {
			kept[f] = v
		}
	}
	return Record{Data: kept}, true
}

// DedupeTransform keeps the first record for each combination of Keys.
// With no keys every field takes part.
type DedupeTransform struct {
	Keys []string
	seen map[string]struct{}
}

func NewDedupeTransform(keys ...string) *DedupeTransform {
	return &DedupeTransform{Keys: keys, seen: make(map[string]struct{})}
}

func (t *DedupeTransform) Transform(r Record) (Record, bool) {
	keys := t.Keys
	if len(keys) == 0 {
		keys = sortedKeys(r.Data)
	}
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v\x1f", k, r.Data[k])
	}
	id := b.String()
	if _, dup := t.seen[id]; dup {
		return r, false
	}
	t.seen[id] = struct{}{}
	return r, true
}

// LimitTransform keeps the first Count records.
type LimitTransform struct {
	Count int
	seen  int
}

func NewLimitTransform(count int) *LimitTransform {
	return &LimitTransform{Count: count}
}

func (t *LimitTransform) Transform(r Record) (Record, bool) {
	t.seen++
	return r, t.seen <= t.Count
}

// casts converts a present value to a target kind. A failed conversion
// leaves the value missing.
var casts = map[string]func(any) any{
	"number": func(v any) any {
		if f, ok := toFloatSafe(v); ok {
			return f
		}
		return nil
	},
	"string": func(v any) any { return fmt.Sprint(v) },
	"bool":   func(v any) any { return toBool(v) },
	"date": func(v any) any {
		if d, err := ParseDate(v, ""); err == nil {
			return d
		}
		return nil
	},
}

// TypeCastTransform converts Field to CastType ("number", "string", "bool" or "date").
type TypeCastTransform struct {
	Field    string
	CastType string
}

func (t *TypeCastTransform) Transform(r Record) (Record, bool) {
	if r.Missing(t.Field) {
		return r, true
	}
	if cast, ok := casts[t.CastType]; ok {
		r.Data[t.Field] = cast(r.Data[t.Field])
	}
	return r, true
}

// ApplyRecordTransforms runs ts in order and stops at the first one that drops r.
func ApplyRecordTransforms(r Record, ts []RecordTransform) (Record, bool) {
	keep := true
	for _, t := range ts {
		if r, keep = t.Transform(r); !keep {
			break
		}
	}
	return r, keep
}
