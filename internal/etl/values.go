package etl

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ── Value helpers ──────────────────────────────────────────

// naTokens are the cell contents read as missing values.
var naTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"-NaN": true,
	"-nan": true,
	"null": true,
	"NULL": true,
	"None": true,
	"#N/A": true,
	"<NA>": true,
}

// InferValue parses a raw text cell as a number or bool.
// Missing tokens become nil; anything else stays a string.
func InferValue(s string) any {
	s = strings.TrimSpace(s)
	if naTokens[s] {
		return nil
	}

	// Try number.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}

	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}

	return s
}

func inferType(v any) string {
	if v == nil {
		return "text"
	}
	if _, ok := v.(time.Time); ok {
		return "datetime"
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Float64, reflect.Float32, reflect.Int, reflect.Int64, reflect.Int32:
		return "number"
	case reflect.Bool:
		return "boolean"
	default:
		return "text"
	}
}

func toFloat(v any) float64 {
	f, _ := toFloatSafe(v)
	return f
}

func toFloatSafe(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		lower := strings.ToLower(b)
		return lower == "true" || lower == "yes" || lower == "1"
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}

func compareValues(a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	fa, aOk := toFloatSafe(a)
	fb, bOk := toFloatSafe(b)
	if aOk && bOk {
		if fa < fb {
			return -1
		}
		if fa > fb {
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// dateLayouts are tried in order when a rule has no explicit layout.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 03:04:05 PM",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"2006/01/02",
	"2006-01",
}

// ParseDate parses v as a date. An empty layout tries the common layouts in order.
func ParseDate(v any, layout string) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		s := strings.TrimSpace(d)
		if layout != "" {
			return time.Parse(layout, s)
		}
		for _, l := range dateLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	case float64:
		// Bare years such as 2021.
		if d == float64(int(d)) && d >= 1000 && d <= 9999 {
			return time.Date(int(d), 1, 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %v", v)
}
