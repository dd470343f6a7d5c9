package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Interpolate replaces every {key} occurrence in template with the stringified
// slot value, leaving placeholders for missing keys untouched. Single literal
// pass: substituted values are never re-scanned, so interpolation is
// idempotent once no matchable keys remain.
func Interpolate(template string, slots map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		v, ok := slots[key]
		if !ok {
			return match
		}
		return Stringify(v)
	})
}

// InterpolateValue applies Interpolate recursively through JSON-shaped values
// (maps, arrays, strings), returning a new value. Used for API request bodies
// and headers. Non-string scalars pass through unchanged.
func InterpolateValue(v any, slots map[string]any) any {
	switch t := v.(type) {
	case string:
		return Interpolate(t, slots)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = InterpolateValue(vv, slots)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = InterpolateValue(vv, slots)
		}
		return out
	default:
		return v
	}
}

// Stringify renders a slot value for templates and comparisons. Objects and
// arrays serialize as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		if data, err := json.Marshal(t); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", t)
	}
}
