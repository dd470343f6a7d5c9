package engine

import (
	"log/slog"
	"strconv"
	"strings"
)

// EvaluateCondition compares a slot value against a literal condition value.
//
// Coercion ladder:
//   - a boolean-like condition value ("true"/"false", case-insensitive)
//     coerces both sides to boolean; only == and != apply, anything else is
//     false;
//   - numeric operators require both sides to parse as numbers;
//   - == and != compare stringified values (loose equality);
//   - contains/!contains do substring matching on the stringified slot value,
//     a nil slot value contains nothing.
//
// Unknown operators log a warning and evaluate false.
func EvaluateCondition(slotValue any, operator, conditionValue string) bool {
	if isBooleanLiteral(conditionValue) {
		slotBool := strings.EqualFold(Stringify(slotValue), "true")
		condBool := strings.EqualFold(strings.TrimSpace(conditionValue), "true")
		switch operator {
		case "==":
			return slotBool == condBool
		case "!=":
			return slotBool != condBool
		default:
			return false
		}
	}

	switch operator {
	case ">", "<", ">=", "<=":
		left, leftOK := toNumber(slotValue)
		right, rightOK := toNumber(conditionValue)
		if !leftOK || !rightOK {
			return false
		}
		switch operator {
		case ">":
			return left > right
		case "<":
			return left < right
		case ">=":
			return left >= right
		default:
			return left <= right
		}
	case "==":
		return Stringify(slotValue) == conditionValue
	case "!=":
		return Stringify(slotValue) != conditionValue
	case "contains":
		if slotValue == nil {
			return false
		}
		return strings.Contains(Stringify(slotValue), conditionValue)
	case "!contains":
		if slotValue == nil {
			return true
		}
		return !strings.Contains(Stringify(slotValue), conditionValue)
	default:
		slog.Warn("unknown condition operator", "operator", operator)
		return false
	}
}

func isBooleanLiteral(s string) bool {
	s = strings.TrimSpace(s)
	return strings.EqualFold(s, "true") || strings.EqualFold(s, "false")
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		return 0, false
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case nil:
		return 0, false
	default:
		f, err := strconv.ParseFloat(Stringify(v), 64)
		return f, err == nil
	}
}
