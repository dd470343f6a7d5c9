package engine

import (
	"log/slog"
	"regexp"
	"time"

	"chatflow/scenario"
)

// ValidationResult reports whether input satisfied a rule, with a
// user-facing message when it did not.
type ValidationResult struct {
	Valid   bool
	Message string
}

// Rule type names as authored in scenario definitions.
const (
	RuleEmail       = "email"
	RulePhoneNumber = "phone number"
	RuleCustom      = "custom"
	RuleTodayAfter  = "today after"
	RuleTodayBefore = "today before"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\d{2,3}-\d{3,4}-\d{4}$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

const dateLayout = "2006-01-02"

// Overridable for date-boundary tests.
var now = time.Now

// ValidateInput checks user input against a slot-filling rule. A nil rule is
// always valid. Date rules require YYYY-MM-DD input; anything else is a
// format failure regardless of the rule's own window.
func ValidateInput(value string, rule *scenario.ValidationRule, language string) ValidationResult {
	if rule == nil {
		return ValidationResult{Valid: true}
	}

	switch rule.Type {
	case RuleEmail:
		if !emailPattern.MatchString(value) {
			return invalid(language, msgInvalidEmail)
		}
	case RulePhoneNumber:
		if !phonePattern.MatchString(value) {
			return invalid(language, msgInvalidPhone)
		}
	case RuleCustom:
		return validateCustom(value, rule, language)
	case RuleTodayAfter:
		d, ok := parseDate(value)
		if !ok {
			return invalid(language, msgInvalidDateFormat)
		}
		// Inclusive: today itself passes.
		if d.Before(today()) {
			return invalid(language, msgDateMustNotBePast)
		}
	case RuleTodayBefore:
		d, ok := parseDate(value)
		if !ok {
			return invalid(language, msgInvalidDateFormat)
		}
		if d.After(today()) {
			return invalid(language, msgDateMustNotBeFuture)
		}
	case "":
		// No rule type, nothing to check.
	default:
		slog.Warn("unknown validation rule type", "type", rule.Type)
	}
	return ValidationResult{Valid: true}
}

func validateCustom(value string, rule *scenario.ValidationRule, language string) ValidationResult {
	if rule.Regex != "" {
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			slog.Warn("invalid custom validation regex", "regex", rule.Regex, "error", err)
			return ValidationResult{Valid: true}
		}
		if !re.MatchString(value) {
			return invalid(language, msgInvalidFormat)
		}
		return ValidationResult{Valid: true}
	}

	if rule.StartDate != "" || rule.EndDate != "" {
		d, ok := parseDate(value)
		if !ok {
			return invalid(language, msgInvalidDateFormat)
		}
		if rule.StartDate != "" {
			if start, ok := parseDate(rule.StartDate); ok && d.Before(start) {
				return invalid(language, msgDateOutOfRange)
			}
		}
		if rule.EndDate != "" {
			if end, ok := parseDate(rule.EndDate); ok && d.After(end) {
				return invalid(language, msgDateOutOfRange)
			}
		}
	}
	return ValidationResult{Valid: true}
}

func parseDate(value string) (time.Time, bool) {
	if !datePattern.MatchString(value) {
		return time.Time{}, false
	}
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// today returns the current date at 00:00 UTC for day-granularity comparison.
func today() time.Time {
	y, m, d := now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func invalid(language, key string) ValidationResult {
	return ValidationResult{Valid: false, Message: validationMessage(language, key)}
}

// Validation message keys.
const (
	msgInvalidEmail        = "invalid_email"
	msgInvalidPhone        = "invalid_phone"
	msgInvalidFormat       = "invalid_format"
	msgInvalidDateFormat   = "invalid_date_format"
	msgDateOutOfRange      = "date_out_of_range"
	msgDateMustNotBePast   = "date_must_not_be_past"
	msgDateMustNotBeFuture = "date_must_not_be_future"
)

var validationMessages = map[string]map[string]string{
	"en": {
		msgInvalidEmail:        "Please enter a valid email address.",
		msgInvalidPhone:        "Please enter a valid phone number (e.g. 010-1234-5678).",
		msgInvalidFormat:       "The input format is not valid.",
		msgInvalidDateFormat:   "Please enter a date in YYYY-MM-DD format.",
		msgDateOutOfRange:      "The date is outside the allowed range.",
		msgDateMustNotBePast:   "Please choose today or a later date.",
		msgDateMustNotBeFuture: "Please choose today or an earlier date.",
	},
	"ko": {
		msgInvalidEmail:        "올바른 이메일 주소를 입력해 주세요.",
		msgInvalidPhone:        "올바른 전화번호를 입력해 주세요. (예: 010-1234-5678)",
		msgInvalidFormat:       "입력 형식이 올바르지 않습니다.",
		msgInvalidDateFormat:   "날짜를 YYYY-MM-DD 형식으로 입력해 주세요.",
		msgDateOutOfRange:      "허용된 기간을 벗어난 날짜입니다.",
		msgDateMustNotBePast:   "오늘 이후의 날짜를 선택해 주세요.",
		msgDateMustNotBeFuture: "오늘 이전의 날짜를 선택해 주세요.",
	},
}

func validationMessage(language, key string) string {
	if msgs, ok := validationMessages[language]; ok {
		if m, ok := msgs[key]; ok {
			return m
		}
	}
	return validationMessages["en"][key]
}
