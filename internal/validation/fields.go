package validation

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/models"
)

// Result maps field names to error messages. A field without an entry is valid.
type Result map[string]string

// HasErrors reports whether any field failed
func (r Result) HasErrors() bool {
	return len(r) > 0
}

// Fields returns the failing field names in sorted order
func (r Result) Fields() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToAppError converts a failing result to an AppError, or nil when valid
func (r Result) ToAppError() *errors.AppError {
	if !r.HasErrors() {
		return nil
	}
	names := r.Fields()
	details := make([]string, 0, len(names))
	for _, name := range names {
		details = append(details, r[name])
	}

	appErr := errors.ValidationError(r[names[0]])
	appErr.WithDetails(strings.Join(details, "; "))
	appErr.WithContext("field_errors", map[string]string(r))
	return appErr
}

// Date layouts accepted for date fields
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	time.RFC3339,
}

var (
	patternCache sync.Map // pattern string -> *regexp.Regexp, nil when invalid
)

func compilePattern(pattern string) *regexp.Regexp {
	if cached, ok := patternCache.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	patternCache.Store(pattern, re)
	return re
}

// PatternError reports whether a field's pattern fails to compile. Templates
// with broken patterns are accepted; the pattern check is then skipped.
func PatternError(field models.FieldSpec) error {
	if field.Validation.Pattern == "" {
		return nil
	}
	_, err := regexp.Compile("(?i)" + field.Validation.Pattern)
	return err
}

// ValidateField checks a value against a field spec and returns the first
// failure, or "" when the value is valid. Checks run in the order required,
// minLength, maxLength, pattern, type.
func ValidateField(field models.FieldSpec, value string) string {
	label := field.DisplayLabel()
	rules := field.Validation
	trimmed := strings.TrimSpace(value)

	if trimmed == "" {
		if field.Required {
			return fmt.Sprintf("%s is required", label)
		}
		return ""
	}

	length := utf8.RuneCountInString(trimmed)
	if rules.MinLength > 0 && length < rules.MinLength {
		return fmt.Sprintf("%s must be at least %d characters", label, rules.MinLength)
	}
	if rules.MaxLength > 0 && length > rules.MaxLength {
		return fmt.Sprintf("%s must not exceed %d characters", label, rules.MaxLength)
	}

	if rules.Pattern != "" {
		if re := compilePattern(rules.Pattern); re != nil && !re.MatchString(trimmed) {
			if rules.CustomMessage != "" {
				return rules.CustomMessage
			}
			return fmt.Sprintf("%s has an invalid format", label)
		}
	}

	return checkType(field.Type, trimmed)
}

func checkType(kind, value string) string {
	switch kind {
	case models.FieldEmail:
		if !Patterns.Email.MatchString(value) {
			return "Please enter a valid email address"
		}
	case models.FieldNumber:
		cleaned := strings.ReplaceAll(value, ",", "")
		n, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return "Must be a valid number"
		}
	case models.FieldDate:
		if _, ok := ParseDate(value); !ok {
			return "Please enter a valid date"
		}
	}
	return ""
}

// ParseDate accepts the date layouts used in templates
func ParseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidateAll runs ValidateField over every field of a form
func ValidateAll(fields []models.FieldSpec, values map[string]string) Result {
	result := make(Result)
	for _, field := range fields {
		if msg := ValidateField(field, values[field.Name]); msg != "" {
			result[field.Name] = msg
		}
	}
	return result
}

// LiveState is the inline feedback for a field being edited
type LiveState struct {
	Error     string `json:"error,omitempty"`
	ShowError bool   `json:"show_error"`
}

// LiveValidate validates a field but only asks for the error to be shown
// once the user has touched it.
func LiveValidate(field models.FieldSpec, value string, touched bool) LiveState {
	msg := ValidateField(field, value)
	return LiveState{Error: msg, ShowError: touched && msg != ""}
}

// Preview describes a value after validation and formatting
type Preview struct {
	Valid     bool   `json:"valid"`
	Formatted string `json:"formatted"`
	Error     string `json:"error,omitempty"`
}

// PreviewValue validates a value and shows how it would be stored
func PreviewValue(field models.FieldSpec, value string) Preview {
	msg := ValidateField(field, value)
	formatted := value
	if value != "" && field.Type == models.FieldEmail {
		formatted = FormatEmail(value)
	}
	return Preview{Valid: msg == "", Formatted: formatted, Error: msg}
}
