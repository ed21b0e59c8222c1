package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/doclast/docfill/internal/models"
)

// Patterns are the regular expressions template authors commonly reference
var Patterns = struct {
	Email            *regexp.Regexp
	Name             *regexp.Regexp
	CompanyName      *regexp.Regexp
	Percentage       *regexp.Regexp
	Duration         *regexp.Regexp
	FlexibleDuration *regexp.Regexp
	Money            *regexp.Regexp
	NoticePeriod     *regexp.Regexp
}{
	Email:            regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`),
	Name:             regexp.MustCompile(`^[a-zA-Z\s.,'-]+$`),
	CompanyName:      regexp.MustCompile(`^[a-zA-Z0-9\s.,&'-]+$`),
	Percentage:       regexp.MustCompile(`^(100|[1-9]?\d)\s*%?$`),
	Duration:         regexp.MustCompile(`(?i)^\d+\s+(day|days|week|weeks|month|months|year|years)$`),
	FlexibleDuration: regexp.MustCompile(`(?i)^(\d+\s+(day|days|week|weeks|month|months|year|years)|ongoing|project-based|indefinite|until completion)$`),
	Money:            regexp.MustCompile(`(?i)^\$?[0-9,]+(\.\d{2})?\s*(/|per)?\s*(hour|month|year|week|project|day)?$`),
	NoticePeriod:     regexp.MustCompile(`(?i)^\d+\s+(day|days|week|weeks|month|months)\s*(written\s+notice|notice)?$`),
}

var (
	durationToken = regexp.MustCompile(`(?i)(\d+)\s*(days|day|d|weeks|week|wk|w|months|month|mo|m|years|year|yr|y)\b`)
	durationUnits = map[string]string{
		"d": "day", "day": "day", "days": "day",
		"w": "week", "wk": "week", "week": "week", "weeks": "week",
		"m": "month", "mo": "month", "month": "month", "months": "month",
		"y": "year", "yr": "year", "year": "year", "years": "year",
	}
	nonNumeric = regexp.MustCompile(`[^\d.]`)
	leadDigit  = regexp.MustCompile(`^\d`)
)

// FormatDuration normalises "3mo" or "1 Weeks" style input to "3 months" / "1 week"
func FormatDuration(value string) string {
	if value == "" {
		return value
	}
	return durationToken.ReplaceAllStringFunc(strings.ToLower(value), func(match string) string {
		parts := durationToken.FindStringSubmatch(match)
		unit := durationUnits[parts[2]]
		n, _ := strconv.Atoi(parts[1])
		if n != 1 {
			unit += "s"
		}
		return parts[1] + " " + unit
	})
}

// FormatPercentage clamps a numeric value to 0-100 and appends "%"
func FormatPercentage(value string) string {
	if value == "" {
		return value
	}
	num, err := strconv.ParseFloat(nonNumeric.ReplaceAllString(value, ""), 64)
	if err != nil {
		return value
	}
	switch {
	case num > 100:
		return "100%"
	case num < 0:
		return "0%"
	}
	return strconv.FormatFloat(num, 'f', -1, 64) + "%"
}

// FormatMoney prefixes a dollar sign to amounts such as "5,000 per month"
func FormatMoney(value string) string {
	if value == "" {
		return value
	}
	cleaned := strings.TrimSpace(strings.TrimPrefix(value, "$"))
	if !leadDigit.MatchString(cleaned) {
		return value
	}
	parts := strings.Fields(cleaned)
	if len(parts) == 1 {
		return "$" + parts[0]
	}
	return fmt.Sprintf("$%s %s", parts[0], strings.Join(parts[1:], " "))
}

// FormatEmail lowercases and trims an address
func FormatEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Hint returns input guidance for a field, derived from its pattern when the
// pattern is one of the well-known shapes.
func Hint(field models.FieldSpec) string {
	pattern := field.Validation.Pattern
	switch {
	case pattern == "":
		return field.Hint
	case strings.Contains(pattern, "day|days|week|weeks"):
		return "Format: number + time unit (e.g., 3 months, 6 weeks)"
	case strings.Contains(pattern, `100|[1-9]?\d`):
		return "Format: 0-100 with or without % sign (e.g., 50%, 33.33)"
	case strings.Contains(pattern, `\$`):
		return "Format: dollar amount with optional frequency (e.g., $5,000/month, $150 per hour)"
	case strings.Contains(pattern, "notice"):
		return "Format: number + time unit + 'notice' (e.g., 30 days written notice)"
	}
	return field.Hint
}

// SanitizeInput strips angle brackets from free text and normalises emails
func SanitizeInput(field models.FieldSpec, value string) string {
	if value == "" {
		return value
	}
	sanitized := strings.NewReplacer("<", "", ">", "").Replace(value)
	if field.Type == models.FieldEmail {
		sanitized = FormatEmail(sanitized)
	}
	return sanitized
}
