package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doclast/docfill/internal/models"
)

func TestFormatDuration(t *testing.T) {
	tests := map[string]string{
		"3mo":       "3 months",
		"1 Weeks":   "1 week",
		"2y":        "2 years",
		"1 d":       "1 day",
		"12 months": "12 months",
		"ongoing":   "ongoing",
		"":          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatDuration(in), in)
	}
}

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, "50%", FormatPercentage("50"))
	assert.Equal(t, "33.33%", FormatPercentage("33.33 %"))
	assert.Equal(t, "100%", FormatPercentage("150"))
	assert.Equal(t, "abc", FormatPercentage("abc"))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$5,000", FormatMoney("5,000"))
	assert.Equal(t, "$150 per hour", FormatMoney("$150   per hour"))
	assert.Equal(t, "negotiable", FormatMoney("negotiable"))
}

func TestHint(t *testing.T) {
	withPattern := func(p string) models.FieldSpec {
		return models.FieldSpec{Hint: "fallback", Validation: models.FieldRules{Pattern: p}}
	}
	assert.Equal(t, "fallback", Hint(models.FieldSpec{Hint: "fallback"}))
	assert.Contains(t, Hint(withPattern(`^\d+\s+(day|days|week|weeks)$`)), "time unit")
	assert.Contains(t, Hint(withPattern(`^(100|[1-9]?\d)%?$`)), "0-100")
	assert.Contains(t, Hint(withPattern(`^\$?[0-9,]+$`)), "dollar amount")
	assert.Equal(t, "fallback", Hint(withPattern(`^[A-Z]{2}$`)))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "scriptalert(1)/script", SanitizeInput(models.FieldSpec{}, "<script>alert(1)</script>"))
	assert.Equal(t, "a@b.co", SanitizeInput(models.FieldSpec{Type: models.FieldEmail}, " A@B.co "))
}

func TestPatterns(t *testing.T) {
	assert.True(t, Patterns.Money.MatchString("$5,000/month"))
	assert.True(t, Patterns.NoticePeriod.MatchString("30 days written notice"))
	assert.True(t, Patterns.FlexibleDuration.MatchString("Until Completion"))
	assert.False(t, Patterns.Percentage.MatchString("101"))
}
