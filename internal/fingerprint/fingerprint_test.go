package fingerprint

import (
	"testing"

	"github.com/odavl/autopilot/internal/model"
	"github.com/stretchr/testify/assert"
)

func baseFinding() model.Finding {
	return model.Finding{
		DetectorID: "tsc",
		Severity:   model.SeverityHigh,
		Category:   model.CategorySyntax,
		File:       "src/app.ts",
		Line:       42,
		RuleID:     "TS2322",
		Message:    "type mismatch",
		Snippet:    "const x: number = 'a'",
	}
}

func TestGenerateIsPure(t *testing.T) {
	f := baseFinding()
	a, tierA := Generate(f)
	b, tierB := Generate(f)
	assert.Equal(t, a, b)
	assert.Equal(t, tierA, tierB)
	assert.NotEmpty(t, a)
}

func TestGenerateUsesContentTierWhenPossible(t *testing.T) {
	f := baseFinding()
	_, tier := Generate(f)
	assert.Equal(t, TierContent, tier)
}

func TestGenerateFallsBackToLocationTier(t *testing.T) {
	f := baseFinding()
	f.Snippet = ""
	fp, tier := Generate(f)
	assert.Equal(t, TierLocation, tier)
	assert.Len(t, fp, 16)
}

func TestGenerateFallsBackToMessageTier(t *testing.T) {
	f := baseFinding()
	f.Snippet = ""
	f.RuleID = ""
	fp, tier := Generate(f)
	assert.Equal(t, TierMessage, tier)
	assert.Len(t, fp, 16)
	assert.NotEmpty(t, fp)
}

func TestGenerateDiffersOnLine(t *testing.T) {
	f := baseFinding()
	f.Snippet = ""
	f.RuleID = ""
	a, _ := Generate(f)
	f.Line = 43
	b, _ := Generate(f)
	assert.NotEqual(t, a, b)
}

func TestNormalizeFileIsSlashed(t *testing.T) {
	assert.Equal(t, "a/b/c.go", NormalizeFile("a/b/c.go"))
	assert.Equal(t, "a/b.go", NormalizeFile("a/./b.go"))
}
