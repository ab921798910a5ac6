package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskWeightLongestPrefixWins(t *testing.T) {
	rules := []RiskWeightRule{
		{Pattern: "security/", Weight: 0.9},
		{Pattern: "security/legacy/", Weight: 0.95},
	}
	assert.Equal(t, 0.95, RiskWeight("security/legacy/auth.ts", rules))
	assert.Equal(t, 0.9, RiskWeight("security/auth.ts", rules))
}

func TestRiskWeightDefaults(t *testing.T) {
	assert.Equal(t, defaultRiskWeight, RiskWeight("src/app.ts", DefaultRiskWeights))
}

func TestRiskWeightTestFilesAreLow(t *testing.T) {
	assert.Equal(t, 0.2, RiskWeight("src/app.test.ts", DefaultRiskWeights))
	assert.Equal(t, 0.2, RiskWeight("security/auth_test.go", DefaultRiskWeights))
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, "circular", string(InferCategory("dep-checker", "", "circular import detected")))
	assert.Equal(t, "security", string(InferCategory("", "SEC001", "")))
	assert.Equal(t, "syntax", string(InferCategory("tsc", "TS2322", "type mismatch")))
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, "critical", string(NormalizeSeverity("critical")))
	assert.Equal(t, "high", string(NormalizeSeverity("error")))
	assert.Equal(t, "high", string(NormalizeSeverity("3")))
	assert.Equal(t, "medium", string(NormalizeSeverity("warning")))
	assert.Equal(t, "info", string(NormalizeSeverity("")))
}
