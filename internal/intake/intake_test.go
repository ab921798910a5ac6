package intake

import (
	"testing"

	"github.com/odavl/autopilot/internal/model"
	"github.com/odavl/autopilot/internal/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCandidatesSortsByPriorityDescending(t *testing.T) {
	findings := []model.Finding{
		{DetectorID: "d", Severity: model.SeverityLow, Category: model.CategorySyntax, File: "a.ts", Line: 1, Message: "low"},
		{DetectorID: "d", Severity: model.SeverityCritical, Category: model.CategorySecurity, File: "security/b.ts", Line: 1, Message: "crit"},
	}

	candidates := BuildCandidates(findings, taxonomy.DefaultRiskWeights)
	require.Len(t, candidates, 2)
	assert.Equal(t, model.SeverityCritical, candidates[0].Finding.Severity)
	assert.Greater(t, candidates[0].Priority, candidates[1].Priority)
}

func TestBuildCandidatesTieBreaksBySeverityThenRiskThenFile(t *testing.T) {
	findings := []model.Finding{
		{DetectorID: "d", Severity: model.SeverityHigh, Category: model.CategorySyntax, File: "z.ts", Line: 1, Message: "m"},
		{DetectorID: "d", Severity: model.SeverityHigh, Category: model.CategorySyntax, File: "a.ts", Line: 1, Message: "m"},
	}

	candidates := BuildCandidates(findings, taxonomy.DefaultRiskWeights)
	require.Len(t, candidates, 2)
	assert.Equal(t, "a.ts", candidates[0].Finding.File)
}

func TestBuildCandidatesPopulatesRecipesAndLOC(t *testing.T) {
	findings := []model.Finding{
		{DetectorID: "d", Severity: model.SeverityMedium, Category: model.CategoryCircular, File: "a.ts", Line: 1, Message: "m"},
	}
	candidates := BuildCandidates(findings, taxonomy.DefaultRiskWeights)
	require.Len(t, candidates, 1)
	assert.Equal(t, []string{"fix-circular-deps"}, candidates[0].PotentialRecipes)
	assert.Equal(t, 25, candidates[0].EstimatedLOC)
}

func TestCalculatePriorityFormula(t *testing.T) {
	f := model.Finding{Severity: model.SeverityCritical, Category: model.CategorySecurity}
	// 0.4*40 + 0.3*40 + 0.3*(0.9*100) = 16 + 12 + 27 = 55
	assert.InDelta(t, 55.0, calculatePriority(f, 0.9), 0.001)
}
