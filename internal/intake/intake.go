// Package intake implements Intake & Taxonomy (C3): mapping raw Findings to
// prioritized FixCandidates.
package intake

import (
	"sort"

	"github.com/odavl/autopilot/internal/fingerprint"
	"github.com/odavl/autopilot/internal/model"
	"github.com/odavl/autopilot/internal/taxonomy"
)

// RecipesForCategory is the fixed category→recipe-id mapping table the
// registry consults. It lives here because Intake is the first stage
// that needs to populate FixCandidate.PotentialRecipes.
var RecipesForCategory = map[model.Category][]string{
	model.CategorySyntax:       {"fix-syntax"},
	model.CategoryImport:       {"fix-imports"},
	model.CategoryBuild:        {"fix-build"},
	model.CategorySecurity:     {"fix-security"},
	model.CategoryPerformance:  {"fix-performance"},
	model.CategoryCircular:     {"fix-circular-deps"},
	model.CategoryIsolation:    {"fix-isolation"},
	model.CategoryNetwork:      {"fix-network"},
	model.CategoryPackageDrift: {"fix-package-drift"},
}

// BuildCandidates maps a findings list to FixCandidates, sorted by priority
// descending, ties broken by severity then risk weight then lexicographic
// file order.
func BuildCandidates(findings []model.Finding, rules []taxonomy.RiskWeightRule) []model.FixCandidate {
	candidates := make([]model.FixCandidate, 0, len(findings))

	for _, f := range findings {
		normalized := fingerprint.NormalizeFile(f.File)
		weight := taxonomy.RiskWeight(normalized, rules)

		fp, _ := fingerprint.Generate(f)
		candidates = append(candidates, model.FixCandidate{
			ID:               fp,
			Finding:          f,
			RiskWeight:       weight,
			PotentialRecipes: RecipesForCategory[f.Category],
			Priority:         calculatePriority(f, weight),
			EstimatedLOC:     estimateLOCChange(f.Category),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Finding.Severity != b.Finding.Severity {
			return severityRank(a.Finding.Severity) > severityRank(b.Finding.Severity)
		}
		if a.RiskWeight != b.RiskWeight {
			return a.RiskWeight > b.RiskWeight
		}
		return a.Finding.File < b.Finding.File
	})

	return candidates
}

// calculatePriority implements the priority formula:
// priority = 0.4*severityScore + 0.3*categoryScore + 0.3*(riskWeight*100)
func calculatePriority(f model.Finding, riskWeight float64) float64 {
	severityScore := taxonomy.SeverityScore[f.Severity]
	categoryScore := taxonomy.CategoryScore[f.Category]
	return 0.4*severityScore + 0.3*categoryScore + 0.3*(riskWeight*100)
}

// estimateLOCChange looks up the per-category LOC table.
func estimateLOCChange(c model.Category) int {
	if loc, ok := taxonomy.EstimatedLOC[c]; ok {
		return loc
	}
	return 5
}

var severityOrder = []model.Severity{
	model.SeverityInfo, model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical,
}

func severityRank(s model.Severity) int {
	for i, sev := range severityOrder {
		if sev == s {
			return i
		}
	}
	return -1
}
