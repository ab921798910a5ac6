// Package recipe implements the Recipe Registry & Scorer (C4): holding
// recipe definitions, proposing recipes per FixCandidate, and computing the
// ML+trust+fusion score with a safety classification.
package recipe

import (
	"sort"

	"github.com/odavl/autopilot/internal/fusion"
	"github.com/odavl/autopilot/internal/model"
)

// Registry holds the fixed set of known recipes.
type Registry struct {
	recipes map[string]model.Recipe
}

// NewRegistry builds a registry from recipe definitions.
func NewRegistry(recipes ...model.Recipe) *Registry {
	byID := make(map[string]model.Recipe, len(recipes))
	for _, r := range recipes {
		byID[r.ID] = r
	}
	return &Registry{recipes: byID}
}

// Get returns a recipe by id.
func (r *Registry) Get(id string) (model.Recipe, bool) {
	rec, ok := r.recipes[id]
	return rec, ok
}

// ProposeFor returns the recipes registered for a FixCandidate's category,
// using the intake.RecipesForCategory table, filtered to ones actually
// present in the registry.
func (r *Registry) ProposeFor(candidate model.FixCandidate) []model.Recipe {
	var proposed []model.Recipe
	for _, id := range candidate.PotentialRecipes {
		if rec, ok := r.recipes[id]; ok {
			proposed = append(proposed, rec)
		}
	}
	return proposed
}

// MLPredictor is the pluggable ML confidence source. When it reports ok=false,
// Score falls back to HeuristicMLScore.
type MLPredictor func(recipeID string) (score float64, ok bool)

// TrustLookup resolves a recipe's current trust value; recipe package stays
// decoupled from the trust store's persistence so it can be unit tested in
// isolation (the Session Controller wires internal/trust's Store.Trust here).
type TrustLookup func(recipeID string) (trust float64, firstSight bool)

// HeuristicMLScore is the conservative fallback when no predictor is
// plugged in: 0.5 for unknown recipes, tapered by historic failure count.
func HeuristicMLScore(historicFailures int) float64 {
	score := 0.5 - 0.05*float64(historicFailures)
	if score < 0.1 {
		return 0.1
	}
	return score
}

// Thresholds are the scorer's CI tuning knobs.
type Thresholds struct {
	MinMLScore     float64
	MinTrustScore  float64
	MinFusionScore float64
	MaxRecipes     int
}

// DefaultThresholds are permissive defaults suitable for local/dev use.
var DefaultThresholds = Thresholds{
	MinMLScore:     0.0,
	MinTrustScore:  0.0,
	MinFusionScore: 0.0,
	MaxRecipes:     10,
}

// Score computes a RecipeScore for one recipe, given its fusion inputs.
func Score(recipeID string, ml MLPredictor, trust TrustLookup, historicFailures int, fusionIn fusion.Inputs) model.RecipeScore {
	mlScore, ok := ml(recipeID)
	if !ok {
		mlScore = HeuristicMLScore(historicFailures)
	}

	trustScore, firstSight := trust(recipeID)
	if firstSight {
		trustScore = 0.5
	}

	fusionResult := fusion.Combine(fusionIn)

	finalScore := 0.6*fusionResult.FusionScore + 0.4*trustScore

	safety := classify(finalScore, trustScore)

	justification := append([]string{}, fusionResult.Reasoning...)
	justification = append(justification, safetyJustification(safety, finalScore, trustScore))

	return model.RecipeScore{
		RecipeID:      recipeID,
		MLScore:       mlScore,
		TrustScore:    trustScore,
		FusionScore:   fusionResult.FusionScore,
		FinalScore:    finalScore,
		SafetyClass:   safety,
		Justification: justification,
	}
}

// classify maps a final score and trust level to a safety class.
func classify(finalScore, trust float64) model.SafetyClass {
	switch {
	case finalScore >= 0.8 && trust >= 0.7:
		return model.SafetySafe
	case finalScore < 0.4 || trust < 0.3:
		return model.SafetyUnsafe
	default:
		return model.SafetyReview
	}
}

func safetyJustification(safety model.SafetyClass, finalScore, trust float64) string {
	switch safety {
	case model.SafetySafe:
		return "finalScore and trust both clear the safe thresholds"
	case model.SafetyUnsafe:
		return "finalScore or trust below the unsafe floor"
	default:
		return "between safe and unsafe thresholds, requires manual review"
	}
}

// FilterAndRank applies the CI tuning knobs and returns the top MaxRecipes
// scores, sorted by FinalScore descending.
func FilterAndRank(scores []model.RecipeScore, t Thresholds) []model.RecipeScore {
	var kept []model.RecipeScore
	for _, s := range scores {
		if s.MLScore < t.MinMLScore || s.TrustScore < t.MinTrustScore || s.FusionScore < t.MinFusionScore {
			continue
		}
		kept = append(kept, s)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].FinalScore > kept[j].FinalScore
	})

	if t.MaxRecipes > 0 && len(kept) > t.MaxRecipes {
		kept = kept[:t.MaxRecipes]
	}
	return kept
}
