package recipe

import "github.com/odavl/autopilot/internal/model"

// BuiltinRecipes returns the fixed recipe definitions the registry is
// seeded with (the category-to-recipe-id mapping lives in
// internal/intake.RecipesForCategory). Each recipe declares one action whose
// Kind names the transform internal/recipeexec knows how to apply; Files is
// left empty here since the concrete target set is only known once a recipe
// is bound to a FixCandidate (model.SelectedRecipe.Files).
func BuiltinRecipes() []model.Recipe {
	return []model.Recipe{
		{ID: "fix-syntax", Name: "Strip stray TODO/FIXME markers", Actions: []model.RecipeAction{{Kind: "strip-todo-marker"}}},
		{ID: "fix-imports", Name: "Normalize import ordering", Actions: []model.RecipeAction{{Kind: "reorder-imports"}}},
		{ID: "fix-build", Name: "Repair a failing build step", Actions: []model.RecipeAction{{Kind: "build-repair"}}},
		{ID: "fix-security", Name: "Redact a hardcoded credential", Actions: []model.RecipeAction{{Kind: "redact-secret"}}},
		{ID: "fix-performance", Name: "Apply a known performance pattern", Actions: []model.RecipeAction{{Kind: "performance-rewrite"}}},
		{ID: "fix-circular-deps", Name: "Break a circular import", Actions: []model.RecipeAction{{Kind: "break-cycle"}}},
		{ID: "fix-isolation", Name: "Restore module isolation boundary", Actions: []model.RecipeAction{{Kind: "isolation-boundary"}}},
		{ID: "fix-network", Name: "Harden a network call", Actions: []model.RecipeAction{{Kind: "network-harden"}}},
		{ID: "fix-package-drift", Name: "Pin a drifted package version", Actions: []model.RecipeAction{{Kind: "pin-package"}}},
	}
}
