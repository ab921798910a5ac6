package execplan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/odavl/autopilot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recipe(id string, files ...string) model.SelectedRecipe {
	return model.SelectedRecipe{RecipeID: id, Files: files}
}

func TestBuildPlanBatchesIndependentRecipesTogether(t *testing.T) {
	recipes := []model.SelectedRecipe{
		recipe("a", "file1.go"),
		recipe("b", "file2.go"),
	}

	plan, err := BuildPlan(recipes, nil)
	require.NoError(t, err)
	require.Len(t, plan.Batches, 1)
	assert.Len(t, plan.Batches[0], 2)
}

func TestBuildPlanSeparatesConflictingRecipes(t *testing.T) {
	recipes := []model.SelectedRecipe{
		recipe("a", "shared.go"),
		recipe("b", "shared.go"),
	}

	plan, err := BuildPlan(recipes, nil)
	require.NoError(t, err)
	require.Len(t, plan.Batches, 2)
	assert.Equal(t, "a", plan.Batches[0][0].recipe.RecipeID)
	assert.Equal(t, "b", plan.Batches[1][0].recipe.RecipeID)
}

func TestBuildPlanHonorsExplicitDependsOn(t *testing.T) {
	recipes := []model.SelectedRecipe{
		recipe("a", "file1.go"),
		recipe("b", "file2.go"),
	}
	dependsOn := map[string][]string{"a": {"b"}}

	plan, err := BuildPlan(recipes, dependsOn)
	require.NoError(t, err)
	require.Len(t, plan.Batches, 2)
	assert.Equal(t, "b", plan.Batches[0][0].recipe.RecipeID)
	assert.Equal(t, "a", plan.Batches[1][0].recipe.RecipeID)
}

func TestBatchesDetectsCircularDependency(t *testing.T) {
	nodes := []*node{
		{recipe: recipe("a"), deps: map[int]bool{1: true}, index: 0},
		{recipe: recipe("b"), deps: map[int]bool{0: true}, index: 1},
	}

	_, err := Batches(nodes)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)
}

func TestRunDryRunFabricatesResults(t *testing.T) {
	recipes := []model.SelectedRecipe{recipe("a", "file1.go")}
	plan, err := BuildPlan(recipes, nil)
	require.NoError(t, err)

	outcome, err := Run(context.Background(), plan, nil, RunOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, model.StatusExecuted, outcome.Results[0].Status)
	assert.Equal(t, []string{"file1.go"}, outcome.Results[0].Evidence.FilesModified)
}

func TestRunExecutesAllBatchesOnSuccess(t *testing.T) {
	recipes := []model.SelectedRecipe{
		recipe("a", "file1.go"),
		recipe("b", "file2.go"),
	}
	plan, err := BuildPlan(recipes, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var ran []string
	runFn := func(ctx context.Context, r model.SelectedRecipe) (model.RecipeExecutionResult, []FileSnapshot, error) {
		mu.Lock()
		ran = append(ran, r.RecipeID)
		mu.Unlock()
		return model.RecipeExecutionResult{RecipeID: r.RecipeID, Status: model.StatusExecuted}, nil, nil
	}

	outcome, err := Run(context.Background(), plan, runFn, RunOptions{})
	require.NoError(t, err)
	assert.Len(t, outcome.Results, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, ran)
	assert.False(t, outcome.RolledBack)
}

func TestRunRollsBackOnFailFast(t *testing.T) {
	recipes := []model.SelectedRecipe{
		recipe("a", "file1.go"),
		recipe("b", "file2.go"),
	}
	plan, err := BuildPlan(recipes, nil)
	require.NoError(t, err)

	var restored []string
	restore := func(snap FileSnapshot) error {
		restored = append(restored, snap.Path)
		return nil
	}

	runFn := func(ctx context.Context, r model.SelectedRecipe) (model.RecipeExecutionResult, []FileSnapshot, error) {
		snaps := []FileSnapshot{{RecipeID: r.RecipeID, Path: r.Files[0], Content: []byte("orig"), Existed: true}}
		if r.RecipeID == "b" {
			return model.RecipeExecutionResult{RecipeID: r.RecipeID, Status: model.StatusFailed}, snaps, errors.New("boom")
		}
		return model.RecipeExecutionResult{RecipeID: r.RecipeID, Status: model.StatusExecuted}, snaps, nil
	}

	outcome, err := Run(context.Background(), plan, runFn, RunOptions{FailFast: true, Restore: restore})
	require.Error(t, err)
	assert.True(t, outcome.RolledBack)
	assert.NotEmpty(t, restored)
}

func TestRunSkipsLaterBatchesOnFailFast(t *testing.T) {
	recipes := []model.SelectedRecipe{
		recipe("a", "shared.go"),
		recipe("b", "shared.go"),
		recipe("c", "other.go"),
	}
	plan, err := BuildPlan(recipes, nil)
	require.NoError(t, err)
	require.Len(t, plan.Batches, 2, "a and b conflict on shared.go, c is independent")

	runFn := func(ctx context.Context, r model.SelectedRecipe) (model.RecipeExecutionResult, []FileSnapshot, error) {
		if r.RecipeID == "a" {
			return model.RecipeExecutionResult{RecipeID: r.RecipeID, Status: model.StatusFailed}, nil, errors.New("boom")
		}
		return model.RecipeExecutionResult{RecipeID: r.RecipeID, Status: model.StatusExecuted}, nil, nil
	}

	// A single worker puts c in its own chunk after a, so c is still queued
	// when a fails.
	outcome, err := Run(context.Background(), plan, runFn, RunOptions{FailFast: true, MaxWorkers: 1})
	require.Error(t, err)

	// executed + skipped + failed + rolled-back == len(recipes), per the
	// session invariant this executor must uphold even on early abort.
	assert.Len(t, outcome.Results, len(recipes))

	byID := make(map[string]model.RecipeExecutionResult, len(outcome.Results))
	for _, r := range outcome.Results {
		byID[r.RecipeID] = r
	}
	assert.Equal(t, model.StatusFailed, byID["a"].Status)
	assert.Equal(t, model.StatusSkipped, byID["b"].Status)
	assert.Equal(t, model.StatusSkipped, byID["c"].Status)
	assert.Equal(t, []string{"session cancelled"}, byID["c"].Errors)
}

func TestWorkerCountFloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, workerCount(1, 5))
	assert.Equal(t, 2, workerCount(4, 5))
	assert.Equal(t, 3, workerCount(8, 3))
}

func TestRunRespectsPerRecipeTimeout(t *testing.T) {
	recipes := []model.SelectedRecipe{recipe("slow", "file1.go")}
	plan, err := BuildPlan(recipes, nil)
	require.NoError(t, err)

	runFn := func(ctx context.Context, r model.SelectedRecipe) (model.RecipeExecutionResult, []FileSnapshot, error) {
		select {
		case <-ctx.Done():
			return model.RecipeExecutionResult{RecipeID: r.RecipeID, Status: model.StatusFailed}, nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return model.RecipeExecutionResult{RecipeID: r.RecipeID, Status: model.StatusExecuted}, nil, nil
		}
	}

	outcome, err := Run(context.Background(), plan, runFn, RunOptions{Timeout: 10 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, model.StatusFailed, outcome.Results[0].Status)
}
