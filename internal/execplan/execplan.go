// Package execplan implements the Parallel Executor (C6): the file-conflict
// dependency graph, topological batching, bounded worker-pool execution,
// per-file snapshotting, and reverse-order rollback on failure.
package execplan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odavl/autopilot/internal/model"
)

// DefaultTimeout is the per-recipe wall-clock timeout.
const DefaultTimeout = 300 * time.Second

// ErrCircularDependency is returned when the dependency graph has no node
// whose unfinished dependencies are empty while work remains.
// It is fatal for the enclosing session.
var ErrCircularDependency = errors.New("execplan: circular dependency")

// RecipeFunc executes one selected recipe, returning its result and the
// snapshots it took before mutating any file.
type RecipeFunc func(ctx context.Context, recipe model.SelectedRecipe) (model.RecipeExecutionResult, []FileSnapshot, error)

// FileSnapshot captures a file's exact bytes before mutation.
type FileSnapshot struct {
	RecipeID string
	Path     string
	Content  []byte
	Existed  bool
}

// Restorer writes a snapshot's content back to disk, recreating or removing
// the file depending on whether it existed before the mutation.
type Restorer func(FileSnapshot) error

// node is one recipe in the dependency graph.
type node struct {
	recipe  model.SelectedRecipe
	deps    map[int]bool // indices of recipes this node depends on
	index   int
}

// BuildGraph constructs the dependency graph: an edge A→B exists whenever A
// and B touch an overlapping file and A appears earlier in recipes, or B
// explicitly depends on A's recipe id via dependsOn.
func BuildGraph(recipes []model.SelectedRecipe, dependsOn map[string][]string) []*node {
	nodes := make([]*node, len(recipes))
	fileOwners := make(map[string][]int) // file -> indices that touch it, in input order

	for i, r := range recipes {
		nodes[i] = &node{recipe: r, deps: map[int]bool{}, index: i}
		for _, f := range r.Files {
			for _, earlier := range fileOwners[f] {
				nodes[i].deps[earlier] = true
			}
			fileOwners[f] = append(fileOwners[f], i)
		}
	}

	if dependsOn != nil {
		byID := make(map[string]int, len(recipes))
		for i, r := range recipes {
			byID[r.RecipeID] = i
		}
		for i, r := range recipes {
			for _, depID := range dependsOn[r.RecipeID] {
				if depIdx, ok := byID[depID]; ok {
					nodes[i].deps[depIdx] = true
				}
			}
		}
	}

	return nodes
}

// Batches groups nodes into topological batches: nodes whose unfinished
// dependencies are all resolved by earlier batches.
func Batches(nodes []*node) ([][]*node, error) {
	done := make(map[int]bool, len(nodes))
	var batches [][]*node

	for len(done) < len(nodes) {
		var batch []*node
		for _, n := range nodes {
			if done[n.index] {
				continue
			}
			ready := true
			for dep := range n.deps {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, n)
			}
		}
		if len(batch) == 0 {
			return nil, ErrCircularDependency
		}
		for _, n := range batch {
			done[n.index] = true
		}
		batches = append(batches, batch)
	}

	return batches, nil
}

// workerCount mirrors the detector package's default: max(1, CPU/2), capped
// by the number of items to run.
func workerCount(cpus, n int) int {
	w := cpus / 2
	if w < 1 {
		w = 1
	}
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// defaultMaxWorkers is max(1, CPU/2) of the host CPU count, capped by the
// batch size, the way internal/detector computes its pool size.
func defaultMaxWorkers(n int) int {
	return workerCount(runtime.NumCPU(), n)
}

// Plan is a dry-run or real execution plan: the ordered topological batches,
// ready for Run, which splits each batch into worker-count chunks.
type Plan struct {
	Batches [][]*node
}

// BuildPlan builds the batch plan for a set of selected recipes.
func BuildPlan(recipes []model.SelectedRecipe, dependsOn map[string][]string) (*Plan, error) {
	nodes := BuildGraph(recipes, dependsOn)
	batches, err := Batches(nodes)
	if err != nil {
		return nil, err
	}
	return &Plan{Batches: batches}, nil
}

// RunOptions configures a Run call.
type RunOptions struct {
	MaxWorkers int
	DryRun     bool
	FailFast   bool
	Timeout    time.Duration
	Restore    Restorer
}

// Outcome is the result of running a Plan: the per-recipe execution results
// in execution order, the captured snapshots keyed by recipe id so a later
// verification stage can still revert an individual recipe, and whether the
// run itself was rolled back.
type Outcome struct {
	Results    []model.RecipeExecutionResult
	Snapshots  map[string][]FileSnapshot
	RolledBack bool
}

// Run executes a Plan's batches in order, splitting each batch into chunks
// of MaxWorkers recipes that run concurrently via errgroup.
// In DryRun mode no RecipeFunc mutation runs; a synthetic "executed" result
// is fabricated per recipe instead.
func Run(ctx context.Context, plan *Plan, run RecipeFunc, opts RunOptions) (Outcome, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	var results []model.RecipeExecutionResult
	var allSnapshots []FileSnapshot
	byRecipe := make(map[string][]FileSnapshot)
	executedRecipeIDs := make(map[string]bool)

	for _, batch := range plan.Batches {
		maxWorkers := opts.MaxWorkers
		if maxWorkers <= 0 {
			maxWorkers = defaultMaxWorkers(len(batch))
		}

		for start := 0; start < len(batch); start += maxWorkers {
			end := start + maxWorkers
			if end > len(batch) {
				end = len(batch)
			}
			chunk := batch[start:end]

			chunkResults := make([]model.RecipeExecutionResult, len(chunk))
			chunkSnapshots := make([][]FileSnapshot, len(chunk))

			g, gctx := errgroup.WithContext(ctx)
			for i, n := range chunk {
				i, n := i, n
				g.Go(func() error {
					callCtx, cancel := context.WithTimeout(gctx, opts.Timeout)
					defer cancel()

					if opts.DryRun {
						chunkResults[i] = dryRunResult(n.recipe)
						return nil
					}

					result, snaps, err := run(callCtx, n.recipe)
					chunkSnapshots[i] = snaps

					// A recipe that blows its wall-clock budget is reported as
					// failed with a fixed "Timeout" error regardless of what
					// the RecipeFunc itself returned.
					if callCtx.Err() == context.DeadlineExceeded {
						result = model.RecipeExecutionResult{
							RecipeID: n.recipe.RecipeID,
							Status:   model.StatusFailed,
							Errors:   []string{"Timeout"},
						}
						err = fmt.Errorf("recipe %s: %w", n.recipe.RecipeID, context.DeadlineExceeded)
					} else if err != nil {
						err = fmt.Errorf("recipe %s: %w", n.recipe.RecipeID, err)
					}

					chunkResults[i] = result
					if err != nil && opts.FailFast {
						return err
					}
					return nil
				})
			}

			chunkErr := g.Wait()

			for i, n := range chunk {
				results = append(results, chunkResults[i])
				allSnapshots = append(allSnapshots, chunkSnapshots[i]...)
				if len(chunkSnapshots[i]) > 0 {
					byRecipe[n.recipe.RecipeID] = chunkSnapshots[i]
				}
				if chunkResults[i].Status == model.StatusExecuted {
					executedRecipeIDs[n.recipe.RecipeID] = true
				}
			}

			if chunkErr != nil && opts.FailFast {
				rolledBack := rollback(allSnapshots, opts.Restore)
				for i := range results {
					if executedRecipeIDs[results[i].RecipeID] {
						results[i].Status = model.StatusRolledBack
					}
				}
				results = append(results, skippedRemainder(plan, results)...)
				return Outcome{Results: results, Snapshots: byRecipe, RolledBack: rolledBack}, chunkErr
			}
		}
	}

	return Outcome{Results: results, Snapshots: byRecipe}, nil
}

// skippedRemainder marks every recipe not yet present in results (the later
// chunks of the failing batch plus every later batch) as skipped with reason
// "session cancelled", so every selected recipe still gets exactly one
// terminal status when FailFast aborts the plan partway through.
func skippedRemainder(plan *Plan, results []model.RecipeExecutionResult) []model.RecipeExecutionResult {
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.RecipeID] = true
	}

	var skipped []model.RecipeExecutionResult
	for _, batch := range plan.Batches {
		for _, n := range batch {
			if seen[n.recipe.RecipeID] {
				continue
			}
			seen[n.recipe.RecipeID] = true
			skipped = append(skipped, model.RecipeExecutionResult{
				RecipeID: n.recipe.RecipeID,
				Status:   model.StatusSkipped,
				Errors:   []string{"session cancelled"},
			})
		}
	}
	return skipped
}

// rollback restores every snapshot in reverse execution order.
func rollback(snapshots []FileSnapshot, restore Restorer) bool {
	if restore == nil {
		return false
	}
	for i := len(snapshots) - 1; i >= 0; i-- {
		_ = restore(snapshots[i])
	}
	return true
}

func dryRunResult(recipe model.SelectedRecipe) model.RecipeExecutionResult {
	return model.RecipeExecutionResult{
		RecipeID: recipe.RecipeID,
		Status:   model.StatusExecuted,
		Evidence: model.ExecutionEvidence{
			FilesModified: recipe.Files,
		},
	}
}
