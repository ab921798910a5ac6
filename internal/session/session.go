// Package session implements the Self-Heal Session Controller (C7): the
// Observe→Decide→Act→Verify→Learn state machine that wires the detector,
// intake, recipe, execplan, policy, trust, and report packages together
// into one self-heal run.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/odavl/autopilot/internal/detector"
	"github.com/odavl/autopilot/internal/execplan"
	"github.com/odavl/autopilot/internal/fusion"
	"github.com/odavl/autopilot/internal/intake"
	"github.com/odavl/autopilot/internal/model"
	"github.com/odavl/autopilot/internal/policy"
	"github.com/odavl/autopilot/internal/recipe"
	"github.com/odavl/autopilot/internal/report"
	"github.com/odavl/autopilot/internal/taxonomy"
	"github.com/odavl/autopilot/internal/trust"
)

// State is one stage of the session state machine.
type State string

const (
	StateInit       State = "INIT"
	StateObserving  State = "OBSERVING"
	StateDeciding   State = "DECIDING"
	StateActing     State = "ACTING"
	StateVerifying  State = "VERIFYING"
	StateLearning   State = "LEARNING"
	StateDone       State = "DONE"
	StateRolledBack State = "ROLLED_BACK"
	StateFailed     State = "FAILED"
)

// Constraints are the pre-execution budget checks.
type Constraints struct {
	MaxFiles        int
	MaxLOC          int
	ProtectedPaths  []string
}

// DefaultConstraints caps a session at 10 files and 40 changed lines.
var DefaultConstraints = Constraints{MaxFiles: 10, MaxLOC: 40, ProtectedPaths: policy.DefaultProtectedPaths}

// Dependencies bundles the collaborators a Controller needs. Execute and
// Restore abstract disk access so recipe execution and rollback can be
// exercised in tests without real mutation.
type Dependencies struct {
	Detectors     []detector.Detector
	RiskWeights   []taxonomy.RiskWeightRule
	Registry      *recipe.Registry
	Thresholds    recipe.Thresholds
	TrustStore    *trust.Store
	AdaptiveRates *trust.AdaptiveState
	AuditLog      *policy.AuditLog
	PolicyConfig  *policy.Config
	ReportDir     string
	Logger        *slog.Logger
	MLPredictor   recipe.MLPredictor
	FusionFor     func(candidate model.FixCandidate, recipeID string) fusion.Inputs
	Execute       func(ctx context.Context, sr model.SelectedRecipe) (model.RecipeExecutionResult, []execplan.FileSnapshot, error)
	Restore       execplan.Restorer
	DryRun        bool
	FailFast      bool
	MaxWorkers    int

	// Version stamps the report header; the CLI feeds INSIGHT_VERSION here.
	Version string
}

// Controller runs one Observe→Decide→Act→Verify→Learn cycle.
type Controller struct {
	deps        Dependencies
	constraints Constraints
}

// New builds a Controller.
func New(deps Dependencies, constraints Constraints) *Controller {
	if deps.MLPredictor == nil {
		deps.MLPredictor = func(string) (float64, bool) { return 0, false }
	}
	if deps.Version == "" {
		deps.Version = "1.0.0"
	}
	return &Controller{deps: deps, constraints: constraints}
}

// Result is everything a Run call produced: the session record, the report
// write location, and the terminal state machine state.
type Result struct {
	Session     model.SelfHealSession
	ReportPath  string
	ContentHash string
	State       State
}

// Run executes one full self-heal cycle over the given files.
func (c *Controller) Run(ctx context.Context, files []model.File, now time.Time) (Result, error) {
	sessionID := fmt.Sprintf("heal-%d-%s", now.Unix(), uuid.NewString()[:8])
	logger := c.deps.Logger

	// OBSERVING. A single-worker session runs detectors sequentially so CI
	// gets deterministic execution end to end.
	reg := detector.NewRegistry(c.deps.Detectors...)
	var findings []model.Finding
	if c.deps.MaxWorkers == 1 {
		findings = detector.RunSequential(ctx, reg.All(), files, logger)
	} else {
		findings = detector.RunFileParallel(ctx, reg.All(), files, logger)
	}

	candidates := intake.BuildCandidates(findings, c.deps.RiskWeights)
	if len(candidates) == 0 {
		return c.finish(sessionID, now, findings, nil, nil, nil, nil, model.OutcomeSuccess, StateDone)
	}

	// DECIDING
	selected, scored := c.decide(candidates)
	if len(selected) == 0 {
		return c.finish(sessionID, now, findings, nil, scored, nil, nil, model.OutcomeSuccess, StateDone)
	}

	// Constraint checks: policy rules, protected paths, budget caps.
	var runnable []model.SelectedRecipe
	var results []model.RecipeExecutionResult
	for _, sr := range selected {
		if c.deps.PolicyConfig != nil {
			decision := c.deps.PolicyConfig.Evaluate(sr.RecipeID)
			c.recordDecision(sr.RecipeID, decision, sessionID, now)
			if !decision.Approved {
				results = append(results, model.RecipeExecutionResult{
					RecipeID: sr.RecipeID,
					Status:   model.StatusSkipped,
					Errors:   []string{"policy denied"},
				})
				continue
			}
		}
		if skip, reason := c.violatesConstraints(sr); skip {
			results = append(results, model.RecipeExecutionResult{
				RecipeID: sr.RecipeID,
				Status:   model.StatusSkipped,
				Errors:   []string{reason},
			})
			c.recordApproval(sr.RecipeID, false, policy.SafetyDeny, reason, sessionID, now)
			continue
		}
		c.recordApproval(sr.RecipeID, true, policy.SafetyAllow, "", sessionID, now)
		runnable = append(runnable, sr)
	}

	// ACTING
	var outcome execplan.Outcome
	if len(runnable) > 0 {
		plan, err := execplan.BuildPlan(runnable, nil)
		if err != nil {
			// A cycle in the dependency graph is fatal for the session; every
			// runnable recipe still gets a terminal status.
			for _, sr := range runnable {
				results = append(results, model.RecipeExecutionResult{
					RecipeID: sr.RecipeID,
					Status:   model.StatusFailed,
					Errors:   []string{err.Error()},
				})
			}
			return c.finish(sessionID, now, findings, selected, scored, results, nil, model.OutcomeFailed, StateFailed)
		}

		out, runErr := execplan.Run(ctx, plan, c.deps.Execute, execplan.RunOptions{
			Restore:    c.deps.Restore,
			FailFast:   c.deps.FailFast,
			DryRun:     c.deps.DryRun,
			MaxWorkers: c.deps.MaxWorkers,
		})
		outcome = out
		results = append(results, out.Results...)
		if runErr != nil && logger != nil {
			logger.Warn("execution batch failed", "session_id", sessionID, "error", runErr)
		}
	}

	// VERIFYING: roll back any executed recipe that introduced a new critical
	// issue and classify the session outcome from what remains.
	finalOutcome, reverted := c.verify(results, outcome)

	// LEARNING: update trust once per recipe from this session's outcome.
	c.learn(selected, results, now)

	return c.finish(sessionID, now, findings, selected, scored, results, reverted, finalOutcome, terminalState(finalOutcome))
}

func terminalState(outcome model.FinalOutcome) State {
	switch outcome {
	case model.OutcomeRolledBack:
		return StateRolledBack
	case model.OutcomeFailed:
		return StateFailed
	default:
		return StateDone
	}
}

// decide scores every proposed recipe for every candidate and filters/ranks
// them into the set selected for execution.
func (c *Controller) decide(candidates []model.FixCandidate) ([]model.SelectedRecipe, []model.RecipeScore) {
	var selected []model.SelectedRecipe
	var scores []model.RecipeScore

	for _, candidate := range candidates {
		proposed := c.deps.Registry.ProposeFor(candidate)
		var candidateScores []model.RecipeScore
		for _, rec := range proposed {
			fusionIn := fusion.Inputs{Heuristic: candidate.RiskWeight}
			if c.deps.FusionFor != nil {
				fusionIn = c.deps.FusionFor(candidate, rec.ID)
			}

			trustVal, firstSight := c.deps.TrustStore.Trust(rec.ID)
			trustLookup := func(string) (float64, bool) { return trustVal, firstSight }

			score := recipe.Score(rec.ID, c.deps.MLPredictor, trustLookup, 0, fusionIn)
			candidateScores = append(candidateScores, score)
		}

		ranked := recipe.FilterAndRank(candidateScores, c.deps.Thresholds)
		scores = append(scores, ranked...)
		if len(ranked) == 0 {
			continue
		}

		best := ranked[0]
		selected = append(selected, model.SelectedRecipe{
			RecipeID:         best.RecipeID,
			Score:            best,
			TargetCandidates: []string{candidate.ID},
			EstimatedImpact: model.EstimatedImpact{
				FilesAffected: 1,
				LOCChanged:    candidate.EstimatedLOC,
			},
			Files: []string{candidate.Finding.File},
		})
	}

	return selected, scores
}

// violatesConstraints applies the pre-execution budget and path checks.
func (c *Controller) violatesConstraints(sr model.SelectedRecipe) (bool, string) {
	if sr.EstimatedImpact.FilesAffected > c.constraints.MaxFiles {
		return true, "exceeds max files"
	}
	if sr.EstimatedImpact.LOCChanged > c.constraints.MaxLOC {
		return true, "exceeds max LOC"
	}
	for _, f := range sr.Files {
		if policy.IsProtectedPath(filepath.ToSlash(f), c.constraints.ProtectedPaths) {
			return true, "protected path"
		}
	}
	return false, ""
}

// recordDecision appends a full policy evaluation to the audit trail.
func (c *Controller) recordDecision(recipeID string, d policy.Decision, sessionID string, now time.Time) {
	if c.deps.AuditLog == nil {
		return
	}
	_ = c.deps.AuditLog.RecordDecision(recipeID, d, sessionID, now)
}

// recordApproval appends one policy audit entry per recipe constraint
// decision.
func (c *Controller) recordApproval(recipeID string, approved bool, reason policy.SafetyReason, rule, sessionID string, now time.Time) {
	if c.deps.AuditLog == nil {
		return
	}
	_ = c.deps.AuditLog.Record(policy.AuditEntry{
		Command:      recipeID,
		Approved:     approved,
		SafetyReason: reason,
		Rule:         rule,
		Timestamp:    now,
		SessionID:    sessionID,
	})
}

// verify inspects each executed recipe's revalidation: a recipe that
// introduced a new critical issue is marked rolled-back and its snapshots are
// restored in reverse order. The final outcome is derived from how many
// clean executed recipes remain. Returns the list of reverted file paths.
func (c *Controller) verify(results []model.RecipeExecutionResult, outcome execplan.Outcome) (model.FinalOutcome, []string) {
	executedClean := 0
	executedTotal := 0
	var reverted []string

	for i := range results {
		if results[i].Status != model.StatusExecuted {
			continue
		}
		executedTotal++

		if results[i].InsightRevalidation != nil && results[i].InsightRevalidation.NewCriticalIntroduced {
			results[i].Status = model.StatusRolledBack
			reverted = append(reverted, c.restoreRecipe(results[i].RecipeID, outcome.Snapshots)...)
			continue
		}
		executedClean++
	}

	if outcome.RolledBack {
		if executedClean == 0 {
			return model.OutcomeRolledBack, reverted
		}
		return model.OutcomePartial, reverted
	}

	switch {
	case executedTotal == 0:
		return model.OutcomeSuccess, reverted
	case executedClean == executedTotal:
		return model.OutcomeSuccess, reverted
	case executedClean == 0:
		return model.OutcomeRolledBack, reverted
	default:
		return model.OutcomePartial, reverted
	}
}

// restoreRecipe puts one recipe's files back to their pre-execution bytes,
// newest snapshot first.
func (c *Controller) restoreRecipe(recipeID string, snapshots map[string][]execplan.FileSnapshot) []string {
	if c.deps.Restore == nil || snapshots == nil {
		return nil
	}
	snaps := snapshots[recipeID]
	var reverted []string
	for i := len(snaps) - 1; i >= 0; i-- {
		if err := c.deps.Restore(snaps[i]); err != nil {
			if c.deps.Logger != nil {
				c.deps.Logger.Warn("snapshot restore failed", "recipe_id", recipeID, "file", snaps[i].Path, "error", err)
			}
			continue
		}
		reverted = append(reverted, snaps[i].Path)
	}
	return reverted
}

// learn applies the trust update exactly once per recipe per session.
// Skipped recipes do not update counters.
func (c *Controller) learn(selected []model.SelectedRecipe, results []model.RecipeExecutionResult, now time.Time) {
	if c.deps.TrustStore == nil {
		return
	}

	successes := make(map[string]int)
	failures := make(map[string]int)
	for _, r := range results {
		switch r.Status {
		case model.StatusExecuted:
			successes[r.RecipeID]++
		case model.StatusFailed, model.StatusRolledBack:
			failures[r.RecipeID]++
		}
	}

	updated := make(map[string]bool)
	for _, sr := range selected {
		obs := trust.Observation{
			RecipeID:         sr.RecipeID,
			SessionSuccesses: successes[sr.RecipeID],
			SessionFailures:  failures[sr.RecipeID],
		}
		if updated[sr.RecipeID] || obs.SessionSuccesses+obs.SessionFailures == 0 {
			continue
		}
		updated[sr.RecipeID] = true

		rate := trust.DefaultLearningRate
		if c.deps.AdaptiveRates != nil {
			rate = c.deps.AdaptiveRates.RateFor(sr.RecipeID)
		}
		c.deps.TrustStore.Update(obs, rate, now)
	}

	_ = c.deps.TrustStore.Save()
}

func (c *Controller) finish(sessionID string, now time.Time, findings []model.Finding, selected []model.SelectedRecipe, scored []model.RecipeScore, results []model.RecipeExecutionResult, reverted []string, outcome model.FinalOutcome, state State) (Result, error) {
	sess := model.SelfHealSession{
		SessionID:        sessionID,
		Timestamp:        now,
		SelectedRecipes:  selected,
		ExecutionResults: results,
		FinalOutcome:     outcome,
	}

	var diffs []model.FileDiff
	for _, r := range results {
		diffs = append(diffs, r.Evidence.Diffs...)
	}

	doc := report.Document{
		Header:          report.NewHeader(c.deps.Version, sessionID, now),
		Session:         sess,
		DetectedIssues:  findings,
		SelectedRecipes: selected,
		Execution:       results,
		Intelligence:    averageScores(scored),
		FixDiffs:        diffs,
		FinalOutcome: report.FinalOutcomeSection{
			Decision:     outcome,
			Reasoning:    outcomeReasoning(outcome, results),
			AutoReverted: outcome == model.OutcomeRolledBack,
		},
	}
	if len(reverted) > 0 {
		doc.Rollback = &report.Rollback{
			Reason:        "verification detected a new critical issue",
			FilesReverted: reverted,
		}
	}

	path, hash, err := report.Write(c.deps.ReportDir, doc)
	if err != nil {
		return Result{Session: sess, State: StateFailed}, err
	}

	if c.deps.Logger != nil {
		c.deps.Logger.Info("self-heal session complete",
			"session_id", sessionID,
			"outcome", outcome,
			"report_path", path,
			"content_hash", hash)
	}

	return Result{Session: sess, ReportPath: path, ContentHash: hash, State: state}, nil
}

// averageScores condenses the session's scored recipes into the report's
// intelligence section.
func averageScores(scores []model.RecipeScore) report.Intelligence {
	if len(scores) == 0 {
		return report.Intelligence{}
	}
	var intel report.Intelligence
	for _, s := range scores {
		intel.AvgMLScore += s.MLScore
		intel.AvgTrustScore += s.TrustScore
		intel.AvgFusionScore += s.FusionScore
		intel.AvgFinalScore += s.FinalScore
	}
	n := float64(len(scores))
	intel.AvgMLScore /= n
	intel.AvgTrustScore /= n
	intel.AvgFusionScore /= n
	intel.AvgFinalScore /= n
	return intel
}

// outcomeReasoning summarizes per-status counts for the report's final
// outcome section.
func outcomeReasoning(outcome model.FinalOutcome, results []model.RecipeExecutionResult) []string {
	counts := make(map[model.ExecutionStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	reasons := []string{fmt.Sprintf("session outcome: %s", outcome)}
	for _, st := range []model.ExecutionStatus{model.StatusExecuted, model.StatusSkipped, model.StatusFailed, model.StatusRolledBack} {
		if counts[st] > 0 {
			reasons = append(reasons, fmt.Sprintf("%d recipe(s) %s", counts[st], st))
		}
	}
	return reasons
}
