// Package fusion implements the Fusion Engine (C5): a weighted combination
// of up to five predictor signals into one calibrated fusionScore, with
// confidence and a human-readable reasoning trail.
package fusion

import "fmt"

// MTLSignals is the multi-task-learning predictor's four outputs.
type MTLSignals struct {
	Success     float64
	Performance float64
	Security    float64
	Downtime    float64
}

// BayesianSignals is the Bayesian predictor's posterior summary.
type BayesianSignals struct {
	Mean     float64
	Variance float64
	CILow    float64
	CIHigh   float64
}

// Inputs holds the up-to-five predictor signals for one recipe scoring pass.
// Heuristic is always present; the rest are optional.
type Inputs struct {
	NN        *float64
	LSTM      *float64
	MTL       *MTLSignals
	Bayesian  *BayesianSignals
	Heuristic float64
}

// Result is the Fusion Engine's output for one scoring pass.
type Result struct {
	FusionScore float64
	Confidence  float64
	Weights     map[string]float64
	Reasoning   []string
}

// baseWeights are the starting weights before redistribution.
var baseWeights = map[string]float64{
	"nn":        0.25,
	"lstm":      0.20,
	"mtl":       0.25,
	"bayesian":  0.20,
	"heuristic": 0.10,
}

// predictorOrder fixes the order predictors are visited in, so floating-point
// sums come out bit-identical on every call.
var predictorOrder = []string{"nn", "lstm", "mtl", "bayesian", "heuristic"}

// Combine computes the fusion score. For identical inputs the output
// (score, weights, confidence, reasoning) is always identical: Combine has
// no hidden state and performs no I/O.
func Combine(in Inputs) Result {
	present := map[string]float64{"heuristic": in.Heuristic}
	if in.NN != nil {
		present["nn"] = *in.NN
	}
	if in.LSTM != nil {
		present["lstm"] = *in.LSTM
	}
	if in.MTL != nil {
		present["mtl"] = in.MTL.Success
	}
	if in.Bayesian != nil {
		present["bayesian"] = in.Bayesian.Mean
	}

	weights := redistribute(present)

	var reasoning []string

	if in.Bayesian != nil && in.Bayesian.Variance > 0.15 {
		weights["bayesian"] *= 0.5
		reasoning = append(reasoning, "High Bayesian variance")
	}

	score := 0.0
	for _, name := range predictorOrder {
		if w, ok := weights[name]; ok {
			score += w * present[name]
		}
	}

	if in.MTL != nil && in.MTL.Security > 0.8 {
		riskPenalty := clamp(in.MTL.Security-0.6, 0, 0.4)
		score *= 1 - riskPenalty
		reasoning = append(reasoning, fmt.Sprintf("High security risk (penalty %.2f)", riskPenalty))
	}

	if in.MTL != nil && in.MTL.Downtime > 0.5 {
		score *= 1 - 0.5*in.MTL.Downtime
		reasoning = append(reasoning, "Elevated downtime risk")
	}

	return Result{
		FusionScore: score,
		Confidence:  float64(len(present)) / 5.0,
		Weights:     weights,
		Reasoning:   reasoning,
	}
}

// redistribute takes the base weight for every present predictor and spreads
// the weight owned by absent predictors proportionally across the present
// ones, so present weights always sum to 1.
func redistribute(present map[string]float64) map[string]float64 {
	presentBase := 0.0
	for _, name := range predictorOrder {
		if _, ok := present[name]; ok {
			presentBase += baseWeights[name]
		}
	}

	weights := make(map[string]float64, len(present))
	if presentBase == 0 {
		return weights
	}
	for name := range present {
		weights[name] = baseWeights[name] / presentBase
	}
	return weights
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
