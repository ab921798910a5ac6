// Package trust implements Trust & Telemetry (C9): the per-recipe trust
// store (smoothed success probability) and the per-product telemetry event
// streams.
package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/odavl/autopilot/internal/fsutil"
	"github.com/odavl/autopilot/internal/model"
)

// DefaultLearningRate is used when no adaptive state file is present.
const DefaultLearningRate = 0.3

const (
	minTrust = 0.1
	maxTrust = 1.0
)

// AdaptiveState holds the adaptive learning rate loaded from
// brain-history/adaptive/state.json, keyed per recipe. A recipe absent from
// the map uses DefaultLearningRate.
type AdaptiveState struct {
	Rates map[string]float64 `json:"rates"`
}

// LoadAdaptiveState reads the adaptive rate file, tolerating its absence.
func LoadAdaptiveState(path string) (*AdaptiveState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &AdaptiveState{Rates: map[string]float64{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read adaptive state: %w", err)
	}

	var state AdaptiveState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal adaptive state: %w", err)
	}
	if state.Rates == nil {
		state.Rates = map[string]float64{}
	}
	return &state, nil
}

// RateFor returns the learning rate for a recipe, falling back to
// DefaultLearningRate.
func (a *AdaptiveState) RateFor(recipeID string) float64 {
	if a == nil {
		return DefaultLearningRate
	}
	if rate, ok := a.Rates[recipeID]; ok {
		return rate
	}
	return DefaultLearningRate
}

// Store holds every recipe's TrustRecord, persisted atomically as a single
// JSON document.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]model.TrustRecord
}

// storeDocument is the on-disk shape of the trust store file.
type storeDocument struct {
	Records map[string]model.TrustRecord `json:"records"`
}

// LoadStore reads the trust store from disk, returning an empty store if the
// file does not yet exist (every recipe is first-sight).
func LoadStore(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Store{path: path, records: map[string]model.TrustRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trust store: %w", err)
	}

	var doc storeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trust store: %w", err)
	}
	if doc.Records == nil {
		doc.Records = map[string]model.TrustRecord{}
	}
	return &Store{path: path, records: doc.Records}, nil
}

// Save writes the store to disk via write-temp-then-rename.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fsutil.AtomicWriteJSON(s.path, storeDocument{Records: s.records})
}

// Trust implements recipe.TrustLookup: it returns the current trust value
// and whether this recipe has never been observed before. On first sight it
// returns 0; recipe.Score substitutes 0.5 in that case.
func (s *Store) Trust(recipeID string) (trust float64, firstSight bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recipeID]
	if !ok {
		return 0, true
	}
	return rec.Trust, false
}

// Observation is one session's outcome tally for a single recipe.
type Observation struct {
	RecipeID     string
	SessionSuccesses int
	SessionFailures  int
}

// Update applies the EMA smoothing rule to one recipe's trust record
// given this session's new observations, and returns the updated record.
// A recipe with zero successes and zero failures (every execution was
// skipped) keeps its trust value; skipped recipes do not move the needle.
func (s *Store) Update(obs Observation, rate float64, now time.Time) model.TrustRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, existed := s.records[obs.RecipeID]
	if !existed {
		rec = model.TrustRecord{Trust: 0.5}
	}

	total := obs.SessionSuccesses + obs.SessionFailures
	if total == 0 {
		rec.LastUpdated = now
		s.records[obs.RecipeID] = rec
		return rec
	}

	r := float64(obs.SessionSuccesses) / float64(total)
	rec.Trust = clamp(rec.Trust*(1-rate)+r*rate, minTrust, maxTrust)
	rec.SuccessCount += obs.SessionSuccesses
	rec.FailureCount += obs.SessionFailures
	rec.LastUpdated = now

	s.records[obs.RecipeID] = rec
	return rec
}

// Record returns a copy of the current record for a recipe, if any.
func (s *Store) Record(recipeID string) (model.TrustRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recipeID]
	return rec, ok
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
