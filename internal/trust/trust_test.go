package trust

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStoreMissingIsEmpty(t *testing.T) {
	store, err := LoadStore(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	trust, firstSight := store.Trust("fix-syntax")
	assert.True(t, firstSight)
	assert.Equal(t, 0.0, trust)
}

func TestUpdateAppliesEMAAndClamps(t *testing.T) {
	store, err := LoadStore(filepath.Join(t.TempDir(), "trust.json"))
	require.NoError(t, err)

	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	rec := store.Update(Observation{RecipeID: "fix-security", SessionSuccesses: 1, SessionFailures: 0}, 0.3, now)

	// old=0.5 (first-sight default), r=1.0: trust = 0.5*0.7 + 1.0*0.3 = 0.65
	assert.InDelta(t, 0.65, rec.Trust, 0.0001)
	assert.Equal(t, 1, rec.SuccessCount)
	assert.Equal(t, 0, rec.FailureCount)

	trust, firstSight := store.Trust("fix-security")
	assert.False(t, firstSight)
	assert.InDelta(t, 0.65, trust, 0.0001)
}

func TestUpdateSkipsCounterWhenNoObservations(t *testing.T) {
	store, err := LoadStore(filepath.Join(t.TempDir(), "trust.json"))
	require.NoError(t, err)

	rec := store.Update(Observation{RecipeID: "fix-noop"}, 0.3, time.Now())
	assert.Equal(t, 0.5, rec.Trust)
	assert.Equal(t, 0, rec.SuccessCount)
	assert.Equal(t, 0, rec.FailureCount)
}

func TestUpdateClampsToFloor(t *testing.T) {
	store, err := LoadStore(filepath.Join(t.TempDir(), "trust.json"))
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 20; i++ {
		store.Update(Observation{RecipeID: "fix-bad", SessionSuccesses: 0, SessionFailures: 1}, 0.9, now)
	}

	trust, _ := store.Trust("fix-bad")
	assert.GreaterOrEqual(t, trust, 0.1)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.json")
	store, err := LoadStore(path)
	require.NoError(t, err)

	store.Update(Observation{RecipeID: "fix-syntax", SessionSuccesses: 2, SessionFailures: 1}, 0.3, time.Now())
	require.NoError(t, store.Save())

	reloaded, err := LoadStore(path)
	require.NoError(t, err)

	trust, firstSight := reloaded.Trust("fix-syntax")
	assert.False(t, firstSight)
	assert.Greater(t, trust, 0.0)
}

func TestAdaptiveStateMissingFileUsesDefault(t *testing.T) {
	state, err := LoadAdaptiveState(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultLearningRate, state.RateFor("fix-syntax"))
}

func TestAdaptiveStateRateForKnownRecipe(t *testing.T) {
	state := &AdaptiveState{Rates: map[string]float64{"fix-syntax": 0.5}}
	assert.Equal(t, 0.5, state.RateFor("fix-syntax"))
	assert.Equal(t, DefaultLearningRate, state.RateFor("fix-unknown"))
}

func TestEventStreamAppendAndReadLastN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	stream, err := OpenEventStream(path, discardLogger())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, stream.Append(Event{
			Product:   ProductAutopilot,
			SessionID: "session",
			Successes: i,
		}))
	}
	require.NoError(t, stream.Close())

	last, err := ReadLastN(path, 2, discardLogger())
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, 3, last[0].Successes)
	assert.Equal(t, 4, last[1].Successes)
}

func TestReadLastNMissingFileReturnsEmpty(t *testing.T) {
	events, err := ReadLastN(filepath.Join(t.TempDir(), "missing.jsonl"), 5, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, events)
}
