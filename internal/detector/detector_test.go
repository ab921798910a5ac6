package detector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/odavl/autopilot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	id       string
	findings []model.Finding
	err      error
	delay    time.Duration
	timeout  time.Duration
}

func (f *fakeDetector) ID() string             { return f.id }
func (f *fakeDetector) Version() string        { return "test" }
func (f *fakeDetector) Timeout() time.Duration { return f.timeout }
func (f *fakeDetector) Analyze(ctx context.Context, file model.File) ([]model.Finding, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.findings, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistrySelectUnknownID(t *testing.T) {
	r := NewRegistry(&fakeDetector{id: "a"})
	_, err := r.Select([]string{"missing"})
	assert.Error(t, err)
}

func TestRegistrySelectOrder(t *testing.T) {
	r := NewRegistry(&fakeDetector{id: "a"}, &fakeDetector{id: "b"})
	selected, err := r.Select([]string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "b", selected[0].ID())
	assert.Equal(t, "a", selected[1].ID())
}

func TestRunSequentialSortsOutput(t *testing.T) {
	d := &fakeDetector{id: "d1", findings: []model.Finding{
		{DetectorID: "d1", File: "b.ts", Line: 1},
		{DetectorID: "d1", File: "a.ts", Line: 1},
	}}
	files := []model.File{{Path: "a.ts"}, {Path: "b.ts"}}

	out := RunSequential(context.Background(), []Detector{d}, files, discardLogger())
	require.Len(t, out, 4)
	assert.Equal(t, "a.ts", out[0].File)
}

func TestRunSequentialCapturesDetectorError(t *testing.T) {
	d := &fakeDetector{id: "broken", err: errors.New("boom")}
	files := []model.File{{Path: "a.ts"}}

	out := RunSequential(context.Background(), []Detector{d}, files, discardLogger())
	require.Len(t, out, 1)
	assert.Equal(t, model.SeverityInfo, out[0].Severity)
}

func TestRunOneCapturesTimeout(t *testing.T) {
	d := &fakeDetector{id: "slow", delay: 50 * time.Millisecond, timeout: 5 * time.Millisecond}
	files := []model.File{{Path: "a.ts"}}

	out := RunSequential(context.Background(), []Detector{d}, files, discardLogger())
	require.Len(t, out, 1)
	assert.Equal(t, model.SeverityInfo, out[0].Severity)
	assert.Contains(t, out[0].Message, "timed out")
}

func TestRunFileParallelMatchesSequentialOutput(t *testing.T) {
	d := &fakeDetector{id: "d1", findings: []model.Finding{{DetectorID: "d1", Line: 1}}}
	files := []model.File{{Path: "a.ts"}, {Path: "b.ts"}, {Path: "c.ts"}}

	seq := RunSequential(context.Background(), []Detector{d}, files, discardLogger())
	par := RunFileParallel(context.Background(), []Detector{d}, files, discardLogger())

	assert.ElementsMatch(t, seq, par)
}

func TestWorkerCount(t *testing.T) {
	assert.Equal(t, 1, workerCount(0))
	assert.GreaterOrEqual(t, workerCount(100), 1)
}
