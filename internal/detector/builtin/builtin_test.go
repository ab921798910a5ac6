package builtin

import (
	"context"
	"testing"

	"github.com/odavl/autopilot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTODOScannerFindsMarkers(t *testing.T) {
	content := "line one\n// TODO: fix this later\nline three\n"
	ctx := WithSource(context.Background(), "a.go", content)

	s := NewTODOScanner(0)
	findings, err := s.Analyze(ctx, model.File{Path: "a.go"})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 2, findings[0].Line)
	assert.Equal(t, "fix this later", findings[0].Message)
}

func TestTODOScannerNoSourceIsNoOp(t *testing.T) {
	s := NewTODOScanner(0)
	findings, err := s.Analyze(context.Background(), model.File{Path: "a.go"})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestHardcodedSecretScannerFlagsLiterals(t *testing.T) {
	content := `const apiKey = "sk-abcdefgh12345678"`
	ctx := WithSource(context.Background(), "a.ts", content)

	s := NewHardcodedSecretScanner(0)
	findings, err := s.Analyze(ctx, model.File{Path: "a.ts"})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, model.SeverityCritical, findings[0].Severity)
	assert.Equal(t, model.CategorySecurity, findings[0].Category)
}

func TestHardcodedSecretScannerIgnoresShortValues(t *testing.T) {
	content := `const token = "x"`
	ctx := WithSource(context.Background(), "a.ts", content)

	s := NewHardcodedSecretScanner(0)
	findings, err := s.Analyze(ctx, model.File{Path: "a.ts"})
	require.NoError(t, err)
	assert.Empty(t, findings)
}
