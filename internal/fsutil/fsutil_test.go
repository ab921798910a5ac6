package fsutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteCreatesFileWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, AtomicWrite(path, []byte("hello")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestAtomicWriteReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	require.NoError(t, AtomicWrite(path, []byte("first")))
	require.NoError(t, AtomicWrite(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWrite(filepath.Join(dir, "a.json"), []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp.")
	}
}

func TestAtomicWriteJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trust.json")

	in := map[string]int{"fix-syntax": 3}
	require.NoError(t, AtomicWriteJSON(path, in))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	var out map[string]int
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestAtomicWriteJSONRejectsNil(t *testing.T) {
	err := AtomicWriteJSON(filepath.Join(t.TempDir(), "x.json"), nil)
	assert.Error(t, err)
}

func TestResolveWorkspacePath(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "src"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "src", "app.ts"), []byte("x"), 0600))

	tests := []struct {
		name     string
		relative string
		wantErr  bool
	}{
		{"plain file", "src/app.ts", false},
		{"missing file still resolves", "src/new.ts", false},
		{"absolute rejected", filepath.Join(ws, "src", "app.ts"), true},
		{"traversal rejected", "../outside.ts", true},
		{"nested traversal rejected", "src/../../outside.ts", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWorkspacePath(ws, tt.relative)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(got))
		})
	}
}

func TestResolveWorkspacePathRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	ws := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("s"), 0600))
	require.NoError(t, os.Symlink(secret, filepath.Join(ws, "link.txt")))

	_, err := ResolveWorkspacePath(ws, "link.txt")
	assert.Error(t, err)
}

func TestReadFileSafeCapsSize(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "big.ts"), make([]byte, 1000), 0600))

	content, err := ReadFileSafe(ws, "big.ts", 100)
	require.NoError(t, err)
	assert.Len(t, content, 100)
}

func TestReadFileSafeMissingFile(t *testing.T) {
	_, err := ReadFileSafe(t.TempDir(), "nope.ts", 1024)
	assert.Error(t, err)
}
