// Package fsutil provides atomic file writes and workspace-relative path
// safety checks used by the baseline store, trust store, session report
// writer, and the Parallel Executor's file snapshot/restore machinery.
package fsutil

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// AtomicWrite writes data to path so that readers never observe a partial
// file: write to a hidden sibling temp file, fsync it, rename over the
// target, then fsync the directory so the rename is durable. Files are
// created 0600.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath, err := tempSibling(path)
	if err != nil {
		return err
	}

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	renamed := false
	defer func() {
		tmp.Close()
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	renamed = true

	return syncDir(dir)
}

// AtomicWriteJSON marshals v with two-space indentation and a trailing
// newline and writes it via AtomicWrite. Every persisted JSON document in
// the state directory (baselines, trust store, session reports, adaptive
// state) goes through here.
func AtomicWriteJSON(path string, v any) error {
	if v == nil {
		return fmt.Errorf("cannot write nil value")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	return AtomicWrite(path, append(data, '\n'))
}

// tempSibling returns .<basename>.tmp.<pid>.<rand> in the target's
// directory, so the eventual rename never crosses a filesystem boundary.
func tempSibling(path string) (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate temp suffix: %w", err)
	}
	name := fmt.Sprintf(".%s.tmp.%d.%s", filepath.Base(path), os.Getpid(), hex.EncodeToString(suffix))
	return filepath.Join(filepath.Dir(path), name), nil
}

// syncDir fsyncs a directory so renames inside it survive a crash.
func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}

// ResolveWorkspacePath resolves relative against the workspace root and
// rejects anything that escapes it: absolute paths, ".." traversal, and
// symlinks whose target lies outside the root. Recipes only ever mutate
// files through paths that pass this check.
func ResolveWorkspacePath(workspace, relative string) (string, error) {
	rootAbs, err := filepath.EvalSymlinks(filepath.Clean(workspace))
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}

	if filepath.IsAbs(relative) {
		return "", fmt.Errorf("absolute paths not allowed: %s", relative)
	}

	cleanPath := filepath.Clean(filepath.Join(rootAbs, relative))
	relPath, err := filepath.Rel(rootAbs, cleanPath)
	if err != nil {
		return "", fmt.Errorf("compute relative path: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", relative)
	}

	// A symlink at or under the target may still point outside the root.
	if _, err := os.Lstat(cleanPath); err == nil {
		resolved, err := filepath.EvalSymlinks(cleanPath)
		if err != nil {
			return "", fmt.Errorf("resolve symlinks: %w", err)
		}
		resolvedRel, err := filepath.Rel(rootAbs, resolved)
		if err != nil || resolvedRel == ".." || strings.HasPrefix(resolvedRel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("symlink escapes workspace: %s", relative)
		}
		return resolved, nil
	}

	return cleanPath, nil
}

// ReadFileSafe reads a workspace-relative file through ResolveWorkspacePath,
// capping the read at maxBytes. Detector input files go through here so a
// runaway file cannot exhaust memory.
func ReadFileSafe(workspace, relativePath string, maxBytes int64) ([]byte, error) {
	fullPath, err := ResolveWorkspacePath(workspace, relativePath)
	if err != nil {
		return nil, fmt.Errorf("invalid file path: %w", err)
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return content, nil
}
