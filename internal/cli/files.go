package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/odavl/autopilot/internal/fsutil"
	"github.com/odavl/autopilot/internal/model"
)

// maxSourceFileBytes caps how much of a single file the detectors see.
const maxSourceFileBytes = 4 << 20

// sourceFile is a walked file plus its content, ready for detector analysis.
type sourceFile struct {
	File    model.File
	Content string
}

// walkSourceFiles walks root and returns every regular file, skipping
// version-control and state directories, relative-path-normalized.
func walkSourceFiles(root string) ([]sourceFile, error) {
	var files []sourceFile

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if name == ".git" || name == ".odavl" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if strings.HasPrefix(filepath.Base(rel), ".") {
			return nil
		}

		content, err := fsutil.ReadFileSafe(root, rel, maxSourceFileBytes)
		if err != nil {
			return err
		}

		files = append(files, sourceFile{
			File:    model.File{Path: rel},
			Content: string(content),
		})
		return nil
	})

	return files, err
}
