package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner walks an archive directory for .msg and .eml files
type Scanner struct {
	rootPath string
}

// NewScanner creates a new scanner for the given archive root
func NewScanner(rootPath string) *Scanner {
	return &Scanner{
		rootPath: rootPath,
	}
}

// GetRootPath returns the root path for resolving relative paths
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// IsSourceFile reports whether a filename carries a recognized extension,
// matched case-insensitively.
func IsSourceFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msg", ".eml":
		return true
	}
	return false
}

// Scan recursively collects source files and returns their paths relative
// to the root, slash-separated and sorted. Relative slash paths are what
// the index stores, so results stay stable across systems and drive
// mappings.
func (s *Scanner) Scan() ([]string, error) {
	var files []string

	// Get absolute path of root for reliable relative path calculation
	absRoot, err := filepath.Abs(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			return nil
		}

		if IsSourceFile(path) {
			relPath, err := filepath.Rel(absRoot, path)
			if err != nil {
				return fmt.Errorf("failed to get relative path for %s: %w", path, err)
			}
			// Normalize to forward slashes for cross-platform compatibility
			files = append(files, filepath.ToSlash(relPath))
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	// Walk order diverges from string order once directories nest, so
	// sort explicitly to keep listings deterministic.
	sort.Strings(files)

	return files, nil
}

// CountSourceFiles counts recognized files without collecting their paths
func (s *Scanner) CountSourceFiles() (int, error) {
	count := 0

	err := filepath.Walk(s.rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && IsSourceFile(path) {
			count++
		}

		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}

	return count, nil
}
