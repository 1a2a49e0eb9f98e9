package internal

import (
	"bytes"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestGofmtCompliance verifies that all Go source files under internal/ are
// gofmt-formatted. If this test fails, run: gofmt -w .
func TestGofmtCompliance(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	var unformatted []string
	err = filepath.Walk(wd, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		formatted, err := format.Source(content)
		if err != nil {
			// Files that do not parse are caught by the compiler, not here.
			return nil
		}
		if !bytes.Equal(content, formatted) {
			rel, _ := filepath.Rel(wd, path)
			unformatted = append(unformatted, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to walk source tree: %v", err)
	}

	if len(unformatted) > 0 {
		t.Errorf("The following files are not gofmt-formatted:\n  %s",
			strings.Join(unformatted, "\n  "))
	}
}
