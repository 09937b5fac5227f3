package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/sblismoke/internal/config"
)

// NewInstall lays out a fake OpenSBLI installation under t.TempDir(): one
// generator script per entry in scripts (relative to apps/), the build
// template apps/Makefile, and a translator directory holding ops.py.
//
// The returned configuration points at it and has every stage enabled.
func NewInstall(t *testing.T, scripts ...string) config.Config {
	t.Helper()

	root := t.TempDir()
	translator := filepath.Join(root, "ops", "translator")

	for _, script := range scripts {
		WriteFile(t, filepath.Join(root, "apps", script), "# generator for "+script+"\n")
	}
	WriteFile(t, filepath.Join(root, "apps", config.DefaultMakefile), "opensbli_seq:\nopensbli_mpi:\n")
	WriteFile(t, filepath.Join(translator, config.DefaultTranslatorEntry), "# translator\n")

	cfg := config.Default()
	cfg.InstallRoot = root
	cfg.TranslatorDir = translator
	cfg.Apps = append([]string(nil), scripts...)
	cfg.Jobs = 4
	return cfg
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
