package main

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConfig writes a YAML config that keeps logs quiet, so stderr only
// carries what the emitter prints.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vss.yaml")
	content := "log:\n  level: error\n  output: discard\n" + extra
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
