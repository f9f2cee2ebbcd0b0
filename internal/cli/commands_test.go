package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/voskhod/treasurywatch/config"
)

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestRootCmdRunsAgainstManagedConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeTestConfig(t, path, config.DefaultConfigWithRoot(dir))

	root := NewRootCmd()
	root.SetArgs([]string{"--config", path, "entities", "list"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// The command must have opened the store at the path the managed file
	// names, not at a working-directory default.
	if _, err := os.Stat(filepath.Join(dir, "data", "treasurywatch.db")); err != nil {
		t.Fatalf("store not opened at managed database path: %v", err)
	}
}

func TestRootCmdCreatesMissingConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	dbPath := filepath.Join(dir, "data", "tw.db")
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("DATA_CACHE_DIR", filepath.Join(dir, "data", "cache"))
	t.Setenv("DATABASE_PATH", dbPath)

	root := NewRootCmd()
	root.SetArgs([]string{"--config", path, "runs", "list"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// First start persists the resolved config, so the next start reads the
	// same file the manager wrote.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	var onDisk config.Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("persisted config is not valid json: %v", err)
	}
	if onDisk.DatabasePath != dbPath {
		t.Fatalf("persisted database_path = %q, want %q", onDisk.DatabasePath, dbPath)
	}
}
