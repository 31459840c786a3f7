package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Retention.KeepVersions != 2 {
		t.Errorf("KeepVersions = %d, want 2", cfg.Retention.KeepVersions)
	}
	if cfg.BaseName() != "SBO_OBO" {
		t.Errorf("BaseName() = %q, want SBO_OBO", cfg.BaseName())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing url", func(c *Config) { c.GitHub.URL = "" }, "github.url"},
		{"missing owner", func(c *Config) { c.GitHub.RepoOwner = "" }, "repo_owner"},
		{"missing path", func(c *Config) { c.GitHub.FilePath = "" }, "file_path"},
		{"per page", func(c *Config) { c.API.PerPage = 0 }, "per_page"},
		{"log name", func(c *Config) { c.FilePatterns.LogFilename = "changes.json" }, "{timestamp}"},
		{"differ", func(c *Config) { c.Validation.Differ = "svn" }, "validation.differ"},
		{"retention", func(c *Config) { c.Retention.KeepVersions = 0 }, "keep_versions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obosync.yaml")
	content := `
github:
  repo_owner: test_owner
  file_path: test.obo
obo:
  id_prefix: GO
  field_order: [id, name, comment, is_a]
retention:
  keep_versions: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.GitHub.RepoOwner != "test_owner" {
		t.Errorf("RepoOwner = %q", cfg.GitHub.RepoOwner)
	}
	if cfg.GitHub.RepoName != "SBO" {
		t.Errorf("RepoName = %q, want default SBO", cfg.GitHub.RepoName)
	}
	if cfg.OBO.IDPrefix != "GO" || len(cfg.OBO.FieldOrder) != 4 {
		t.Errorf("OBO = %+v", cfg.OBO)
	}
	if cfg.Retention.KeepVersions != 3 {
		t.Errorf("KeepVersions = %d, want 3", cfg.Retention.KeepVersions)
	}
	if cfg.BaseName() != "test" {
		t.Errorf("BaseName() = %q, want test", cfg.BaseName())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GitHub.RepoName != "SBO" {
		t.Errorf("RepoName = %q", cfg.GitHub.RepoName)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("validation:\n  differ: svn\n"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil for invalid differ")
	}

	os.WriteFile(path, []byte("github: [unclosed\n"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil for malformed YAML")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "obosync.yaml")
	cfg := DefaultConfig()
	cfg.OLS.Ontology = "go"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}
	back, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if back.OLS.Ontology != "go" || back.API.Timeout != cfg.API.Timeout {
		t.Errorf("reloaded = %+v", back)
	}
}

func TestDirectoriesAndNames(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Directories.Root = root
	cfg.Directories.Logs = "/abs/logs"

	if got := cfg.LocalFilesDir(); got != filepath.Join(root, "localfiles") {
		t.Errorf("LocalFilesDir() = %q", got)
	}
	if got := cfg.LogsDir(); got != "/abs/logs" {
		t.Errorf("LogsDir() = %q", got)
	}

	cfg.Directories.Logs = "logs"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() error = %v", err)
	}
	for _, d := range []string{cfg.LocalFilesDir(), cfg.CustomerFileDir(), cfg.LogsDir(), cfg.StoreDir()} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("%s not created", d)
		}
	}

	ts := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	if got := cfg.Timestamp(ts); got != "20240305_070809" {
		t.Errorf("Timestamp() = %q", got)
	}
	if got := cfg.ChangeLogName(ts); got != "sbo_changes_20240305_070809.json" {
		t.Errorf("ChangeLogName() = %q", got)
	}
}
