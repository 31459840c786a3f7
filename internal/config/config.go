// Package config provides configuration loading and management for obosync.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/obosync/core/obo"
)

// Config represents the complete obosync configuration.
type Config struct {
	GitHub       GitHubConfig      `yaml:"github"`
	API          APIConfig         `yaml:"api"`
	OLS          OLSConfig         `yaml:"ols"`
	Directories  DirectoriesConfig `yaml:"directories"`
	FilePatterns FilePatterns      `yaml:"file_patterns"`
	OBO          OBOConfig         `yaml:"obo"`
	Validation   ValidationConfig  `yaml:"validation"`
	Retention    RetentionConfig   `yaml:"retention"`
	Logging      LoggingConfig     `yaml:"logging"`
}

// GitHubConfig locates the upstream ontology file.
type GitHubConfig struct {
	// URL is the raw download URL of the file.
	URL       string `yaml:"url"`
	RepoOwner string `yaml:"repo_owner"`
	RepoName  string `yaml:"repo_name"`
	// FilePath is the file's path inside the repository; its base name
	// also names local versions.
	FilePath string `yaml:"file_path"`
	Branch   string `yaml:"branch"`
}

// APIConfig configures calls to the GitHub REST API.
type APIConfig struct {
	GitHubAPIBase string `yaml:"github_api_base"`
	// RawBase serves file content by commit sha. Empty downloads
	// github.url, the branch head.
	RawBase  string        `yaml:"raw_base"`
	PerPage  int           `yaml:"per_page"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// OLSConfig configures the Ontology Lookup Service client.
type OLSConfig struct {
	BaseURL  string `yaml:"base_url"`
	Ontology string `yaml:"ontology"`
	PageSize int    `yaml:"page_size"`
}

// DirectoriesConfig lays out the working tree. Relative entries resolve
// against Root.
type DirectoriesConfig struct {
	Root         string `yaml:"root"`
	LocalFiles   string `yaml:"localfiles"`
	CustomerFile string `yaml:"customerfile"`
	Logs         string `yaml:"logs"`
	Store        string `yaml:"store"`
}

// FilePatterns controls generated file names.
type FilePatterns struct {
	// TimestampFormat is a strftime layout.
	TimestampFormat string `yaml:"timestamp_format"`
	// LogFilename must contain {timestamp}.
	LogFilename string `yaml:"log_filename"`
	// UploadPattern selects files picked up by the drop-directory watcher.
	UploadPattern string `yaml:"upload_pattern"`
}

// OBOConfig configures parsing and serialization.
type OBOConfig struct {
	IDPrefix          string   `yaml:"id_prefix"`
	FieldOrder        []string `yaml:"field_order"`
	TypedefFieldOrder []string `yaml:"typedef_field_order"`
}

// ValidationConfig selects the round-trip line differ.
type ValidationConfig struct {
	// Differ is "line" (in-process) or "git".
	Differ    string `yaml:"differ"`
	GitBinary string `yaml:"git_binary"`
}

// RetentionConfig bounds how many versions are kept.
type RetentionConfig struct {
	KeepVersions int `yaml:"keep_versions"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config tracking the SBO ontology.
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			URL:       "https://raw.githubusercontent.com/EBI-BioModels/SBO/master/SBO_OBO.obo",
			RepoOwner: "EBI-BioModels",
			RepoName:  "SBO",
			FilePath:  "SBO_OBO.obo",
			Branch:    "master",
		},
		API: APIConfig{
			GitHubAPIBase: "https://api.github.com",
			RawBase:       "https://raw.githubusercontent.com",
			PerPage:       1,
			Timeout:       30 * time.Second,
			CacheTTL:      time.Minute,
		},
		OLS: OLSConfig{
			BaseURL:  "https://www.ebi.ac.uk/ols4",
			Ontology: "sbo",
			PageSize: 500,
		},
		Directories: DirectoriesConfig{
			Root:         ".",
			LocalFiles:   "localfiles",
			CustomerFile: "customerfile",
			Logs:         "logs",
			Store:        "store",
		},
		FilePatterns: FilePatterns{
			TimestampFormat: "%Y%m%d_%H%M%S",
			LogFilename:     "sbo_changes_{timestamp}.json",
			UploadPattern:   "*.{obo,json}",
		},
		OBO: OBOConfig{
			IDPrefix:          obo.DefaultRefPrefix,
			FieldOrder:        append([]string(nil), obo.DefaultTermOrder...),
			TypedefFieldOrder: append([]string(nil), obo.DefaultTypedefOrder...),
		},
		Validation: ValidationConfig{
			Differ:    "line",
			GitBinary: "git",
		},
		Retention: RetentionConfig{
			KeepVersions: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.GitHub.URL == "" {
		return fmt.Errorf("github.url is required")
	}
	if c.GitHub.RepoOwner == "" || c.GitHub.RepoName == "" {
		return fmt.Errorf("github.repo_owner and github.repo_name are required")
	}
	if c.GitHub.FilePath == "" {
		return fmt.Errorf("github.file_path is required")
	}
	if c.API.GitHubAPIBase == "" {
		return fmt.Errorf("api.github_api_base is required")
	}
	if c.API.PerPage < 1 {
		return fmt.Errorf("api.per_page must be at least 1")
	}
	if c.FilePatterns.TimestampFormat == "" {
		return fmt.Errorf("file_patterns.timestamp_format is required")
	}
	if !strings.Contains(c.FilePatterns.LogFilename, "{timestamp}") {
		return fmt.Errorf("file_patterns.log_filename must contain {timestamp}")
	}
	switch c.Validation.Differ {
	case "line", "git":
	default:
		return fmt.Errorf("validation.differ must be \"line\" or \"git\", got %q", c.Validation.Differ)
	}
	if c.Retention.KeepVersions < 1 {
		return fmt.Errorf("retention.keep_versions must be at least 1")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads path if it exists and falls back to defaults otherwise. The
// result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Path resolves a directory entry against Root.
func (c *Config) Path(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Directories.Root, dir)
}

// LocalFilesDir returns the directory holding active version files.
func (c *Config) LocalFilesDir() string { return c.Path(c.Directories.LocalFiles) }

// CustomerFileDir returns the upload directory.
func (c *Config) CustomerFileDir() string { return c.Path(c.Directories.CustomerFile) }

// LogsDir returns the change log directory.
func (c *Config) LogsDir() string { return c.Path(c.Directories.Logs) }

// StoreDir returns the version store directory.
func (c *Config) StoreDir() string { return c.Path(c.Directories.Store) }

// EnsureDirectories creates every working directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.LocalFilesDir(), c.CustomerFileDir(), c.LogsDir(), c.StoreDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// BaseName is the upstream file name without extension, used to name
// local versions.
func (c *Config) BaseName() string {
	base := filepath.Base(c.GitHub.FilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Timestamp renders t with file_patterns.timestamp_format.
func (c *Config) Timestamp(t time.Time) string {
	return strftime.Format(c.FilePatterns.TimestampFormat, t)
}

// ChangeLogName returns the change log file name for t.
func (c *Config) ChangeLogName(t time.Time) string {
	return strings.ReplaceAll(c.FilePatterns.LogFilename, "{timestamp}", c.Timestamp(t))
}
