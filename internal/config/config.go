package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// HistoryConfig represents operation history configuration
type HistoryConfig struct {
	// Enabled records every operation in the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database; empty means $PACKRAT_HOME/history.db
	DBPath string `yaml:"db_path"`
}

// Config represents packrat configuration options
type Config struct {
	// Parallelism is the number of jobs run at once (0 = one per CPU)
	Parallelism int `yaml:"parallelism"`

	// OverwritePolicy decides existing destinations: ask, overwrite, skip, rename, abort
	OverwritePolicy string `yaml:"overwrite_policy"`

	// FollowSymlinks archives link targets instead of the links themselves
	FollowSymlinks bool `yaml:"follow_symlinks"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written; empty means $PACKRAT_HOME/logs
	LogDir string `yaml:"log_dir"`

	// CompressionLevel is a 1-9 hint for codecs that support levels (0 = codec default)
	CompressionLevel int `yaml:"compression_level"`

	// History contains operation history configuration
	History HistoryConfig `yaml:"history"`
}

// ValidPolicies lists the accepted overwrite_policy values.
var ValidPolicies = []string{"ask", "overwrite", "skip", "rename", "abort"}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Parallelism:      0, // One per CPU
		OverwritePolicy:  "ask",
		FollowSymlinks:   false,
		LogLevel:         "info",
		LogDir:           "",
		CompressionLevel: 0,
		History: HistoryConfig{
			Enabled: true,
			DBPath:  "",
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Pointer fields tell an explicit false or zero apart from an absent key.
	type yamlConfig struct {
		Parallelism      *int          `yaml:"parallelism"`
		OverwritePolicy  string        `yaml:"overwrite_policy"`
		FollowSymlinks   *bool         `yaml:"follow_symlinks"`
		LogLevel         string        `yaml:"log_level"`
		LogDir           string        `yaml:"log_dir"`
		CompressionLevel *int          `yaml:"compression_level"`
		History          HistoryConfig `yaml:"history"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.Parallelism != nil {
		cfg.Parallelism = *yamlCfg.Parallelism
	}
	if yamlCfg.OverwritePolicy != "" {
		cfg.OverwritePolicy = yamlCfg.OverwritePolicy
	}
	if yamlCfg.FollowSymlinks != nil {
		cfg.FollowSymlinks = *yamlCfg.FollowSymlinks
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.CompressionLevel != nil {
		cfg.CompressionLevel = *yamlCfg.CompressionLevel
	}

	// Merge the history section key by key so a partial section keeps defaults
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section, ok := rawMap["history"].(map[string]interface{}); ok {
			if _, exists := section["enabled"]; exists {
				cfg.History.Enabled = yamlCfg.History.Enabled
			}
			if _, exists := section["db_path"]; exists {
				cfg.History.DBPath = yamlCfg.History.DBPath
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromHome loads config.yaml from the packrat home directory
// If the file doesn't exist, returns default configuration without error
func LoadConfigFromHome() (*Config, error) {
	home, err := GetPackratHome()
	if err != nil {
		return nil, err
	}
	return LoadConfig(filepath.Join(home, "config.yaml"))
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(parallelism *int, overwritePolicy *string, followSymlinks *bool, logLevel *string) {
	if parallelism != nil {
		c.Parallelism = *parallelism
	}
	if overwritePolicy != nil {
		c.OverwritePolicy = *overwritePolicy
	}
	if followSymlinks != nil {
		c.FollowSymlinks = *followSymlinks
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
}

// ResolvePaths fills empty LogDir and History.DBPath with locations under home.
func (c *Config) ResolvePaths(home string) {
	if c.LogDir == "" {
		c.LogDir = filepath.Join(home, "logs")
	}
	if c.History.DBPath == "" {
		c.History.DBPath = filepath.Join(home, "history.db")
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be >= 0, got %d", c.Parallelism)
	}

	validPolicy := false
	for _, p := range ValidPolicies {
		if c.OverwritePolicy == p {
			validPolicy = true
			break
		}
	}
	if !validPolicy {
		return fmt.Errorf("invalid overwrite_policy %q, must be one of: ask, overwrite, skip, rename, abort", c.OverwritePolicy)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		return fmt.Errorf("compression_level must be between 0 and 9, got %d", c.CompressionLevel)
	}

	return nil
}
