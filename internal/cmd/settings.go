package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/packrat/internal/config"
)

// loadSettings loads the config file and applies the global flags on top.
// Flags only override when the user set them.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	home, err := config.GetPackratHome()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromHome()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var (
		jobs   *int
		policy *string
		follow *bool
		level  *string
	)
	if v, _ := flags.GetInt("jobs"); v >= 0 {
		jobs = &v
	}
	if flags.Changed("overwrite-policy") {
		v, _ := flags.GetString("overwrite-policy")
		policy = &v
	}
	if yes, _ := flags.GetBool("yes"); yes {
		v := "overwrite"
		policy = &v
	}
	if no, _ := flags.GetBool("no"); no {
		v := "skip"
		policy = &v
	}
	if flags.Changed("follow-symlinks") {
		v, _ := flags.GetBool("follow-symlinks")
		follow = &v
	}
	if flags.Changed("log-level") {
		v, _ := flags.GetString("log-level")
		level = &v
	}
	if quiet, _ := flags.GetBool("quiet"); quiet {
		v := "error"
		level = &v
	}

	cfg.MergeWithFlags(jobs, policy, follow, level)
	cfg.ResolvePaths(home)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
