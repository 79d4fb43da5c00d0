package cli

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/engine.toml"

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

// NewRootCmd creates the root cobra command for the lifecycle CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "lifecycle",
		Short:        "Phase-based lifecycle scheduler",
		Long:         "lifecycle runs a set of units through initialize, per-frame and terminate phases in dependency order.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (or LIFECYCLE_CONFIG env, default "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format override (console, json)")

	root.AddCommand(
		newRunCmd(),
		newScheduleCmd(),
	)

	return root
}

// configPath resolves the config file: flag, then env, then the default
// location when it exists. Empty means built-in defaults.
func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	if p := os.Getenv("LIFECYCLE_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
