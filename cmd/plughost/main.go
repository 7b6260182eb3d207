// Command plughost runs the plugin host: it loads the bundled plugins and
// any configured external Lua modules and serves the resulting registries
// over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/plughost/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "plughost",
		Short: "Capability-gated plugin host",
		Long: `plughost loads local and external plugins, checks every contribution
against the capabilities the plugin claims and the configured allow-lists,
and serves the merged registries to the UI.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvConfigFile),
		"Path to the TOML configuration file (env "+config.EnvConfigFile+")")

	rootCmd.AddCommand(
		newServeCmd(),
		newInspectCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
