package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"kegnet.io/kegcore/internal/config"
	"kegnet.io/kegcore/internal/daemon"
)

// Version is stamped by the build.
var Version = "0.1.0"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the core in the foreground",
	Long: `Run the coordination core in the foreground.

The core will:
  1. Load configuration from the config file (env vars override)
  2. Initialize logging and metrics
  3. Connect to the kegnet channel and the backend API
  4. Dispatch events until SIGTERM/SIGINT or a QuitEvent arrives

SIGHUP re-applies the configured log level.`,
	Run: func(cmd *cobra.Command, args []string) {
		runCore()
	},
}

func runCore() {
	cfg, err := loadConfig()
	if err != nil {
		exitWithError("loading config", err)
	}

	d := daemon.New(cfg)
	if err := d.Start(); err != nil {
		exitWithError("starting core", err)
	}
	if err := d.Run(); err != nil {
		exitWithError("running core", err)
	}
}

// loadConfig reads the configured file, falling back to built-in defaults
// when the default path does not exist and was not explicitly requested.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configFile); os.IsNotExist(err) && !rootCmd.PersistentFlags().Changed("config") {
		return config.Default(), nil
	}
	return config.Load(configFile)
}
