package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kegnet.io/kegcore/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file and print the normalized result",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("config invalid", err)
		}

		out, err := yaml.Marshal(map[string]*config.Config{"kegcore": cfg})
		if err != nil {
			exitWithError("rendering config", err)
		}
		fmt.Printf("Config OK: %s\n---\n%s", configFile, out)
	},
}
