package cmd

import (
	"fmt"

	"github.com/inovacc/binderlaunch/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the binderlaunch configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after flags, BINDERLAUNCH_* environment
variables and the config file have been applied, in the form of a
config.yaml file. The build token is masked unless --show-secrets is set.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configShowSecrets bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().BoolVar(&configShowSecrets, "show-secrets", false, "Print the build token in clear text")
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	configFile := v.ConfigFileUsed()
	if configFile == "" {
		configFile = "(none)"
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "# config file:   %s\n", configFile)
	_, _ = fmt.Fprintf(out, "# app directory: %s\n", config.GetApplicationDirectory())

	return config.WriteYAML(out, cfg, configShowSecrets)
}
