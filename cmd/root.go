package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/inovacc/binderlaunch/internal/config"
	"github.com/muesli/termenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	v  *viper.Viper
	fs afero.Fs = afero.NewOsFs()
)

var rootCmd = &cobra.Command{
	Use:   "binderlaunch [spec]",
	Short: "Build a repository on a BinderHub and open the running server",
	Long: `binderlaunch asks a BinderHub-style build service to turn a repository
into a container image, follows the build as it happens and opens the
resulting server in your browser once it is ready.

A spec has the form <provider>/<repository>/<ref>, for example
gh/binder-examples/requirements/HEAD.

Usage:
  binderlaunch launch <spec>     - Build and launch a repository
  binderlaunch history <cmd>     - Inspect previous launches
  binderlaunch config show       - Print the resolved configuration
  binderlaunch <spec>            - Shorthand for launch`,
	Args: cobra.MaximumNArgs(1),
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cobra.CheckErr(rootCmd.ExecuteContext(ctx))
}

// GetRootCmd returns the root command for introspection purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// RunE is assigned here rather than in the literal to avoid an
	// initialization cycle (rootCmd -> runLaunch -> initConfig -> rootCmd).
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}

		// Direct invocation acts as shorthand for launch
		return runLaunch(cmd, args)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SilenceUsage = true

	flags := rootCmd.PersistentFlags()
	flags.String("base-url", config.DefaultBaseURL, "Base URL of the build service")
	flags.String("build-token", "", "Token sent as build_token with the build request")
	flags.Bool("no-tui", false, "Disable TUI, use plain text output")
	flags.String("log-level", "info", "Diagnostic log level (debug, info, warn, error)")
	flags.Duration("connect-timeout", 30*time.Second, "How long to wait for the build service to answer")

	addLaunchFlags(rootCmd)
}

var flagKeys = map[string]string{
	"base-url":        config.KeyBaseURL,
	"build-token":     config.KeyBuildToken,
	"no-tui":          config.KeyNoTUI,
	"log-level":       config.KeyLogLevel,
	"connect-timeout": config.KeyConnectTimeout,
}

func initConfig() {
	v = config.New(fs)

	for name, key := range flagKeys {
		cobra.CheckErr(v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)))
	}
}

// loadConfig resolves flags, environment and config file
func loadConfig() (config.Config, error) {
	if v == nil {
		initConfig()
	}

	return config.Load(v)
}

// IsTUIEnabled returns whether the TUI should be used
// Returns false if no_tui is set, on CI, on dumb terminals or if stdout is
// not a terminal
func IsTUIEnabled(cfg config.Config) bool {
	if cfg.NoTUI || envTruthy("CI") {
		return false
	}

	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}

	return term.IsTerminal(int(os.Stdout.Fd()))
}

// configureColors strips styling from plain output that is not going to a terminal
func configureColors(out *os.File) {
	if term.IsTerminal(int(out.Fd())) {
		lipgloss.SetColorProfile(termenv.NewOutput(out).EnvColorProfile())
		return
	}

	lipgloss.SetColorProfile(termenv.Ascii)
}

func envTruthy(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	}

	return false
}
