/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"errors"
	"os"

	"github.com/fulmenhq/contentpack/pkg/buildinfo"
	"github.com/fulmenhq/contentpack/pkg/exitcode"
	"github.com/fulmenhq/contentpack/pkg/logger"
	"github.com/spf13/cobra"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contentpack",
		Short: "Deterministic content bundling with fallback routing and validation gates",
		Long: `Contentpack resolves content across prioritized fallback sources, checks the
resolved corpus against a gate policy, and packages a byte-reproducible bundle
with an integrity manifest.

Examples:
   contentpack resolve            # Show which tier served each identifier
   contentpack validate --soft    # Run validation gates in soft mode
   contentpack bundle             # Resolve, validate, and package
   contentpack verify dist/bundle # Re-hash a bundle against its manifest
   contentpack policy show        # Print the effective gate policy`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("config", "", "Config file (default: .contentpack.{yaml,json,toml} in the working directory)")
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Shorthand for --log-level debug")
	cmd.PersistentFlags().Bool("json", false, "Output logs and reports in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	// Wire Cobra's built-in --version using the binary version
	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("contentpack {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
// This is called from init() for production and can be called explicitly in tests.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newBundleCommand())
	cmd.AddCommand(newResolveCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newVerifyCommand())
	cmd.AddCommand(newPolicyCommand())
	cmd.AddCommand(newVersionCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	code := exitCodeFor(err)
	if err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			logger.Error("Command execution failed", logger.Err(err))
		}
	}
	logger.Sync()
	os.Exit(code)
}

func init() {
	// Register all subcommands with the production rootCmd
	registerSubcommands(rootCmd)
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	logLevel := logger.ParseLevel(logLevelStr)
	if verbose && logLevel > logger.DebugLevel {
		logLevel = logger.DebugLevel
	}

	config := logger.Config{
		Level:     logLevel,
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "contentpack",
	}

	if err := logger.Initialize(config); err != nil {
		// Fallback to stderr
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitcode.ConfigError)
	}
}
