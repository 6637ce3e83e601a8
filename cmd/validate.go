package cmd

import "github.com/spf13/cobra"

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Resolve content and run the validation gates without packaging",
		Long: `Validate resolves every identifier and evaluates the gate policy. Nothing is
written. Exit code 3 signals blocking issues; with --soft, downgradeable gates
report warnings instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, true)
		},
	}
	addSourceFlags(cmd.Flags())
	addGateFlags(cmd.Flags())
	return cmd
}
