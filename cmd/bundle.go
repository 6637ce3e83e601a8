package cmd

import (
	"context"

	"github.com/fulmenhq/contentpack/internal/pipeline"
	"github.com/fulmenhq/contentpack/pkg/logger"
	"github.com/spf13/cobra"
)

func newBundleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Resolve, validate, and package a release bundle",
		Long: `Bundle runs every stage: resolve content across fallback tiers, check the
corpus against the gate policy, write manifest.json and routing.json, and swap
the staged bundle into the output directory. Blocking gate issues stop the run
before anything is written (exit 3).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, false)
		},
	}
	addSourceFlags(cmd.Flags())
	addGateFlags(cmd.Flags())
	addBundleFlags(cmd.Flags())
	return cmd
}

// runPipeline executes the pipeline and prints the summary on every path.
func runPipeline(cmd *cobra.Command, validateOnly bool) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	cfg, err := loadSettings(cmd)
	if err != nil {
		_ = pipeline.WriteSummary(out, pipeline.Summarize(nil, err, 0), asJSON)
		return &reportedError{err}
	}
	pc, err := pipelineConfig(cfg)
	if err != nil {
		_ = pipeline.WriteSummary(out, pipeline.Summarize(nil, err, 0), asJSON)
		return &reportedError{err}
	}
	pc.StopAfterValidation = validateOnly

	res, runErr := pipeline.Run(context.Background(), pc)
	if err := pipeline.WriteSummary(out, pipeline.Summarize(res, runErr, cfg.Summary.MaxExamples), asJSON); err != nil {
		logger.Warn("Failed to write summary", logger.Err(err))
	}
	if runErr != nil {
		return &reportedError{runErr}
	}
	return nil
}
