package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/workflow"
)

var (
	pipelineFile string
	concurrency  int
	timeout      time.Duration

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline file to completion",
		Long: `Run loads a YAML pipeline definition and executes its tasks as a
dependency-ordered batch under the configured concurrency limit.`,
		RunE: runPipeline,
	}
)

func init() {
	runCmd.Flags().StringVarP(&pipelineFile, "file", "f", "pipeline.yaml", "Pipeline definition file")
	runCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Override the pipeline's concurrency limit")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Cancel the run after this duration (0 disables)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	spec, err := workflow.Load(pipelineFile)
	if err != nil {
		return err
	}
	if concurrency > 0 {
		spec.Concurrency = concurrency
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := workflow.Run(ctx, spec)
	if err != nil {
		if result != nil {
			return fmt.Errorf("pipeline run %s failed: %w", result.RunID, err)
		}
		return err
	}
	return nil
}
