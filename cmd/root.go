package cmd

import (
	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/logger"
)

var (
	verbose  bool
	jsonLogs bool
	quiet    bool
	version  = "v0.1.0"

	rootCmd = &cobra.Command{
		Use:   "taskweave",
		Short: "Run dependency-ordered, concurrency-bounded task pipelines",
		Long:  `taskweave wraps units of work in pausable, cancellable task handles and schedules them as dependency-ordered, concurrency-bounded batches.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(verbose, jsonLogs, quiet)
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")

	rootCmd.AddCommand(runCmd)
}
