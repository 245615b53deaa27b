package worker

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/failfix/metafetch/task"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// WorkerCommand builds the metafetch command tree. The logger is constructed
// once in the root's PersistentPreRunE so every subcommand shares it.
func WorkerCommand() *cobra.Command {
	var (
		verbose bool
		logger  *zap.Logger
	)

	cmd := &cobra.Command{
		Use:   "metafetch",
		Short: "Bulk artifact metadata retrieval for the BugSwarm dataset",
		Long: `metafetch drives the dataset's command-line client once per artifact,
retrying rate-limited fetches, and flattens the fetched metadata into a CSV
dataset for analysis.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(fetchCommand(&logger))
	cmd.AddCommand(processCommand(&logger))
	return cmd
}

func fetchCommand(logger **zap.Logger) *cobra.Command {
	var (
		exportFile string
		outputDir  string
		tool       string
		maxRetries int
		retryDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch metadata for every image tag in the export file",
		Long: `Reads the export file (a JSON array of artifact records), then invokes
the metadata tool as "<tool> show --image-tag <tag>" for each record in
order. The tool's combined output is written verbatim to
<output-dir>/<tag>_metadata.json on every attempt. A fetch whose output
contains the service's rate-limit message is retried after a constant delay,
up to the retry limit; any other outcome is terminal for that tag.

The command fails only when the export file cannot be read. Per-tag
failures are logged and reflected in the metadata files, not in the exit
status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := task.LoadExport(exportFile)
			if err != nil {
				return err
			}

			fetcher := task.NewFetcher(*logger, task.FetchConfig{
				Tool:       tool,
				OutputDir:  outputDir,
				MaxRetries: maxRetries,
				RetryDelay: retryDelay,
			})
			_, err = fetcher.Run(cmd.Context(), tags)
			return err
		},
	}

	cmd.Flags().StringVar(&exportFile, "export", "Export.json", "path to the dataset export file")
	cmd.Flags().StringVar(&outputDir, "output-dir", filepath.Join("Data", "metadata"), "directory for per-artifact metadata files")
	cmd.Flags().StringVar(&tool, "tool", "bugswarm", "metadata tool to invoke")
	cmd.Flags().IntVar(&maxRetries, "max-retries", task.DefaultMaxRetries, "maximum attempts per rate-limited image tag")
	cmd.Flags().DurationVar(&retryDelay, "retry-delay", task.DefaultRetryDelay, "pause between rate-limited attempts")
	return cmd
}

func processCommand(logger **zap.Logger) *cobra.Command {
	var (
		metadataDir string
		outputCSV   string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Flatten fetched metadata files into a CSV dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := task.ProcessMetadata(*logger, metadataDir, outputCSV)
			if err != nil {
				return err
			}
			(*logger).Info("processed artifacts",
				zap.Int("count", n),
				zap.String("output", outputCSV))
			return nil
		},
	}

	cmd.Flags().StringVar(&metadataDir, "metadata-dir", filepath.Join("Data", "metadata"), "directory holding fetched metadata files")
	cmd.Flags().StringVar(&outputCSV, "output", filepath.Join("Data", "processed", "artifact_data.csv"), "path of the flattened CSV file")
	return cmd
}
