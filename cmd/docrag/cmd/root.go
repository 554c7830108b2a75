// Package cmd provides the CLI commands for docrag.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/logging"
	"github.com/Aman-CERP/docrag/internal/profiling"
	"github.com/Aman-CERP/docrag/pkg/version"
)

// Profiling flags
var (
	profileCPU     string
	profileMem     string
	profileTrace   string
	profileSession *profiling.Session
)

// Logging flags
var (
	debugMode      bool
	loggingCleanup func()
)

// Flags shared by every subcommand.
var (
	configFile string
	dataDir    string
	noColor    bool
)

// NewRootCmd creates the root command for the docrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docrag",
		Short: "Hybrid lexical and semantic retrieval over your documents",
		Long: `docrag chunks documents, indexes them in a BM25 lexical index and an
HNSW vector index, and answers queries by fusing both result lists.

Start with 'docrag ingest <path>' and then 'docrag search <query>'.
'docrag serve' exposes the same index over MCP or HTTP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Project config file (default: .docrag.yaml in the current directory)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Index data directory (overrides paths.data_dir)")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and ~/.docrag/logs/")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVocabCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the file logger and starts any
// requested profiles.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	} else if level := os.Getenv("DOCRAG_LOG_LEVEL"); level != "" {
		logCfg.Level = level
	}

	cleanup, err := logging.SetupDefault(logCfg)
	switch {
	case err == nil:
		loggingCleanup = cleanup
	case debugMode:
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	if debugMode {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}

	session, err := profiling.Start(profiling.Config{
		CPU:   profileCPU,
		Heap:  profileMem,
		Trace: profileTrace,
	})
	if err != nil {
		return err
	}
	profileSession = session
	return nil
}

// stopProfilingAndLogging stops profiling, writes the heap profile and
// closes the log file. It runs at most once per command.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command. Profiling and logging are torn down even
// when the command fails.
func Execute() error {
	return execute(context.Background(), NewRootCmd())
}

func execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if stopErr := stopProfilingAndLogging(root, nil); err == nil {
		err = stopErr
	}
	return err
}
