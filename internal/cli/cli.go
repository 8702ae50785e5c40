// Package cli defines the command-line surface. It translates flags into
// the application's configuration and handles process-level concerns like
// exit codes.
package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/vk/bandplan/internal/app"
)

// Version is the release version reported by --version.
const Version = "1.0.0"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// BuildCLI assembles the command tree. Log output goes to logW; outW is
// reserved for the captured-identifier protocol and user-facing output.
func BuildCLI(outW, logW io.Writer) *cobra.Command {
	var logLevel, logFormat string

	rootCmd := &cobra.Command{
		Use:   "bandplan",
		Short: "Plan partitioned batch pipeline runs for a cluster scheduler",
		Long: `bandplan turns a declarative catalog of processing stages plus a run
configuration into a concrete execution plan: per-stage submission
descriptors wired together with correct dependency ordering, optionally
partitioned across independent frequency sub-bands, and a master script
that submits them and captures their job identifiers.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Logging level: 'debug', 'info', 'warn', or 'error'.")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log output format: 'text' or 'json'.")

	rootCmd.AddCommand(buildRunCommand(outW, logW, &logLevel, &logFormat))
	rootCmd.AddCommand(buildBuildCommand(outW, logW, &logLevel, &logFormat))

	return rootCmd
}

func buildRunCommand(outW, logW io.Writer, logLevel, logFormat *string) *cobra.Command {
	var (
		configPath string
		submit     bool
		justRun    bool
		quiet      bool
		verbose    bool
		dependency string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan a pipeline run from a config file",
		Long: `Plan a pipeline run: partition the frequency range, build the stage
graph, write the submission descriptors and the master script, and
optionally submit immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.NewConfig(app.Config{
				ConfigPath: configPath,
				Submit:     submit,
				JustRun:    justRun,
				Quiet:      quiet,
				Verbose:    verbose,
				Dependency: dependency,
				LogLevel:   *logLevel,
				LogFormat:  *logFormat,
			})
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			return app.NewApp(outW, logW, cfg).Run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "default_config.hcl", "Path to the run config file.")
	cmd.Flags().BoolVarP(&submit, "submit", "s", false, "Submit jobs immediately after planning.")
	cmd.Flags().BoolVar(&justRun, "just-run", false, "Leave existing submission descriptors untouched.")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the final chain job identifier.")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Echo each submission command in the master script.")
	cmd.Flags().StringVarP(&dependency, "dependency", "d", "",
		"Scheduler dependency expression gating the first submission, e.g. 'afterok:12345'.")

	return cmd
}

func buildBuildCommand(outW, logW io.Writer, logLevel, logFormat *string) *cobra.Command {
	opts := app.DefaultBuildOptions()

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate a default config file for a measurement set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.NewConfig(app.Config{
				ConfigPath: opts.Path,
				LogLevel:   *logLevel,
				LogFormat:  *logFormat,
			})
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			return app.NewApp(outW, logW, cfg).Build(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Vis, "ms", "M", "", "Path to the measurement set.")
	cmd.Flags().StringVarP(&opts.Path, "config", "c", opts.Path, "Path to write the generated config to.")
	cmd.Flags().IntVarP(&opts.Nodes, "nodes", "N", opts.Nodes, "Number of nodes for threadsafe stages.")
	cmd.Flags().IntVarP(&opts.TasksPerNode, "ntasks-per-node", "t", opts.TasksPerNode, "Tasks per node for threadsafe stages.")
	cmd.Flags().IntVarP(&opts.MemGB, "mem", "m", opts.MemGB, "Memory per node in GB.")
	cmd.Flags().StringVar(&opts.Account, "account", opts.Account, "Charge account for submitted jobs.")
	cmd.Flags().StringVar(&opts.Partition, "partition", opts.Partition, "Scheduler partition to submit to.")
	cmd.Flags().IntVar(&opts.NSPW, "nspw", opts.NSPW, "Number of frequency sub-bands to partition into.")
	cmd.MarkFlagRequired("ms")

	return cmd
}
