package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"etlpipe/internal/app"
	"etlpipe/internal/config"
	"etlpipe/internal/domain"
	"etlpipe/internal/logger"
)

var version = "dev"

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	envFile    string
	output     string
	verbose    bool
	strict     bool

	stdout io.Writer
	stderr io.Writer
	log    *slog.Logger
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "etlpipe [config]",
		Short: "Extract tabular sources, clean them and load them into a relational store",
		Long: "etlpipe reads a list of sources from a config file, extracts each one, applies " +
			"the configured table rules and replaces the matching tables in the store.\n" +
			"Without a subcommand it runs the pipeline once.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(opts.output); err != nil {
				return err
			}
			if err := config.LoadDotEnv(opts.envFile); err != nil {
				return err
			}
			opts.log = logger.NewWithWriter(opts.stderr, opts.verbose)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), opts, args)
		},
	}

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Pipeline config file (JSON or YAML)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before the config (ignored if missing)")
	pf.StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&opts.strict, "strict", false, "Exit non-zero when any source or table fails")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newScheduleCmd(opts),
		newWatchCmd(opts),
		newTablesCmd(opts),
		newHistoryCmd(opts),
		newPreviewCmd(opts),
		newSourcesCmd(opts),
		newMCPCmd(opts),
	)
	return rootCmd
}

// configPathFrom returns the positional config path when given, else the flag.
func (o *options) configPathFrom(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return o.configPath
}

// loadApp loads the config and wires the application.
func (o *options) loadApp(path string) (*app.App, error) {
	a, err := app.Load(path, o.log)
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			o.log.Error("config: invalid", "path", cfgErr.Path, "error", cfgErr.Err)
		}
		return nil, err
	}
	return a, nil
}

// checkStatus turns a non-successful run into an error under --strict.
func (o *options) checkStatus(status domain.RunStatus) error {
	if o.strict && status != domain.RunSuccess {
		return fmt.Errorf("run finished with status %s", status)
	}
	return nil
}

func validateOutputFormat(output string) error {
	if output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}
