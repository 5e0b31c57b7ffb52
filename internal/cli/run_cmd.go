package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [config]",
		Short: "Run the pipeline once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), opts, args)
		},
	}
}

// runOnce loads the config, runs the pipeline and prints the result.
// Config and store errors always fail; source and table errors only under --strict.
func runOnce(ctx context.Context, opts *options, args []string) error {
	a, err := opts.loadApp(opts.configPathFrom(args))
	if err != nil {
		return err
	}
	result, err := a.Run(ctx)
	if err != nil {
		return err
	}
	if err := printRunResult(opts, result); err != nil {
		return err
	}
	return opts.checkStatus(result.Status)
}
