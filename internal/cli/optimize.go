package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// OptimizeOptions holds flags for the optimize command.
type OptimizeOptions struct {
	*RootOptions
	SkipAnalyze bool
	SkipVacuum  bool
}

// NewOptimizeCommand creates the optimize command.
func NewOptimizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OptimizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "optimize <database>",
		Short: "Refresh statistics and reclaim space",
		Long: `Refresh the query planner's statistics and reclaim free space. Both
steps can take a while on large stores and can be skipped separately.

Example:
  mbutil optimize ./tiles.mbtiles
  mbutil optimize --skip-vacuum my:staging`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipAnalyze, "skip-analyze", false, "skip the statistics refresh")
	cmd.Flags().BoolVar(&opts.SkipVacuum, "skip-vacuum", false, "skip the space reclaim")

	return cmd
}

func runOptimize(opts *OptimizeOptions, descriptor string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, descriptor, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if err := st.Optimize(ctx, opts.SkipAnalyze, opts.SkipVacuum); err != nil {
		return WrapExitError(ExitFailure, "failed to optimize tile store", err)
	}
	slog.Info("tile store optimized")
	return nil
}
