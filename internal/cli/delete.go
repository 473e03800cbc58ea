package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	FilterOptions
	ContentID string
	Orphans   bool
	All       bool
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <database>",
		Short: "Remove tiles and unreferenced content",
		Long: `Remove the selected coordinates, then sweep content rows no coordinate
references anymore. With --content-id a single content entry and every
coordinate pointing at it are removed; with --orphans only the sweep
runs. Deleting everything requires --all.

Example:
  mbutil delete ./tiles.mbtiles --max-zoom 8
  mbutil delete ./tiles.mbtiles --orphans
  mbutil delete pg:production --content-id 0a5b1e...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], cmd)
		},
	}

	opts.FilterOptions.register(cmd)
	cmd.Flags().StringVar(&opts.ContentID, "content-id", "", "remove one content entry and its coordinates")
	cmd.Flags().BoolVar(&opts.Orphans, "orphans", false, "only sweep unreferenced content")
	cmd.Flags().BoolVar(&opts.All, "all", false, "allow deleting without any selection")

	return cmd
}

func runDelete(opts *DeleteOptions, descriptor string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, descriptor, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	switch {
	case opts.ContentID != "":
		if err := st.DeleteTileWithID(ctx, opts.ContentID); err != nil {
			return WrapExitError(ExitFailure, "failed to delete content", err)
		}
		slog.Info("content deleted", "content_id", opts.ContentID)

	case opts.Orphans:
		if err := st.DeleteOrphanedContent(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to sweep orphaned content", err)
		}
		slog.Info("orphaned content swept")

	default:
		if !opts.FilterOptions.changed(cmd) && !opts.All {
			return NewExitError(ExitCommandError,
				"refusing to delete every tile; narrow the selection or pass --all")
		}
		if err := st.DeleteTiles(ctx, opts.filter()); err != nil {
			return WrapExitError(ExitFailure, "failed to delete tiles", err)
		}
		slog.Info("tiles deleted",
			"min_zoom", opts.MinZoom, "max_zoom", opts.MaxZoom)
	}
	return nil
}
