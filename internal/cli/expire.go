package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Outdooractive/mbutil/internal/geo"
	"github.com/Outdooractive/mbutil/internal/tiles"
)

// FilterOptions holds the tile selection flags shared by expire and delete.
type FilterOptions struct {
	MinZoom      int
	MaxZoom      int
	MinTimestamp int64
	MaxTimestamp int64
	Scale        int
}

func (o *FilterOptions) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.MinZoom, "min-zoom", tiles.ZoomMin, "lowest zoom level to touch")
	cmd.Flags().IntVar(&o.MaxZoom, "max-zoom", tiles.ZoomMax, "highest zoom level to touch")
	cmd.Flags().Int64Var(&o.MinTimestamp, "min-timestamp", 0, "only tiles updated after this Unix time")
	cmd.Flags().Int64Var(&o.MaxTimestamp, "max-timestamp", 0, "only tiles updated before this Unix time")
	cmd.Flags().IntVar(&o.Scale, "scale", 0, "only tiles of this scale (0 = all)")
}

func (o *FilterOptions) filter() tiles.Filter {
	return tiles.Filter{
		MinZoom:      o.MinZoom,
		MaxZoom:      o.MaxZoom,
		MinTimestamp: o.MinTimestamp,
		MaxTimestamp: o.MaxTimestamp,
		Scale:        o.Scale,
	}
}

// changed reports whether any selection flag was given explicitly.
func (o *FilterOptions) changed(cmd *cobra.Command) bool {
	for _, name := range []string{"min-zoom", "max-zoom", "min-timestamp", "max-timestamp", "scale"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// ExpireOptions holds flags for the expire command.
type ExpireOptions struct {
	*RootOptions
	FilterOptions
	Tile string
}

// NewExpireCommand creates the expire command.
func NewExpireCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpireOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expire <database>",
		Short: "Mark tiles as awaiting fresh content",
		Long: `Clear the content reference of the selected coordinates and stamp them
with the current time. Expired tiles stay listed in the change log; their
content is kept until an orphan sweep since other coordinates may share
it. On stores without a coordinate/content split the selected tiles are
deleted instead.

Example:
  mbutil expire ./tiles.mbtiles --min-zoom 12 --max-zoom 14
  mbutil expire ./tiles.mbtiles --tile 14/8538/5724 --scale 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpire(opts, args[0], cmd)
		},
	}

	opts.FilterOptions.register(cmd)
	cmd.Flags().StringVar(&opts.Tile, "tile", "", "expire a single tile given as z/x/y")

	return cmd
}

func runExpire(opts *ExpireOptions, descriptor string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	var single geo.Tile
	if opts.Tile != "" {
		var err error
		if single, err = geo.ParseTile(opts.Tile); err != nil {
			return WrapExitError(ExitCommandError, "invalid tile", err)
		}
	}

	st, err := openStore(ctx, descriptor, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if opts.Tile != "" {
		if err := st.ExpireTile(ctx, single.Z, single.X, single.Y, opts.Scale); err != nil {
			return WrapExitError(ExitFailure, "failed to expire tile", err)
		}
		slog.Info("tile expired", "tile", opts.Tile)
		return nil
	}

	if err := st.ExpireTiles(ctx, opts.filter()); err != nil {
		return WrapExitError(ExitFailure, "failed to expire tiles", err)
	}
	slog.Info("tiles expired",
		"min_zoom", opts.MinZoom, "max_zoom", opts.MaxZoom)
	return nil
}
