package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Outdooractive/mbutil/internal/geo"
	"github.com/Outdooractive/mbutil/internal/tiles"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	MinZoom int
	MaxZoom int
	FlipY   bool
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <z/x/y | minlon,minlat,maxlon,maxlat>",
		Short: "Convert between tiles and coordinates",
		Long: `Convert a tile address into its WGS84 bounding box, or a bounding box
into the tiles covering it across a zoom range. Rows count from the top
by default; --flip-y counts them from the bottom.

Example:
  mbutil convert 14/8538/5724
  mbutil convert 7.35,51.91,7.88,52.15 --min-zoom 10 --max-zoom 12`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.MinZoom, "min-zoom", tiles.ZoomMin, "lowest zoom level to cover")
	cmd.Flags().IntVar(&opts.MaxZoom, "max-zoom", tiles.ZoomMax, "highest zoom level to cover")
	cmd.Flags().BoolVar(&opts.FlipY, "flip-y", false, "count rows from the bottom of the pyramid")

	return cmd
}

func runConvert(opts *ConvertOptions, arg string, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	if tile, err := geo.ParseTile(arg); err == nil {
		b := geo.TileToBounds(tile.Z, tile.X, tile.Y, opts.FlipY)
		fmt.Fprintf(out, "%s,%s,%s,%s\n",
			formatCoord(b.Min[0]), formatCoord(b.Min[1]),
			formatCoord(b.Max[0]), formatCoord(b.Max[1]))
		return nil
	}

	bounds, err := geo.ParseBounds(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "argument is neither a tile nor a bounding box", err)
	}
	for tile := range geo.TilesForBounds(bounds, opts.MinZoom, opts.MaxZoom, opts.FlipY) {
		fmt.Fprintf(out, "%d/%d/%d\n", tile.Z, tile.X, tile.Y)
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
