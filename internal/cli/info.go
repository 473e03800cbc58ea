package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Outdooractive/mbutil/internal/geo"
	"github.com/Outdooractive/mbutil/internal/tiles"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
	Scale int
}

// infoReport is the info command's payload, also used for JSON output.
type infoReport struct {
	Database   string            `json:"database"`
	Compacted  bool              `json:"compacted"`
	HasScale   bool              `json:"has_scale"`
	LastUpdate int64             `json:"last_update,omitempty"`
	TotalTiles int               `json:"total_tiles"`
	ZoomLevels []zoomReport      `json:"zoom_levels,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type zoomReport struct {
	Zoom   int           `json:"zoom"`
	Tiles  int           `json:"tiles"`
	Extent *tiles.Extent `json:"extent,omitempty"`
	Bounds []float64     `json:"bounds,omitempty"` // minlon, minlat, maxlon, maxlat
}

// extentBounds projects a zoom level's column/row extent onto the WGS84
// envelope spanned by its corner tiles.
func extentBounds(zoom int, ext tiles.Extent) []float64 {
	nw := geo.TileToBounds(zoom, ext.MinColumn, ext.MinRow, false)
	se := geo.TileToBounds(zoom, ext.MaxColumn, ext.MaxRow, false)
	return []float64{nw.Min[0], se.Min[1], se.Max[0], nw.Max[1]}
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "info <database>",
		Short: "Summarize a tile store",
		Long: `Summarize a tile store: schema shape, tile counts and covered extent
per zoom level, last update time and metadata.

Example:
  mbutil info ./tiles.mbtiles
  mbutil info --format json my:staging`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Scale, "scale", 0, "restrict to one tile scale (0 = all)")

	return cmd
}

func runInfo(opts *InfoOptions, descriptor string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, descriptor, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	report, err := collectInfo(ctx, st, descriptor, opts.Scale)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to inspect tile store", err)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(report)
	}
	printInfo(cmd, report)
	return nil
}

func collectInfo(ctx context.Context, st tiles.Store, descriptor string, scale int) (*infoReport, error) {
	report := &infoReport{Database: descriptor}

	var err error
	if report.Compacted, err = st.IsCompacted(ctx); err != nil {
		return nil, err
	}
	if report.HasScale, err = st.HasScale(ctx); err != nil {
		return nil, err
	}
	if report.LastUpdate, err = st.MaxTimestamp(ctx); err != nil {
		return nil, err
	}

	filter := tiles.NoFilter()
	filter.Scale = scale
	if report.TotalTiles, err = st.TilesCount(ctx, filter); err != nil {
		return nil, err
	}

	levels, err := st.ZoomLevels(ctx, scale)
	if err != nil {
		return nil, err
	}
	for _, zoom := range levels {
		zr := zoomReport{Zoom: zoom}
		count, err := st.TilesCount(ctx, tiles.Filter{MinZoom: zoom, MaxZoom: zoom, Scale: scale})
		if err != nil {
			return nil, err
		}
		zr.Tiles = count

		extent, ok, err := st.BoundingBoxForZoom(ctx, zoom, scale)
		switch {
		case tiles.IsNotImplemented(err):
			// Document stores cannot report extents, leave them out.
		case err != nil:
			return nil, err
		case ok:
			zr.Extent = &extent
			zr.Bounds = extentBounds(zoom, extent)
		}
		report.ZoomLevels = append(report.ZoomLevels, zr)
	}

	if report.Metadata, err = st.Metadata(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

func printInfo(cmd *cobra.Command, report *infoReport) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Database:  %s\n", report.Database)
	fmt.Fprintf(out, "Compacted: %s\n", yesNo(report.Compacted))
	fmt.Fprintf(out, "Scaled:    %s\n", yesNo(report.HasScale))
	updated := "never"
	if report.LastUpdate > 0 {
		updated = time.Unix(report.LastUpdate, 0).UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(out, "Updated:   %s\n", updated)
	fmt.Fprintf(out, "Tiles:     %s\n", humanize.Comma(int64(report.TotalTiles)))

	if len(report.ZoomLevels) > 0 {
		fmt.Fprintln(out, "\nZoom levels:")
		for _, zr := range report.ZoomLevels {
			line := fmt.Sprintf("  %2d: %s tiles", zr.Zoom, humanize.Comma(int64(zr.Tiles)))
			if zr.Extent != nil {
				line += fmt.Sprintf(", columns %d-%d, rows %d-%d",
					zr.Extent.MinColumn, zr.Extent.MaxColumn, zr.Extent.MinRow, zr.Extent.MaxRow)
			}
			if len(zr.Bounds) == 4 {
				line += fmt.Sprintf(", covers %s,%s,%s,%s",
					formatCoord(zr.Bounds[0]), formatCoord(zr.Bounds[1]),
					formatCoord(zr.Bounds[2]), formatCoord(zr.Bounds[3]))
			}
			fmt.Fprintln(out, line)
		}
	}

	if len(report.Metadata) > 0 {
		fmt.Fprintln(out, "\nMetadata:")
		names := make([]string, 0, len(report.Metadata))
		for name := range report.Metadata {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  %s: %s\n", name, report.Metadata[name])
		}
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
