package cli

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"
)

// NewMetadataCommand creates the metadata command group.
func NewMetadataCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Read and write store metadata",
	}
	cmd.AddCommand(newMetadataGetCommand(rootOpts))
	cmd.AddCommand(newMetadataSetCommand(rootOpts))
	return cmd
}

func newMetadataGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <database> [name]",
		Short: "Print metadata, or one entry's value",
		Long: `Print all metadata entries, or the bare value of a single entry.

Example:
  mbutil metadata get ./tiles.mbtiles
  mbutil metadata get ./tiles.mbtiles bounds`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			return runMetadataGet(rootOpts, args[0], name, cmd)
		},
	}
}

func newMetadataSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <database> <name> <value>",
		Short: "Store one metadata entry",
		Long: `Store one metadata entry, overwriting any previous value.

Example:
  mbutil metadata set ./tiles.mbtiles attribution "OpenStreetMap contributors"`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetadataSet(rootOpts, args[0], args[1], args[2], cmd)
		},
	}
}

func runMetadataGet(opts *RootOptions, descriptor, name string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, descriptor, opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	meta, err := st.Metadata(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read metadata", err)
	}

	out := cmd.OutOrStdout()
	if name != "" {
		value, ok := meta[name]
		if !ok {
			return NewExitError(ExitFailure, fmt.Sprintf("no metadata entry %q", name))
		}
		fmt.Fprintln(out, value)
		return nil
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: out}
		return f.Success(meta)
	}
	names := make([]string, 0, len(meta))
	for n := range meta {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(out, "%s: %s\n", n, meta[n])
	}
	return nil
}

func runMetadataSet(opts *RootOptions, descriptor, name, value string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, descriptor, opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if err := st.UpdateMetadata(ctx, name, value); err != nil {
		return WrapExitError(ExitFailure, "failed to update metadata", err)
	}
	slog.Info("metadata updated", "name", name)
	return nil
}
