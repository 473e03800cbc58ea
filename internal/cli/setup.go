package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// NewSetupCommand creates the setup command.
func NewSetupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup <database>",
		Short: "Create the tile schema",
		Long: `Create the tile schema on the given database: the coordinate and
content tables, their unique indexes and the tiles view. Setup is
idempotent and upgrades older schema generations in place. On a legacy
mbtiles file holding a plain tiles table only the metadata objects are
created.

Example:
  mbutil setup ./tiles.mbtiles
  mbutil setup pg:production`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(rootOpts, args[0], cmd)
		},
	}
}

func runSetup(opts *RootOptions, descriptor string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, descriptor, opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	slog.Info("creating schema", "database", descriptor)
	if err := st.Setup(ctx); err != nil {
		return WrapExitError(ExitCommandError, "setup failed", err)
	}
	slog.Info("schema ready")
	return nil
}
