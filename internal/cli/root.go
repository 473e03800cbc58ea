package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Outdooractive/mbutil/internal/tiles"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Connection behavior, passed through to the store.
	Config         string
	JournalMode    string
	SynchronousOff bool
	ExclusiveLock  bool
	AutoCommit     bool
	CheckExists    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mbutil CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mbutil",
		Short: "Tile store utility",
		Long: "Store, inspect and maintain map tiles across SQLite (mbtiles) files,\n" +
			"PostgreSQL, MySQL and MongoDB backends.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.setupLogging()
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", tiles.DefaultConfigPath, "connection alias config file")
	cmd.PersistentFlags().StringVar(&opts.JournalMode, "journal-mode", "wal", "SQLite journal mode")
	cmd.PersistentFlags().BoolVar(&opts.SynchronousOff, "synchronous-off", false, "SQLite: trade durability for write speed")
	cmd.PersistentFlags().BoolVar(&opts.ExclusiveLock, "exclusive-lock", false, "SQLite: hold the file lock for the whole run")
	cmd.PersistentFlags().BoolVar(&opts.AutoCommit, "auto-commit", false, "commit every write on its own instead of batching")
	cmd.PersistentFlags().BoolVar(&opts.CheckExists, "check-exists", false, "fail when the database has not been set up")

	// Add subcommands
	cmd.AddCommand(NewSetupCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewMetadataCommand(opts))
	cmd.AddCommand(NewExpireCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewOptimizeCommand(opts))
	cmd.AddCommand(NewConvertCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setupLogging configures the process logger from the verbose flag.
func (o *RootOptions) setupLogging() {
	logLevel := slog.LevelInfo
	if o.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// storeOptions translates the global flags into store options.
func (o *RootOptions) storeOptions() tiles.Options {
	return tiles.Options{
		AutoCommit:     o.AutoCommit,
		JournalMode:    o.JournalMode,
		SynchronousOff: o.SynchronousOff,
		ExclusiveLock:  o.ExclusiveLock,
		CheckExists:    o.CheckExists,
		Resolver:       tiles.FileResolver(o.Config),
	}
}

// openStore connects to the descriptor and maps failures to exit codes.
func openStore(ctx context.Context, descriptor string, opts *RootOptions) (tiles.Store, error) {
	st, err := tiles.Connect(ctx, descriptor, opts.storeOptions())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open tile store", err)
	}
	return st, nil
}

// closeStore closes st, logging instead of masking the command's error.
func closeStore(st tiles.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing tile store", "error", err)
	}
}
