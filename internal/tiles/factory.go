package tiles

import (
	"context"
	"log/slog"
	"strings"
)

// Options configures how a store is opened. The zero value gives batched
// writes, WAL journaling and the default alias resolver.
type Options struct {
	// AutoCommit makes every write durable on its own. Off, writes ride
	// one long-lived transaction committed by Close or Optimize, and
	// streaming reads see the last committed state until then. File
	// backend only; the server backends always auto-commit.
	AutoCommit bool

	// JournalMode selects the SQLite journal mode. Empty means wal.
	JournalMode string

	// SynchronousOff trades durability for write speed (SQLite).
	SynchronousOff bool

	// ExclusiveLock holds the SQLite file lock for the whole session.
	ExclusiveLock bool

	// CheckExists refuses to open a database that has not been set up.
	CheckExists bool

	// Resolver expands descriptor aliases. Nil reads DefaultConfigPath.
	Resolver Resolver

	// Logger receives diagnostics. Nil uses slog.Default.
	Logger *slog.Logger
}

func (o Options) resolve(alias string) (string, error) {
	r := o.Resolver
	if r == nil {
		r = FileResolver(DefaultConfigPath)
	}
	return r(alias)
}

func (o Options) logger(backend string) *slog.Logger {
	l := o.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("backend", backend)
}

func (o Options) journalMode() string {
	if o.JournalMode == "" {
		return "wal"
	}
	return o.JournalMode
}

// Connect opens the store named by the descriptor:
//
//	tiles.mbtiles                               SQLite file
//	dbname=x hostaddr=y ... driver=postgres     PostgreSQL
//	dbname=x hostaddr=y ... driver=mysql        MySQL
//	dbname=x hostaddr=y ... driver=mongodb      MongoDB
//	pg:alias | my:alias | mongodb:alias         alias from the config file
func Connect(ctx context.Context, descriptor string, opts Options) (Store, error) {
	switch {
	case strings.HasSuffix(descriptor, ".mbtiles"):
		return openSQLite(ctx, descriptor, opts)
	case strings.Contains(descriptor, "driver=postgres") || strings.HasPrefix(descriptor, "pg:"):
		params, err := connectionParams(descriptor, "driver=postgres", "pg:", opts)
		if err != nil {
			return nil, err
		}
		return openPostgres(ctx, params, opts)
	case strings.Contains(descriptor, "driver=mysql") || strings.HasPrefix(descriptor, "my:"):
		params, err := connectionParams(descriptor, "driver=mysql", "my:", opts)
		if err != nil {
			return nil, err
		}
		return openMySQL(ctx, params, opts)
	case strings.Contains(descriptor, "driver=mongodb") || strings.HasPrefix(descriptor, "mongodb:"):
		params, err := connectionParams(descriptor, "driver=mongodb", "mongodb:", opts)
		if err != nil {
			return nil, err
		}
		return openMongo(ctx, params, opts)
	default:
		return nil, newFormatError("unrecognized connection descriptor %q:"+
			" want a path ending in .mbtiles, key=value parameters with a driver tag,"+
			" or a pg:/my:/mongodb: alias", descriptor)
	}
}

// connectionParams strips the driver tag, or expands the alias shorthand,
// and parses the remaining key=value parameters.
func connectionParams(descriptor, tag, prefix string, opts Options) (map[string]string, error) {
	if alias, ok := strings.CutPrefix(descriptor, prefix); ok {
		if alias == "" {
			return nil, newFormatError("descriptor %q names no alias", descriptor)
		}
		resolved, err := opts.resolve(alias)
		if err != nil {
			return nil, &Error{Kind: KindFormat, Message: "could not resolve alias " + alias, Err: err}
		}
		descriptor = resolved
	}
	descriptor = strings.ReplaceAll(descriptor, tag, "")
	return parseConnectionString(descriptor)
}

func parseConnectionString(s string) (map[string]string, error) {
	params := make(map[string]string)
	for _, field := range strings.Fields(s) {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return nil, newFormatError("malformed connection parameter %q: want key=value", field)
		}
		params[key] = value
	}
	return params, nil
}

// hostParam returns the configured host, preferring the numeric form.
func hostParam(params map[string]string) string {
	if host := params["hostaddr"]; host != "" {
		return host
	}
	if host := params["host"]; host != "" {
		return host
	}
	return "127.0.0.1"
}

// requireParams checks that every named connection parameter is present.
func requireParams(params map[string]string, backend string, names ...string) error {
	for _, name := range names {
		if params[name] == "" {
			return newFormatError("%s connection needs a %s parameter", backend, name)
		}
	}
	return nil
}
