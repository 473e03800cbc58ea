package tiles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "connect.mbtiles")

	st, err := Connect(ctx, path, Options{AutoCommit: true})
	require.NoError(t, err)
	require.NoError(t, st.Setup(ctx))

	compacted, err := st.IsCompacted(ctx)
	require.NoError(t, err)
	assert.True(t, compacted)
	require.NoError(t, st.Close())
}

func TestConnectUnrecognized(t *testing.T) {
	for _, descriptor := range []string{"", "tiles.sqlite", "dbname=x"} {
		_, err := Connect(context.Background(), descriptor, Options{})
		require.Error(t, err, descriptor)
		assert.True(t, IsFormatError(err), descriptor)
	}
}

func TestConnectEmptyAlias(t *testing.T) {
	_, err := Connect(context.Background(), "pg:", Options{})
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

func TestConnectAliasResolutionFails(t *testing.T) {
	opts := Options{Resolver: func(alias string) (string, error) {
		return "", errors.New("boom")
	}}
	_, err := Connect(context.Background(), "pg:production", opts)
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
	assert.Contains(t, err.Error(), "production")
}

func TestConnectResolvedAliasFeedsBackend(t *testing.T) {
	// The alias expands to parameters missing the user, so the backend
	// rejects them before dialing anything.
	opts := Options{Resolver: func(alias string) (string, error) {
		assert.Equal(t, "local", alias)
		return "dbname=tiles driver=mysql", nil
	}}
	_, err := Connect(context.Background(), "my:local", opts)
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
	assert.Contains(t, err.Error(), "user")
}

func TestConnectMissingDBName(t *testing.T) {
	_, err := Connect(context.Background(), "driver=postgres", Options{})
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
	assert.Contains(t, err.Error(), "dbname")
}

func TestParseConnectionString(t *testing.T) {
	params, err := parseConnectionString("dbname=tiles hostaddr=10.0.0.5  user=mb")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"dbname":   "tiles",
		"hostaddr": "10.0.0.5",
		"user":     "mb",
	}, params)

	_, err = parseConnectionString("dbname")
	require.Error(t, err)
	assert.True(t, IsFormatError(err))

	_, err = parseConnectionString("=tiles")
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

func TestHostParam(t *testing.T) {
	assert.Equal(t, "10.0.0.5", hostParam(map[string]string{"hostaddr": "10.0.0.5", "host": "db.local"}))
	assert.Equal(t, "db.local", hostParam(map[string]string{"host": "db.local"}))
	assert.Equal(t, "127.0.0.1", hostParam(map[string]string{}))
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(map[string]string{
		"dbname":   "tiles",
		"hostaddr": "10.0.0.5",
		"user":     "mb",
		"password": "secret",
	})
	assert.Equal(t, "dbname=tiles host=10.0.0.5 password=secret sslmode=disable user=mb", dsn)

	// An explicit host wins over hostaddr, an explicit sslmode sticks.
	dsn = postgresDSN(map[string]string{
		"dbname":   "tiles",
		"host":     "db.local",
		"hostaddr": "10.0.0.5",
		"sslmode":  "require",
	})
	assert.Equal(t, "dbname=tiles host=db.local sslmode=require", dsn)
}

func TestMySQLDSN(t *testing.T) {
	dsn := mysqlDSN(map[string]string{
		"dbname":   "tiles",
		"hostaddr": "10.0.0.5",
		"user":     "mb",
		"password": "secret",
	})
	assert.Equal(t, "mb:secret@tcp(10.0.0.5:3306)/tiles", dsn)

	dsn = mysqlDSN(map[string]string{
		"dbname":   "tiles",
		"host":     "db.local",
		"port":     "3307",
		"user":     "mb",
		"password": "secret",
	})
	assert.Equal(t, "mb:secret@tcp(db.local:3307)/tiles", dsn)
}

func TestFileResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mb-util.conf")
	conf := "local: dbname=tiles hostaddr=127.0.0.1 user=mb password=secret driver=postgres\n" +
		"docs: dbname=tiles user=mb password=secret driver=mongodb\n"
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))

	resolve := FileResolver(path)

	params, err := resolve("local")
	require.NoError(t, err)
	assert.Equal(t, "dbname=tiles hostaddr=127.0.0.1 user=mb password=secret driver=postgres", params)

	_, err = resolve("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `alias "missing" not found`)
}

func TestFileResolverMissingFile(t *testing.T) {
	resolve := FileResolver(filepath.Join(t.TempDir(), "nope.conf"))
	_, err := resolve("local")
	require.Error(t, err)
}

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	assert.Equal(t, "wal", opts.journalMode())
	assert.NotNil(t, opts.logger(backendSQLite))

	opts.JournalMode = "delete"
	assert.Equal(t, "delete", opts.journalMode())
}
