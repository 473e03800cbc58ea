package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Outdooractive/mbutil/internal/tiles"
)

// executeCommand runs the root command with args and captures its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// seedTileStore creates a set-up mbtiles file holding three tiles: two at
// zoom 1 and one at zoom 2, all scale 1, stamped 1700000000.
func seedTileStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.mbtiles")
	ctx := context.Background()

	st, err := tiles.Connect(ctx, path, tiles.Options{AutoCommit: true})
	require.NoError(t, err)
	require.NoError(t, st.Setup(ctx))

	var batch []tiles.Coordinate
	for i, s := range []string{"a", "b", "c"} {
		content := tiles.Content{ID: tiles.ContentHash([]byte(s)), Data: []byte(s)}
		require.NoError(t, st.InsertContent(ctx, content))
		coord := tiles.Coordinate{Zoom: 1, Column: i, Row: 0, Scale: 1, ContentID: content.ID, Timestamp: 1700000000}
		if i == 2 {
			coord = tiles.Coordinate{Zoom: 2, Column: 2, Row: 1, Scale: 1, ContentID: content.ID, Timestamp: 1700000000}
		}
		batch = append(batch, coord)
	}
	require.NoError(t, st.InsertCoordinateBatch(ctx, batch))
	require.NoError(t, st.Close())
	return path
}

// tilesCount reopens the store and counts its tiles, for checking what a
// command left behind.
func tilesCount(t *testing.T, path string) int {
	t.Helper()
	ctx := context.Background()
	st, err := tiles.Connect(ctx, path, tiles.Options{AutoCommit: true})
	require.NoError(t, err)
	defer st.Close()
	n, err := st.TilesCount(ctx, tiles.NoFilter())
	require.NoError(t, err)
	return n
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	want := []string{"setup", "info", "metadata", "expire", "delete", "optimize", "convert"}
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range want {
		assert.True(t, names[name], "missing subcommand %s", name)
	}
}

func TestRootPersistentFlagDefaults(t *testing.T) {
	cmd := NewRootCommand()
	flags := cmd.PersistentFlags()

	tests := []struct {
		name string
		def  string
	}{
		{"format", "text"},
		{"config", tiles.DefaultConfigPath},
		{"journal-mode", "wal"},
		{"auto-commit", "false"},
		{"check-exists", "false"},
		{"verbose", "false"},
	}
	for _, tc := range tests {
		f := flags.Lookup(tc.name)
		require.NotNil(t, f, "missing flag %s", tc.name)
		assert.Equal(t, tc.def, f.DefValue, tc.name)
	}
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	_, err := executeCommand(t, "--format", "yaml", "convert", "1/0/0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestOpenStoreBadDescriptor(t *testing.T) {
	_, err := executeCommand(t, "info", "not-a-database")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
