package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataSetAndGet(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "metadata", "set", path, "name", "Test Layer")
	require.NoError(t, err)
	_, err = executeCommand(t, "metadata", "set", path, "attribution", "OSM")
	require.NoError(t, err)

	out, err := executeCommand(t, "metadata", "get", path, "name")
	require.NoError(t, err)
	assert.Equal(t, "Test Layer\n", out)

	// Without a name every entry prints, sorted.
	out, err = executeCommand(t, "metadata", "get", path)
	require.NoError(t, err)
	assert.Equal(t, "attribution: OSM\nname: Test Layer\n", out)
}

func TestMetadataSetOverwrites(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "metadata", "set", path, "name", "first")
	require.NoError(t, err)
	_, err = executeCommand(t, "metadata", "set", path, "name", "second")
	require.NoError(t, err)

	out, err := executeCommand(t, "metadata", "get", path, "name")
	require.NoError(t, err)
	assert.Equal(t, "second\n", out)
}

func TestMetadataGetMissingEntry(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "metadata", "get", path, "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), `no metadata entry "nope"`)
}

func TestMetadataGetJSON(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "metadata", "set", path, "name", "Test Layer")
	require.NoError(t, err)

	out, err := executeCommand(t, "metadata", "get", "--format", "json", path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":{"name":"Test Layer"}}`, out)
}
