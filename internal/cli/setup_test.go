package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.mbtiles")

	_, err := executeCommand(t, "setup", path)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	// Running setup again must be harmless.
	_, err = executeCommand(t, "setup", path)
	require.NoError(t, err)

	assert.Equal(t, 0, tilesCount(t, path))
}

func TestSetupCheckExistsRefusesMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.mbtiles")

	_, err := executeCommand(t, "setup", "--check-exists", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
