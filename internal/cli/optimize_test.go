package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimize(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "optimize", path)
	require.NoError(t, err)
	assert.Equal(t, 3, tilesCount(t, path))
}

func TestOptimizeSkipsEverything(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "optimize", path, "--skip-analyze", "--skip-vacuum")
	require.NoError(t, err)
}
