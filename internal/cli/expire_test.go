package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Outdooractive/mbutil/internal/tiles"
)

func TestExpireSingleTile(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "expire", path, "--tile", "1/0/0")
	require.NoError(t, err)

	assert.Equal(t, 2, tilesCount(t, path))

	// The expired coordinate stays behind in the change log.
	ctx := context.Background()
	st, err := tiles.Connect(ctx, path, tiles.Options{AutoCommit: true})
	require.NoError(t, err)
	defer st.Close()
	updates, err := st.UpdatesCount(ctx, 0, 18, 0, 9999999999)
	require.NoError(t, err)
	assert.Equal(t, 3, updates)
}

func TestExpireZoomRange(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "expire", path, "--min-zoom", "2")
	require.NoError(t, err)

	assert.Equal(t, 2, tilesCount(t, path))
}

func TestExpireInvalidTile(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "expire", path, "--tile", "14/8538")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid tile")
}
