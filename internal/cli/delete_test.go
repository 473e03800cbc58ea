package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Outdooractive/mbutil/internal/tiles"
)

func TestDeleteRequiresSelection(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "delete", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "refusing to delete every tile")

	// Nothing was touched.
	assert.Equal(t, 3, tilesCount(t, path))
}

func TestDeleteAll(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "delete", path, "--all")
	require.NoError(t, err)
	assert.Equal(t, 0, tilesCount(t, path))
}

func TestDeleteZoomRange(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "delete", path, "--max-zoom", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, tilesCount(t, path))
}

func TestDeleteByContentID(t *testing.T) {
	path := seedTileStore(t)

	_, err := executeCommand(t, "delete", path, "--content-id", tiles.ContentHash([]byte("a")))
	require.NoError(t, err)
	assert.Equal(t, 2, tilesCount(t, path))
}

func TestDeleteOrphans(t *testing.T) {
	path := seedTileStore(t)

	// Expiring strands the content; only the sweep may reclaim it.
	_, err := executeCommand(t, "expire", path, "--tile", "1/0/0")
	require.NoError(t, err)
	_, err = executeCommand(t, "delete", path, "--orphans")
	require.NoError(t, err)

	assert.Equal(t, 2, tilesCount(t, path))

	ctx := context.Background()
	st, err := tiles.Connect(ctx, path, tiles.Options{AutoCommit: true})
	require.NoError(t, err)
	defer st.Close()
	it, err := st.TilesWithContentID(ctx, tiles.NoFilter())
	require.NoError(t, err)
	ids := map[string]bool{}
	for it.Next() {
		ids[it.Tile().ContentID] = true
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	assert.False(t, ids[tiles.ContentHash([]byte("a"))])
	assert.Len(t, ids, 2)
}
