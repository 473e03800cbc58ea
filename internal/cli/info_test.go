package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoText(t *testing.T) {
	path := seedTileStore(t)
	_, err := executeCommand(t, "metadata", "set", path, "name", "seed layer")
	require.NoError(t, err)

	out, err := executeCommand(t, "info", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Database:  "+path)
	assert.Contains(t, out, "Compacted: yes")
	assert.Contains(t, out, "Scaled:    yes")
	assert.Contains(t, out, "Updated:   2023-11-14T22:13:20Z")
	assert.Contains(t, out, "Tiles:     3")
	assert.Contains(t, out, "   1: 2 tiles, columns 0-1, rows 0-0, covers -180,0,180,")
	assert.Contains(t, out, "   2: 1 tiles, columns 2-2, rows 1-1, covers 0,0,90,")
	assert.Contains(t, out, "  name: seed layer")
}

func TestInfoEmptyStore(t *testing.T) {
	path := seedTileStore(t)
	_, err := executeCommand(t, "delete", path, "--all")
	require.NoError(t, err)

	out, err := executeCommand(t, "info", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Tiles:     0")
	assert.NotContains(t, out, "Zoom levels:")
}

func TestInfoJSON(t *testing.T) {
	path := seedTileStore(t)

	out, err := executeCommand(t, "info", "--format", "json", path)
	require.NoError(t, err)

	assert.Contains(t, out, `"status":"ok"`)
	assert.Contains(t, out, `"compacted":true`)
	assert.Contains(t, out, `"has_scale":true`)
	assert.Contains(t, out, `"last_update":1700000000`)
	assert.Contains(t, out, `"total_tiles":3`)
	assert.Contains(t, out, `"zoom":1`)
	assert.Contains(t, out, `"tiles":2`)
	assert.Contains(t, out, `"bounds":[-180,0,180,`)
}

func TestInfoScaleFilter(t *testing.T) {
	path := seedTileStore(t)

	// Nothing is stored at scale 2.
	out, err := executeCommand(t, "info", "--scale", "2", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Tiles:     0")
}
