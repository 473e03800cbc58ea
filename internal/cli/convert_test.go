package cli

import (
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitBBoxLine parses one printed bounding box back into its four fields.
func splitBBoxLine(t *testing.T, out string) []string {
	t.Helper()
	fields := strings.Split(strings.TrimSpace(out), ",")
	require.Len(t, fields, 4)
	return fields
}

func TestConvertTileToBounds(t *testing.T) {
	out, err := executeCommand(t, "convert", "1/0/0")
	require.NoError(t, err)

	// The northwest quadrant at zoom 1 spans the west hemisphere from the
	// equator up to the Mercator cutoff.
	fields := splitBBoxLine(t, out)
	assert.Equal(t, "-180", fields[0])
	assert.Equal(t, "0", fields[1])
	assert.Equal(t, "0", fields[2])
	maxLat, err := strconv.ParseFloat(fields[3], 64)
	require.NoError(t, err)
	assert.InDelta(t, 85.0511, maxLat, 1e-3)
}

func TestConvertTileToBoundsFlipped(t *testing.T) {
	out, err := executeCommand(t, "convert", "--flip-y", "1/0/0")
	require.NoError(t, err)

	// With rows counted from the bottom, 1/0/0 is the southwest quadrant.
	fields := splitBBoxLine(t, out)
	assert.Equal(t, "-180", fields[0])
	minLat, err := strconv.ParseFloat(fields[1], 64)
	require.NoError(t, err)
	assert.InDelta(t, -85.0511, minLat, 1e-3)
	assert.Equal(t, "0", fields[2])
	assert.Equal(t, "0", fields[3])
}

func TestConvertWorldTile(t *testing.T) {
	out, err := executeCommand(t, "convert", "0/0/0")
	require.NoError(t, err)

	fields := splitBBoxLine(t, out)
	assert.Equal(t, "-180", fields[0])
	assert.Equal(t, "180", fields[2])
	minLat, err := strconv.ParseFloat(fields[1], 64)
	require.NoError(t, err)
	maxLat, err := strconv.ParseFloat(fields[3], 64)
	require.NoError(t, err)
	assert.InDelta(t, -85.0511, minLat, 1e-3)
	assert.InDelta(t, 85.0511, maxLat, 1e-3)
}

func TestConvertBoundsToTiles(t *testing.T) {
	out, err := executeCommand(t, "convert", "--max-zoom", "1", "--", "-180,-85,180,85")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "convert-bbox", []byte(out))
}

func TestConvertBoundsToTilesFlipped(t *testing.T) {
	out, err := executeCommand(t, "convert", "--min-zoom", "1", "--max-zoom", "1", "--flip-y", "--", "-180,-85,180,85")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "convert-bbox-flip", []byte(out))
}

func TestConvertRejectsGarbage(t *testing.T) {
	_, err := executeCommand(t, "convert", "nonsense")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "neither a tile nor a bounding box")
}
