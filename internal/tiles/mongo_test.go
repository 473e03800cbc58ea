package tiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestTileKey(t *testing.T) {
	assert.Equal(t, "14/8538/5724/1", tileKey(14, 8538, 5724, 1))
	assert.Equal(t, "3/1/2/2", tileKey(3, 1, 2, 2))

	// Unscaled requests normalize to scale 1.
	assert.Equal(t, "3/1/2/1", tileKey(3, 1, 2, 0))
	assert.Equal(t, "3/1/2/1", tileKey(3, 1, 2, -1))
}

func TestParseTileKey(t *testing.T) {
	tile, err := parseTileKey("14/8538/5724/2")
	require.NoError(t, err)
	assert.Equal(t, Tile{Zoom: 14, Column: 8538, Row: 5724, Scale: 2}, tile)

	for _, key := range []string{"", "1/2/3", "1/2/3/4/5", "a/2/3/4", "1/2/3/x"} {
		_, err := parseTileKey(key)
		assert.Error(t, err, key)
	}
}

func TestTileKeyRoundTrip(t *testing.T) {
	tile, err := parseTileKey(tileKey(7, 11, 13, 1))
	require.NoError(t, err)
	assert.Equal(t, Tile{Zoom: 7, Column: 11, Row: 13, Scale: 1}, tile)
}

func TestMongoTileFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, mongoTileFilter(NoFilter()))

	got := mongoTileFilter(Filter{MinZoom: 3, MaxZoom: 14, Scale: 2})
	assert.Equal(t, bson.M{
		"z": bson.M{"$gte": 3, "$lte": 14},
		"s": 2,
	}, got)

	// Half-open zoom ranges only bound the set side.
	got = mongoTileFilter(Filter{MinZoom: 5, MaxZoom: ZoomMax})
	assert.Equal(t, bson.M{"z": bson.M{"$gte": 5}}, got)

	got = mongoTileFilter(Filter{MaxZoom: ZoomMax, MinTimestamp: 100, MaxTimestamp: 200})
	assert.Equal(t, bson.M{
		"t": bson.M{"$gt": int64(100), "$lt": int64(200)},
	}, got)
}
