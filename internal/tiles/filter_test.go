package tiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLFilterWhere(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{
			name:   "sentinels add nothing",
			filter: NoFilter(),
			want:   "",
		},
		{
			name:   "explicit full range adds nothing",
			filter: Filter{MinZoom: 0, MaxZoom: 18},
			want:   "",
		},
		{
			name:   "zoom range",
			filter: Filter{MinZoom: 4, MaxZoom: 9},
			want:   " WHERE zoom_level >= 4 AND zoom_level <= 9",
		},
		{
			name:   "timestamps are strict bounds",
			filter: Filter{MaxZoom: ZoomMax, MinTimestamp: 100, MaxTimestamp: 200},
			want:   " WHERE updated_at > 100 AND updated_at < 200",
		},
		{
			name:   "everything",
			filter: Filter{MinZoom: 1, MaxZoom: 2, MinTimestamp: 3, MaxTimestamp: 4, Scale: 2},
			want:   " WHERE zoom_level >= 1 AND zoom_level <= 2 AND tile_scale = 2 AND updated_at > 3 AND updated_at < 4",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cond sqlFilter
			cond.zoomRange("zoom_level", tc.filter.MinZoom, tc.filter.MaxZoom)
			cond.scale("tile_scale", tc.filter.Scale, true)
			cond.timestampWindow("updated_at", tc.filter.MinTimestamp, tc.filter.MaxTimestamp)
			assert.Equal(t, tc.want, cond.where())
		})
	}
}

func TestSQLFilterScaleRequiresColumn(t *testing.T) {
	var cond sqlFilter
	cond.scale("tile_scale", 2, false)
	assert.Empty(t, cond.where())
}

func TestSQLFilterRaw(t *testing.T) {
	var cond sqlFilter
	cond.raw("content_id IS NOT NULL")
	cond.equal("zoom_level", 7)
	assert.Equal(t, " WHERE content_id IS NOT NULL AND zoom_level = 7", cond.where())
}

func TestScaleColumn(t *testing.T) {
	assert.Equal(t, "tile_scale", scaleColumn("tile_scale", 0, true))
	assert.Equal(t, "tile_scale", scaleColumn("tile_scale", 2, true))
	assert.Equal(t, "2", scaleColumn("tile_scale", 2, false))
	assert.Equal(t, "1", scaleColumn("tile_scale", 0, false))
}

func TestUpdatesWindow(t *testing.T) {
	got := updatesWindow(3, 14, 1000, 2000)
	assert.Equal(t,
		"map.zoom_level >= 3 AND map.zoom_level <= 14 AND map.updated_at > 1000 AND map.updated_at < 2000",
		got)
}

func TestContentHash(t *testing.T) {
	// Stable identifiers keep stores written by different runs compatible.
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", ContentHash(nil))
	assert.Equal(t, "6dcd4ce23d88e2ee9568ba546c007c63d9131c1b", ContentHash([]byte("A")))
	assert.Equal(t, ContentHash([]byte("x")), ContentHash([]byte("x")))
	assert.NotEqual(t, ContentHash([]byte("x")), ContentHash([]byte("y")))
}
