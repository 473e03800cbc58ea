// Package geo converts between slippy-map tile addresses and geographic
// bounding boxes. All functions are pure; enumeration is lazy.
package geo

import (
	"iter"
	"math"

	"github.com/paulmach/orb"
)

// Tile addresses a single slippy-map tile.
type Tile struct {
	Z, X, Y int
}

// FlipRow converts a row index between XYZ and TMS numbering at a zoom level.
func FlipRow(zoom, row int) int {
	return (1 << uint(zoom)) - 1 - row
}

// tileToCoordinate returns the longitude/latitude of a tile's center.
// Fractional column/row values address positions between centers, so
// column-0.5 is the tile's left edge and column+0.5 its right edge.
func tileToCoordinate(column, row float64, zoom int) (lon, lat float64) {
	n := math.Exp2(float64(zoom))
	lon = (column+0.5)/n*360.0 - 180.0
	lat = math.Atan(math.Sinh(math.Pi*(1.0-2.0*(row+0.5)/n))) * 180.0 / math.Pi
	return lon, lat
}

// coordinateToTile returns the column and row of the tile containing the
// coordinate. Indices are clamped to [0, 2^zoom-1] so corners sitting
// exactly on the antimeridian or past the Mercator latitude cutoff still
// land on a real tile.
func coordinateToTile(lon, lat float64, zoom int) (column, row int) {
	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180.0
	column = int((lon + 180.0) / 360.0 * n)
	row = int((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n)
	return clampIndex(column, zoom), clampIndex(row, zoom)
}

func clampIndex(idx, zoom int) int {
	if idx < 0 {
		return 0
	}
	if last := (1 << uint(zoom)) - 1; idx > last {
		return last
	}
	return idx
}

// TileToBounds returns the geographic envelope of a tile. With flipY the row
// is interpreted as TMS numbering and flipped before projection.
func TileToBounds(zoom, column, row int, flipY bool) orb.Bound {
	if flipY {
		row = FlipRow(zoom, row)
	}
	minLon, minLat := tileToCoordinate(float64(column)-0.5, float64(row)+0.5, zoom)
	maxLon, maxLat := tileToCoordinate(float64(column)+0.5, float64(row)-0.5, zoom)
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
}

// TilesForBounds enumerates every tile covering the bound at each zoom level
// in [minZoom, maxZoom], ordered by zoom, then column, then row. The sequence
// is computed lazily and ranging over it again restarts from the beginning.
func TilesForBounds(b orb.Bound, minZoom, maxZoom int, flipY bool) iter.Seq[Tile] {
	return func(yield func(Tile) bool) {
		for zoom := minZoom; zoom <= maxZoom; zoom++ {
			if !tilesForZoom(b, zoom, flipY, yield) {
				return
			}
		}
	}
}

func tilesForZoom(b orb.Bound, zoom int, flipY bool, yield func(Tile) bool) bool {
	minCol, minRow := coordinateToTile(b.Min[0], b.Min[1], zoom)
	maxCol, maxRow := coordinateToTile(b.Max[0], b.Max[1], zoom)
	// Row numbers grow southward, so the bound's min corner holds the
	// larger row.
	if minRow > maxRow {
		minRow, maxRow = maxRow, minRow
	}
	for col := minCol; col <= maxCol; col++ {
		for row := minRow; row <= maxRow; row++ {
			y := row
			if flipY {
				y = FlipRow(zoom, row)
			}
			if !yield(Tile{Z: zoom, X: col, Y: y}) {
				return false
			}
		}
	}
	return true
}
