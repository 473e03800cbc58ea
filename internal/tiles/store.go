// Package tiles stores tiled map data behind one interface with four
// backends: SQLite files in the mbtiles layout, PostgreSQL, MySQL and
// MongoDB.
//
// The relational backends keep tile coordinates and tile content in
// separate tables so identical content is stored once and shared. A tiles
// view joins the two back into the classic mbtiles shape. Coordinates whose
// content reference has been cleared are expired: still listed, awaiting
// fresh content.
package tiles

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
)

// Zoom bounds of the tiling pyramid. Filters at these values place no
// restriction on the zoom range.
const (
	ZoomMin = 0
	ZoomMax = 18
)

// fetchChunk is the batch size for server-side streaming reads.
const fetchChunk = 10000

// Backend names, used in error context and log lines.
const (
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
	backendMySQL    = "mysql"
	backendMongo    = "mongodb"
)

// Tile is one stored tile, addressed by zoom, column, row and scale.
// ContentID is only set by reads that expose content identity.
type Tile struct {
	Zoom      int
	Column    int
	Row       int
	Scale     int
	Data      []byte
	ContentID string
}

// Content is a deduplicated tile payload keyed by its identifier.
type Content struct {
	ID   string
	Data []byte
}

// Coordinate places a content identifier in the tile pyramid.
type Coordinate struct {
	Zoom      int
	Column    int
	Row       int
	Scale     int
	ContentID string
	Timestamp int64
}

// TileRecord is a self-contained tile for document-store writes, carrying
// its payload and timestamp inline.
type TileRecord struct {
	Zoom      int
	Column    int
	Row       int
	Scale     int
	Data      []byte
	Timestamp int64
}

// Extent is the covered column and row range at one zoom level.
type Extent struct {
	MinColumn int
	MaxColumn int
	MinRow    int
	MaxRow    int
}

// Filter restricts enumeration, count and delete operations. Zero values
// are sentinels: a zoom range of [0, 18] places no zoom restriction,
// timestamp bounds of 0 place no time restriction, a scale of 0 matches
// every scale. Timestamp bounds are strict (newer than min, older than
// max).
type Filter struct {
	MinZoom      int
	MaxZoom      int
	MinTimestamp int64
	MaxTimestamp int64
	Scale        int
}

// NoFilter matches every tile.
func NoFilter() Filter {
	return Filter{MaxZoom: ZoomMax}
}

// ContentHash derives the identifier for a tile payload.
func ContentHash(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Store is the uniform access layer over one tile database. A Store is
// not safe for concurrent use; every handle owns its connections and two
// handles to the same database are isolated by the backend's own
// transaction semantics.
//
// Backends that cannot support an operation return an error satisfying
// IsNotImplemented.
type Store interface {
	// Setup creates the schema: tables, unique indexes and the tiles
	// view, in an idempotent way. On a legacy database holding a plain
	// tiles table only the metadata objects are created.
	Setup(ctx context.Context) error

	// Close flushes pending writes and releases all connections.
	Close() error

	// IsCompacted reports whether the store separates coordinates from
	// content. Non-compacted stores hold finished tiles in a plain tiles
	// table.
	IsCompacted(ctx context.Context) (bool, error)

	// HasScale reports whether the coordinate table carries the scale
	// column.
	HasScale(ctx context.Context) (bool, error)

	// MaxTimestamp returns the latest update timestamp across all
	// coordinates, or 0 when there are none.
	MaxTimestamp(ctx context.Context) (int64, error)

	// ZoomLevels returns the distinct zoom levels holding tiles, in
	// ascending order. A scale > 0 restricts to that scale.
	ZoomLevels(ctx context.Context, scale int) ([]int, error)

	// TilesCount counts the tiles matching f. On compacted stores
	// expired coordinates are not counted.
	TilesCount(ctx context.Context, f Filter) (int, error)

	// ColumnsAndRowsForZoom streams the (column, row) pairs present at
	// one zoom level. A scale > 0 restricts to that scale.
	ColumnsAndRowsForZoom(ctx context.Context, zoom, scale int) (*CoordIter, error)

	// ColumnsForZoomAndRow returns the distinct columns present in one
	// row of one zoom level, in ascending order.
	ColumnsForZoomAndRow(ctx context.Context, zoom, row, scale int) ([]int, error)

	// Tiles streams the tiles matching f with their content.
	Tiles(ctx context.Context, f Filter) (*TileIter, error)

	// TilesWithContentID streams the tiles matching f with both content
	// and content identifier.
	TilesWithContentID(ctx context.Context, f Filter) (*TileIter, error)

	// Updates streams the change log for the given zoom range and
	// timestamp window: updated tiles with their content, and expired
	// tiles with nil content. All four bounds always apply.
	Updates(ctx context.Context, minZoom, maxZoom int, minTimestamp, maxTimestamp int64) (*TileIter, error)

	// UpdatesCount counts the change log entries for the window.
	UpdatesCount(ctx context.Context, minZoom, maxZoom int, minTimestamp, maxTimestamp int64) (int, error)

	// DeleteTiles removes the coordinates matching f, then sweeps content
	// left without any referencing coordinate.
	DeleteTiles(ctx context.Context, f Filter) error

	// ExpireTiles clears the content reference of the coordinates
	// matching f and stamps them with the current time. The content
	// itself stays, it may be shared.
	ExpireTiles(ctx context.Context, f Filter) error

	// ExpireTile expires a single coordinate.
	ExpireTile(ctx context.Context, zoom, column, row, scale int) error

	// DeleteOrphanedContent removes content no coordinate references.
	DeleteOrphanedContent(ctx context.Context) error

	// BoundingBoxForZoom returns the covered column and row extent at one
	// zoom level. ok is false when the level holds no tiles.
	BoundingBoxForZoom(ctx context.Context, zoom, scale int) (extent Extent, ok bool, err error)

	// InsertContent stores one content payload, keeping the existing row
	// on identifier collision.
	InsertContent(ctx context.Context, content Content) error

	// InsertContentBatch stores many content payloads.
	InsertContentBatch(ctx context.Context, batch []Content) error

	// InsertCoordinate places a content identifier at a coordinate,
	// stamped with the current time. With replace an existing coordinate
	// is overwritten, otherwise it is kept.
	InsertCoordinate(ctx context.Context, zoom, column, row, scale int, contentID string, replace bool) error

	// InsertCoordinateBatch places many coordinates, overwriting existing
	// ones and keeping each entry's own timestamp.
	InsertCoordinateBatch(ctx context.Context, batch []Coordinate) error

	// InsertTiles upserts self-contained tiles. Only document stores
	// support this; compacted stores take content and coordinates
	// separately.
	InsertTiles(ctx context.Context, batch []TileRecord) error

	// UpdateTile stores new content and points every coordinate holding
	// oldContentID at it. The old content is removed unless the
	// identifiers match.
	UpdateTile(ctx context.Context, oldContentID, newContentID string, data []byte) error

	// DeleteTileWithID removes every coordinate holding contentID along
	// with the content itself.
	DeleteTileWithID(ctx context.Context, contentID string) error

	// Metadata returns all metadata key/value pairs.
	Metadata(ctx context.Context) (map[string]string, error)

	// UpdateMetadata stores one metadata key/value pair, overwriting any
	// previous value.
	UpdateMetadata(ctx context.Context, name, value string) error

	// CreateContentIndex builds the content identifier index on the
	// coordinate table, speeding up content-addressed lookups during
	// imports.
	CreateContentIndex(ctx context.Context) error

	// DropContentIndex removes the content identifier index.
	DropContentIndex(ctx context.Context) error

	// Optimize refreshes planner statistics and reclaims free space.
	Optimize(ctx context.Context, skipAnalyze, skipVacuum bool) error
}
