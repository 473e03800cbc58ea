package tiles

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteStore is the embedded file backend in the mbtiles layout. With
// auto-commit off, writes and scalar reads ride one long-lived transaction
// committed by Close or Optimize; streaming reads always run on the pool
// and see the last committed state.
type sqliteStore struct {
	db         *sql.DB
	tx         *sql.Tx
	autoCommit bool
	log        *slog.Logger

	compacted *bool
	scaled    *bool
}

var _ Store = (*sqliteStore)(nil)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func openSQLite(ctx context.Context, path string, opts Options) (*sqliteStore, error) {
	if opts.CheckExists {
		if _, err := os.Stat(path); err != nil {
			return nil, newConnectionError(backendSQLite, fmt.Sprintf("database %s must exist", path), err)
		}
	}

	db, err := sql.Open("sqlite3", sqliteDSN(path, opts))
	if err != nil {
		return nil, newConnectionError(backendSQLite, "open "+path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newConnectionError(backendSQLite, "open "+path, err)
	}
	if opts.ExclusiveLock {
		// An exclusive file lock only works on a single connection.
		db.SetMaxOpenConns(1)
	}
	return &sqliteStore{
		db:         db,
		autoCommit: opts.AutoCommit,
		log:        opts.logger(backendSQLite),
	}, nil
}

// sqliteDSN carries the pragmas in the connection string so every pooled
// connection gets the same settings.
func sqliteDSN(path string, opts Options) string {
	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	q.Set("_cache_size", "100000")
	q.Set("_journal_mode", opts.journalMode())
	if opts.SynchronousOff {
		q.Set("_synchronous", "OFF")
	} else {
		q.Set("_synchronous", "NORMAL")
	}
	if opts.ExclusiveLock {
		q.Set("_locking_mode", "EXCLUSIVE")
	}
	return "file:" + path + "?" + q.Encode()
}

// execer returns the write target, opening the long-lived transaction on
// first use when auto-commit is off.
func (s *sqliteStore) execer(ctx context.Context) (execer, error) {
	if s.autoCommit {
		return s.db, nil
	}
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin write transaction: %w", err)
		}
		s.tx = tx
	}
	return s.tx, nil
}

// queryer returns the target for scalar reads. They go through the pending
// transaction so a session sees its own writes.
func (s *sqliteStore) queryer() queryer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// flush commits the pending transaction, if any.
func (s *sqliteStore) flush() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("commit pending writes: %w", err)
	}
	return nil
}

func (s *sqliteStore) Setup(ctx context.Context) error {
	// Only effective before the file holds any data.
	if _, err := s.db.ExecContext(ctx, "PRAGMA page_size = 4096"); err != nil {
		return newSchemaError(backendSQLite, err)
	}

	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}

	legacy, err := s.hasLegacyTilesTable(ctx)
	if err != nil {
		return err
	}

	ddl := []string{
		"CREATE TABLE IF NOT EXISTS metadata (name VARCHAR(256), value TEXT)",
		"CREATE UNIQUE INDEX IF NOT EXISTS name ON metadata (name)",
	}
	if !legacy {
		ddl = append(ddl,
			"CREATE TABLE IF NOT EXISTS images (content_id VARCHAR(256), content_bytes BLOB)",
			"CREATE TABLE IF NOT EXISTS map (zoom_level INTEGER, tile_column INTEGER,"+
				" tile_row INTEGER, tile_scale TINYINT, content_id VARCHAR(256), updated_at INTEGER)",
		)
	}
	for _, stmt := range ddl {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return newSchemaError(backendSQLite, err)
		}
	}

	if !legacy {
		if err := s.migrateMapColumns(ctx, ex); err != nil {
			return err
		}

		// The view carries the generation the file was created with, so
		// rebuild it unconditionally.
		_, _ = ex.ExecContext(ctx, "DROP VIEW tiles")
		view := "CREATE VIEW tiles AS SELECT map.zoom_level AS zoom_level," +
			" map.tile_column AS tile_column, map.tile_row AS tile_row," +
			" map.tile_scale AS tile_scale, images.content_bytes AS tile_data," +
			" map.updated_at AS updated_at FROM map JOIN images" +
			" ON map.content_id IS NOT NULL AND images.content_id = map.content_id"
		indexes := []string{
			view,
			"CREATE UNIQUE INDEX IF NOT EXISTS map_index ON map (zoom_level, tile_column, tile_row, tile_scale)",
			"CREATE UNIQUE INDEX IF NOT EXISTS images_id ON images (content_id)",
		}
		for _, stmt := range indexes {
			if _, err := ex.ExecContext(ctx, stmt); err != nil {
				return newSchemaError(backendSQLite, err)
			}
		}
	}

	// The schema may have changed shape, probe again on next use.
	s.compacted = nil
	s.scaled = nil
	return nil
}

func (s *sqliteStore) hasLegacyTilesTable(ctx context.Context) (bool, error) {
	var n int
	err := s.queryer().QueryRowContext(ctx,
		"SELECT count(name) FROM sqlite_master WHERE type = 'table' AND name = 'tiles'").Scan(&n)
	if err != nil {
		return false, fmt.Errorf("probe tiles table: %w", err)
	}
	return n > 0, nil
}

// migrateMapColumns brings pre-scale map tables up to the current shape.
// ALTER failing with a duplicate column means the column is already there.
func (s *sqliteStore) migrateMapColumns(ctx context.Context, ex execer) error {
	if _, err := ex.ExecContext(ctx, "ALTER TABLE map ADD COLUMN tile_scale TINYINT default 1"); err == nil {
		// The old three-column unique index no longer matches.
		_, _ = ex.ExecContext(ctx, "DROP INDEX map_index")
	} else if !isDuplicateColumn(err) {
		return newSchemaError(backendSQLite, err)
	}
	if _, err := ex.ExecContext(ctx, "ALTER TABLE map ADD COLUMN updated_at INTEGER"); err != nil && !isDuplicateColumn(err) {
		return newSchemaError(backendSQLite, err)
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func (s *sqliteStore) Close() error {
	ferr := s.flush()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return ferr
}

func (s *sqliteStore) IsCompacted(ctx context.Context) (bool, error) {
	if s.compacted != nil {
		return *s.compacted, nil
	}
	var n int
	err := s.queryer().QueryRowContext(ctx,
		"SELECT count(name) FROM sqlite_master WHERE type = 'table' AND (name = 'images' OR name = 'map')").Scan(&n)
	if err != nil {
		return false, fmt.Errorf("probe compaction: %w", err)
	}
	compacted := n == 2
	s.compacted = &compacted
	return compacted, nil
}

func (s *sqliteStore) HasScale(ctx context.Context) (bool, error) {
	if s.scaled != nil {
		return *s.scaled, nil
	}
	scaled := true
	rows, err := s.queryer().QueryContext(ctx, "SELECT tile_scale FROM map LIMIT 1")
	if err != nil {
		// The probe failing means the column or table is missing.
		scaled = false
	} else {
		rows.Close()
	}
	s.scaled = &scaled
	return scaled, nil
}

func (s *sqliteStore) MaxTimestamp(ctx context.Context) (int64, error) {
	var ts sql.NullInt64
	err := s.queryer().QueryRowContext(ctx, "SELECT max(updated_at) FROM map").Scan(&ts)
	if err != nil {
		if isMissingTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("max timestamp: %w", err)
	}
	return ts.Int64, nil
}

func (s *sqliteStore) ZoomLevels(ctx context.Context, scale int) ([]int, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}
	var cond sqlFilter
	cond.scale("tile_scale", scale, scaled)
	query := "SELECT DISTINCT zoom_level FROM tiles" + cond.where() + " ORDER BY zoom_level"

	rows, err := s.queryer().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("zoom levels: %w", err)
	}
	defer rows.Close()

	var levels []int
	for rows.Next() {
		var zoom int
		if err := rows.Scan(&zoom); err != nil {
			return nil, fmt.Errorf("zoom levels: %w", err)
		}
		levels = append(levels, zoom)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("zoom levels: %w", err)
	}
	return levels, nil
}

func (s *sqliteStore) TilesCount(ctx context.Context, f Filter) (int, error) {
	compacted, err := s.IsCompacted(ctx)
	if err != nil {
		return 0, err
	}
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return 0, err
	}

	var cond sqlFilter
	cond.zoomRange("zoom_level", f.MinZoom, f.MaxZoom)
	cond.scale("tile_scale", f.Scale, scaled)
	source := "tiles"
	if compacted {
		// Count pending coordinates out, their content is gone.
		cond.timestampWindow("updated_at", f.MinTimestamp, f.MaxTimestamp)
		cond.raw("content_id IS NOT NULL")
		source = "map"
	}

	var n int
	query := "SELECT count(zoom_level) FROM " + source + cond.where()
	if err := s.queryer().QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("tiles count: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) ColumnsAndRowsForZoom(ctx context.Context, zoom, scale int) (*CoordIter, error) {
	compacted, err := s.IsCompacted(ctx)
	if err != nil {
		return nil, err
	}
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}

	source := "tiles"
	if compacted {
		source = "map"
	}
	var cond sqlFilter
	cond.equal("zoom_level", zoom)
	cond.scale("tile_scale", scale, scaled)

	rows, err := s.db.QueryContext(ctx, "SELECT tile_column, tile_row FROM "+source+cond.where())
	if err != nil {
		return nil, fmt.Errorf("columns and rows: %w", err)
	}
	return coordIterFromRows(rows, nil), nil
}

func (s *sqliteStore) ColumnsForZoomAndRow(ctx context.Context, zoom, row, scale int) ([]int, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}
	var cond sqlFilter
	cond.equal("zoom_level", zoom)
	cond.equal("tile_row", row)
	cond.scale("tile_scale", scale, scaled)
	query := "SELECT DISTINCT tile_column FROM tiles" + cond.where() + " ORDER BY tile_column"

	rows, err := s.queryer().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("columns for row: %w", err)
	}
	defer rows.Close()

	var columns []int
	for rows.Next() {
		var col int
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("columns for row: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("columns for row: %w", err)
	}
	return columns, nil
}

func (s *sqliteStore) Tiles(ctx context.Context, f Filter) (*TileIter, error) {
	compacted, err := s.IsCompacted(ctx)
	if err != nil {
		return nil, err
	}
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}

	var cond sqlFilter
	cond.zoomRange("zoom_level", f.MinZoom, f.MaxZoom)
	cond.scale("tile_scale", f.Scale, scaled)
	if compacted {
		cond.timestampWindow("updated_at", f.MinTimestamp, f.MaxTimestamp)
	}
	query := fmt.Sprintf("SELECT zoom_level, tile_column, tile_row, %s, tile_data FROM tiles%s",
		scaleColumn("tile_scale", f.Scale, scaled), cond.where())
	s.log.Debug("streaming tiles", "query", query)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("tiles: %w", err)
	}
	return tileIterFromRows(rows, scanTile, nil), nil
}

func (s *sqliteStore) TilesWithContentID(ctx context.Context, f Filter) (*TileIter, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}

	var cond sqlFilter
	cond.zoomRange("map.zoom_level", f.MinZoom, f.MaxZoom)
	cond.scale("map.tile_scale", f.Scale, scaled)
	cond.timestampWindow("map.updated_at", f.MinTimestamp, f.MaxTimestamp)
	cond.raw("map.content_id IS NOT NULL")
	cond.raw("images.content_id = map.content_id")
	query := fmt.Sprintf("SELECT map.zoom_level, map.tile_column, map.tile_row, %s,"+
		" images.content_bytes, images.content_id FROM map, images%s",
		scaleColumn("map.tile_scale", f.Scale, scaled), cond.where())

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("tiles with content id: %w", err)
	}
	return tileIterFromRows(rows, scanTileWithID, nil), nil
}

func (s *sqliteStore) Updates(ctx context.Context, minZoom, maxZoom int, minTimestamp, maxTimestamp int64) (*TileIter, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}
	scaleExpr := "1"
	if scaled {
		scaleExpr = "map.tile_scale"
	}

	query := fmt.Sprintf("SELECT map.zoom_level, map.tile_column, map.tile_row, %[1]s,"+
		" images.content_bytes, images.content_id FROM map, images"+
		" WHERE %[2]s AND images.content_id = map.content_id"+
		" UNION "+
		"SELECT map.zoom_level, map.tile_column, map.tile_row, %[1]s, NULL, NULL FROM map"+
		" WHERE %[2]s AND map.content_id IS NULL",
		scaleExpr, updatesWindow(minZoom, maxZoom, minTimestamp, maxTimestamp))
	s.log.Debug("streaming updates", "query", query)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("updates: %w", err)
	}
	return tileIterFromRows(rows, scanUpdate, nil), nil
}

func (s *sqliteStore) UpdatesCount(ctx context.Context, minZoom, maxZoom int, minTimestamp, maxTimestamp int64) (int, error) {
	var n int
	query := "SELECT count(zoom_level) FROM map WHERE " + updatesWindow(minZoom, maxZoom, minTimestamp, maxTimestamp)
	if err := s.queryer().QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("updates count: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) DeleteTiles(ctx context.Context, f Filter) error {
	compacted, err := s.IsCompacted(ctx)
	if err != nil {
		return err
	}
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}

	var cond sqlFilter
	cond.zoomRange("zoom_level", f.MinZoom, f.MaxZoom)
	cond.scale("tile_scale", f.Scale, scaled)
	if !compacted {
		if _, err := ex.ExecContext(ctx, "DELETE FROM tiles"+cond.where()); err != nil {
			return fmt.Errorf("delete tiles: %w", err)
		}
		return nil
	}

	cond.timestampWindow("updated_at", f.MinTimestamp, f.MaxTimestamp)
	if _, err := ex.ExecContext(ctx, "DELETE FROM map"+cond.where()); err != nil {
		return fmt.Errorf("delete tiles: %w", err)
	}
	if _, err := ex.ExecContext(ctx, orphanSweepSQL); err != nil {
		return fmt.Errorf("sweep orphaned content: %w", err)
	}
	return nil
}

func (s *sqliteStore) ExpireTiles(ctx context.Context, f Filter) error {
	compacted, err := s.IsCompacted(ctx)
	if err != nil {
		return err
	}
	if !compacted {
		// Nothing to expire into, drop the finished tiles instead.
		return s.DeleteTiles(ctx, f)
	}
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}

	var cond sqlFilter
	cond.zoomRange("zoom_level", f.MinZoom, f.MaxZoom)
	cond.scale("tile_scale", f.Scale, scaled)
	cond.timestampWindow("updated_at", f.MinTimestamp, f.MaxTimestamp)
	query := fmt.Sprintf("UPDATE map SET content_id = NULL, updated_at = %d%s",
		time.Now().Unix(), cond.where())
	if _, err := ex.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("expire tiles: %w", err)
	}
	return nil
}

func (s *sqliteStore) ExpireTile(ctx context.Context, zoom, column, row, scale int) error {
	compacted, err := s.IsCompacted(ctx)
	if err != nil {
		return err
	}
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}

	var cond sqlFilter
	cond.equal("zoom_level", zoom)
	cond.equal("tile_column", column)
	cond.equal("tile_row", row)
	cond.scale("tile_scale", scale, scaled)

	if !compacted {
		if _, err := ex.ExecContext(ctx, "DELETE FROM tiles"+cond.where()); err != nil {
			return fmt.Errorf("expire tile: %w", err)
		}
		return nil
	}
	query := fmt.Sprintf("UPDATE map SET content_id = NULL, updated_at = %d%s",
		time.Now().Unix(), cond.where())
	if _, err := ex.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("expire tile: %w", err)
	}
	return nil
}

func (s *sqliteStore) DeleteOrphanedContent(ctx context.Context) error {
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx, orphanSweepSQL); err != nil {
		return fmt.Errorf("sweep orphaned content: %w", err)
	}
	return nil
}

func (s *sqliteStore) BoundingBoxForZoom(ctx context.Context, zoom, scale int) (Extent, bool, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return Extent{}, false, err
	}
	var cond sqlFilter
	cond.equal("zoom_level", zoom)
	cond.scale("tile_scale", scale, scaled)
	query := "SELECT min(tile_column), max(tile_column), min(tile_row), max(tile_row) FROM tiles" + cond.where()

	var minCol, maxCol, minRow, maxRow sql.NullInt64
	if err := s.queryer().QueryRowContext(ctx, query).Scan(&minCol, &maxCol, &minRow, &maxRow); err != nil {
		return Extent{}, false, fmt.Errorf("bounding box: %w", err)
	}
	if !minCol.Valid {
		return Extent{}, false, nil
	}
	return Extent{
		MinColumn: int(minCol.Int64),
		MaxColumn: int(maxCol.Int64),
		MinRow:    int(minRow.Int64),
		MaxRow:    int(maxRow.Int64),
	}, true, nil
}

func (s *sqliteStore) InsertContent(ctx context.Context, content Content) error {
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		"INSERT OR IGNORE INTO images (content_id, content_bytes) VALUES (?, ?)",
		content.ID, content.Data)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

func (s *sqliteStore) InsertContentBatch(ctx context.Context, batch []Content) error {
	return s.writeBatch(ctx,
		"INSERT OR IGNORE INTO images (content_id, content_bytes) VALUES (?, ?)",
		len(batch), func(i int) []any {
			return []any{batch[i].ID, batch[i].Data}
		})
}

func (s *sqliteStore) InsertCoordinate(ctx context.Context, zoom, column, row, scale int, contentID string, replace bool) error {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}

	verb := "INSERT OR IGNORE INTO"
	if replace {
		verb = "REPLACE INTO"
	}
	now := time.Now().Unix()
	if scaled {
		_, err = ex.ExecContext(ctx, verb+" map (zoom_level, tile_column, tile_row, tile_scale,"+
			" content_id, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			zoom, column, row, scale, contentID, now)
	} else {
		_, err = ex.ExecContext(ctx, verb+" map (zoom_level, tile_column, tile_row,"+
			" content_id, updated_at) VALUES (?, ?, ?, ?, ?)",
			zoom, column, row, contentID, now)
	}
	if err != nil {
		return fmt.Errorf("insert coordinate: %w", err)
	}
	return nil
}

func (s *sqliteStore) InsertCoordinateBatch(ctx context.Context, batch []Coordinate) error {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}
	if scaled {
		return s.writeBatch(ctx, "REPLACE INTO map (zoom_level, tile_column, tile_row, tile_scale,"+
			" content_id, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			len(batch), func(i int) []any {
				c := batch[i]
				return []any{c.Zoom, c.Column, c.Row, c.Scale, c.ContentID, c.Timestamp}
			})
	}
	return s.writeBatch(ctx, "REPLACE INTO map (zoom_level, tile_column, tile_row,"+
		" content_id, updated_at) VALUES (?, ?, ?, ?, ?)",
		len(batch), func(i int) []any {
			c := batch[i]
			return []any{c.Zoom, c.Column, c.Row, c.ContentID, c.Timestamp}
		})
}

// writeBatch runs the prepared statement per row on the pending
// transaction, or inside its own when every write auto-commits.
func (s *sqliteStore) writeBatch(ctx context.Context, query string, n int, args func(i int) []any) error {
	if s.autoCommit {
		return execBatch(ctx, s.db, query, n, args)
	}
	if _, err := s.execer(ctx); err != nil {
		return err
	}
	return execBatchTx(ctx, s.tx, query, n, args)
}

func (s *sqliteStore) InsertTiles(ctx context.Context, batch []TileRecord) error {
	return notImplemented(backendSQLite, "combined tile upsert")
}

func (s *sqliteStore) UpdateTile(ctx context.Context, oldContentID, newContentID string, data []byte) error {
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx,
		"INSERT OR IGNORE INTO images (content_id, content_bytes) VALUES (?, ?)",
		newContentID, data); err != nil {
		return fmt.Errorf("update tile: %w", err)
	}
	if _, err := ex.ExecContext(ctx,
		"UPDATE map SET content_id = ?, updated_at = ? WHERE content_id = ?",
		newContentID, time.Now().Unix(), oldContentID); err != nil {
		return fmt.Errorf("update tile: %w", err)
	}
	if oldContentID != newContentID {
		if _, err := ex.ExecContext(ctx, "DELETE FROM images WHERE content_id = ?", oldContentID); err != nil {
			return fmt.Errorf("update tile: %w", err)
		}
	}
	return nil
}

func (s *sqliteStore) DeleteTileWithID(ctx context.Context, contentID string) error {
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx, "DELETE FROM map WHERE content_id = ?", contentID); err != nil {
		return fmt.Errorf("delete tile: %w", err)
	}
	if _, err := ex.ExecContext(ctx, "DELETE FROM images WHERE content_id = ?", contentID); err != nil {
		return fmt.Errorf("delete tile: %w", err)
	}
	return nil
}

func (s *sqliteStore) Metadata(ctx context.Context) (map[string]string, error) {
	rows, err := s.queryer().QueryContext(ctx, "SELECT name, value FROM metadata")
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
		meta[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return meta, nil
}

func (s *sqliteStore) UpdateMetadata(ctx context.Context, name, value string) error {
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx,
		"REPLACE INTO metadata (name, value) VALUES (?, ?)", name, value); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

func (s *sqliteStore) CreateContentIndex(ctx context.Context) error {
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS map_content_id_index ON map (content_id)"); err != nil {
		return fmt.Errorf("create content index: %w", err)
	}
	return nil
}

func (s *sqliteStore) DropContentIndex(ctx context.Context) error {
	ex, err := s.execer(ctx)
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx, "DROP INDEX map_content_id_index"); err != nil {
		return fmt.Errorf("drop content index: %w", err)
	}
	return nil
}

func (s *sqliteStore) Optimize(ctx context.Context, skipAnalyze, skipVacuum bool) error {
	// VACUUM cannot run inside a transaction.
	if err := s.flush(); err != nil {
		return err
	}
	if !skipAnalyze {
		s.log.Info("analyzing database")
		if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
	}
	if !skipVacuum {
		s.log.Info("compacting database")
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}

// updatesWindow renders the change log window. Unlike Filter, every bound
// applies unconditionally.
func updatesWindow(minZoom, maxZoom int, minTimestamp, maxTimestamp int64) string {
	return fmt.Sprintf("map.zoom_level >= %d AND map.zoom_level <= %d"+
		" AND map.updated_at > %d AND map.updated_at < %d",
		minZoom, maxZoom, minTimestamp, maxTimestamp)
}
