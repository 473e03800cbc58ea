package tiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlStore keeps one auto-committing primary connection. Streaming reads
// run on dedicated connections, the driver spools rows off the wire as the
// caller iterates.
type mysqlStore struct {
	db  *sql.DB
	dsn string
	log *slog.Logger

	scaled *bool
}

var _ Store = (*mysqlStore)(nil)

func openMySQL(ctx context.Context, params map[string]string, opts Options) (*mysqlStore, error) {
	if err := requireParams(params, backendMySQL, "dbname", "user", "password"); err != nil {
		return nil, err
	}
	dsn := mysqlDSN(params)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, newConnectionError(backendMySQL, "open connection", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newConnectionError(backendMySQL, "open connection", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "SET autocommit = 1"); err != nil {
		db.Close()
		return nil, newConnectionError(backendMySQL, "enable autocommit", err)
	}

	if opts.CheckExists {
		ok, err := tableExists(ctx, db, "map")
		if err != nil {
			db.Close()
			return nil, newConnectionError(backendMySQL, "probe schema", err)
		}
		if !ok {
			db.Close()
			return nil, newConnectionError(backendMySQL, "database and tables must exist", nil)
		}
	}
	return &mysqlStore{db: db, dsn: dsn, log: opts.logger(backendMySQL)}, nil
}

func mysqlDSN(params map[string]string) string {
	cfg := mysql.NewConfig()
	cfg.User = params["user"]
	cfg.Passwd = params["password"]
	cfg.Net = "tcp"
	port := params["port"]
	if port == "" {
		port = "3306"
	}
	cfg.Addr = net.JoinHostPort(hostParam(params), port)
	cfg.DBName = params["dbname"]
	return cfg.FormatDSN()
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	rows, err := db.QueryContext(ctx, "SHOW TABLES LIKE ?", name)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// isExistingObject reports whether err only says the table, view, column
// or index is already there.
func isExistingObject(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	switch myErr.Number {
	case 1050, 1060, 1061:
		return true
	}
	return false
}

func (s *mysqlStore) Setup(ctx context.Context) error {
	tables := []string{
		"CREATE TABLE IF NOT EXISTS images (content_id CHAR(40), content_bytes MEDIUMBLOB)",
		"CREATE TABLE IF NOT EXISTS map (zoom_level TINYINT, tile_column INTEGER," +
			" tile_row INTEGER, tile_scale TINYINT, content_id CHAR(40), updated_at INTEGER)",
		"CREATE TABLE IF NOT EXISTS metadata (name VARCHAR(200), value TEXT)",
	}
	for _, stmt := range tables {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return newSchemaError(backendMySQL, err)
		}
	}

	// No IF NOT EXISTS for views and indexes here, a duplicate-object
	// error means setup already ran.
	objects := []string{
		"CREATE UNIQUE INDEX metadata_name_index ON metadata (name)",
		"CREATE VIEW tiles AS SELECT map.zoom_level AS zoom_level," +
			" map.tile_column AS tile_column, map.tile_row AS tile_row," +
			" map.tile_scale AS tile_scale, images.content_bytes AS tile_data," +
			" map.updated_at AS updated_at FROM map JOIN images" +
			" ON map.content_id IS NOT NULL AND images.content_id = map.content_id",
		"CREATE UNIQUE INDEX map_index ON map (zoom_level, tile_column, tile_row, tile_scale)",
		"CREATE UNIQUE INDEX images_id_index ON images (content_id)",
	}
	for _, stmt := range objects {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil && !isExistingObject(err) {
			return newSchemaError(backendMySQL, err)
		}
	}

	s.scaled = nil
	return nil
}

func (s *mysqlStore) Close() error {
	return s.db.Close()
}

func (s *mysqlStore) IsCompacted(ctx context.Context) (bool, error) {
	return true, nil
}

func (s *mysqlStore) HasScale(ctx context.Context) (bool, error) {
	if s.scaled != nil {
		return *s.scaled, nil
	}
	scaled := true
	rows, err := s.db.QueryContext(ctx, "SELECT tile_scale FROM map LIMIT 1")
	if err != nil {
		scaled = false
	} else {
		rows.Close()
	}
	s.scaled = &scaled
	return scaled, nil
}

func (s *mysqlStore) MaxTimestamp(ctx context.Context) (int64, error) {
	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT max(updated_at) FROM map").Scan(&ts); err != nil {
		return 0, fmt.Errorf("max timestamp: %w", err)
	}
	return ts.Int64, nil
}

func (s *mysqlStore) ZoomLevels(ctx context.Context, scale int) ([]int, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}
	var cond sqlFilter
	cond.scale("tile_scale", scale, scaled)
	query := "SELECT DISTINCT zoom_level FROM tiles" + cond.where() + " ORDER BY zoom_level"

	rows, err := s.db.QueryContext(ctx, query)
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

func (s *mysqlStore) TilesCount(ctx context.Context, f Filter) (int, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return 0, err
	}
	var cond sqlFilter
	cond.zoomRange("zoom_level", f.MinZoom, f.MaxZoom)
	cond.scale("tile_scale", f.Scale, scaled)
	cond.timestampWindow("updated_at", f.MinTimestamp, f.MaxTimestamp)
	cond.raw("content_id IS NOT NULL")

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(zoom_level) FROM map"+cond.where()).Scan(&n); err != nil {
		return 0, fmt.Errorf("tiles count: %w", err)
	}
	return n, nil
}

func (s *mysqlStore) ColumnsAndRowsForZoom(ctx context.Context, zoom, scale int) (*CoordIter, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}
	var cond sqlFilter
	cond.equal("zoom_level", zoom)
	cond.scale("tile_scale", scale, scaled)
	query := "SELECT tile_column, tile_row FROM map" + cond.where() + " ORDER BY tile_column, tile_row"

	db, rows, err := s.streamQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("columns and rows: %w", err)
	}
	return coordIterFromRows(rows, db.Close), nil
}

func (s *mysqlStore) ColumnsForZoomAndRow(ctx context.Context, zoom, row, scale int) ([]int, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}
	var cond sqlFilter
	cond.equal("zoom_level", zoom)
	cond.equal("tile_row", row)
	cond.scale("tile_scale", scale, scaled)
	query := "SELECT DISTINCT tile_column FROM tiles" + cond.where() + " ORDER BY tile_column"

	rows, err := s.db.QueryContext(ctx, query)
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

func (s *mysqlStore) Tiles(ctx context.Context, f Filter) (*TileIter, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}
	var cond sqlFilter
	cond.zoomRange("zoom_level", f.MinZoom, f.MaxZoom)
	cond.scale("tile_scale", f.Scale, scaled)
	cond.timestampWindow("updated_at", f.MinTimestamp, f.MaxTimestamp)
	query := fmt.Sprintf("SELECT zoom_level, tile_column, tile_row, %s, tile_data FROM tiles%s",
		scaleColumn("tile_scale", f.Scale, scaled), cond.where())
	s.log.Debug("streaming tiles", "query", query)

	db, rows, err := s.streamQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("tiles: %w", err)
	}
	return tileIterFromRows(rows, scanTile, db.Close), nil
}

func (s *mysqlStore) TilesWithContentID(ctx context.Context, f Filter) (*TileIter, error) {
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

	db, rows, err := s.streamQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("tiles with content id: %w", err)
	}
	return tileIterFromRows(rows, scanTileWithID, db.Close), nil
}

func (s *mysqlStore) Updates(ctx context.Context, minZoom, maxZoom int, minTimestamp, maxTimestamp int64) (*TileIter, error) {
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

	db, rows, err := s.streamQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("updates: %w", err)
	}
	return tileIterFromRows(rows, scanUpdate, db.Close), nil
}

func (s *mysqlStore) UpdatesCount(ctx context.Context, minZoom, maxZoom int, minTimestamp, maxTimestamp int64) (int, error) {
	var n int
	query := "SELECT count(zoom_level) FROM map WHERE " + updatesWindow(minZoom, maxZoom, minTimestamp, maxTimestamp)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("updates count: %w", err)
	}
	return n, nil
}

func (s *mysqlStore) DeleteTiles(ctx context.Context, f Filter) error {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}
	var cond sqlFilter
	cond.zoomRange("zoom_level", f.MinZoom, f.MaxZoom)
	cond.scale("tile_scale", f.Scale, scaled)
	cond.timestampWindow("updated_at", f.MinTimestamp, f.MaxTimestamp)

	if _, err := s.db.ExecContext(ctx, "DELETE FROM map"+cond.where()); err != nil {
		return fmt.Errorf("delete tiles: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, orphanSweepSQL); err != nil {
		return fmt.Errorf("sweep orphaned content: %w", err)
	}
	return nil
}

func (s *mysqlStore) ExpireTiles(ctx context.Context, f Filter) error {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}
	var cond sqlFilter
	cond.zoomRange("zoom_level", f.MinZoom, f.MaxZoom)
	cond.scale("tile_scale", f.Scale, scaled)
	cond.timestampWindow("updated_at", f.MinTimestamp, f.MaxTimestamp)
	query := fmt.Sprintf("UPDATE map SET content_id = NULL, updated_at = %d%s",
		time.Now().Unix(), cond.where())
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("expire tiles: %w", err)
	}
	return nil
}

func (s *mysqlStore) ExpireTile(ctx context.Context, zoom, column, row, scale int) error {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}
	var cond sqlFilter
	cond.equal("zoom_level", zoom)
	cond.equal("tile_column", column)
	cond.equal("tile_row", row)
	cond.scale("tile_scale", scale, scaled)
	query := fmt.Sprintf("UPDATE map SET content_id = NULL, updated_at = %d%s",
		time.Now().Unix(), cond.where())
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("expire tile: %w", err)
	}
	return nil
}

func (s *mysqlStore) DeleteOrphanedContent(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, orphanSweepSQL); err != nil {
		return fmt.Errorf("sweep orphaned content: %w", err)
	}
	return nil
}

func (s *mysqlStore) BoundingBoxForZoom(ctx context.Context, zoom, scale int) (Extent, bool, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return Extent{}, false, err
	}
	var cond sqlFilter
	cond.equal("zoom_level", zoom)
	cond.scale("tile_scale", scale, scaled)
	query := "SELECT min(tile_column), max(tile_column), min(tile_row), max(tile_row) FROM tiles" + cond.where()

	var minCol, maxCol, minRow, maxRow sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query).Scan(&minCol, &maxCol, &minRow, &maxRow); err != nil {
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

func (s *mysqlStore) InsertContent(ctx context.Context, content Content) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT IGNORE INTO images (content_id, content_bytes) VALUES (?, ?)",
		content.ID, content.Data)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

func (s *mysqlStore) InsertContentBatch(ctx context.Context, batch []Content) error {
	return execBatch(ctx, s.db,
		"INSERT IGNORE INTO images (content_id, content_bytes) VALUES (?, ?)",
		len(batch), func(i int) []any {
			return []any{batch[i].ID, batch[i].Data}
		})
}

func (s *mysqlStore) InsertCoordinate(ctx context.Context, zoom, column, row, scale int, contentID string, replace bool) error {
	verb := "INSERT IGNORE INTO"
	if replace {
		verb = "REPLACE INTO"
	}
	_, err := s.db.ExecContext(ctx, verb+" map (zoom_level, tile_column, tile_row, tile_scale,"+
		" content_id, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		zoom, column, row, scale, contentID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert coordinate: %w", err)
	}
	return nil
}

func (s *mysqlStore) InsertCoordinateBatch(ctx context.Context, batch []Coordinate) error {
	return execBatch(ctx, s.db,
		"REPLACE INTO map (zoom_level, tile_column, tile_row, tile_scale, content_id, updated_at)"+
			" VALUES (?, ?, ?, ?, ?, ?)",
		len(batch), func(i int) []any {
			c := batch[i]
			return []any{c.Zoom, c.Column, c.Row, c.Scale, c.ContentID, c.Timestamp}
		})
}

func (s *mysqlStore) InsertTiles(ctx context.Context, batch []TileRecord) error {
	return notImplemented(backendMySQL, "combined tile upsert")
}

func (s *mysqlStore) UpdateTile(ctx context.Context, oldContentID, newContentID string, data []byte) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT IGNORE INTO images (content_id, content_bytes) VALUES (?, ?)",
		newContentID, data); err != nil {
		return fmt.Errorf("update tile: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE map SET content_id = ?, updated_at = ? WHERE content_id = ?",
		newContentID, time.Now().Unix(), oldContentID); err != nil {
		return fmt.Errorf("update tile: %w", err)
	}
	if oldContentID != newContentID {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE content_id = ?", oldContentID); err != nil {
			return fmt.Errorf("update tile: %w", err)
		}
	}
	return nil
}

func (s *mysqlStore) DeleteTileWithID(ctx context.Context, contentID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM map WHERE content_id = ?", contentID); err != nil {
		return fmt.Errorf("delete tile: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE content_id = ?", contentID); err != nil {
		return fmt.Errorf("delete tile: %w", err)
	}
	return nil
}

func (s *mysqlStore) Metadata(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM metadata")
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

func (s *mysqlStore) UpdateMetadata(ctx context.Context, name, value string) error {
	if _, err := s.db.ExecContext(ctx,
		"REPLACE INTO metadata (name, value) VALUES (?, ?)", name, value); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

func (s *mysqlStore) CreateContentIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "CREATE INDEX map_content_id_index ON map (content_id)")
	if err != nil && !isExistingObject(err) {
		return fmt.Errorf("create content index: %w", err)
	}
	return nil
}

func (s *mysqlStore) DropContentIndex(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP INDEX map_content_id_index ON map"); err != nil {
		return fmt.Errorf("drop content index: %w", err)
	}
	return nil
}

func (s *mysqlStore) Optimize(ctx context.Context, skipAnalyze, skipVacuum bool) error {
	if !skipAnalyze {
		s.log.Info("analyzing database")
		if _, err := s.db.ExecContext(ctx, "ANALYZE TABLE map, images, metadata"); err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
	}
	if !skipVacuum {
		s.log.Info("compacting database")
		if _, err := s.db.ExecContext(ctx, "OPTIMIZE TABLE map, images, metadata"); err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
	}
	return nil
}

// streamQuery runs query on a dedicated connection. The caller owns both
// the rows and the returned pool.
func (s *mysqlStore) streamQuery(ctx context.Context, query string) (*sql.DB, *sql.Rows, error) {
	db, err := sql.Open("mysql", s.dsn)
	if err != nil {
		return nil, nil, newConnectionError(backendMySQL, "open streaming connection", err)
	}
	db.SetMaxOpenConns(1)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, rows, nil
}
