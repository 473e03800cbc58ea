package tiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// postgresStore keeps one primary connection for writes and scalar reads.
// Every statement commits on its own; concurrent imports are serialized by
// the upsert function instead of transactions. Streaming reads run on
// dedicated connections through server-side cursors.
type postgresStore struct {
	db  *sql.DB
	dsn string
	log *slog.Logger

	scaled *bool
}

var _ Store = (*postgresStore)(nil)

func openPostgres(ctx context.Context, params map[string]string, opts Options) (*postgresStore, error) {
	if err := requireParams(params, backendPostgres, "dbname"); err != nil {
		return nil, err
	}
	dsn := postgresDSN(params)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, newConnectionError(backendPostgres, "open connection", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newConnectionError(backendPostgres, "open connection", err)
	}
	db.SetMaxOpenConns(1)

	if opts.CheckExists {
		var n int
		err := db.QueryRowContext(ctx, "SELECT count(*) FROM pg_tables WHERE tablename = 'map'").Scan(&n)
		if err != nil {
			db.Close()
			return nil, newConnectionError(backendPostgres, "probe schema", err)
		}
		if n == 0 {
			db.Close()
			return nil, newConnectionError(backendPostgres, "database and tables must exist", nil)
		}
	}
	return &postgresStore{db: db, dsn: dsn, log: opts.logger(backendPostgres)}, nil
}

// postgresDSN renders the parameters in the driver's key=value form. The
// numeric hostaddr parameter is folded into host, which the driver
// understands.
func postgresDSN(params map[string]string) string {
	merged := make(map[string]string, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	if host, ok := merged["hostaddr"]; ok {
		delete(merged, "hostaddr")
		if merged["host"] == "" {
			merged["host"] = host
		}
	}
	if merged["sslmode"] == "" {
		merged["sslmode"] = "disable"
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+merged[k])
	}
	return strings.Join(pairs, " ")
}

func isPGUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *postgresStore) Setup(ctx context.Context) error {
	tables := []string{
		"CREATE TABLE IF NOT EXISTS images (content_id VARCHAR(256), content_bytes BYTEA)",
		"CREATE TABLE IF NOT EXISTS map (zoom_level SMALLINT, tile_column INTEGER," +
			" tile_row INTEGER, tile_scale SMALLINT, content_id VARCHAR(256), updated_at INTEGER)",
		"CREATE TABLE IF NOT EXISTS metadata (name VARCHAR(256), value TEXT)",
	}
	for _, stmt := range tables {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return newSchemaError(backendPostgres, err)
		}
	}
	if err := s.ensureIndex(ctx, "metadata_name_index",
		"CREATE UNIQUE INDEX metadata_name_index ON metadata (name)"); err != nil {
		return err
	}

	// The tables exist now, probe which generation they are.
	s.scaled = nil
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}

	view := "CREATE OR REPLACE VIEW tiles AS SELECT map.zoom_level AS zoom_level," +
		" map.tile_column AS tile_column, map.tile_row AS tile_row,"
	coordIndex := "CREATE UNIQUE INDEX map_coordinate_index ON map (zoom_level, tile_column, tile_row"
	if scaled {
		view += " map.tile_scale AS tile_scale,"
		coordIndex += ", tile_scale"
	}
	view += " images.content_bytes AS tile_data, map.updated_at AS updated_at" +
		" FROM map JOIN images ON map.content_id IS NOT NULL AND images.content_id = map.content_id"
	coordIndex += ")"

	if _, err := s.db.ExecContext(ctx, view); err != nil {
		return newSchemaError(backendPostgres, err)
	}
	if err := s.ensureIndex(ctx, "map_coordinate_index", coordIndex); err != nil {
		return err
	}
	if err := s.ensureIndex(ctx, "images_id_index",
		"CREATE UNIQUE INDEX images_id_index ON images (content_id)"); err != nil {
		return err
	}
	return s.createUpsertFunction(ctx, scaled)
}

// ensureIndex creates the index unless a relation of that name exists.
func (s *postgresStore) ensureIndex(ctx context.Context, name, ddl string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM pg_class WHERE relname = $1", name).Scan(&n); err != nil {
		return fmt.Errorf("probe index %s: %w", name, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return newSchemaError(backendPostgres, err)
	}
	return nil
}

// createUpsertFunction installs upsert_coordinate, an update-then-insert
// loop that survives losing an insert race. Stores without the scale
// column get a variant without the scale argument.
func (s *postgresStore) createUpsertFunction(ctx context.Context, scaled bool) error {
	fn := `CREATE OR REPLACE FUNCTION upsert_coordinate(tile_z INTEGER, tile_x INTEGER, tile_y INTEGER, tile_s SMALLINT, key VARCHAR, updated INTEGER)
RETURNS VOID AS $$
BEGIN
    LOOP
        UPDATE map SET content_id = key, updated_at = updated
            WHERE zoom_level = tile_z AND tile_column = tile_x AND tile_row = tile_y AND tile_scale = tile_s;
        IF found THEN
            RETURN;
        END IF;
        BEGIN
            INSERT INTO map (zoom_level, tile_column, tile_row, tile_scale, content_id, updated_at)
                VALUES (tile_z, tile_x, tile_y, tile_s, key, updated);
            RETURN;
        EXCEPTION WHEN unique_violation THEN
        END;
    END LOOP;
END;
$$ LANGUAGE plpgsql`
	if !scaled {
		fn = `CREATE OR REPLACE FUNCTION upsert_coordinate(tile_z INTEGER, tile_x INTEGER, tile_y INTEGER, key VARCHAR, updated INTEGER)
RETURNS VOID AS $$
BEGIN
    LOOP
        UPDATE map SET content_id = key, updated_at = updated
            WHERE zoom_level = tile_z AND tile_column = tile_x AND tile_row = tile_y;
        IF found THEN
            RETURN;
        END IF;
        BEGIN
            INSERT INTO map (zoom_level, tile_column, tile_row, content_id, updated_at)
                VALUES (tile_z, tile_x, tile_y, key, updated);
            RETURN;
        EXCEPTION WHEN unique_violation THEN
        END;
    END LOOP;
END;
$$ LANGUAGE plpgsql`
	}
	if _, err := s.db.ExecContext(ctx, fn); err != nil {
		return newSchemaError(backendPostgres, err)
	}
	return nil
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}

func (s *postgresStore) IsCompacted(ctx context.Context) (bool, error) {
	// The relational schema always separates coordinates from content.
	return true, nil
}

func (s *postgresStore) HasScale(ctx context.Context) (bool, error) {
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

func (s *postgresStore) MaxTimestamp(ctx context.Context) (int64, error) {
	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT max(updated_at) FROM map").Scan(&ts); err != nil {
		return 0, fmt.Errorf("max timestamp: %w", err)
	}
	return ts.Int64, nil
}

func (s *postgresStore) ZoomLevels(ctx context.Context, scale int) ([]int, error) {
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

func (s *postgresStore) TilesCount(ctx context.Context, f Filter) (int, error) {
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

func (s *postgresStore) ColumnsAndRowsForZoom(ctx context.Context, zoom, scale int) (*CoordIter, error) {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return nil, err
	}
	var cond sqlFilter
	cond.equal("zoom_level", zoom)
	cond.scale("tile_scale", scale, scaled)
	return s.streamCoords(ctx, "SELECT tile_column, tile_row FROM map"+cond.where())
}

func (s *postgresStore) ColumnsForZoomAndRow(ctx context.Context, zoom, row, scale int) ([]int, error) {
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

func (s *postgresStore) Tiles(ctx context.Context, f Filter) (*TileIter, error) {
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
	return s.streamTiles(ctx, query, scanTile)
}

func (s *postgresStore) TilesWithContentID(ctx context.Context, f Filter) (*TileIter, error) {
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
	return s.streamTiles(ctx, query, scanTileWithID)
}

func (s *postgresStore) Updates(ctx context.Context, minZoom, maxZoom int, minTimestamp, maxTimestamp int64) (*TileIter, error) {
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
	return s.streamTiles(ctx, query, scanUpdate)
}

func (s *postgresStore) UpdatesCount(ctx context.Context, minZoom, maxZoom int, minTimestamp, maxTimestamp int64) (int, error) {
	var n int
	query := "SELECT count(zoom_level) FROM map WHERE " + updatesWindow(minZoom, maxZoom, minTimestamp, maxTimestamp)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("updates count: %w", err)
	}
	return n, nil
}

func (s *postgresStore) DeleteTiles(ctx context.Context, f Filter) error {
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

func (s *postgresStore) ExpireTiles(ctx context.Context, f Filter) error {
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

func (s *postgresStore) ExpireTile(ctx context.Context, zoom, column, row, scale int) error {
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

func (s *postgresStore) DeleteOrphanedContent(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, orphanSweepSQL); err != nil {
		return fmt.Errorf("sweep orphaned content: %w", err)
	}
	return nil
}

func (s *postgresStore) BoundingBoxForZoom(ctx context.Context, zoom, scale int) (Extent, bool, error) {
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

func (s *postgresStore) InsertContent(ctx context.Context, content Content) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO images (content_id, content_bytes) VALUES ($1, $2)",
		content.ID, content.Data)
	if err != nil && !isPGUniqueViolation(err) {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

func (s *postgresStore) InsertContentBatch(ctx context.Context, batch []Content) error {
	stmt, err := s.db.PrepareContext(ctx,
		"INSERT INTO images (content_id, content_bytes) VALUES ($1, $2)")
	if err != nil {
		return fmt.Errorf("prepare content insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range batch {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Data); err != nil && !isPGUniqueViolation(err) {
			return fmt.Errorf("insert content %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *postgresStore) InsertCoordinate(ctx context.Context, zoom, column, row, scale int, contentID string, replace bool) error {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	if replace {
		if scaled {
			_, err = s.db.ExecContext(ctx,
				"SELECT upsert_coordinate($1, $2, $3, $4::smallint, $5::varchar, $6)",
				zoom, column, row, scale, contentID, now)
		} else {
			_, err = s.db.ExecContext(ctx,
				"SELECT upsert_coordinate($1, $2, $3, $4::varchar, $5)",
				zoom, column, row, contentID, now)
		}
		if err != nil {
			return fmt.Errorf("upsert coordinate: %w", err)
		}
		return nil
	}

	if scaled {
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO map (zoom_level, tile_column, tile_row, tile_scale, content_id, updated_at)"+
				" VALUES ($1, $2, $3, $4, $5, $6)",
			zoom, column, row, scale, contentID, now)
	} else {
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO map (zoom_level, tile_column, tile_row, content_id, updated_at)"+
				" VALUES ($1, $2, $3, $4, $5)",
			zoom, column, row, contentID, now)
	}
	if err != nil && !isPGUniqueViolation(err) {
		return fmt.Errorf("insert coordinate: %w", err)
	}
	return nil
}

func (s *postgresStore) InsertCoordinateBatch(ctx context.Context, batch []Coordinate) error {
	scaled, err := s.HasScale(ctx)
	if err != nil {
		return err
	}
	call := "SELECT upsert_coordinate($1, $2, $3, $4::smallint, $5::varchar, $6)"
	if !scaled {
		call = "SELECT upsert_coordinate($1, $2, $3, $4::varchar, $5)"
	}
	stmt, err := s.db.PrepareContext(ctx, call)
	if err != nil {
		return fmt.Errorf("prepare coordinate upsert: %w", err)
	}
	defer stmt.Close()

	for i, c := range batch {
		var err error
		if scaled {
			_, err = stmt.ExecContext(ctx, c.Zoom, c.Column, c.Row, c.Scale, c.ContentID, c.Timestamp)
		} else {
			_, err = stmt.ExecContext(ctx, c.Zoom, c.Column, c.Row, c.ContentID, c.Timestamp)
		}
		if err != nil {
			return fmt.Errorf("upsert coordinate %d: %w", i, err)
		}
	}
	return nil
}

func (s *postgresStore) InsertTiles(ctx context.Context, batch []TileRecord) error {
	return notImplemented(backendPostgres, "combined tile upsert")
}

func (s *postgresStore) UpdateTile(ctx context.Context, oldContentID, newContentID string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO images (content_id, content_bytes) VALUES ($1, $2)", newContentID, data)
	if err != nil && !isPGUniqueViolation(err) {
		return fmt.Errorf("update tile: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE map SET content_id = $1, updated_at = $2 WHERE content_id = $3",
		newContentID, time.Now().Unix(), oldContentID); err != nil {
		return fmt.Errorf("update tile: %w", err)
	}
	if oldContentID != newContentID {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE content_id = $1", oldContentID); err != nil {
			return fmt.Errorf("update tile: %w", err)
		}
	}
	return nil
}

func (s *postgresStore) DeleteTileWithID(ctx context.Context, contentID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM map WHERE content_id = $1", contentID); err != nil {
		return fmt.Errorf("delete tile: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE content_id = $1", contentID); err != nil {
		return fmt.Errorf("delete tile: %w", err)
	}
	return nil
}

func (s *postgresStore) Metadata(ctx context.Context) (map[string]string, error) {
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

func (s *postgresStore) UpdateMetadata(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (name, value) VALUES ($1, $2)", name, value)
	if err == nil {
		return nil
	}
	if !isPGUniqueViolation(err) {
		return fmt.Errorf("update metadata: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE metadata SET value = $1 WHERE name = $2", value, name); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

func (s *postgresStore) CreateContentIndex(ctx context.Context) error {
	return s.ensureIndex(ctx, "map_content_id_index",
		"CREATE INDEX map_content_id_index ON map (content_id)")
}

func (s *postgresStore) DropContentIndex(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP INDEX map_content_id_index"); err != nil {
		return fmt.Errorf("drop content index: %w", err)
	}
	return nil
}

func (s *postgresStore) Optimize(ctx context.Context, skipAnalyze, skipVacuum bool) error {
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

// pgCursor is one streaming read: a dedicated connection holding a
// server-side cursor inside a read transaction.
type pgCursor struct {
	db   *sql.DB
	tx   *sql.Tx
	name string
}

func (s *postgresStore) declareCursor(ctx context.Context, query string) (*pgCursor, error) {
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return nil, newConnectionError(backendPostgres, "open streaming connection", err)
	}
	db.SetMaxOpenConns(1)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("begin streaming transaction: %w", err)
	}
	name := "cursor_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", name, query)); err != nil {
		tx.Rollback()
		db.Close()
		return nil, fmt.Errorf("declare cursor: %w", err)
	}
	return &pgCursor{db: db, tx: tx, name: name}, nil
}

func (c *pgCursor) fetch(ctx context.Context) (*sql.Rows, error) {
	return c.tx.QueryContext(ctx, fmt.Sprintf("FETCH %d FROM %s", fetchChunk, c.name))
}

// close rolls the read transaction back, which also closes the cursor, and
// releases the connection.
func (c *pgCursor) close() error {
	rerr := c.tx.Rollback()
	cerr := c.db.Close()
	if rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
		return rerr
	}
	return cerr
}

func (s *postgresStore) streamTiles(ctx context.Context, query string, scan func(*sql.Rows) (Tile, error)) (*TileIter, error) {
	cur, err := s.declareCursor(ctx, query)
	if err != nil {
		return nil, err
	}
	fetch := func() ([]Tile, error) {
		rows, err := cur.fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch tile batch: %w", err)
		}
		defer rows.Close()
		var batch []Tile
		for rows.Next() {
			t, err := scan(rows)
			if err != nil {
				return nil, err
			}
			batch = append(batch, t)
		}
		return batch, rows.Err()
	}
	return tileIterFromBatches(fetch, cur.close), nil
}

func (s *postgresStore) streamCoords(ctx context.Context, query string) (*CoordIter, error) {
	cur, err := s.declareCursor(ctx, query)
	if err != nil {
		return nil, err
	}
	fetch := func() ([]coordPair, error) {
		rows, err := cur.fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch coordinate batch: %w", err)
		}
		defer rows.Close()
		var batch []coordPair
		for rows.Next() {
			var p coordPair
			if err := rows.Scan(&p.col, &p.row); err != nil {
				return nil, err
			}
			batch = append(batch, p)
		}
		return batch, rows.Err()
	}
	return coordIterFromBatches(fetch, cur.close), nil
}
