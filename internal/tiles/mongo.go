package tiles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
)

// mongoStore holds self-contained tile documents keyed by "z/x/y/scale",
// with the zoom, scale, timestamp and payload as fields:
//
//	{_id: "14/8538/5724/1", z: 14, s: 1, t: 1692608912, d: <bytes>}
//
// There is no coordinate/content split, so the compacted operations are
// not supported.
type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *slog.Logger
}

var _ Store = (*mongoStore)(nil)

func openMongo(ctx context.Context, params map[string]string, opts Options) (*mongoStore, error) {
	if err := requireParams(params, backendMongo, "dbname", "user", "password"); err != nil {
		return nil, err
	}
	uri := fmt.Sprintf("mongodb://%s:%s@%s/admin", params["user"], params["password"], hostParam(params))

	client, err := mongo.Connect(ctx, mongoopts.Client().ApplyURI(uri))
	if err != nil {
		return nil, newConnectionError(backendMongo, "open connection", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, newConnectionError(backendMongo, "open connection", err)
	}
	return &mongoStore{
		client: client,
		db:     client.Database(params["dbname"]),
		log:    opts.logger(backendMongo),
	}, nil
}

func (s *mongoStore) tiles() *mongo.Collection {
	return s.db.Collection("tiles")
}

// tileKey renders the document key. A scale below 1 means unscaled, which
// is stored as 1.
func tileKey(zoom, column, row, scale int) string {
	if scale < 1 {
		scale = 1
	}
	return fmt.Sprintf("%d/%d/%d/%d", zoom, column, row, scale)
}

func parseTileKey(key string) (Tile, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 {
		return Tile{}, fmt.Errorf("malformed tile key %q", key)
	}
	var t Tile
	for i, dst := range []*int{&t.Zoom, &t.Column, &t.Row, &t.Scale} {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return Tile{}, fmt.Errorf("malformed tile key %q: %w", key, err)
		}
		*dst = n
	}
	return t, nil
}

// mongoTileFilter translates a Filter into a find query over the tile
// document fields.
func mongoTileFilter(f Filter) bson.M {
	query := bson.M{}
	if f.MinZoom > ZoomMin || f.MaxZoom < ZoomMax {
		zoom := bson.M{}
		if f.MinZoom > ZoomMin {
			zoom["$gte"] = f.MinZoom
		}
		if f.MaxZoom < ZoomMax {
			zoom["$lte"] = f.MaxZoom
		}
		query["z"] = zoom
	}
	if f.Scale > 0 {
		query["s"] = f.Scale
	}
	if f.MinTimestamp > 0 || f.MaxTimestamp > 0 {
		ts := bson.M{}
		if f.MinTimestamp > 0 {
			ts["$gt"] = f.MinTimestamp
		}
		if f.MaxTimestamp > 0 {
			ts["$lt"] = f.MaxTimestamp
		}
		query["t"] = ts
	}
	return query
}

func (s *mongoStore) Setup(ctx context.Context) error {
	// Collections appear on first write.
	return nil
}

func (s *mongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *mongoStore) IsCompacted(ctx context.Context) (bool, error) {
	return false, nil
}

func (s *mongoStore) HasScale(ctx context.Context) (bool, error) {
	return true, nil
}

func (s *mongoStore) MaxTimestamp(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *mongoStore) ZoomLevels(ctx context.Context, scale int) ([]int, error) {
	filter := bson.M{}
	if scale > 0 {
		filter["s"] = scale
	}
	values, err := s.tiles().Distinct(ctx, "z", filter)
	if err != nil {
		return nil, fmt.Errorf("zoom levels: %w", err)
	}
	levels := make([]int, 0, len(values))
	for _, v := range values {
		switch zoom := v.(type) {
		case int32:
			levels = append(levels, int(zoom))
		case int64:
			levels = append(levels, int(zoom))
		case float64:
			levels = append(levels, int(zoom))
		}
	}
	sort.Ints(levels)
	return levels, nil
}

func (s *mongoStore) TilesCount(ctx context.Context, f Filter) (int, error) {
	n, err := s.tiles().CountDocuments(ctx, mongoTileFilter(f))
	if err != nil {
		return 0, fmt.Errorf("tiles count: %w", err)
	}
	return int(n), nil
}

func (s *mongoStore) ColumnsAndRowsForZoom(ctx context.Context, zoom, scale int) (*CoordIter, error) {
	return nil, notImplemented(backendMongo, "coordinate enumeration")
}

func (s *mongoStore) ColumnsForZoomAndRow(ctx context.Context, zoom, row, scale int) ([]int, error) {
	return nil, notImplemented(backendMongo, "coordinate enumeration")
}

func (s *mongoStore) Tiles(ctx context.Context, f Filter) (*TileIter, error) {
	return s.streamTiles(ctx, f, false)
}

func (s *mongoStore) TilesWithContentID(ctx context.Context, f Filter) (*TileIter, error) {
	// Every document is its own content, the key doubles as identifier.
	return s.streamTiles(ctx, f, true)
}

func (s *mongoStore) streamTiles(ctx context.Context, f Filter, withID bool) (*TileIter, error) {
	filter := mongoTileFilter(f)
	s.log.Debug("streaming tiles", "filter", filter)
	cur, err := s.tiles().Find(ctx, filter, mongoopts.Find().SetBatchSize(fetchChunk))
	if err != nil {
		return nil, fmt.Errorf("tiles: %w", err)
	}

	next := func() (Tile, bool, error) {
		if !cur.Next(ctx) {
			return Tile{}, false, cur.Err()
		}
		var doc struct {
			Key  string `bson:"_id"`
			Data []byte `bson:"d"`
		}
		if err := cur.Decode(&doc); err != nil {
			return Tile{}, false, fmt.Errorf("decode tile: %w", err)
		}
		t, err := parseTileKey(doc.Key)
		if err != nil {
			return Tile{}, false, err
		}
		t.Data = doc.Data
		if withID {
			t.ContentID = doc.Key
		}
		return t, true, nil
	}
	return newTileIter(next, func() error {
		return cur.Close(context.Background())
	}), nil
}

func (s *mongoStore) Updates(ctx context.Context, minZoom, maxZoom int, minTimestamp, maxTimestamp int64) (*TileIter, error) {
	return nil, notImplemented(backendMongo, "change log")
}

func (s *mongoStore) UpdatesCount(ctx context.Context, minZoom, maxZoom int, minTimestamp, maxTimestamp int64) (int, error) {
	return 0, notImplemented(backendMongo, "change log")
}

func (s *mongoStore) DeleteTiles(ctx context.Context, f Filter) error {
	return notImplemented(backendMongo, "filtered delete")
}

func (s *mongoStore) ExpireTiles(ctx context.Context, f Filter) error {
	return notImplemented(backendMongo, "filtered expiry")
}

func (s *mongoStore) ExpireTile(ctx context.Context, zoom, column, row, scale int) error {
	_, err := s.tiles().DeleteOne(ctx, bson.M{"_id": tileKey(zoom, column, row, scale)})
	if err != nil {
		return fmt.Errorf("expire tile: %w", err)
	}
	return nil
}

func (s *mongoStore) DeleteOrphanedContent(ctx context.Context) error {
	return notImplemented(backendMongo, "orphan sweep")
}

func (s *mongoStore) BoundingBoxForZoom(ctx context.Context, zoom, scale int) (Extent, bool, error) {
	return Extent{}, false, notImplemented(backendMongo, "bounding box")
}

func (s *mongoStore) InsertContent(ctx context.Context, content Content) error {
	return notImplemented(backendMongo, "split content insert")
}

func (s *mongoStore) InsertContentBatch(ctx context.Context, batch []Content) error {
	return notImplemented(backendMongo, "split content insert")
}

func (s *mongoStore) InsertCoordinate(ctx context.Context, zoom, column, row, scale int, contentID string, replace bool) error {
	return notImplemented(backendMongo, "split coordinate insert")
}

func (s *mongoStore) InsertCoordinateBatch(ctx context.Context, batch []Coordinate) error {
	return notImplemented(backendMongo, "split coordinate insert")
}

func (s *mongoStore) InsertTiles(ctx context.Context, batch []TileRecord) error {
	if len(batch) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(batch))
	for _, rec := range batch {
		scale := rec.Scale
		if scale < 1 {
			scale = 1
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": tileKey(rec.Zoom, rec.Column, rec.Row, rec.Scale)}).
			SetUpdate(bson.M{"$set": bson.M{"z": rec.Zoom, "s": scale, "t": rec.Timestamp, "d": rec.Data}}).
			SetUpsert(true))
	}
	s.log.Debug("bulk upsert", "tiles", len(models))
	_, err := s.tiles().BulkWrite(ctx, models, mongoopts.BulkWrite().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("insert tiles: %w", err)
	}
	return nil
}

func (s *mongoStore) UpdateTile(ctx context.Context, oldContentID, newContentID string, data []byte) error {
	return notImplemented(backendMongo, "content update")
}

func (s *mongoStore) DeleteTileWithID(ctx context.Context, contentID string) error {
	return notImplemented(backendMongo, "content-addressed delete")
}

func (s *mongoStore) Metadata(ctx context.Context) (map[string]string, error) {
	cur, err := s.db.Collection("metadata").Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	defer cur.Close(ctx)

	meta := make(map[string]string)
	for cur.Next(ctx) {
		var doc struct {
			Name  string `bson:"name"`
			Value string `bson:"value"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
		meta[doc.Name] = doc.Value
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return meta, nil
}

func (s *mongoStore) UpdateMetadata(ctx context.Context, name, value string) error {
	_, err := s.db.Collection("metadata").UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$set": bson.M{"name": name, "value": value}},
		mongoopts.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

func (s *mongoStore) CreateContentIndex(ctx context.Context) error {
	// Lookups go through _id, which is always indexed.
	return nil
}

func (s *mongoStore) DropContentIndex(ctx context.Context) error {
	return nil
}

func (s *mongoStore) Optimize(ctx context.Context, skipAnalyze, skipVacuum bool) error {
	// Storage maintenance is the server's business.
	return nil
}
