package tiles

import (
	"database/sql"
)

// TileIter streams tiles from a store:
//
//	for it.Next() {
//		t := it.Tile()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
//
// Close releases the underlying connection and is idempotent; an iterator
// driven to exhaustion closes itself.
type TileIter struct {
	next  func() (Tile, bool, error)
	close func() error

	cur    Tile
	err    error
	done   bool
	closed bool
}

func newTileIter(next func() (Tile, bool, error), close func() error) *TileIter {
	return &TileIter{next: next, close: close}
}

// Next advances to the next tile. It returns false at the end of the
// stream or on error; Err tells the two apart.
func (it *TileIter) Next() bool {
	if it.done {
		return false
	}
	t, ok, err := it.next()
	if err != nil {
		it.err = err
		it.finish()
		return false
	}
	if !ok {
		it.finish()
		return false
	}
	it.cur = t
	return true
}

// Tile returns the tile Next advanced to.
func (it *TileIter) Tile() Tile {
	return it.cur
}

// Err returns the first error hit while streaming.
func (it *TileIter) Err() error {
	return it.err
}

// Close releases the stream's resources.
func (it *TileIter) Close() error {
	it.done = true
	return it.release()
}

func (it *TileIter) finish() {
	it.done = true
	if err := it.release(); err != nil && it.err == nil {
		it.err = err
	}
}

func (it *TileIter) release() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.close == nil {
		return nil
	}
	return it.close()
}

// CoordIter streams (column, row) pairs, with the same protocol as
// TileIter.
type CoordIter struct {
	next  func() (int, int, bool, error)
	close func() error

	col    int
	row    int
	err    error
	done   bool
	closed bool
}

func newCoordIter(next func() (int, int, bool, error), close func() error) *CoordIter {
	return &CoordIter{next: next, close: close}
}

// Next advances to the next pair.
func (it *CoordIter) Next() bool {
	if it.done {
		return false
	}
	col, row, ok, err := it.next()
	if err != nil {
		it.err = err
		it.finish()
		return false
	}
	if !ok {
		it.finish()
		return false
	}
	it.col, it.row = col, row
	return true
}

// Pair returns the pair Next advanced to.
func (it *CoordIter) Pair() (column, row int) {
	return it.col, it.row
}

// Err returns the first error hit while streaming.
func (it *CoordIter) Err() error {
	return it.err
}

// Close releases the stream's resources.
func (it *CoordIter) Close() error {
	it.done = true
	return it.release()
}

func (it *CoordIter) finish() {
	it.done = true
	if err := it.release(); err != nil && it.err == nil {
		it.err = err
	}
}

func (it *CoordIter) release() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.close == nil {
		return nil
	}
	return it.close()
}

// tileIterFromRows adapts a live result set. cleanup, when non-nil, runs
// after the rows are closed and usually releases a dedicated connection.
func tileIterFromRows(rows *sql.Rows, scan func(*sql.Rows) (Tile, error), cleanup func() error) *TileIter {
	next := func() (Tile, bool, error) {
		if !rows.Next() {
			return Tile{}, false, rows.Err()
		}
		t, err := scan(rows)
		if err != nil {
			return Tile{}, false, err
		}
		return t, true, nil
	}
	return newTileIter(next, func() error {
		err := rows.Close()
		if cleanup != nil {
			if cerr := cleanup(); err == nil {
				err = cerr
			}
		}
		return err
	})
}

// coordIterFromRows is tileIterFromRows for (column, row) results.
func coordIterFromRows(rows *sql.Rows, cleanup func() error) *CoordIter {
	next := func() (int, int, bool, error) {
		if !rows.Next() {
			return 0, 0, false, rows.Err()
		}
		var col, row int
		if err := rows.Scan(&col, &row); err != nil {
			return 0, 0, false, err
		}
		return col, row, true, nil
	}
	return newCoordIter(next, func() error {
		err := rows.Close()
		if cleanup != nil {
			if cerr := cleanup(); err == nil {
				err = cerr
			}
		}
		return err
	})
}

// tileIterFromBatches builds an iterator over a batched fetch function. An
// empty batch ends the stream.
func tileIterFromBatches(fetch func() ([]Tile, error), close func() error) *TileIter {
	var buf []Tile
	next := func() (Tile, bool, error) {
		if len(buf) == 0 {
			batch, err := fetch()
			if err != nil {
				return Tile{}, false, err
			}
			if len(batch) == 0 {
				return Tile{}, false, nil
			}
			buf = batch
		}
		t := buf[0]
		buf = buf[1:]
		return t, true, nil
	}
	return newTileIter(next, close)
}

// coordPair pairs a column with a row for batched coordinate streams.
type coordPair struct {
	col int
	row int
}

func scanTile(rows *sql.Rows) (Tile, error) {
	var t Tile
	if err := rows.Scan(&t.Zoom, &t.Column, &t.Row, &t.Scale, &t.Data); err != nil {
		return Tile{}, err
	}
	return t, nil
}

func scanTileWithID(rows *sql.Rows) (Tile, error) {
	var t Tile
	if err := rows.Scan(&t.Zoom, &t.Column, &t.Row, &t.Scale, &t.Data, &t.ContentID); err != nil {
		return Tile{}, err
	}
	return t, nil
}

// scanUpdate reads change log rows, where expired entries carry NULL
// content and NULL identifier.
func scanUpdate(rows *sql.Rows) (Tile, error) {
	var t Tile
	var contentID sql.NullString
	if err := rows.Scan(&t.Zoom, &t.Column, &t.Row, &t.Scale, &t.Data, &contentID); err != nil {
		return Tile{}, err
	}
	t.ContentID = contentID.String
	return t, nil
}

// coordIterFromBatches is tileIterFromBatches for (column, row) results.
func coordIterFromBatches(fetch func() ([]coordPair, error), close func() error) *CoordIter {
	var buf []coordPair
	next := func() (int, int, bool, error) {
		if len(buf) == 0 {
			batch, err := fetch()
			if err != nil {
				return 0, 0, false, err
			}
			if len(batch) == 0 {
				return 0, 0, false, nil
			}
			buf = batch
		}
		p := buf[0]
		buf = buf[1:]
		return p.col, p.row, true, nil
	}
	return newCoordIter(next, close)
}
