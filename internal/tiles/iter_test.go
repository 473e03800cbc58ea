package tiles

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileIterExhaustionCloses(t *testing.T) {
	tiles := []Tile{{Zoom: 1}, {Zoom: 2}}
	i := 0
	closed := 0
	it := newTileIter(func() (Tile, bool, error) {
		if i == len(tiles) {
			return Tile{}, false, nil
		}
		t := tiles[i]
		i++
		return t, true, nil
	}, func() error {
		closed++
		return nil
	})

	var got []int
	for it.Next() {
		got = append(got, it.Tile().Zoom)
	}
	assert.Equal(t, []int{1, 2}, got)
	require.NoError(t, it.Err())

	// Exhaustion released the stream; Close stays safe to call.
	assert.Equal(t, 1, closed)
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.Equal(t, 1, closed)
	assert.False(t, it.Next())
}

func TestTileIterError(t *testing.T) {
	boom := errors.New("boom")
	it := newTileIter(func() (Tile, bool, error) {
		return Tile{}, false, boom
	}, nil)

	assert.False(t, it.Next())
	assert.Equal(t, boom, it.Err())
	assert.False(t, it.Next())
	require.NoError(t, it.Close())
}

func TestTileIterCloseError(t *testing.T) {
	closeErr := errors.New("close failed")
	it := newTileIter(func() (Tile, bool, error) {
		return Tile{}, false, nil
	}, func() error {
		return closeErr
	})

	// A failing release surfaces through Err, not through a lost return.
	assert.False(t, it.Next())
	assert.Equal(t, closeErr, it.Err())
}

func TestTileIterFromBatches(t *testing.T) {
	batches := [][]Tile{
		{{Zoom: 1}, {Zoom: 2}},
		{{Zoom: 3}},
		{},
	}
	i := 0
	it := tileIterFromBatches(func() ([]Tile, error) {
		b := batches[i]
		i++
		return b, nil
	}, nil)

	var got []int
	for it.Next() {
		got = append(got, it.Tile().Zoom)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
}

func TestCoordIterProtocol(t *testing.T) {
	pairs := []coordPair{{col: 4, row: 7}, {col: 5, row: 7}}
	i := 0
	it := newCoordIter(func() (int, int, bool, error) {
		if i == len(pairs) {
			return 0, 0, false, nil
		}
		p := pairs[i]
		i++
		return p.col, p.row, true, nil
	}, nil)

	require.True(t, it.Next())
	col, row := it.Pair()
	assert.Equal(t, 4, col)
	assert.Equal(t, 7, row)
	require.True(t, it.Next())
	assert.False(t, it.Next())
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
}

func TestCoordIterFromBatches(t *testing.T) {
	batches := [][]coordPair{
		{{col: 1, row: 2}},
		{},
	}
	i := 0
	it := coordIterFromBatches(func() ([]coordPair, error) {
		b := batches[i]
		i++
		return b, nil
	}, nil)

	require.True(t, it.Next())
	col, row := it.Pair()
	assert.Equal(t, 1, col)
	assert.Equal(t, 2, row)
	assert.False(t, it.Next())
	require.NoError(t, it.Err())
}
