package geo

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTile(t *testing.T) {
	tile, err := ParseTile("3/1/2")
	require.NoError(t, err)
	assert.Equal(t, Tile{Z: 3, X: 1, Y: 2}, tile)

	tile, err = ParseTile("18/137512/89234")
	require.NoError(t, err)
	assert.Equal(t, Tile{Z: 18, X: 137512, Y: 89234}, tile)
}

func TestParseTileErrors(t *testing.T) {
	tests := []string{
		"",
		"3/1",
		"3/1/2/4",
		"a/b/c",
		"3,1,2",
		"-1/0/0",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseTile(input)
			require.Error(t, err)

			var formatErr *FormatError
			require.True(t, errors.As(err, &formatErr))
			assert.Equal(t, input, formatErr.Input)
			assert.Contains(t, err.Error(), "z/x/y")
		})
	}
}

func TestParseBounds(t *testing.T) {
	b, err := ParseBounds("-180,-85,180,85")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{
		Min: orb.Point{-180, -85},
		Max: orb.Point{180, 85},
	}, b)

	b, err = ParseBounds("10.5,-47.25,11.75,-46.125")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{
		Min: orb.Point{10.5, -47.25},
		Max: orb.Point{11.75, -46.125},
	}, b)
}

func TestParseBoundsErrors(t *testing.T) {
	tests := []string{
		"",
		"1,2,3",
		"1,2,3,4,5",
		"a,b,c,d",
		"1.2.3,0,0,0",
		"10/20/30/40",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseBounds(input)
			require.Error(t, err)

			var formatErr *FormatError
			require.True(t, errors.As(err, &formatErr))
			assert.Contains(t, err.Error(), "minx,miny,maxx,maxy")
		})
	}
}
