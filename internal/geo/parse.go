package geo

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/paulmach/orb"
)

// FormatError reports text that does not match an expected coordinate grammar.
type FormatError struct {
	Input   string
	Pattern string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%q does not match expected format %s", e.Input, e.Pattern)
}

var (
	tileRe   = regexp.MustCompile(`^(\d+)/(\d+)/(\d+)$`)
	boundsRe = regexp.MustCompile(`^([-0-9.]+),([-0-9.]+),([-0-9.]+),([-0-9.]+)$`)
)

// ParseTile parses a "z/x/y" tile address.
func ParseTile(s string) (Tile, error) {
	m := tileRe.FindStringSubmatch(s)
	if m == nil {
		return Tile{}, &FormatError{Input: s, Pattern: "z/x/y"}
	}
	var t Tile
	for i, dst := range []*int{&t.Z, &t.X, &t.Y} {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Tile{}, &FormatError{Input: s, Pattern: "z/x/y"}
		}
		*dst = v
	}
	return t, nil
}

// ParseBounds parses a "minx,miny,maxx,maxy" bounding box.
func ParseBounds(s string) (orb.Bound, error) {
	m := boundsRe.FindStringSubmatch(s)
	if m == nil {
		return orb.Bound{}, &FormatError{Input: s, Pattern: "minx,miny,maxx,maxy"}
	}
	var vals [4]float64
	for i, g := range m[1:] {
		v, err := strconv.ParseFloat(g, 64)
		if err != nil {
			return orb.Bound{}, &FormatError{Input: s, Pattern: "minx,miny,maxx,maxy"}
		}
		vals[i] = v
	}
	return orb.Bound{
		Min: orb.Point{vals[0], vals[1]},
		Max: orb.Point{vals[2], vals[3]},
	}, nil
}
