package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// LatLng is a WGS84 coordinate pair in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox is a lat/lng-aligned rectangle. North must exceed South and
// East must exceed West (antimeridian-crossing boxes are not supported).
type BoundingBox struct {
	North float64 `json:"north" yaml:"north"`
	South float64 `json:"south" yaml:"south"`
	East  float64 `json:"east" yaml:"east"`
	West  float64 `json:"west" yaml:"west"`
}

// slivers below this size are floating-point artifacts, not real tiles
const tileEpsilon = 1e-9

// Valid reports whether the box has positive extent and lies within the
// lat/lng domain.
func (b BoundingBox) Valid() bool {
	if b.North <= b.South || b.East <= b.West {
		return false
	}
	return ValidCoordinates(b.South, b.West) || ValidCoordinates(b.North, b.East)
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() LatLng {
	return LatLng{
		Lat: (b.North + b.South) / 2,
		Lng: (b.East + b.West) / 2,
	}
}

// Width returns the longitudinal extent in degrees.
func (b BoundingBox) Width() float64 { return b.East - b.West }

// Height returns the latitudinal extent in degrees.
func (b BoundingBox) Height() float64 { return b.North - b.South }

// SplitTiles partitions the box into a grid of sub-boxes no larger than step
// degrees in either dimension. Tiles cover the box exactly: edge tiles are
// clamped to the original boundary, so the union of all tiles equals the box
// with no gaps and no overlap.
func (b BoundingBox) SplitTiles(step float64) []BoundingBox {
	if step <= 0 {
		return []BoundingBox{b}
	}

	var tiles []BoundingBox
	for lat := b.South; b.North-lat > tileEpsilon; lat += step {
		for lng := b.West; b.East-lng > tileEpsilon; lng += step {
			tiles = append(tiles, BoundingBox{
				South: lat,
				West:  lng,
				North: math.Min(lat+step, b.North),
				East:  math.Min(lng+step, b.East),
			})
		}
	}
	return tiles
}

// IsZero reports whether the coordinate is the (0,0) origin.
func (c LatLng) IsZero() bool { return c.Lat == 0 && c.Lng == 0 }

// ValidCoordinates reports whether lat/lng form a usable position: inside the
// WGS84 domain and not the (0,0) origin, which upstream sources use as a
// stand-in for "missing".
func ValidCoordinates(lat, lng float64) bool {
	if !s2.LatLngFromDegrees(lat, lng).IsValid() {
		return false
	}
	if lat == 0 && lng == 0 {
		return false
	}
	return true
}

// OverpassBBox renders the box in Overpass QL order: south,west,north,east.
func (b BoundingBox) OverpassBBox() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.South, b.West, b.North, b.East)
}
