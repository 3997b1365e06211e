// Package tiles renders map features into Mapbox Vector Tiles, on demand for
// the tile endpoint and in bulk for PMTiles exports.
package tiles

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// MaxZoom is the deepest zoom level tiles are rendered for.
const MaxZoom = 18

// Render encodes the features intersecting t as a gzipped MVT tile holding a
// single layer. A tile with nothing in it returns nil data and no error.
func Render(layerName string, features []*geojson.Feature, t maptile.Tile) ([]byte, error) {
	if t.Z > MaxZoom {
		return nil, fmt.Errorf("zoom %d above %d", t.Z, MaxZoom)
	}

	bound := t.Bound()
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		if f.Geometry == nil || !intersects(f.Geometry, bound) {
			continue
		}
		// Clip and ProjectToTile mutate geometry in place.
		clone := geojson.NewFeature(orb.Clone(f.Geometry))
		clone.ID = f.ID
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		fc.Append(clone)
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	layer := mvt.NewLayer(layerName, fc)
	if eps := simplifyEpsilon(t.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(bound)
	layer.ProjectToTile(t)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil, nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil, fmt.Errorf("encoding tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
	}
	return data, nil
}

// Build renders every non-empty tile covering features between minZoom and
// maxZoom into an archive.
func Build(layerName string, features []*geojson.Feature, minZoom, maxZoom maptile.Zoom) (*Archive, error) {
	if minZoom > maxZoom || maxZoom > MaxZoom {
		return nil, fmt.Errorf("invalid zoom range %d-%d", minZoom, maxZoom)
	}

	a := NewArchive(layerName)
	for z := minZoom; z <= maxZoom; z++ {
		covered := map[maptile.Tile]bool{}
		for _, f := range features {
			if f.Geometry == nil {
				continue
			}
			for _, t := range tilesInBound(f.Geometry.Bound(), z) {
				covered[t] = true
			}
		}
		for t := range covered {
			data, err := Render(layerName, features, t)
			if err != nil {
				return nil, err
			}
			if data != nil {
				a.Add(t, data)
			}
		}
	}
	return a, nil
}

// intersects does a bound check and, for areas and points, a finer
// containment check. Lines passing the bound check are kept.
func intersects(g orb.Geometry, b orb.Bound) bool {
	if !g.Bound().Intersects(b) {
		return false
	}
	switch g := g.(type) {
	case orb.Point:
		return b.Contains(g)
	case orb.MultiPoint:
		for _, p := range g {
			if b.Contains(p) {
				return true
			}
		}
		return false
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if b.Contains(p) {
					return true
				}
			}
		}
		return planar.PolygonContains(g, b.Center())
	case orb.MultiPolygon:
		for _, p := range g {
			if intersects(p, b) {
				return true
			}
		}
		return false
	}
	return true
}

func tilesInBound(b orb.Bound, z maptile.Zoom) []maptile.Tile {
	lo := maptile.At(orb.Point{b.Min.Lon(), b.Max.Lat()}, z)
	hi := maptile.At(orb.Point{b.Max.Lon(), b.Min.Lat()}, z)

	var out []maptile.Tile
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			out = append(out, maptile.New(x, y, z))
		}
	}
	return out
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees for a zoom.
func simplifyEpsilon(z maptile.Zoom) float64 {
	switch {
	case z >= 14:
		return 0
	case z >= 10:
		return 0.00001
	case z >= 6:
		return 0.0001
	default:
		return 0.001
	}
}
