package server

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-webgis/internal/feature"
	"github.com/joeblew999/plat-webgis/internal/layer"
	"github.com/joeblew999/plat-webgis/internal/tiles"
)

// mvtFeatures converts drawn features to tile features. Only the fid and the
// scalar attributes travel; nested values do not fit the MVT value types.
func mvtFeatures(features []*feature.Feature) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(features))
	for _, f := range features {
		g := f.GeoJSON(map[string]any{"fid": f.FID()})
		for k, v := range g.Properties {
			switch v.(type) {
			case string, float64, bool, int:
			default:
				delete(g.Properties, k)
			}
		}
		out = append(out, g)
	}
	return out
}

// ExportTiles loads the map, then writes the drawn features of a vector
// layer to exports/<layer>.pmtiles and returns the archive path.
func (s *Server) ExportTiles(ctx context.Context, layerID string, minZoom, maxZoom int) (string, error) {
	l, ok := s.session.Layer(layerID)
	if !ok {
		return "", fmt.Errorf("unknown layer %q", layerID)
	}
	if l.Kind() != layer.KindVector {
		return "", fmt.Errorf("layer %s is not a vector layer", layerID)
	}
	if err := s.session.Load(ctx); err != nil {
		return "", err
	}

	features, err := s.session.Features(layerID)
	if err != nil {
		return "", err
	}
	archive, err := tiles.Build(layerID, mvtFeatures(features), maptile.Zoom(minZoom), maptile.Zoom(maxZoom))
	if err != nil {
		return "", fmt.Errorf("building tiles for %s: %w", layerID, err)
	}
	path, err := s.services.Tile.Write(layerID, archive)
	if err != nil {
		return "", err
	}
	s.log.Info().Str("layer", layerID).Int("tiles", archive.Len()).Str("path", path).Msg("tiles exported")
	return path, nil
}
