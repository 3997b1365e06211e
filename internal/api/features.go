package api

import (
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-webgis/internal/feature"
	"github.com/joeblew999/plat-webgis/internal/layer"
	"github.com/joeblew999/plat-webgis/internal/session"
)

// featureCollection encodes features with their effective style under the
// "style" property and the layer id under "layer".
func featureCollection(s *session.Session, l *layer.Layer, features []*feature.Feature) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f.GeoJSON(map[string]any{
			"layer": l.ID(),
			"style": s.EffectiveStyle(l, f),
		}))
	}
	return fc.MarshalJSON()
}
