package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-webgis/internal/tiles"
)

var fixtures = map[string]string{
	"tracks.geojson": `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"LineString","coordinates":[[12.63,43.72],[12.66,43.70]]},"properties":{"id":0,"meta":{"nested":true}}}]}`,
	"sezioni_geologiche.geojson": `{"type":"FeatureCollection","features":[]}`,
	"mangiare_e_dormire.geojson": `{"type":"FeatureCollection","features":[]}`,
	"info_e_sicurezza.geojson":   `{"type":"FeatureCollection","features":[]}`,
}

type fixtureFetcher struct{}

func (fixtureFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	if data, ok := fixtures[location]; ok {
		return []byte(data), nil
	}
	return nil, fmt.Errorf("no fixture for %s", location)
}

func newServer(t *testing.T, load bool) *Server {
	t.Helper()
	s, err := New(Config{
		Host:    "localhost",
		Port:    "8086",
		DataDir: t.TempDir(),
		Logger:  zerolog.Nop(),
		Fetcher: fixtureFetcher{},
		NoIndex: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	if load {
		require.NoError(t, s.Session().Load(context.Background()))
	}
	return s
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func trackTile(z maptile.Zoom) string {
	t := maptile.At(orb.Point{12.645, 43.71}, z)
	return fmt.Sprintf("/tiles/tracks/%d/%d/%d.mvt", t.Z, t.X, t.Y)
}

func TestRoot(t *testing.T) {
	s := newServer(t, false)

	w := get(s, "/")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "loading", body["map"])
	assert.Contains(t, strings.Join(w.Header().Values("Link"), ","), `</api/v1/legend>; rel="legend"`)

	assert.Equal(t, http.StatusNotFound, get(s, "/nope").Code)
}

func TestTiles(t *testing.T) {
	s := newServer(t, true)

	w := get(s, trackTile(12))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.mapbox-vector-tile", w.Header().Get("Content-Type"))
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.NotEmpty(t, w.Body.Bytes())

	// Far away from the track.
	assert.Equal(t, http.StatusNoContent, get(s, "/tiles/tracks/12/0/0.mvt").Code)

	require.NoError(t, s.Session().SetLayerVisible("tracks", false))
	assert.Equal(t, http.StatusNoContent, get(s, trackTile(12)).Code)
}

func TestTiles_BadRequests(t *testing.T) {
	s := newServer(t, true)

	assert.Equal(t, http.StatusBadRequest, get(s, "/tiles/tracks/x/0/0").Code)
	assert.Equal(t, http.StatusBadRequest, get(s, "/tiles/tracks/2/4/0").Code)
	assert.Equal(t, http.StatusBadRequest, get(s, fmt.Sprintf("/tiles/tracks/%d/0/0", tiles.MaxZoom+1)).Code)
	assert.Equal(t, http.StatusNotFound, get(s, "/tiles/base/1/0/0").Code)
	assert.Equal(t, http.StatusNotFound, get(s, "/tiles/nope/1/0/0").Code)
}

func TestViewerPage(t *testing.T) {
	s := newServer(t, true)

	w := get(s, "/viewer")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	html := w.Body.String()
	assert.Contains(t, html, "<title>Legenda</title>")
	assert.Contains(t, html, `"id":"geology_marche"`)
	assert.Contains(t, html, "/api/v1/viewer/events")
}

func TestViewerPage_MapFollowsServerState(t *testing.T) {
	s := newServer(t, true)
	html := get(s, "/viewer").Body.String()

	// Every layer, raster ones included, takes its visibility from the
	// layer list after a toggle.
	assert.Contains(t, html, "layersById[l.id] = layer")
	assert.Contains(t, html, "fetch('/api/v1/layers')")
	assert.Contains(t, html, "layersById[body.id].setVisible(body.visible)")
	assert.Contains(t, html, "if (e.detail.layer || e.detail.resource === 'layers') await syncVisibility()")
	assert.NotContains(t, html, "setVisible(true)")

	// The Marche sheet is drawn through a raster operation that clears
	// white pixels.
	assert.Contains(t, html, `"id":"geology_marche"`)
	assert.Contains(t, html, `"transparentWhite":true`)
	assert.Contains(t, html, "new ol.source.Raster({sources: [wms], operation: whiteToTransparent})")
	assert.Contains(t, html, "p[3] = 0")
}

func TestMetrics(t *testing.T) {
	s := newServer(t, true)
	get(s, trackTile(12))

	w := get(s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `webgis_tiles_served_total{layer="tracks"} 1`)
	assert.Contains(t, body, "webgis_http_requests_total")

	// Source loads are counted by the loader goroutines.
	assert.Eventually(t, func() bool {
		return strings.Contains(get(s, "/metrics").Body.String(), `webgis_source_loads_total{outcome="ok",source="tracks"} 1`)
	}, time.Second, 10*time.Millisecond)
}

func TestAPIMounted(t *testing.T) {
	s := newServer(t, true)

	w := get(s, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"ready"`)

	assert.Contains(t, s.OpenAPI().Paths, "/api/v1/viewer/legend")
	assert.NotNil(t, s.OpenAPI().Paths["/api/v1/layers/{id}"].Get.Responses["200"].Links["collection"])
}

func TestExportTiles(t *testing.T) {
	s := newServer(t, false)

	path, err := s.ExportTiles(context.Background(), "tracks", 10, 12)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.config.DataDir, "exports", "tracks.pmtiles"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	h, err := tiles.ReadHeader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.EqualValues(t, 10, h.MinZoom)
	assert.EqualValues(t, 12, h.MaxZoom)

	w := get(s, "/exports/tracks.pmtiles")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	_, err = s.ExportTiles(context.Background(), "base", 10, 12)
	assert.Error(t, err)
	_, err = s.ExportTiles(context.Background(), "nope", 10, 12)
	assert.Error(t, err)
}

func TestMVTFeaturesDropNestedProperties(t *testing.T) {
	s := newServer(t, true)
	features, err := s.Session().Features("tracks")
	require.NoError(t, err)

	out := mvtFeatures(features)
	require.Len(t, out, 1)
	assert.Equal(t, "0", out[0].Properties["fid"])
	assert.NotContains(t, out[0].Properties, "meta")
	assert.Contains(t, out[0].Properties, "id")
}

func TestWebAssets(t *testing.T) {
	s := newServer(t, false)
	dir := filepath.Join(s.config.DataDir, "webgis")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "icons"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sections"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "icons", "bar.svg"), []byte("<svg/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sections", "furlo.png"), []byte("png"), 0o644))

	w := get(s, "/webgis/icons/bar.svg")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<svg/>", w.Body.String())
	assert.Equal(t, http.StatusOK, get(s, "/webgis/sections/furlo.png").Code)
	assert.Equal(t, http.StatusNotFound, get(s, "/webgis/icons/nope.svg").Code)
}

func TestWebAssets_CustomDirAndTemplates(t *testing.T) {
	web := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(web, "icons"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(web, "icons", "hotel.svg"), []byte("<svg/>"), 0o644))
	tmpl := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpl, "viewer.html"), []byte(`{{define "viewer"}}<h1>{{.Title}}</h1>{{end}}`), 0o644))

	s, err := New(Config{
		DataDir:      t.TempDir(),
		Logger:       zerolog.Nop(),
		Fetcher:      fixtureFetcher{},
		NoIndex:      true,
		WebDir:       web,
		TemplatesDir: tmpl,
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, http.StatusOK, get(s, "/webgis/icons/hotel.svg").Code)
	assert.Equal(t, "<h1>Legenda</h1>", get(s, "/viewer").Body.String())

	_, err = New(Config{DataDir: t.TempDir(), Logger: zerolog.Nop(), Fetcher: fixtureFetcher{}, NoIndex: true, TemplatesDir: filepath.Join(tmpl, "missing")})
	assert.Error(t, err)
}
