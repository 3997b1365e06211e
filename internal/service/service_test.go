package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-webgis/internal/tiles"
)

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2<<20))
}

func TestSourceService_ListsGeoJSON(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sources")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "tracks.geojson"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte(`x`), 0o644))

	files, err := NewSourceService(dir, map[string]string{"tracks.geojson": "tracks"}).List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "tracks", files[0].Layer)
	assert.Equal(t, "GeoJSON", files[0].FileType)
}

func TestSourceService_MissingDir(t *testing.T) {
	files, err := NewSourceService(t.TempDir(), nil).List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestTileService_WriteAndList(t *testing.T) {
	f := geojson.NewFeature(orb.Point{12.63, 43.72})
	a, err := tiles.Build("pois", []*geojson.Feature{f}, 5, 7)
	require.NoError(t, err)

	svc := NewTileService(t.TempDir())
	_, err = svc.Write("pois", a)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(svc.TilesDir(), "junk.pmtiles"), []byte("nope"), 0o644))

	files, err := svc.List()
	require.NoError(t, err)
	require.Len(t, files, 1, "unreadable archives are skipped")
	assert.Equal(t, "pois.pmtiles", files[0].Name)
	assert.Equal(t, 5, files[0].MinZoom)
	assert.Equal(t, 7, files[0].MaxZoom)
	assert.Equal(t, uint64(3), files[0].Tiles)
}

func TestEventBus_FanOut(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe()
	b := bus.Subscribe()
	assert.Equal(t, 2, bus.Subscribers())

	bus.Publish(Event{Resource: "legend", Action: "category", ID: "sections", Detail: "0"})
	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, "sections", ev.ID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	bus.Unsubscribe(a)
	bus.Unsubscribe(b)
	assert.Zero(t, bus.Subscribers())
}
