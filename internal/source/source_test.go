package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-webgis/internal/feature"
)

const twoTracks = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"LineString","coordinates":[[12.63,43.72],[12.56,43.67]]},"properties":{"id":0}},
 {"type":"Feature","geometry":{"type":"LineString","coordinates":[[12.56,43.67],[12.69,43.64]]},"properties":{"id":1}}
]}`

type staticFetcher map[string]string

func (s staticFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	data, ok := s[location]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(data), nil
}

// gatedFetcher blocks each location until its gate is closed.
type gatedFetcher struct {
	gates map[string]chan struct{}
	data  string
}

func (g gatedFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	select {
	case <-g.gates[location]:
		return []byte(g.data), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestVector_LoadFiresOnce(t *testing.T) {
	v := NewVector("tracks", "tracks.geojson", staticFetcher{"tracks.geojson": twoTracks})

	select {
	case <-v.Loaded():
		t.Fatal("loaded before Load")
	default:
	}

	require.NoError(t, v.Load(context.Background()))
	<-v.Loaded()
	assert.NoError(t, v.Err())
	assert.Len(t, v.Features(), 2)

	require.NoError(t, v.Load(context.Background()))
	assert.Len(t, v.Features(), 2, "a reload replaces the features")
}

func TestVector_LoadErrorIsReported(t *testing.T) {
	v := NewVector("missing", "missing.geojson", staticFetcher{})

	err := v.Load(context.Background())
	require.Error(t, err)
	<-v.Loaded()
	assert.ErrorIs(t, v.Err(), os.ErrNotExist)
}

func TestVector_FeatureAndExtent(t *testing.T) {
	v := NewVector("tracks", "t", staticFetcher{"t": twoTracks})
	require.NoError(t, v.Load(context.Background()))

	f, ok := v.Feature("1")
	require.True(t, ok)
	id, _ := f.Index()
	assert.Equal(t, 1, id)

	b, ok := v.Extent()
	require.True(t, ok)
	assert.InDelta(t, 12.56, b.Min.X(), 1e-9)
	assert.InDelta(t, 43.64, b.Min.Y(), 1e-9)
	assert.InDelta(t, 12.69, b.Max.X(), 1e-9)
	assert.InDelta(t, 43.72, b.Max.Y(), 1e-9)
}

func TestVector_AppendDoesNotSignal(t *testing.T) {
	v := NewVector("tracks", "t", staticFetcher{"t": twoTracks})
	v.Append(feature.New(geojson.NewFeature(orb.Point{1, 2}), 99))

	assert.Len(t, v.Features(), 1)
	assert.NoError(t, v.Err())
	assert.Equal(t, []string{"tracks"}, Pending(v))
}

func TestVector_FIDsAreDistinct(t *testing.T) {
	const clash = `{"type":"FeatureCollection","features":[
	 {"type":"Feature","geometry":{"type":"Point","coordinates":[12.6,43.7]},"properties":{"nome":"A"}},
	 {"type":"Feature","id":0,"geometry":{"type":"Point","coordinates":[12.7,43.8]},"properties":{"nome":"B"}},
	 {"type":"Feature","id":0,"geometry":{"type":"Point","coordinates":[12.8,43.9]},"properties":{"nome":"C"}}
	]}`
	v := NewVector("pois", "p", staticFetcher{"p": clash})
	require.NoError(t, v.Load(context.Background()))

	names := map[string]string{}
	for _, f := range v.Features() {
		got, ok := v.Feature(f.FID())
		require.True(t, ok)
		names[f.FID()] = got.POI().Name
	}
	assert.Equal(t, map[string]string{"0": "B", "#0": "A", "2": "C"}, names)

	v.Append(feature.New(geojson.NewFeature(orb.Point{1, 2}), 0))
	f, ok := v.Feature("3")
	require.True(t, ok)
	assert.Equal(t, orb.Point{1, 2}, f.Geometry())
	assert.Len(t, v.Features(), 4)
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracks.geojson"), []byte(twoTracks), 0o644))

	data, err := FileFetcher{Dir: dir}.Fetch(context.Background(), "tracks.geojson")
	require.NoError(t, err)
	assert.Equal(t, twoTracks, string(data))

	_, err = FileFetcher{Dir: dir}.Fetch(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(twoTracks))
	}))
	defer srv.Close()

	data, err := HTTPFetcher{Attempts: 5, Delay: time.Millisecond}.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, twoTracks, string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := HTTPFetcher{Attempts: 5, Delay: time.Millisecond}.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAutoFetcher_Dispatch(t *testing.T) {
	local := staticFetcher{"a.geojson": "local"}
	remote := staticFetcher{"https://example.org/a.geojson": "remote"}
	f := AutoFetcher{Local: local, Remote: remote}

	data, err := f.Fetch(context.Background(), "a.geojson")
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))

	data, err = f.Fetch(context.Background(), "https://example.org/a.geojson")
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))
}

func TestJoin_WaitsForEverySource(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}}

	for _, order := range orders {
		gates := map[string]chan struct{}{}
		for _, n := range names {
			gates[n] = make(chan struct{})
		}
		fetcher := gatedFetcher{gates: gates, data: twoTracks}

		var sources []*Vector
		for _, n := range names {
			v := NewVector(n, n, fetcher)
			sources = append(sources, v)
			go func() { _ = v.Load(context.Background()) }()
		}

		done := make(chan error, 1)
		go func() { done <- Join(context.Background(), 5*time.Second, sources...) }()

		for i, idx := range order {
			close(gates[names[idx]])
			<-sources[idx].Loaded()
			if i < len(order)-1 {
				select {
				case err := <-done:
					t.Fatalf("join returned early after %d sources: %v", i+1, err)
				case <-time.After(10 * time.Millisecond):
				}
			}
		}
		require.NoError(t, <-done)
	}
}

func TestJoin_TimeoutNamesStalledSources(t *testing.T) {
	gates := map[string]chan struct{}{"fast": make(chan struct{}), "slow": make(chan struct{})}
	close(gates["fast"])
	fetcher := gatedFetcher{gates: gates, data: twoTracks}

	fast := NewVector("fast", "fast", fetcher)
	slow := NewVector("slow", "slow", fetcher)
	require.NoError(t, fast.Load(context.Background()))

	err := Join(context.Background(), 20*time.Millisecond, fast, slow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLoadTimeout))
	assert.Contains(t, err.Error(), "slow")
	assert.NotContains(t, err.Error(), "fast")
}

func TestJoin_FailedSourceAborts(t *testing.T) {
	ok := NewVector("ok", "ok", staticFetcher{"ok": twoTracks})
	bad := NewVector("bad", "bad", staticFetcher{})
	_ = ok.Load(context.Background())
	_ = bad.Load(context.Background())

	err := Join(context.Background(), time.Second, ok, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source bad")
	assert.False(t, errors.Is(err, ErrLoadTimeout))
}
