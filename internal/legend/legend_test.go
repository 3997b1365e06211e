package legend

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-webgis/internal/feature"
	"github.com/joeblew999/plat-webgis/internal/layer"
	"github.com/joeblew999/plat-webgis/internal/source"
	"github.com/joeblew999/plat-webgis/internal/style"
)

type memFetcher string

func (m memFetcher) Fetch(context.Context, string) ([]byte, error) { return []byte(m), nil }

func rawFeature(props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(orb.LineString{{12.6, 43.7}, {12.7, 43.6}})
	f.Properties = props
	return f
}

func vectorLayer(t *testing.T, id string, visible bool, props ...geojson.Properties) *layer.Layer {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for _, p := range props {
		fc.Append(rawFeature(p))
	}
	data, err := fc.MarshalJSON()
	require.NoError(t, err)

	src := source.NewVector(id, id+".geojson", memFetcher(data))
	require.NoError(t, src.Load(context.Background()))
	return layer.NewVector(id, "Layer "+id, src, style.Section(), visible)
}

func sectionCategories() []Category {
	return []Category{
		{Title: "Urbino", ID: IndexID(0)},
		{Title: "Fermignano-Furlo", ID: IndexID(1)},
	}
}

func TestCategorized_BucketSizes(t *testing.T) {
	l := vectorLayer(t, "sections", true,
		geojson.Properties{"id": 0},
		geojson.Properties{"id": 0},
		geojson.Properties{"id": 1},
	)

	e := NewCategorized(l, sectionCategories(), ByIndex, "")
	buckets := e.Buckets()
	require.Len(t, buckets, 2)
	assert.Len(t, buckets[0].Features, 2)
	assert.Len(t, buckets[1].Features, 1)
}

func TestCategorized_BucketsMatchClassifier(t *testing.T) {
	l := vectorLayer(t, "pois", true,
		geojson.Properties{"tipo": "Bar"},
		geojson.Properties{"tipo": "Hotel"},
		geojson.Properties{"tipo": "Bar"},
		geojson.Properties{"nome": "no type"},
	)
	cats := []Category{
		{Title: "Bar", ID: CodeID("Bar")},
		{Title: "Hotel", ID: CodeID("Hotel")},
		{Title: "Rifugi", ID: CodeID("Rifugio")},
	}

	e := NewCategorized(l, cats, ByTypeCode, "/icons/")
	for i, c := range cats {
		b, err := e.Bucket(i)
		require.NoError(t, err)

		var want []*feature.Feature
		for _, f := range l.Features() {
			if ByTypeCode(c, f) {
				want = append(want, f)
			}
		}
		assert.ElementsMatch(t, want, b.Features, c.Title)
	}

	empty, _ := e.Bucket(2)
	assert.Empty(t, empty.Features, "unmatched category renders as an empty row")
}

func TestCategorized_OverlappingBuckets(t *testing.T) {
	l := vectorLayer(t, "tracks", true, geojson.Properties{"id": 1})
	cats := []Category{{Title: "a", ID: IndexID(1)}, {Title: "b", ID: IndexID(1)}}

	e := NewCategorized(l, cats, ByIndex, "")
	b0, _ := e.Bucket(0)
	b1, _ := e.Bucket(1)
	assert.Len(t, b0.Features, 1)
	assert.Len(t, b1.Features, 1)
	assert.Same(t, b0.Features[0], b1.Features[0])
}

func TestCategorized_BucketsAreNotRefreshed(t *testing.T) {
	l := vectorLayer(t, "sections", true, geojson.Properties{"id": 0})
	e := NewCategorized(l, sectionCategories(), ByIndex, "")

	l.Source().Append(feature.New(rawFeature(geojson.Properties{"id": float64(0)}), 10))
	require.Len(t, l.Features(), 2)

	b, _ := e.Bucket(0)
	assert.Len(t, b.Features, 1)
}

func TestCategorized_ToggleCategoryTouchesOnlyItsBucket(t *testing.T) {
	l := vectorLayer(t, "sections", true,
		geojson.Properties{"id": 0},
		geojson.Properties{"id": 1},
		geojson.Properties{"id": 0},
	)
	e := NewCategorized(l, sectionCategories(), ByIndex, "")
	b0, _ := e.Bucket(0)

	require.NoError(t, e.ToggleCategory(0, false))
	for _, f := range l.Features() {
		want := feature.Default
		if containsFeature(b0.Features, f) {
			want = feature.Hidden
		}
		assert.Equal(t, want, f.Style(), f.FID())
	}
	assert.False(t, e.CategoryChecked(0))
	assert.True(t, l.Visible(), "category toggles never touch the layer flag")

	require.NoError(t, e.ToggleCategory(0, true))
	for _, f := range l.Features() {
		assert.Equal(t, feature.Default, f.Style())
	}
	assert.True(t, e.CategoryChecked(0))
}

func TestCategorized_ToggleOutOfRange(t *testing.T) {
	l := vectorLayer(t, "sections", true)
	e := NewCategorized(l, sectionCategories(), ByIndex, "")
	assert.ErrorIs(t, e.ToggleCategory(5, false), ErrNoCategory)
	assert.ErrorIs(t, e.ToggleCategory(-1, false), ErrNoCategory)
}

func TestCategorized_RowsStartFromLayerVisibility(t *testing.T) {
	l := vectorLayer(t, "sections", false, geojson.Properties{"id": 0})
	e := NewCategorized(l, sectionCategories(), ByIndex, "")

	v := e.Elements(false)
	require.Len(t, v.Rows, 2)
	assert.False(t, v.Checked)
	assert.False(t, v.Rows[0].Checked)
	assert.Equal(t, 1, v.Rows[0].Features)
}

func TestSimpleEntry_ToggleSetsOnlyLayerFlag(t *testing.T) {
	l := vectorLayer(t, "sections", true, geojson.Properties{"id": 0})
	e := NewSimple(l)

	e.Toggle(false)
	assert.False(t, l.Visible())
	for _, f := range l.Features() {
		assert.Equal(t, feature.Default, f.Style())
	}

	e.Toggle(true)
	assert.True(t, l.Visible())
	assert.Equal(t, KindSimple, e.Elements(false).Kind)
}

func TestSwatchRules(t *testing.T) {
	l := vectorLayer(t, "pois", true)
	cats := []Category{
		{Title: "icon+color", ID: CodeID("a"), Img: "bar.svg", Color: "#2388d2"},
		{Title: "icon only", ID: CodeID("b"), Img: "bar.svg"},
		{Title: "color only", ID: IndexID(0), Color: "#448aff"},
		{Title: "bare", ID: IndexID(1)},
	}
	rows := NewCategorized(l, cats, ByTypeCode, "/webgis/icons/").Elements(false).Rows

	assert.Equal(t, Swatch{MaskImage: "url(/webgis/icons/bar.svg)", BackgroundColor: "#2388d2"}, rows[0].Swatch)
	assert.Equal(t, Swatch{MaskImage: "url(/webgis/icons/bar.svg)", BackgroundColor: "#000"}, rows[1].Swatch)
	assert.Equal(t, Swatch{BackgroundColor: "#448aff"}, rows[2].Swatch)
	assert.Equal(t, Swatch{BackgroundColor: "red", Width: "0px"}, rows[3].Swatch)
	assert.Contains(t, string(rows[0].Swatch.CSS()), "mask-image: url(/webgis/icons/bar.svg)")
}

func TestLegend_AddEntryKeepsOrder(t *testing.T) {
	a := vectorLayer(t, "a", true)
	b := vectorLayer(t, "b", true)

	lg := New("Legenda")
	lg.AddEntry(NewSimple(a))
	lg.AddEntry(NewCategorized(b, sectionCategories(), ByIndex, ""))

	v := lg.View(true)
	assert.Equal(t, "Legenda", v.Title)
	require.Len(t, v.Entries, 2)
	assert.Equal(t, "a", v.Entries[0].LayerID)
	assert.Equal(t, KindCategorized, v.Entries[1].Kind)
	assert.True(t, v.Entries[1].Rows[0].Mobile)

	e, ok := lg.Entry("b")
	require.True(t, ok)
	assert.Equal(t, KindCategorized, e.Kind())
	_, ok = lg.Entry("missing")
	assert.False(t, ok)
}

func TestIsMobile(t *testing.T) {
	mobile := []string{
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)",
		"Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)",
		"Mozilla/5.0 (Windows Phone 10.0; Android 6.0.1)",
		"BlackBerry9700/5.0.0.862",
	}
	for _, ua := range mobile {
		assert.True(t, IsMobile(ua), ua)
	}
	assert.False(t, IsMobile("Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"))
}

func TestCategoryID_YAML(t *testing.T) {
	var cats []Category
	require.NoError(t, yaml.Unmarshal([]byte(`
- {title: Urbino, id: 0}
- {title: B&B, id: B&B, img: bnb.svg}
- {title: Quoted, id: "3"}
`), &cats))

	i, ok := cats[0].ID.Index()
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	code, ok := cats[1].ID.Code()
	assert.True(t, ok)
	assert.Equal(t, "B&B", code)

	_, ok = cats[2].ID.Index()
	assert.False(t, ok, "quoted ids stay strings")
}

func TestClassifiers_KindMismatchNeverMatches(t *testing.T) {
	f := feature.New(rawFeature(geojson.Properties{"id": float64(0), "tipo": "0"}), 0)

	assert.True(t, ByIndex(Category{ID: IndexID(0)}, f))
	assert.False(t, ByIndex(Category{ID: CodeID("0")}, f))
	assert.True(t, ByTypeCode(Category{ID: CodeID("0")}, f))
	assert.False(t, ByTypeCode(Category{ID: IndexID(0)}, f))

	_, ok := LookupClassifier("index")
	assert.True(t, ok)
	_, ok = LookupClassifier("regex")
	assert.False(t, ok)
}

func containsFeature(list []*feature.Feature, f *feature.Feature) bool {
	for _, x := range list {
		if x == f {
			return true
		}
	}
	return false
}
