package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-webgis/internal/legend"
	"github.com/joeblew999/plat-webgis/internal/selection"
	"github.com/joeblew999/plat-webgis/internal/session"
)

func legendView(mobile bool) legend.View {
	return legend.View{
		Title:  "Legenda",
		Mobile: mobile,
		Entries: []legend.EntryView{
			{Kind: legend.KindSimple, LayerID: "geology_italy", Label: "Carta Geologica"},
			{Kind: legend.KindCategorized, LayerID: "food_and_sleep", Checked: true, Label: "Mangiare e dormire", Rows: []legend.Row{
				{Index: 0, Title: "Ristoranti", Checked: true, Swatch: legend.Swatch{BackgroundColor: "#2388d2", MaskImage: "url(/webgis/icons/ristorante.svg)"}},
				{Index: 1, Title: "Bar", Checked: false, Swatch: legend.Swatch{BackgroundColor: "#2388d2"}},
			}},
		},
	}
}

func TestRenderLegend(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.Render("legend", legendView(false))
	require.NoError(t, err)

	assert.Contains(t, html, `id="legend-box"`)
	assert.Contains(t, html, "Legenda")
	assert.Contains(t, html, `id="legend-geology_italy"`)
	assert.Contains(t, html, "/api/v1/viewer/layers/geology_italy/toggle?visible=")
	assert.Contains(t, html, "/api/v1/viewer/legend/food_and_sleep/categories/1/toggle?checked=")
	assert.Contains(t, html, "background-color: #2388d2; mask-image: url(/webgis/icons/ristorante.svg)")
	assert.Contains(t, html, "_open1")
	assert.NotContains(t, html, "_open0", "simple entries do not collapse")

	// Only the checked boxes carry the attribute.
	assert.Equal(t, 2, strings.Count(html, " checked\n"))
	assert.NotContains(t, html, "data-on:click=\"$_legendOpen")
}

func TestRenderLegend_MobileHeaderToggles(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.Render("legend", legendView(true))
	require.NoError(t, err)
	assert.Contains(t, html, "_legendOpen: false")
	assert.Contains(t, html, "$_legendOpen = !$_legendOpen")
}

func TestRenderPopup(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.Render("popup", session.Popup{
		Handler: "pois",
		Open:    true,
		POI: &selection.POIPopup{
			Name:        "Bar Centrale",
			Type:        "Bar",
			SiteHidden:  true,
			PhoneHidden: true,
			AddressText: "Via Roma 1",
			AddressHref: "https://maps.google.com/?ll=43.72,12.64",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, html, `id="popup-pois"`)
	assert.Contains(t, html, "Bar Centrale")
	assert.Contains(t, html, `class="poi-site" href="" target="_blank" hidden`)
	assert.Contains(t, html, `class="poi-address" href="https://maps.google.com/?ll=43.72,12.64" target="_blank">Via Roma 1`)

	html, err = r.Render("popup", session.Popup{Handler: "sections"})
	require.NoError(t, err)
	assert.Equal(t, `<div id="popup-sections" class="popup"></div>`, strings.TrimSpace(html))
}

func TestRenderEmptyState(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.Render("empty-state", map[string]string{"Title": "Caricamento", "Message": "La mappa si sta caricando"})
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>Caricamento</strong>")
}

func TestRender_UnknownTemplate(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	_, err = r.Render("nope", nil)
	assert.Error(t, err)
}

func TestNewFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte(`{{define "greet"}}ciao {{.}}{{end}}`), 0o644))

	r, err := NewFromDir(dir)
	require.NoError(t, err)
	html, err := r.Render("greet", "mondo")
	require.NoError(t, err)
	assert.Equal(t, "ciao mondo", html)

	_, err = NewFromDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
