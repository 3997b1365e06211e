package legend

import (
	"errors"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/joeblew999/plat-webgis/internal/feature"
	"github.com/joeblew999/plat-webgis/internal/layer"
)

// ErrNoCategory is returned when a category index is out of range.
var ErrNoCategory = errors.New("no such category")

// Kind tags the entry variant.
type Kind string

const (
	KindSimple      Kind = "simple"
	KindCategorized Kind = "categorized"
)

// Entry is a renderable legend entry for one layer.
type Entry interface {
	Kind() Kind
	Layer() *layer.Layer
	// Toggle applies the entry checkbox state.
	Toggle(checked bool)
	// Elements returns the render model of the entry.
	Elements(mobile bool) EntryView
}

// EntryView is the render model of an entry: a checkbox, a label and, for
// categorized entries, a collapsible list of category rows.
type EntryView struct {
	Kind    Kind   `json:"kind"`
	LayerID string `json:"layer"`
	Checked bool   `json:"checked"`
	Label   string `json:"label"`
	Mobile  bool   `json:"-"`
	Rows    []Row  `json:"categories,omitempty"`
}

// Collapsible reports whether the entry has a category sub-list.
func (v EntryView) Collapsible() bool { return v.Kind == KindCategorized }

// Row is one category line.
type Row struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Checked  bool   `json:"checked"`
	Features int    `json:"features"`
	Swatch   Swatch `json:"swatch"`
	Mobile   bool   `json:"-"`
}

// Swatch is the coloured icon in front of a category label.
type Swatch struct {
	MaskImage       string `json:"maskImage,omitempty"`
	BackgroundColor string `json:"backgroundColor"`
	Width           string `json:"width,omitempty"`
}

// CSS renders the swatch inline style.
func (s Swatch) CSS() template.CSS {
	parts := []string{"background-color: " + s.BackgroundColor}
	if s.MaskImage != "" {
		parts = append(parts, "mask-image: "+s.MaskImage, "-webkit-mask-image: "+s.MaskImage)
	}
	if s.Width != "" {
		parts = append(parts, "width: "+s.Width)
	}
	return template.CSS(strings.Join(parts, "; "))
}

// SimpleEntry toggles the visibility flag of its layer.
type SimpleEntry struct {
	layer *layer.Layer
}

// NewSimple wraps a layer.
func NewSimple(l *layer.Layer) *SimpleEntry {
	return &SimpleEntry{layer: l}
}

func (e *SimpleEntry) Kind() Kind          { return KindSimple }
func (e *SimpleEntry) Layer() *layer.Layer { return e.layer }

// Toggle sets the layer visibility flag and nothing else.
func (e *SimpleEntry) Toggle(checked bool) { e.layer.SetVisible(checked) }

func (e *SimpleEntry) Elements(mobile bool) EntryView {
	return EntryView{
		Kind:    KindSimple,
		LayerID: e.layer.ID(),
		Checked: e.layer.Visible(),
		Label:   e.layer.Title(),
		Mobile:  mobile,
	}
}

// Bucket is the set of features a category matched at construction.
type Bucket struct {
	Category Category
	Features []*feature.Feature
}

// CategorizedEntry groups the features of a layer into categories and hides
// or shows each group through feature style overrides.
//
// Buckets are computed once from the layer's feature list at construction
// and never refreshed.
type CategorizedEntry struct {
	layer    *layer.Layer
	iconPath string
	buckets  []Bucket

	mu      sync.Mutex
	checked []bool
}

// NewCategorized builds an entry for l. A feature may match any number of
// categories; buckets are independent.
func NewCategorized(l *layer.Layer, categories []Category, classify Classifier, iconPath string) *CategorizedEntry {
	features := l.Features()
	visible := l.Visible()

	e := &CategorizedEntry{
		layer:    l,
		iconPath: iconPath,
		buckets:  make([]Bucket, len(categories)),
		checked:  make([]bool, len(categories)),
	}
	for i, c := range categories {
		b := Bucket{Category: c, Features: []*feature.Feature{}}
		for _, f := range features {
			if classify(c, f) {
				b.Features = append(b.Features, f)
			}
		}
		e.buckets[i] = b
		e.checked[i] = visible
	}
	return e
}

func (e *CategorizedEntry) Kind() Kind          { return KindCategorized }
func (e *CategorizedEntry) Layer() *layer.Layer { return e.layer }

// Toggle sets the layer visibility flag. Category overrides are untouched.
func (e *CategorizedEntry) Toggle(checked bool) { e.layer.SetVisible(checked) }

// Buckets returns the category buckets in table order.
func (e *CategorizedEntry) Buckets() []Bucket {
	out := make([]Bucket, len(e.buckets))
	copy(out, e.buckets)
	return out
}

// Bucket returns one category bucket.
func (e *CategorizedEntry) Bucket(i int) (Bucket, error) {
	if i < 0 || i >= len(e.buckets) {
		return Bucket{}, fmt.Errorf("%w: %d", ErrNoCategory, i)
	}
	return e.buckets[i], nil
}

// ToggleCategory hides (unchecked) or restores (checked) every feature in
// bucket i. Features outside the bucket are not touched.
func (e *CategorizedEntry) ToggleCategory(i int, checked bool) error {
	b, err := e.Bucket(i)
	if err != nil {
		return err
	}
	override := feature.Hidden
	if checked {
		override = feature.Default
	}

	e.mu.Lock()
	e.checked[i] = checked
	e.mu.Unlock()

	for _, f := range b.Features {
		f.SetStyle(override)
	}
	return nil
}

// CategoryChecked returns the checkbox state of category i.
func (e *CategorizedEntry) CategoryChecked(i int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return i >= 0 && i < len(e.checked) && e.checked[i]
}

func (e *CategorizedEntry) Elements(mobile bool) EntryView {
	v := EntryView{
		Kind:    KindCategorized,
		LayerID: e.layer.ID(),
		Checked: e.layer.Visible(),
		Label:   e.layer.Title(),
		Mobile:  mobile,
		Rows:    make([]Row, len(e.buckets)),
	}
	for i, b := range e.buckets {
		v.Rows[i] = Row{
			Index:    i,
			Title:    b.Category.Title,
			Checked:  e.CategoryChecked(i),
			Features: len(b.Features),
			Swatch:   e.swatch(b.Category),
			Mobile:   mobile,
		}
	}
	return v
}

// swatch follows the legend icon rules: a mask image when the category has
// an icon, the category colour (black by default) when it has an icon or a
// colour, and a zero-width red box when it has neither.
func (e *CategorizedEntry) swatch(c Category) Swatch {
	if c.Img == "" && c.Color == "" {
		return Swatch{BackgroundColor: "red", Width: "0px"}
	}
	s := Swatch{BackgroundColor: "#000"}
	if c.Img != "" {
		s.MaskImage = "url(" + e.iconPath + c.Img + ")"
	}
	if c.Color != "" {
		s.BackgroundColor = c.Color
	}
	return s
}
