// Package selection tracks the clicked feature of each selection handler and
// builds the popup contents shown for it.
package selection

import (
	"strings"
	"sync"

	"github.com/joeblew999/plat-webgis/internal/feature"
	"github.com/joeblew999/plat-webgis/internal/layer"
)

// Filter decides which layers a selector accepts features from.
type Filter func(l *layer.Layer) bool

// OnlyLayer accepts features of one layer.
func OnlyLayer(target *layer.Layer) Filter {
	return func(l *layer.Layer) bool { return l == target }
}

// InGroup accepts features of any layer in g.
func InGroup(g *layer.Group) Filter {
	return g.Contains
}

// Selected is the current selection of a selector.
type Selected struct {
	Layer   *layer.Layer
	Feature *feature.Feature
}

// Selector holds at most one selected feature.
type Selector struct {
	name   string
	accept Filter

	mu      sync.Mutex
	current *Selected
}

// NewSelector creates a selector named after its handler.
func NewSelector(name string, accept Filter) *Selector {
	return &Selector{name: name, accept: accept}
}

// Name returns the handler name.
func (s *Selector) Name() string { return s.name }

// Accepts reports whether features of l can be selected.
func (s *Selector) Accepts(l *layer.Layer) bool {
	return l != nil && s.accept(l)
}

// Select makes f the current selection. Features of layers the filter
// rejects are ignored and false is returned.
func (s *Selector) Select(l *layer.Layer, f *feature.Feature) bool {
	if f == nil || !s.Accepts(l) {
		return false
	}
	s.mu.Lock()
	s.current = &Selected{Layer: l, Feature: f}
	s.mu.Unlock()
	return true
}

// Clear empties the selection.
func (s *Selector) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Current returns the selected feature, if any.
func (s *Selector) Current() (Selected, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Selected{}, false
	}
	return *s.current, true
}

// IsSelected reports whether f is the current selection.
func (s *Selector) IsSelected(f *feature.Feature) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.Feature == f
}

// SectionPopup is the content of the geological section popup.
type SectionPopup struct {
	FID      string `json:"fid"`
	Title    string `json:"title" doc:"Section name"`
	ImageURL string `json:"imageUrl" doc:"Section drawing URL"`
}

// NewSectionPopup builds the popup of a section. imagePath holds a {PATH}
// placeholder replaced by the feature's image path.
func NewSectionPopup(f *feature.Feature, imagePath string) SectionPopup {
	a := f.Section()
	return SectionPopup{
		FID:      f.FID(),
		Title:    a.Name,
		ImageURL: strings.Replace(imagePath, "{PATH}", a.ImagePath, 1),
	}
}

// POIPopup is the content of the point of interest popup. Each optional
// field carries its own hidden flag, set when the attribute is empty or
// absent.
type POIPopup struct {
	FID           string `json:"fid"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	TypeHidden    bool   `json:"typeHidden"`
	SiteHref      string `json:"siteHref"`
	SiteHidden    bool   `json:"siteHidden"`
	PhoneText     string `json:"phoneText"`
	PhoneHref     string `json:"phoneHref"`
	PhoneHidden   bool   `json:"phoneHidden"`
	AddressText   string `json:"addressText"`
	AddressHref   string `json:"addressHref"`
	AddressHidden bool   `json:"addressHidden"`
}

// NewPOIPopup builds the popup of a point of interest.
func NewPOIPopup(f *feature.Feature) POIPopup {
	a := f.POI()
	return POIPopup{
		FID:           f.FID(),
		Name:          a.Name,
		Type:          a.Type,
		TypeHidden:    a.Type == "",
		SiteHref:      a.Site,
		SiteHidden:    a.Site == "",
		PhoneText:     a.Phone,
		PhoneHref:     "tel:" + a.Phone,
		PhoneHidden:   a.Phone == "",
		AddressText:   a.Address,
		AddressHref:   "https://maps.google.com/?ll=" + a.Lat + "," + a.Long,
		AddressHidden: a.Address == "",
	}
}
