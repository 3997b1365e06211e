// Package layer defines the independently toggleable map layers.
package layer

import (
	"sync/atomic"

	"github.com/joeblew999/plat-webgis/internal/feature"
	"github.com/joeblew999/plat-webgis/internal/source"
	"github.com/joeblew999/plat-webgis/internal/style"
)

// Kind is the rendering kind of a layer.
type Kind string

const (
	KindTile     Kind = "tile"
	KindImageWMS Kind = "wms"
	KindTileWMS  Kind = "tilewms"
	KindVector   Kind = "vector"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTile, KindImageWMS, KindTileWMS, KindVector:
		return true
	}
	return false
}

// Raster describes a tile or WMS endpoint the browser fetches directly.
type Raster struct {
	URL    string            `json:"url" doc:"Tile URL template or WMS endpoint"`
	Params map[string]string `json:"params,omitempty" doc:"WMS request parameters"`
	// TransparentWhite asks the client to turn pure white pixels transparent.
	TransparentWhite bool `json:"transparentWhite,omitempty" doc:"Make white pixels transparent"`
}

// Layer is one map layer. The visibility flag is safe for concurrent use.
type Layer struct {
	id      string
	title   string
	kind    Kind
	visible atomic.Bool
	raster  Raster
	source  *source.Vector
	style   style.Func
}

// NewRaster creates a tile or WMS layer.
func NewRaster(id, title string, kind Kind, r Raster, visible bool) *Layer {
	l := &Layer{id: id, title: title, kind: kind, raster: r}
	l.visible.Store(visible)
	return l
}

// NewVector creates a layer backed by a GeoJSON source.
func NewVector(id, title string, src *source.Vector, fn style.Func, visible bool) *Layer {
	l := &Layer{id: id, title: title, kind: KindVector, source: src, style: fn}
	l.visible.Store(visible)
	return l
}

func (l *Layer) ID() string              { return l.id }
func (l *Layer) Title() string           { return l.title }
func (l *Layer) Kind() Kind              { return l.kind }
func (l *Layer) Raster() Raster          { return l.raster }
func (l *Layer) Source() *source.Vector  { return l.source }
func (l *Layer) Visible() bool           { return l.visible.Load() }
func (l *Layer) SetVisible(visible bool) { l.visible.Store(visible) }

// Features returns the current features of a vector layer, or nil.
func (l *Layer) Features() []*feature.Feature {
	if l.source == nil {
		return nil
	}
	return l.source.Features()
}

// StyleFor resolves the style set of f: empty when the feature is hidden,
// the layer style otherwise.
func (l *Layer) StyleFor(f *feature.Feature) style.Set {
	if f.Style() == feature.Hidden || l.style == nil {
		return style.Set{}
	}
	return l.style(f)
}

// Group is a named set of layers toggled and selected together.
type Group struct {
	ID     string
	Title  string
	Layers []*Layer
}

// Contains reports whether l belongs to the group.
func (g *Group) Contains(l *Layer) bool {
	for _, m := range g.Layers {
		if m == l {
			return true
		}
	}
	return false
}
