// Package style describes how features are drawn by the browser map engine.
//
// Styles are plain descriptors serialised to JSON; the client maps them onto
// its own style objects. An empty [Set] is the hidden style.
package style

import (
	"github.com/joeblew999/plat-webgis/internal/feature"
)

// Stroke is a line style.
type Stroke struct {
	Color    string    `json:"color" doc:"Stroke color (CSS)"`
	Width    float64   `json:"width" doc:"Line width in pixels"`
	LineDash []float64 `json:"lineDash,omitempty" doc:"Dash pattern"`
}

// Fill is an area fill.
type Fill struct {
	Color string `json:"color" doc:"Fill color (CSS)"`
}

// Shape is a regular polygon marker.
type Shape struct {
	Fill          Fill    `json:"fill"`
	Stroke        Stroke  `json:"stroke"`
	Points        int     `json:"points"`
	Radius        float64 `json:"radius"`
	Rotation      float64 `json:"rotation"`
	DeclutterMode string  `json:"declutterMode,omitempty"`
}

// Icon is an image marker.
type Icon struct {
	Src   string  `json:"src"`
	Color string  `json:"color"`
	Scale float64 `json:"scale"`
}

// Style is one drawing pass.
type Style struct {
	Stroke *Stroke `json:"stroke,omitempty"`
	Shape  *Shape  `json:"shape,omitempty"`
	Icon   *Icon   `json:"icon,omitempty"`
}

// Set is the ordered list of passes used to draw a feature.
type Set []Style

// Func computes the style set of a feature.
type Func func(f *feature.Feature) Set

// Constant returns a Func that ignores the feature.
func Constant(s Set) Func {
	return func(*feature.Feature) Set { return s }
}

// Palette holds the fixed colours used by the trail styles.
type Palette struct {
	Tracks         []string
	IconColor      string
	IconBackground string
	SelectedFill   string
	SelectedStroke string
}

// DefaultPalette returns the colours the viewer ships with.
func DefaultPalette() Palette {
	return Palette{
		Tracks:         []string{"#448aff", "#1565c0", "#009688", "#8bc34a", "#ffc107", "#ff9800", "#f44336", "#ad1457"},
		IconColor:      "#000000",
		IconBackground: "#ffffff",
		SelectedFill:   "#fffa85",
		SelectedStroke: "rgba(227, 31, 31, 0.63)",
	}
}

// Track draws a track stage as a black casing under a coloured line picked
// by the stage id. Stages without a matching colour get an empty colour and
// fall back to the client default.
func Track(p Palette) Func {
	return func(f *feature.Feature) Set {
		color := ""
		if t := f.Track(); t.HasID && t.ID >= 0 && t.ID < len(p.Tracks) {
			color = p.Tracks[t.ID]
		}
		return Set{
			{Stroke: &Stroke{Color: "black", Width: 5.25}},
			{Stroke: &Stroke{Color: color, Width: 4}},
		}
	}
}

// SectionStroke is the dashed stroke of geological section traces.
func SectionStroke() Stroke {
	return Stroke{Color: "rgba(10,10,10,0.75)", Width: 5.25, LineDash: []float64{4, 10}}
}

// Section draws a geological section trace.
func Section() Func {
	s := SectionStroke()
	return Constant(Set{{Stroke: &s}})
}

// SelectedSection is the section style recoloured for the selected trace.
func SelectedSection(p Palette) Func {
	s := SectionStroke()
	s.Color = p.SelectedStroke
	return Constant(Set{{Stroke: &s}})
}

// POI draws a point of interest as a 16-point badge with its icon on top.
func POI(p Palette, iconPath string) Func {
	return poi(p.IconBackground, iconPath)
}

// SelectedPOI is the POI badge with the highlighted background.
func SelectedPOI(p Palette, iconPath string) Func {
	return poi(p.SelectedFill, iconPath)
}

func poi(background, iconPath string) Func {
	return func(f *feature.Feature) Set {
		attrs := f.POI()
		color := "#000"
		if attrs.Color != "" {
			color = "#" + attrs.Color
		}
		return Set{
			{Shape: &Shape{
				Fill:          Fill{Color: background},
				Stroke:        Stroke{Color: color, Width: 2},
				Points:        16,
				Radius:        13,
				Rotation:      3.14 / 4,
				DeclutterMode: "obstacle",
			}},
			{Icon: &Icon{Src: iconPath + attrs.Icon, Color: color, Scale: 0.03}},
		}
	}
}

// Lookup returns the named layer style. Known names are "track", "section"
// and "poi".
func Lookup(name string, p Palette, iconPath string) (Func, bool) {
	switch name {
	case "track":
		return Track(p), true
	case "section":
		return Section(), true
	case "poi":
		return POI(p, iconPath), true
	}
	return nil, false
}
