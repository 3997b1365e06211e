// Package config loads the map configuration: view, layers, groups,
// selection targets and legend category tables.
//
// The configuration is YAML. A default reproducing the trail map ships
// embedded in the binary; a file passed with --config is decoded on top of it,
// so keys it leaves out keep their default value.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-webgis/internal/layer"
	"github.com/joeblew999/plat-webgis/internal/legend"
	"github.com/joeblew999/plat-webgis/internal/style"
)

//go:embed default.yaml
var defaultYAML []byte

var validID = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Config is the full map configuration.
type Config struct {
	Title             string        `yaml:"title"`
	IconPath          string        `yaml:"iconPath"`
	SectionsImagePath string        `yaml:"sectionsImagePath"`
	LoadTimeout       time.Duration `yaml:"loadTimeout"`
	View              View          `yaml:"view"`
	Palette           Palette       `yaml:"palette"`
	Layers            []Layer       `yaml:"layers"`
	Groups            []Group       `yaml:"groups"`
	Selection         Selection     `yaml:"selection"`
	Legend            []LegendEntry `yaml:"legend"`
}

// View is the starting map view.
type View struct {
	Center [2]float64 `yaml:"center"`
	Zoom   float64    `yaml:"zoom"`
	// ExtentLayer names the vector layer whose bounds define the view extent.
	ExtentLayer string `yaml:"extentLayer"`
	// ExtentBorder pads the extent on every side, in metres.
	ExtentBorder float64 `yaml:"extentBorder"`
}

// Palette mirrors style.Palette.
type Palette struct {
	Tracks         []string `yaml:"tracks"`
	IconColor      string   `yaml:"iconColor"`
	IconBackground string   `yaml:"iconBackground"`
	SelectedFill   string   `yaml:"selectedFill"`
	SelectedStroke string   `yaml:"selectedStroke"`
}

// Style converts to the style package palette. Unset colours keep the
// style defaults, so a map file may leave the palette out.
func (p Palette) Style() style.Palette {
	out := style.DefaultPalette()
	if len(p.Tracks) > 0 {
		out.Tracks = p.Tracks
	}
	for dst, src := range map[*string]string{
		&out.IconColor:      p.IconColor,
		&out.IconBackground: p.IconBackground,
		&out.SelectedFill:   p.SelectedFill,
		&out.SelectedStroke: p.SelectedStroke,
	} {
		if src != "" {
			*dst = src
		}
	}
	return out
}

// Layer declares one map layer.
type Layer struct {
	ID      string     `yaml:"id"`
	Title   string     `yaml:"title"`
	Kind    layer.Kind `yaml:"kind"`
	Visible bool       `yaml:"visible"`

	// Raster layers.
	URL              string            `yaml:"url,omitempty"`
	Params           map[string]string `yaml:"params,omitempty"`
	TransparentWhite bool              `yaml:"transparentWhite,omitempty"`

	// Vector layers. Source is a file name under the sources directory or an
	// http(s) URL.
	Source string `yaml:"source,omitempty"`
	Style  string `yaml:"style,omitempty"`
}

// Group is a named set of layers.
type Group struct {
	ID     string   `yaml:"id"`
	Title  string   `yaml:"title"`
	Layers []string `yaml:"layers"`
}

// Selection names the targets of the two selection handlers.
type Selection struct {
	// Sections is the layer whose features open the section popup.
	Sections string `yaml:"sections"`
	// POIs is the group whose layers open the POI popup.
	POIs string `yaml:"pois"`
}

// LegendEntry declares one legend entry. Without categories the entry is a
// simple layer toggle.
type LegendEntry struct {
	Layer      string            `yaml:"layer"`
	Classifier string            `yaml:"classifier,omitempty"`
	Categories []legend.Category `yaml:"categories,omitempty"`
}

// Categorized reports whether the entry has category rows.
func (e LegendEntry) Categorized() bool { return len(e.Categories) > 0 }

// Default returns the embedded configuration.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing default config: %w", err)
	}
	return cfg, nil
}

// Load reads path on top of the default configuration and validates the
// result. An empty path returns the default.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Layer finds a layer declaration by id.
func (c *Config) Layer(id string) (Layer, bool) {
	for _, l := range c.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// Group finds a group declaration by id.
func (c *Config) Group(id string) (Group, bool) {
	for _, g := range c.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return Group{}, false
}

// Validate checks ids, references and per-kind requirements. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.LoadTimeout <= 0 {
		add("loadTimeout must be positive")
	}

	seen := map[string]bool{}
	for i, l := range c.Layers {
		switch {
		case !validID.MatchString(l.ID):
			add("layers[%d]: invalid id %q", i, l.ID)
		case seen[l.ID]:
			add("layers[%d]: duplicate id %q", i, l.ID)
		}
		seen[l.ID] = true

		if !l.Kind.Valid() {
			add("layer %q: unknown kind %q", l.ID, l.Kind)
			continue
		}
		if l.Kind == layer.KindVector {
			if l.Source == "" {
				add("layer %q: vector layer needs a source", l.ID)
			}
			if _, ok := style.Lookup(l.Style, style.Palette{}, ""); !ok {
				add("layer %q: unknown style %q", l.ID, l.Style)
			}
		} else if l.URL == "" {
			add("layer %q: %s layer needs a url", l.ID, l.Kind)
		}
	}

	isVector := func(id string) bool {
		l, ok := c.Layer(id)
		return ok && l.Kind == layer.KindVector
	}

	for _, g := range c.Groups {
		if !validID.MatchString(g.ID) {
			add("group %q: invalid id", g.ID)
		}
		for _, id := range g.Layers {
			if !seen[id] {
				add("group %q: unknown layer %q", g.ID, id)
			}
		}
	}

	if c.View.ExtentLayer != "" && !isVector(c.View.ExtentLayer) {
		add("view: extentLayer %q is not a vector layer", c.View.ExtentLayer)
	}
	if c.Selection.Sections != "" && !isVector(c.Selection.Sections) {
		add("selection: sections %q is not a vector layer", c.Selection.Sections)
	}
	if c.Selection.POIs != "" {
		if _, ok := c.Group(c.Selection.POIs); !ok {
			add("selection: unknown group %q", c.Selection.POIs)
		}
	}

	inLegend := map[string]bool{}
	for i, e := range c.Legend {
		if !seen[e.Layer] {
			add("legend[%d]: unknown layer %q", i, e.Layer)
			continue
		}
		if inLegend[e.Layer] {
			add("legend[%d]: layer %q listed twice", i, e.Layer)
		}
		inLegend[e.Layer] = true

		if !e.Categorized() {
			continue
		}
		if !isVector(e.Layer) {
			add("legend[%d]: categories need a vector layer, %q is not", i, e.Layer)
		}
		if _, ok := legend.LookupClassifier(e.Classifier); !ok {
			add("legend[%d]: unknown classifier %q", i, e.Classifier)
		}
	}

	return errors.Join(errs...)
}
