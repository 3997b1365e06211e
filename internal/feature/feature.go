// Package feature wraps GeoJSON features with typed attribute access and a
// per-feature style override.
//
// Attribute keys are a closed set per feature kind. Callers read attributes
// through [Feature.Track], [Feature.Section] and [Feature.POI] instead of
// untyped string lookups, and every accessor reports whether a key was present.
package feature

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Attribute keys carried by the GeoJSON data files.
const (
	KeyID        = "id"
	KeyName      = "nome"
	KeyImagePath = "path_img"
	KeyType      = "tipo"
	KeyAddress   = "indirizzo"
	KeySite      = "sito_web"
	KeyPhone     = "telefono"
	KeyLat       = "lat"
	KeyLong      = "long"
	KeyIcon      = "icona"
	KeyColor     = "colore"
)

// StyleOverride is the feature-level style state.
type StyleOverride uint32

const (
	// Default means no override: the layer style applies.
	Default StyleOverride = iota
	// Hidden is the empty style: the feature is not drawn.
	Hidden
)

func (s StyleOverride) String() string {
	if s == Hidden {
		return "hidden"
	}
	return "default"
}

// Feature is one geographic entity loaded from a source.
type Feature struct {
	fid   string
	raw   *geojson.Feature
	style atomic.Uint32
}

// New wraps a GeoJSON feature. index is the position in its collection and
// is used as the FID when the feature carries no id of its own.
func New(raw *geojson.Feature, index int) *Feature {
	fid := strconv.Itoa(index)
	if raw.ID != nil {
		fid = fmt.Sprint(raw.ID)
	}
	return newFeature(raw, fid)
}

func newFeature(raw *geojson.Feature, fid string) *Feature {
	if raw.Properties == nil {
		raw.Properties = geojson.Properties{}
	}
	return &Feature{fid: fid, raw: raw}
}

// NewCollection wraps every feature of a collection with distinct FIDs.
// The first feature carrying a GeoJSON id keeps it. Features without an id,
// and later duplicates, fall back to their index, or to "#<index>" when the
// index is itself taken by an id.
func NewCollection(raws []*geojson.Feature) []*Feature {
	used := make(map[string]bool, len(raws))
	out := make([]*Feature, len(raws))
	for i, raw := range raws {
		if raw.ID == nil {
			continue
		}
		if id := fmt.Sprint(raw.ID); !used[id] {
			used[id] = true
			out[i] = newFeature(raw, id)
		}
	}
	for i, raw := range raws {
		if out[i] == nil {
			out[i] = newFeature(raw, ClaimFID(used, i))
		}
	}
	return out
}

// ClaimFID returns the first FID derived from index that is not in used,
// and marks it used.
func ClaimFID(used map[string]bool, index int) string {
	fid := strconv.Itoa(index)
	for n := 0; used[fid]; n++ {
		fid = "#" + strconv.Itoa(index)
		if n > 0 {
			fid += "." + strconv.Itoa(n)
		}
	}
	used[fid] = true
	return fid
}

// WithFID returns a copy of f under another FID, keeping its style.
func (f *Feature) WithFID(fid string) *Feature {
	c := &Feature{fid: fid, raw: f.raw}
	c.style.Store(f.style.Load())
	return c
}

// FID returns the stable feature identifier within its source.
func (f *Feature) FID() string { return f.fid }

// Geometry returns the feature geometry.
func (f *Feature) Geometry() orb.Geometry { return f.raw.Geometry }

// Properties returns a copy of the raw attribute map.
func (f *Feature) Properties() map[string]any {
	out := make(map[string]any, len(f.raw.Properties))
	for k, v := range f.raw.Properties {
		out[k] = v
	}
	return out
}

// Style returns the current style override.
func (f *Feature) Style() StyleOverride { return StyleOverride(f.style.Load()) }

// SetStyle replaces the style override.
func (f *Feature) SetStyle(s StyleOverride) { f.style.Store(uint32(s)) }

// TrackAttrs are the attributes of a hiking track stage.
type TrackAttrs struct {
	ID    int
	HasID bool
}

// SectionAttrs are the attributes of a geological section trace.
type SectionAttrs struct {
	ID        int
	HasID     bool
	Name      string
	ImagePath string
}

// POIAttrs are the attributes of a point of interest.
type POIAttrs struct {
	Name    string
	Type    string
	Address string
	Site    string
	Phone   string
	Lat     string
	Long    string
	Icon    string
	Color   string
}

// Track reads the track attributes.
func (f *Feature) Track() TrackAttrs {
	id, ok := f.Index()
	return TrackAttrs{ID: id, HasID: ok}
}

// Section reads the section attributes.
func (f *Feature) Section() SectionAttrs {
	id, ok := f.Index()
	return SectionAttrs{
		ID:        id,
		HasID:     ok,
		Name:      f.text(KeyName),
		ImagePath: f.text(KeyImagePath),
	}
}

// POI reads the point of interest attributes.
func (f *Feature) POI() POIAttrs {
	return POIAttrs{
		Name:    f.text(KeyName),
		Type:    f.text(KeyType),
		Address: f.text(KeyAddress),
		Site:    f.text(KeySite),
		Phone:   f.text(KeyPhone),
		Lat:     f.text(KeyLat),
		Long:    f.text(KeyLong),
		Icon:    f.text(KeyIcon),
		Color:   f.text(KeyColor),
	}
}

// Index returns the numeric "id" attribute. Only JSON numbers with an
// integral value count; the string "0" is not the index 0.
func (f *Feature) Index() (int, bool) {
	v, ok := f.raw.Properties[KeyID]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// TypeCode returns the "tipo" attribute used to classify points of interest.
func (f *Feature) TypeCode() (string, bool) {
	v, ok := f.raw.Properties[KeyType].(string)
	return v, ok
}

// text renders an attribute as display text. Absent and null values are
// the empty string.
func (f *Feature) text(key string) string {
	switch v := f.raw.Properties[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// GeoJSON returns a copy of the underlying feature with extra properties
// merged in. The geometry is shared, not cloned.
func (f *Feature) GeoJSON(extra map[string]any) *geojson.Feature {
	out := geojson.NewFeature(f.raw.Geometry)
	out.ID = f.fid
	for k, v := range f.raw.Properties {
		out.Properties[k] = v
	}
	for k, v := range extra {
		out.Properties[k] = v
	}
	return out
}
