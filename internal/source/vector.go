// Package source loads GeoJSON feature collections and signals when they are
// ready.
//
// Each [Vector] fires a one-shot completion signal after its first load.
// [Join] waits on a set of sources with a timeout, so a source that never
// finishes surfaces as an error instead of a silent stall.
package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-webgis/internal/feature"
)

// Vector is a GeoJSON source loaded in one request ("load everything").
type Vector struct {
	name     string
	location string
	fetcher  Fetcher

	mu       sync.RWMutex
	features []*feature.Feature

	once   sync.Once
	loaded chan struct{}
	err    error
}

// NewVector creates a source that reads location through fetcher.
func NewVector(name, location string, fetcher Fetcher) *Vector {
	return &Vector{
		name:     name,
		location: location,
		fetcher:  fetcher,
		loaded:   make(chan struct{}),
	}
}

// Name returns the source name used in logs and errors.
func (v *Vector) Name() string { return v.name }

// Location returns the path or URL the source reads from.
func (v *Vector) Location() string { return v.location }

// Load fetches and parses the collection, replacing the current features.
// The first call, successful or not, fires the completion signal.
func (v *Vector) Load(ctx context.Context) error {
	features, err := v.fetch(ctx)
	if err == nil {
		v.mu.Lock()
		v.features = features
		v.mu.Unlock()
	}
	v.once.Do(func() {
		v.err = err
		close(v.loaded)
	})
	return err
}

func (v *Vector) fetch(ctx context.Context) ([]*feature.Feature, error) {
	data, err := v.fetcher.Fetch(ctx, v.location)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", v.location, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", v.location, err)
	}
	return feature.NewCollection(fc.Features), nil
}

// Loaded is closed once the first load completes.
func (v *Vector) Loaded() <-chan struct{} { return v.loaded }

// Err returns the error of the first load. Valid after Loaded is closed.
func (v *Vector) Err() error {
	select {
	case <-v.loaded:
		return v.err
	default:
		return nil
	}
}

// Features returns a snapshot of the current feature list.
func (v *Vector) Features() []*feature.Feature {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*feature.Feature, len(v.features))
	copy(out, v.features)
	return out
}

// Feature finds a feature by FID.
func (v *Vector) Feature(fid string) (*feature.Feature, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, f := range v.features {
		if f.FID() == fid {
			return f, true
		}
	}
	return nil, false
}

// Append adds features to the current list without firing any signal. A
// feature whose FID is already listed is added under the FID of its new
// position.
func (v *Vector) Append(features ...*feature.Feature) {
	v.mu.Lock()
	defer v.mu.Unlock()

	used := make(map[string]bool, len(v.features)+len(features))
	for _, f := range v.features {
		used[f.FID()] = true
	}
	for _, f := range features {
		if used[f.FID()] {
			f = f.WithFID(feature.ClaimFID(used, len(v.features)))
		} else {
			used[f.FID()] = true
		}
		v.features = append(v.features, f)
	}
}

// Extent returns the bounding box of all features.
func (v *Vector) Extent() (orb.Bound, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var b orb.Bound
	found := false
	for _, f := range v.features {
		g := f.Geometry()
		if g == nil {
			continue
		}
		if !found {
			b = g.Bound()
			found = true
			continue
		}
		b = b.Union(g.Bound())
	}
	return b, found
}
