// Package session composes the map: it builds layers from the configuration,
// attaches the selection handlers, waits for the vector sources and then
// fills the legend.
//
// A Session is the single owner of that state and is handed explicitly to
// every HTTP handler. Mutations are serialized by one mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-webgis/internal/config"
	"github.com/joeblew999/plat-webgis/internal/db"
	"github.com/joeblew999/plat-webgis/internal/feature"
	"github.com/joeblew999/plat-webgis/internal/layer"
	"github.com/joeblew999/plat-webgis/internal/legend"
	"github.com/joeblew999/plat-webgis/internal/metrics"
	"github.com/joeblew999/plat-webgis/internal/selection"
	"github.com/joeblew999/plat-webgis/internal/service"
	"github.com/joeblew999/plat-webgis/internal/source"
	"github.com/joeblew999/plat-webgis/internal/style"
)

var (
	// ErrNotReady is returned by legend operations before the sources joined.
	ErrNotReady = errors.New("map is not ready")
	// ErrUnknownLayer is returned for a layer id the map does not have.
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrUnknownFeature is returned for a feature id the layer does not have.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrNotCategorized is returned for category operations on a simple entry.
	ErrNotCategorized = errors.New("legend entry has no categories")
	// ErrUnknownSelector is returned for a selection handler name other than
	// "sections" or "pois".
	ErrUnknownSelector = errors.New("unknown selection handler")
)

// State is the load state of the map.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Selection handler names.
const (
	SelectSections = "sections"
	SelectPOIs     = "pois"
)

// Options are the collaborators of a session. Only Config and Fetcher are
// required.
type Options struct {
	Config  *config.Config
	Fetcher source.Fetcher
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Bus     *service.EventBus
	// Index, when set, receives every vector feature once the legend is
	// populated.
	Index *db.Index
}

// Session is the map state.
type Session struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	bus     *service.EventBus
	index   *db.Index

	layers  []*layer.Layer
	byID    map[string]*layer.Layer
	groups  []*layer.Group
	sources []*source.Vector
	legend  *legend.Legend

	selectors       map[string]*selection.Selector
	selectedSection style.Func
	selectedPOI     style.Func

	mu        sync.Mutex
	state     State
	err       error
	extent    orb.Bound
	hasExtent bool
}

// New builds the view, the layers and the selection handlers. No source is
// fetched until Load.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("session: nil config")
	}
	if opts.Bus == nil {
		opts.Bus = service.NewEventBus()
	}

	palette := cfg.Palette.Style()
	s := &Session{
		cfg:             cfg,
		log:             opts.Logger.With().Str("component", "session").Logger(),
		metrics:         opts.Metrics,
		bus:             opts.Bus,
		index:           opts.Index,
		byID:            map[string]*layer.Layer{},
		legend:          legend.New(cfg.Title),
		selectors:       map[string]*selection.Selector{},
		selectedSection: style.SelectedSection(palette),
		selectedPOI:     style.SelectedPOI(palette, cfg.IconPath),
		state:           StateLoading,
	}

	for _, lc := range cfg.Layers {
		var l *layer.Layer
		if lc.Kind == layer.KindVector {
			fn, ok := style.Lookup(lc.Style, palette, cfg.IconPath)
			if !ok {
				return nil, fmt.Errorf("layer %s: unknown style %q", lc.ID, lc.Style)
			}
			src := source.NewVector(lc.ID, lc.Source, opts.Fetcher)
			s.sources = append(s.sources, src)
			l = layer.NewVector(lc.ID, lc.Title, src, fn, lc.Visible)
		} else {
			l = layer.NewRaster(lc.ID, lc.Title, lc.Kind, layer.Raster{
				URL:              lc.URL,
				Params:           lc.Params,
				TransparentWhite: lc.TransparentWhite,
			}, lc.Visible)
		}
		s.layers = append(s.layers, l)
		s.byID[l.ID()] = l
	}

	for _, gc := range cfg.Groups {
		g := &layer.Group{ID: gc.ID, Title: gc.Title}
		for _, id := range gc.Layers {
			l, ok := s.byID[id]
			if !ok {
				return nil, fmt.Errorf("group %s: %w %q", gc.ID, ErrUnknownLayer, id)
			}
			g.Layers = append(g.Layers, l)
		}
		s.groups = append(s.groups, g)
	}

	if id := cfg.Selection.Sections; id != "" {
		l, ok := s.byID[id]
		if !ok {
			return nil, fmt.Errorf("sections selection: %w %q", ErrUnknownLayer, id)
		}
		s.selectors[SelectSections] = selection.NewSelector(SelectSections, selection.OnlyLayer(l))
	}
	if id := cfg.Selection.POIs; id != "" {
		g, ok := s.Group(id)
		if !ok {
			return nil, fmt.Errorf("poi selection: unknown group %q", id)
		}
		s.selectors[SelectPOIs] = selection.NewSelector(SelectPOIs, selection.InGroup(g))
	}

	return s, nil
}

// Config returns the configuration the session was built from.
func (s *Session) Config() *config.Config { return s.cfg }

// Bus returns the event bus state changes are published on.
func (s *Session) Bus() *service.EventBus { return s.bus }

// Legend returns the legend. It stays empty until the session is ready.
func (s *Session) Legend() *legend.Legend { return s.legend }

// Layers returns every layer in configuration order.
func (s *Session) Layers() []*layer.Layer {
	out := make([]*layer.Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// Layer finds a layer by id.
func (s *Session) Layer(id string) (*layer.Layer, bool) {
	l, ok := s.byID[id]
	return l, ok
}

// Groups returns the layer groups.
func (s *Session) Groups() []*layer.Group { return s.groups }

// Group finds a group by id.
func (s *Session) Group(id string) (*layer.Group, bool) {
	for _, g := range s.groups {
		if g.ID == id {
			return g, true
		}
	}
	return nil, false
}

// GroupOf returns the group a layer belongs to, if any.
func (s *Session) GroupOf(l *layer.Layer) (*layer.Group, bool) {
	for _, g := range s.groups {
		if g.Contains(l) {
			return g, true
		}
	}
	return nil, false
}

// Sources returns the vector sources in configuration order.
func (s *Session) Sources() []*source.Vector { return s.sources }

// Status returns the load state and, when failed, the reason.
func (s *Session) Status() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.err
}

// Load fetches every vector source concurrently and populates the legend
// once all of them completed their first load.
func (s *Session) Load(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, src := range s.sources {
		go func() {
			start := time.Now()
			err := src.Load(ctx)
			s.metrics.ObserveSourceLoad(src.Name(), time.Since(start), err)
			ev := s.log.Debug()
			if err != nil {
				ev = s.log.Warn().Err(err)
			}
			ev.Str("source", src.Name()).Int("features", len(src.Features())).
				Dur("took", time.Since(start)).Msg("source loaded")
		}()
	}
	return s.Populate(ctx)
}

// Populate waits for the first load of every source, bounded by the
// configured timeout, then adds the legend entries in configuration order.
// On failure the legend stays empty and the session moves to the failed
// state. Calling Populate again after success is a no-op.
func (s *Session) Populate(ctx context.Context) error {
	if st, err := s.Status(); st != StateLoading {
		return err
	}

	if err := source.Join(ctx, s.cfg.LoadTimeout, s.sources...); err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.state != StateLoading {
		s.mu.Unlock()
		return s.err
	}
	for _, ec := range s.cfg.Legend {
		l := s.byID[ec.Layer]
		if !ec.Categorized() {
			s.legend.AddEntry(legend.NewSimple(l))
			continue
		}
		classify, _ := legend.LookupClassifier(ec.Classifier)
		s.legend.AddEntry(legend.NewCategorized(l, ec.Categories, classify, s.cfg.IconPath))
	}
	s.extent, s.hasExtent = s.computeExtent()
	s.state = StateReady
	s.mu.Unlock()

	s.log.Info().Int("entries", len(s.legend.Entries())).Msg("legend populated")
	s.bus.Publish(service.Event{Resource: "session", Action: "ready"})

	if s.index != nil {
		if err := s.index.Replace(ctx, s.indexRows()); err != nil {
			s.log.Warn().Err(err).Msg("indexing features")
		}
	}
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()

	s.log.Error().Err(err).Strs("pending", source.Pending(s.sources...)).Msg("map load failed")
	s.bus.Publish(service.Event{Resource: "session", Action: "failed", Detail: err.Error()})
}

// computeExtent returns the bounds of the extent layer in web mercator,
// padded by the configured border.
func (s *Session) computeExtent() (orb.Bound, bool) {
	l, ok := s.byID[s.cfg.View.ExtentLayer]
	if !ok || l.Source() == nil {
		return orb.Bound{}, false
	}
	b, ok := l.Source().Extent()
	if !ok {
		return orb.Bound{}, false
	}
	lo := project.WGS84.ToMercator(b.Min)
	hi := project.WGS84.ToMercator(b.Max)
	pad := s.cfg.View.ExtentBorder
	return orb.Bound{
		Min: orb.Point{lo[0] - pad, lo[1] - pad},
		Max: orb.Point{hi[0] + pad, hi[1] + pad},
	}, true
}

// View is the starting view of the map.
type View struct {
	Center [2]float64
	Zoom   float64
	// Extent is [minX, minY, maxX, maxY] in web mercator, nil before ready.
	Extent []float64
}

// View returns the starting view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{Center: s.cfg.View.Center, Zoom: s.cfg.View.Zoom}
	if s.hasExtent {
		v.Extent = []float64{s.extent.Min[0], s.extent.Min[1], s.extent.Max[0], s.extent.Max[1]}
	}
	return v
}

// SetLayerVisible sets a layer visibility flag, through its legend entry
// when it has one.
func (s *Session) SetLayerVisible(id string, visible bool) error {
	l, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownLayer, id)
	}

	s.mu.Lock()
	if e, ok := s.legend.Entry(id); ok {
		e.Toggle(visible)
	} else {
		l.SetVisible(visible)
	}
	s.mu.Unlock()

	s.metrics.IncToggle(id, "layer", visible)
	s.log.Debug().Str("layer", id).Bool("visible", visible).Msg("layer toggled")
	s.bus.Publish(service.Event{Resource: "layers", Action: "visibility", ID: id, Detail: strconv.FormatBool(visible)})
	return nil
}

// CategorizedEntry returns the categorized legend entry of a layer.
func (s *Session) CategorizedEntry(layerID string) (*legend.CategorizedEntry, error) {
	if st, _ := s.Status(); st != StateReady {
		return nil, ErrNotReady
	}
	if _, ok := s.byID[layerID]; !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownLayer, layerID)
	}
	e, ok := s.legend.Entry(layerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCategorized, layerID)
	}
	ce, ok := e.(*legend.CategorizedEntry)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCategorized, layerID)
	}
	return ce, nil
}

// ToggleCategory hides or restores the features of one category. A
// selected feature that gets hidden is deselected.
func (s *Session) ToggleCategory(ctx context.Context, layerID string, index int, checked bool) error {
	ce, err := s.CategorizedEntry(layerID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if err := ce.ToggleCategory(index, checked); err != nil {
		s.mu.Unlock()
		return err
	}
	b, _ := ce.Bucket(index)
	if !checked {
		for _, sel := range s.selectors {
			if cur, ok := sel.Current(); ok && containsFeature(b.Features, cur.Feature) {
				sel.Clear()
			}
		}
	}
	s.mu.Unlock()

	s.metrics.IncToggle(layerID, "category:"+strconv.Itoa(index), checked)
	s.log.Debug().Str("layer", layerID).Int("category", index).Bool("checked", checked).
		Int("features", len(b.Features)).Msg("category toggled")
	s.bus.Publish(service.Event{Resource: "legend", Action: "category", ID: layerID, Detail: strconv.Itoa(index)})

	if s.index != nil {
		fids := make([]string, len(b.Features))
		for i, f := range b.Features {
			fids[i] = f.FID()
		}
		if err := s.index.SetHidden(ctx, layerID, fids, !checked); err != nil {
			s.log.Warn().Err(err).Str("layer", layerID).Msg("updating feature index")
		}
	}
	return nil
}

// Features returns the features of a layer that are currently drawn: none
// when the layer flag is off, and never those with the hidden override.
func (s *Session) Features(layerID string) ([]*feature.Feature, error) {
	l, ok := s.byID[layerID]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownLayer, layerID)
	}
	if !l.Visible() {
		return []*feature.Feature{}, nil
	}
	all := l.Features()
	out := make([]*feature.Feature, 0, len(all))
	for _, f := range all {
		if f.Style() != feature.Hidden {
			out = append(out, f)
		}
	}
	return out, nil
}

// EffectiveStyle resolves the style a feature is drawn with: the selected
// style while a handler has it selected, the layer style otherwise, and the
// empty style when hidden.
func (s *Session) EffectiveStyle(l *layer.Layer, f *feature.Feature) style.Set {
	if f.Style() == feature.Hidden {
		return style.Set{}
	}
	if sel, ok := s.selectors[SelectSections]; ok && sel.IsSelected(f) {
		return s.selectedSection(f)
	}
	if sel, ok := s.selectors[SelectPOIs]; ok && sel.IsSelected(f) {
		return s.selectedPOI(f)
	}
	return l.StyleFor(f)
}

func containsFeature(list []*feature.Feature, f *feature.Feature) bool {
	for _, x := range list {
		if x == f {
			return true
		}
	}
	return false
}
