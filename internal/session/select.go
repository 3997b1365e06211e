package session

import (
	"fmt"

	"github.com/joeblew999/plat-webgis/internal/db"
	"github.com/joeblew999/plat-webgis/internal/feature"
	"github.com/joeblew999/plat-webgis/internal/selection"
	"github.com/joeblew999/plat-webgis/internal/service"
)

// Popup is the state of a selection handler's popup. Exactly one of Section
// and POI is set while Open.
type Popup struct {
	Handler string                  `json:"handler"`
	Open    bool                    `json:"open"`
	Layer   string                  `json:"layer,omitempty"`
	Section *selection.SectionPopup `json:"section,omitempty"`
	POI     *selection.POIPopup     `json:"poi,omitempty"`
}

func (s *Session) selector(handler string) (*selection.Selector, error) {
	sel, ok := s.selectors[handler]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSelector, handler)
	}
	return sel, nil
}

// Select handles a click on a feature for one handler. An empty fid, a
// feature from a layer the handler does not accept, or a feature that is not
// currently drawn is an empty selection: the popup closes.
func (s *Session) Select(handler, layerID, fid string) (Popup, error) {
	sel, err := s.selector(handler)
	if err != nil {
		return Popup{}, err
	}
	if fid == "" {
		return s.clear(sel), nil
	}

	l, ok := s.byID[layerID]
	if !ok {
		return Popup{}, fmt.Errorf("%w %q", ErrUnknownLayer, layerID)
	}
	if l.Source() == nil {
		return s.clear(sel), nil
	}
	f, ok := l.Source().Feature(fid)
	if !ok {
		return Popup{}, fmt.Errorf("%w %q in %s", ErrUnknownFeature, fid, layerID)
	}
	if !l.Visible() || f.Style() == feature.Hidden {
		return s.clear(sel), nil
	}

	s.mu.Lock()
	accepted := sel.Select(l, f)
	s.mu.Unlock()
	if !accepted {
		return s.clear(sel), nil
	}

	s.metrics.IncSelection(handler, "selected")
	s.log.Debug().Str("handler", handler).Str("layer", layerID).Str("fid", fid).Msg("feature selected")
	s.bus.Publish(service.Event{Resource: "selection", Action: "selected", ID: handler, Detail: fid})
	return s.Popup(handler)
}

// ClearSelection closes a handler's popup.
func (s *Session) ClearSelection(handler string) (Popup, error) {
	sel, err := s.selector(handler)
	if err != nil {
		return Popup{}, err
	}
	return s.clear(sel), nil
}

func (s *Session) clear(sel *selection.Selector) Popup {
	s.mu.Lock()
	sel.Clear()
	s.mu.Unlock()

	s.metrics.IncSelection(sel.Name(), "cleared")
	s.bus.Publish(service.Event{Resource: "selection", Action: "cleared", ID: sel.Name()})
	return Popup{Handler: sel.Name()}
}

// Popup returns the current popup of a handler.
func (s *Session) Popup(handler string) (Popup, error) {
	sel, err := s.selector(handler)
	if err != nil {
		return Popup{}, err
	}
	cur, ok := sel.Current()
	if !ok {
		return Popup{Handler: handler}, nil
	}

	p := Popup{Handler: handler, Open: true, Layer: cur.Layer.ID()}
	switch handler {
	case SelectSections:
		sp := selection.NewSectionPopup(cur.Feature, s.cfg.SectionsImagePath)
		p.Section = &sp
	case SelectPOIs:
		pp := selection.NewPOIPopup(cur.Feature)
		p.POI = &pp
	}
	return p, nil
}

// indexRows flattens every vector feature with the categories it fell into.
func (s *Session) indexRows() []db.Row {
	categories := map[*feature.Feature][]string{}
	for _, l := range s.layers {
		ce, err := s.CategorizedEntry(l.ID())
		if err != nil {
			continue
		}
		for _, b := range ce.Buckets() {
			for _, f := range b.Features {
				categories[f] = append(categories[f], b.Category.ID.String())
			}
		}
	}

	var rows []db.Row
	for _, l := range s.layers {
		for _, f := range l.Features() {
			row := db.Row{
				Layer:      l.ID(),
				FID:        f.FID(),
				Categories: categories[f],
				Hidden:     f.Style() == feature.Hidden,
				Properties: f.Properties(),
			}
			if g := f.Geometry(); g != nil {
				b := g.Bound()
				row.Bound = [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
			}
			rows = append(rows, row)
		}
	}
	return rows
}
