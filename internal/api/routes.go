// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-webgis/internal/db"
	"github.com/joeblew999/plat-webgis/internal/humastar"
	"github.com/joeblew999/plat-webgis/internal/layer"
	"github.com/joeblew999/plat-webgis/internal/legend"
	"github.com/joeblew999/plat-webgis/internal/service"
	"github.com/joeblew999/plat-webgis/internal/session"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Services holds the dependencies of the API handlers. Only Session is
// required.
type Services struct {
	Session *session.Session
	Tile    *service.TileService
	Source  *service.SourceService
	Index   *db.Index
}

// RegisterRoutes registers every REST route.
func RegisterRoutes(api huma.API, svc *Services, dataDir string) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(dataDir, svc.Index != nil).RegisterRoutes(api)
	NewDBHandler(svc.Index).RegisterRoutes(api)
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"tracks"`
}

// LayerBody describes one map layer.
type LayerBody struct {
	ID               string            `json:"id" doc:"Layer ID" example:"tracks"`
	Title            string            `json:"title" doc:"Display title"`
	Kind             layer.Kind        `json:"kind" enum:"tile,wms,tilewms,vector" doc:"Layer kind"`
	Visible          bool              `json:"visible" doc:"Layer visibility flag"`
	Group            string            `json:"group,omitempty" doc:"Group the layer belongs to"`
	URL              string            `json:"url,omitempty" doc:"Raster service URL"`
	Params           map[string]string `json:"params,omitempty" doc:"WMS parameters"`
	TransparentWhite bool              `json:"transparentWhite,omitempty" doc:"Draw white raster pixels transparent"`
	Source           string            `json:"source,omitempty" doc:"Vector source location"`
	Features         int               `json:"features" doc:"Loaded feature count"`
}

var layerActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/api/v1/layers/%s/visibility", Method: "PUT", Title: "Set visibility"},
	{Rel: "features", Pattern: "/api/v1/layers/%s/features", Method: "GET", Title: "Drawn features"},
	{Rel: "tiles", Pattern: "/tiles/%s/{z}/{x}/{y}.mvt", Method: "GET", Title: "Vector tiles"},
}

// Actions links the visibility toggle, and for vector layers the features.
func (b LayerBody) Actions() []humastar.Action {
	if b.Kind != layer.KindVector {
		return humastar.ActionsFor(b.ID, layerActions[:1])
	}
	return humastar.ActionsFor(b.ID, layerActions)
}

type LayerOutput struct {
	Body LayerBody
}

type LayersOutput struct {
	Body []LayerBody
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

type StatusBody struct {
	State   session.State `json:"state" enum:"loading,ready,failed" doc:"Map load state"`
	Error   string        `json:"error,omitempty" doc:"Why the map failed to load"`
	Pending []string      `json:"pending,omitempty" doc:"Sources that have not loaded yet"`
	Entries int           `json:"entries" doc:"Legend entries"`
	Viewers int           `json:"viewers" doc:"Open viewer event streams"`
}

type ViewBody struct {
	Title  string      `json:"title" doc:"Legend title"`
	Center [2]float64  `json:"center" doc:"Center in web mercator"`
	Zoom   float64     `json:"zoom" doc:"Initial zoom"`
	Extent []float64   `json:"extent,omitempty" doc:"Fit extent [minX, minY, maxX, maxY] in web mercator, once loaded"`
	Layers []LayerBody `json:"layers" doc:"Layers, bottom to top"`
}

// APIHandler holds the REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health and state routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/status", h.GetStatus, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/view", h.GetView, huma.OperationTags("map"))
}

// RegisterLayers registers layer routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}/visibility", h.PutVisibility, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}/features", h.GetFeatures, huma.OperationTags("layers"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("files"))
}

// RegisterTiles registers tile listing routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("files"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetStatus(ctx context.Context, input *struct{}) (*struct{ Body StatusBody }, error) {
	s := h.svc.Session
	state, err := s.Status()
	body := StatusBody{State: state, Entries: len(s.Legend().Entries()), Viewers: s.Bus().Subscribers()}
	if err != nil {
		body.Error = err.Error()
	}
	for _, src := range s.Sources() {
		select {
		case <-src.Loaded():
		default:
			body.Pending = append(body.Pending, src.Name())
		}
	}
	return &struct{ Body StatusBody }{Body: body}, nil
}

func (h *APIHandler) GetView(ctx context.Context, input *struct{}) (*struct{ Body ViewBody }, error) {
	return &struct{ Body ViewBody }{Body: NewViewBody(h.svc.Session)}, nil
}

// NewViewBody describes the starting view and every layer. The viewer page
// embeds it.
func NewViewBody(s *session.Session) ViewBody {
	v := s.View()
	body := ViewBody{
		Title:  s.Config().Title,
		Center: v.Center,
		Zoom:   v.Zoom,
		Extent: v.Extent,
		Layers: []LayerBody{},
	}
	for _, l := range s.Layers() {
		body.Layers = append(body.Layers, newLayerBody(s, l))
	}
	return body
}

// ViewJSON marshals the view body for the page.
func ViewJSON(s *session.Session) ([]byte, error) {
	return json.Marshal(NewViewBody(s))
}

func newLayerBody(s *session.Session, l *layer.Layer) LayerBody {
	b := LayerBody{
		ID:       l.ID(),
		Title:    l.Title(),
		Kind:     l.Kind(),
		Visible:  l.Visible(),
		Features: len(l.Features()),
	}
	if g, ok := s.GroupOf(l); ok {
		b.Group = g.ID
	}
	if l.Kind() != layer.KindVector {
		r := l.Raster()
		b.URL = r.URL
		b.Params = r.Params
		b.TransparentWhite = r.TransparentWhite
	}
	if src := l.Source(); src != nil {
		b.Source = src.Location()
	}
	return b
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	out := &LayersOutput{Body: []LayerBody{}}
	for _, l := range h.svc.Session.Layers() {
		out.Body = append(out.Body, newLayerBody(h.svc.Session, l))
	}
	return out, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	l, ok := h.svc.Session.Layer(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: newLayerBody(h.svc.Session, l)}, nil
}

type VisibilityInput struct {
	IDInput
	Body struct {
		Visible bool `json:"visible" doc:"New visibility flag"`
	}
}

func (h *APIHandler) PutVisibility(ctx context.Context, input *VisibilityInput) (*LayerOutput, error) {
	if err := h.svc.Session.SetLayerVisible(input.ID, input.Body.Visible); err != nil {
		return nil, httpError(err)
	}
	l, _ := h.svc.Session.Layer(input.ID)
	return &LayerOutput{Body: newLayerBody(h.svc.Session, l)}, nil
}

type FeaturesOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// GetFeatures returns the drawn features of a layer as GeoJSON, each with
// its effective style in the "style" property.
func (h *APIHandler) GetFeatures(ctx context.Context, input *IDInput) (*FeaturesOutput, error) {
	s := h.svc.Session
	l, ok := s.Layer(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	if l.Kind() != layer.KindVector {
		return nil, huma.Error400BadRequest("layer " + input.ID + " is not a vector layer")
	}
	features, err := s.Features(input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	data, err := featureCollection(s, l, features)
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding features", err)
	}
	return &FeaturesOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc.Source == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Source.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("listing sources", err)
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	if h.svc.Tile == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	tiles, err := h.svc.Tile.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("listing tile archives", err)
	}
	return &struct{ Body []service.TileFile }{Body: tiles}, nil
}

// httpError maps session errors onto HTTP statuses.
func httpError(err error) error {
	switch {
	case errors.Is(err, session.ErrUnknownLayer),
		errors.Is(err, session.ErrUnknownFeature),
		errors.Is(err, session.ErrUnknownSelector),
		errors.Is(err, legend.ErrNoCategory):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, session.ErrNotCategorized):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, session.ErrNotReady):
		return huma.Error503ServiceUnavailable(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
