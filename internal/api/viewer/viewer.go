// Package viewer contains the Datastar SSE handlers behind the map page:
// the legend fragment, its toggles, the popups and the live event stream.
package viewer

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-webgis/internal/humastar"
	"github.com/joeblew999/plat-webgis/internal/legend"
	"github.com/joeblew999/plat-webgis/internal/service"
	"github.com/joeblew999/plat-webgis/internal/session"
	"github.com/joeblew999/plat-webgis/internal/templates"
)

// Tag marks the viewer operations in the OpenAPI document.
const Tag = "viewer"

// MapChanged is the browser event telling the map to refetch its vector
// features.
const MapChanged = "map-changed"

// Handler serves the viewer SSE endpoints.
type Handler struct {
	humastar.Handler
	session *session.Session
	log     zerolog.Logger
}

// New creates the viewer handlers.
func New(s *session.Session, renderer *templates.Renderer, log zerolog.Logger) *Handler {
	return &Handler{
		Handler: humastar.Handler{Renderer: renderer},
		session: s,
		log:     log.With().Str("component", "viewer").Logger(),
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/viewer/legend", h.Legend, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/viewer/layers/{id}/toggle", h.ToggleLayer, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/viewer/legend/{layer}/categories/{index}/toggle", h.ToggleCategory, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/viewer/select/{kind}", h.Select, huma.OperationTags(Tag))
	huma.Get(api, "/api/v1/viewer/events", h.Events, huma.OperationTags(Tag))
}

type LegendInput struct {
	UserAgent string `header:"User-Agent"`
}

func (h *Handler) Legend(ctx context.Context, input *LegendInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		h.patchLegend(sse, input.UserAgent)
	}), nil
}

type ToggleLayerInput struct {
	ID        string `path:"id" doc:"Layer ID"`
	Visible   bool   `query:"visible" doc:"Checkbox state"`
	UserAgent string `header:"User-Agent"`
}

func (h *Handler) ToggleLayer(ctx context.Context, input *ToggleLayerInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		if err := h.session.SetLayerVisible(input.ID, input.Visible); err != nil {
			sse.Error(err.Error())
			return
		}
		if h.patchLegend(sse, input.UserAgent) {
			clearError(sse)
		}
		sse.DispatchCustomEvent(MapChanged, map[string]any{"layer": input.ID})
	}), nil
}

type ToggleCategoryInput struct {
	Layer     string `path:"layer" doc:"Layer ID"`
	Index     int    `path:"index" minimum:"0" doc:"Category position"`
	Checked   bool   `query:"checked" doc:"Checkbox state"`
	UserAgent string `header:"User-Agent"`
}

func (h *Handler) ToggleCategory(ctx context.Context, input *ToggleCategoryInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		if err := h.session.ToggleCategory(ctx, input.Layer, input.Index, input.Checked); err != nil {
			sse.Error(err.Error())
			return
		}
		if h.patchLegend(sse, input.UserAgent) {
			clearError(sse)
		}
		sse.DispatchCustomEvent(MapChanged, map[string]any{"layer": input.Layer})
	}), nil
}

// SelectInput carries the clicked feature in the selectLayer and selectFid
// signals.
type SelectInput struct {
	Kind string `path:"kind" enum:"sections,pois" doc:"Selection handler"`
	humastar.SignalsInput
}

func (h *Handler) Select(ctx context.Context, input *SelectInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	layerID, fid := signals.String("selectLayer"), signals.String("selectFid")

	return h.Stream(func(sse humastar.SSE) {
		p, err := h.session.Select(input.Kind, layerID, fid)
		if err != nil {
			h.log.Debug().Err(err).Str("handler", input.Kind).Msg("selection rejected")
			if p, err = h.session.ClearSelection(input.Kind); err != nil {
				sse.Error(err.Error())
				return
			}
		}
		if h.patchPopup(sse, p) {
			clearError(sse)
		}
		sse.DispatchCustomEvent(MapChanged, map[string]any{"selection": input.Kind})
	}), nil
}

// Events streams the shared map state to every open page, so a toggle in one
// tab shows up in the others.
func (h *Handler) Events(ctx context.Context, input *LegendInput) (*huma.StreamResponse, error) {
	bus := h.session.Bus()
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			ch := bus.Subscribe()
			defer bus.Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					h.apply(sse, ev, input.UserAgent)
				}
			}
		},
	}, nil
}

func (h *Handler) apply(sse humastar.SSE, ev service.Event, userAgent string) {
	detail := map[string]any{"resource": ev.Resource, "action": ev.Action, "id": ev.ID}
	switch ev.Resource {
	case "session":
		h.patchLegend(sse, userAgent)
		if ev.Action == "ready" {
			if ext := h.session.View().Extent; ext != nil {
				detail["extent"] = ext
			}
		}
	case "layers", "legend":
		h.patchLegend(sse, userAgent)
	case "selection":
		p, err := h.session.Popup(ev.ID)
		if err != nil {
			return
		}
		h.patchPopup(sse, p)
	default:
		return
	}
	sse.DispatchCustomEvent(MapChanged, detail)
}

// patchLegend renders the legend, or a placeholder until the sources joined.
// A failed load also raises the error signal and reports false.
func (h *Handler) patchLegend(sse humastar.SSE, userAgent string) bool {
	state, err := h.session.Status()
	var items []any
	title, msg := "Caricamento", "La mappa si sta caricando"
	switch state {
	case session.StateReady:
		items = []any{h.session.Legend().View(legend.IsMobile(userAgent))}
	case session.StateFailed:
		title, msg = "Errore", "Impossibile caricare la mappa"
		if err == nil {
			err = errors.New(msg)
		}
		sse.Error(err.Error())
	}
	sse.Patch(h.RenderList("legend", items, title, msg), "#legend")
	return state != session.StateFailed
}

// clearError hides the error banner left by an earlier failed action.
func clearError(sse humastar.SSE) {
	sse.Signals(map[string]any{"error": ""})
}

// patchPopup reports whether the popup was sent.
func (h *Handler) patchPopup(sse humastar.SSE, p session.Popup) bool {
	html, err := h.Renderer.Render("popup", p)
	if err != nil {
		h.log.Error().Err(err).Str("handler", p.Handler).Msg("rendering popup")
		sse.Error(err.Error())
		return false
	}
	sse.Replace(html, "#popup-"+p.Handler)
	return true
}
