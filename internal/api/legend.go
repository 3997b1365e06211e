package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-webgis/internal/feature"
	"github.com/joeblew999/plat-webgis/internal/humastar"
	"github.com/joeblew999/plat-webgis/internal/legend"
	"github.com/joeblew999/plat-webgis/internal/session"
)

type LegendInput struct {
	UserAgent string `header:"User-Agent" doc:"Selects the touch layout on mobile browsers"`
}

type LegendBody struct {
	State session.State `json:"state" enum:"loading,ready,failed" doc:"Entries are only present once ready"`
	legend.View
}

type CategoryInput struct {
	Layer string `path:"layer" doc:"Layer ID" example:"food_and_sleep"`
	Index int    `path:"index" minimum:"0" doc:"Category position in the legend entry"`
}

type ToggleCategoryInput struct {
	CategoryInput
	Body struct {
		Checked bool `json:"checked" doc:"Show (true) or hide (false) the category features"`
	}
}

type CategoryFeaturesInput struct {
	CategoryInput
	Offset int `query:"offset" minimum:"0" default:"0" doc:"First item"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

// FeatureSummary is one feature of a category bucket.
type FeatureSummary struct {
	FID    string `json:"fid" doc:"Feature ID within its layer"`
	Name   string `json:"name,omitempty" doc:"Feature name, if any"`
	Hidden bool   `json:"hidden" doc:"Whether the hidden override is set"`
}

// RegisterLegend registers legend routes.
func (h *APIHandler) RegisterLegend(api huma.API) {
	huma.Get(api, "/api/v1/legend", h.GetLegend, huma.OperationTags("legend"))
	huma.Put(api, "/api/v1/legend/{layer}/categories/{index}", h.PutCategory, huma.OperationTags("legend"))
	huma.Get(api, "/api/v1/legend/{layer}/categories/{index}/features", h.GetCategoryFeatures, huma.OperationTags("legend"))
}

func (h *APIHandler) GetLegend(ctx context.Context, input *LegendInput) (*struct{ Body LegendBody }, error) {
	s := h.svc.Session
	state, _ := s.Status()
	view := s.Legend().View(legend.IsMobile(input.UserAgent))
	return &struct{ Body LegendBody }{Body: LegendBody{State: state, View: view}}, nil
}

func (h *APIHandler) PutCategory(ctx context.Context, input *ToggleCategoryInput) (*struct{ Body legend.EntryView }, error) {
	s := h.svc.Session
	if err := s.ToggleCategory(ctx, input.Layer, input.Index, input.Body.Checked); err != nil {
		return nil, httpError(err)
	}
	e, _ := s.CategorizedEntry(input.Layer)
	return &struct{ Body legend.EntryView }{Body: e.Elements(false)}, nil
}

func (h *APIHandler) GetCategoryFeatures(ctx context.Context, input *CategoryFeaturesInput) (*struct {
	Body humastar.PageBody[FeatureSummary]
}, error) {
	e, err := h.svc.Session.CategorizedEntry(input.Layer)
	if err != nil {
		return nil, httpError(err)
	}
	b, err := e.Bucket(input.Index)
	if err != nil {
		return nil, httpError(err)
	}

	page := humastar.Page(b.Features, input.Offset, input.Limit, func(f *feature.Feature) FeatureSummary {
		return FeatureSummary{
			FID:    f.FID(),
			Name:   f.POI().Name,
			Hidden: f.Style() == feature.Hidden,
		}
	})
	return &struct {
		Body humastar.PageBody[FeatureSummary]
	}{Body: page}, nil
}
