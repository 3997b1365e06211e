package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-webgis/internal/session"
)

type SelectInput struct {
	Kind string `path:"kind" enum:"sections,pois" doc:"Selection handler"`
	Body struct {
		Layer string `json:"layer,omitempty" doc:"Layer of the clicked feature"`
		FID   string `json:"fid,omitempty" doc:"Clicked feature ID; empty closes the popup"`
	}
}

// RegisterSelect registers the selection routes.
func (h *APIHandler) RegisterSelect(api huma.API) {
	huma.Post(api, "/api/v1/select/{kind}", h.PostSelect, huma.OperationTags("selection"))
}

func (h *APIHandler) PostSelect(ctx context.Context, input *SelectInput) (*struct{ Body session.Popup }, error) {
	p, err := h.svc.Session.Select(input.Kind, input.Body.Layer, input.Body.FID)
	if err != nil {
		return nil, httpError(err)
	}
	return &struct{ Body session.Popup }{Body: p}, nil
}
