package humastar

import "fmt"

// ActionDef is an action whose Pattern holds one %s for the resource id,
// e.g. "/api/v1/layers/%s/visibility".
type ActionDef struct {
	Rel     string
	Pattern string
	Method  string
	Title   string
	Schema  string
}

// For binds the definition to one resource.
func (d ActionDef) For(id string) Action {
	return Action{
		Rel:    d.Rel,
		Href:   fmt.Sprintf(d.Pattern, id),
		Method: d.Method,
		Title:  d.Title,
		Schema: d.Schema,
	}
}

// ActionsFor binds every definition to one resource.
func ActionsFor(id string, defs []ActionDef) []Action {
	actions := make([]Action, len(defs))
	for i, d := range defs {
		actions[i] = d.For(id)
	}
	return actions
}
