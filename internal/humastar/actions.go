package humastar

import (
	"fmt"
	"strings"
)

// Action is an RFC 8288 link to something the client may do next with a
// resource, e.g.
//
//	</api/v1/layers/tracks/visibility>; rel="edit"; method="PUT"; title="Set visibility"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
	Schema string
}

// Actor is implemented by response bodies whose available actions depend on
// their state. The Links transformer turns them into Link headers.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as a Link header value. Empty parameters are
// left out.
func (a Action) LinkHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<%s>; rel="%s"`, a.Href, a.Rel)
	for _, p := range [][2]string{{"method", a.Method}, {"title", a.Title}, {"schema", a.Schema}} {
		if p[1] != "" {
			fmt.Fprintf(&b, `; %s="%s"`, p[0], p[1])
		}
	}
	return b.String()
}
