package humastar

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds the RFC 8288 Link headers generated from the OpenAPI paths,
// keyed by operation path. Its Transformer can be installed in the Huma
// config before any route exists; Build fills it once they do.
type Links struct {
	// SkipTag excludes operations carrying this tag (the SSE endpoints).
	SkipTag string

	mu sync.RWMutex
	m  map[string][]string
}

// NewLinks creates an empty link table skipping operations tagged skipTag.
func NewLinks(skipTag string) *Links {
	return &Links{SkipTag: skipTag, m: map[string][]string{}}
}

// Build walks the OpenAPI spec and generates hypermedia links.
// Call after all routes are registered.
func (l *Links) Build(api huma.API) {
	oapi := api.OpenAPI()
	m := map[string][]string{}
	add := func(from, to, rel string) { addLink(m, from, to, rel) }

	// Collection paths have no {param}; item paths do.
	type pathInfo struct {
		path string
		tags []string
	}
	var collections, items []pathInfo

	for p, pi := range oapi.Paths {
		tags := primaryTags(pi)
		if l.SkipTag != "" && hasTag(tags, l.SkipTag) {
			continue
		}
		info := pathInfo{path: p, tags: tags}
		if strings.Contains(p, "{") {
			items = append(items, info)
		} else {
			collections = append(collections, info)
		}
	}

	// Item → nearest listed ancestor (rel="collection", rel="up").
	for _, item := range items {
		for parent := path.Dir(item.path); parent != "/"; parent = path.Dir(parent) {
			if _, ok := oapi.Paths[parent]; ok {
				add(item.path, parent, "collection")
				add(item.path, parent, "up")
				break
			}
		}
	}

	// Collection → item template (rel="item").
	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item.path) == coll.path {
				add(coll.path, item.path, "item")
			}
		}
	}

	for _, coll := range collections {
		if coll.path == "/health" {
			continue
		}
		add(coll.path, "/health", "up")
	}

	if _, ok := oapi.Paths["/api/v1/query"]; ok {
		for _, coll := range collections {
			add(coll.path, "/api/v1/query", "search")
		}
	}

	for _, item := range items {
		pi := oapi.Paths[item.path]
		if pi.Put != nil || pi.Patch != nil {
			add(item.path, item.path, "edit")
		}
	}

	// Cross-link collections sharing a tag.
	for i, a := range collections {
		for j, b := range collections {
			if i != j && sharedTag(a.tags, b.tags) != "" {
				add(a.path, b.path, lastSegment(b.path))
			}
		}
	}

	// /health is the entry point: it links every collection.
	for _, coll := range collections {
		if coll.path != "/health" {
			add("/health", coll.path, lastSegment(coll.path))
		}
	}
	add("/health", "/openapi.json", "describedby")
	add("/health", "/openapi.json", "service-desc")
	add("/health", "/docs", "service-doc")

	for _, all := range [][]pathInfo{collections, items} {
		for _, pi := range all {
			if ref := getResponseSchemaRef(oapi.Paths[pi.path]); ref != "" {
				add(pi.path, "/openapi.json#/components/schemas/"+ref, "describedby")
			}
		}
	}

	// Document the relations on the operations themselves.
	for p, pi := range oapi.Paths {
		headers, ok := m[p]
		if !ok {
			continue
		}
		for _, op := range operationsOf(pi) {
			if op != nil {
				injectResponseLinks(op, headers)
			}
		}
	}

	l.mu.Lock()
	l.m = m
	l.mu.Unlock()
}

// For returns the generated links of an operation path.
func (l *Links) For(opPath string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m[opPath]
}

// Root returns the links of the entry point, for non-Huma handlers.
func (l *Links) Root() []string {
	return l.For("/health")
}

// Transformer returns a Huma Transformer that adds the generated links, a
// self link on item paths, pagination links from [Pager] bodies and action
// links from [Actor] bodies.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}

		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}

// --- helpers ---

func addLink(m map[string][]string, from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	for _, existing := range m[from] {
		if existing == val {
			return
		}
	}
	m[from] = append(m[from], val)
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func sharedTag(a, b []string) string {
	for _, at := range a {
		for _, bt := range b {
			if at == bt {
				return at
			}
		}
	}
	return ""
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks adds OpenAPI Link objects to the operation's success
// response.
func injectResponseLinks(op *huma.Operation, headers []string) {
	if op.Responses == nil {
		return
	}
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  fmt.Sprintf("Related: %s", rel),
		}
	}
}

func getResponseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil || pi.Get.Responses == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") || resp.Content == nil {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				parts := strings.Split(mt.Schema.Ref, "/")
				return parts[len(parts)-1]
			}
		}
	}
	return ""
}

// parseLinkHeader splits `<url>; rel="name"`.
func parseLinkHeader(h string) (rel, href string) {
	parts := strings.SplitN(h, ";", 2)
	if len(parts) < 2 {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(parts[0]), "<>")
	relPart := strings.TrimSpace(parts[1])
	if strings.HasPrefix(relPart, `rel="`) {
		rel = strings.Trim(relPart[4:], `"`)
	}
	return rel, href
}
