package humastar

import "fmt"

// Pager is implemented by response bodies that span several pages. The Links
// transformer emits their first/prev/next/last Link headers.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageBody is one page of a longer list.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// Page cuts the page starting at offset out of items, converting each item
// with fn. An offset past the end yields an empty page.
func Page[S, T any](items []S, offset, limit int, fn func(S) T) PageBody[T] {
	p := PageBody[T]{Total: len(items), Offset: offset, Limit: limit, Data: []T{}}
	if offset < 0 || limit <= 0 {
		return p
	}
	end := min(offset+limit, len(items))
	for i := offset; i < end; i++ {
		p.Data = append(p.Data, fn(items[i]))
	}
	return p
}

// PaginationLinks returns the Link header values of the neighbouring pages.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="%s"`, basePath, offset, p.Limit, rel)
	}
	if p.Limit <= 0 {
		return nil
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	last := 0
	if p.Total > 0 {
		last = ((p.Total - 1) / p.Limit) * p.Limit
	}
	return append(links, link(last, "last"))
}
