// Package legend builds the map legend: one entry per layer, with optional
// category rows that hide or show groups of features.
package legend

import (
	"regexp"
	"sync"
)

// Legend is the ordered list of entries under a title. Entries are only
// ever appended.
type Legend struct {
	title string

	mu      sync.RWMutex
	entries []Entry
}

// New creates an empty legend.
func New(title string) *Legend {
	return &Legend{title: title}
}

// Title returns the legend header text.
func (l *Legend) Title() string { return l.title }

// AddEntry appends an entry.
func (l *Legend) AddEntry(e Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Entries returns the entries in insertion order.
func (l *Legend) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Entry finds the entry wrapping the given layer.
func (l *Legend) Entry(layerID string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.Layer().ID() == layerID {
			return e, true
		}
	}
	return nil, false
}

// View is the render model of the whole legend.
type View struct {
	Title   string      `json:"title"`
	Mobile  bool        `json:"mobile"`
	Entries []EntryView `json:"entries"`
}

// View renders every entry.
func (l *Legend) View(mobile bool) View {
	entries := l.Entries()
	v := View{Title: l.title, Mobile: mobile, Entries: make([]EntryView, 0, len(entries))}
	for _, e := range entries {
		v.Entries = append(v.Entries, e.Elements(mobile))
	}
	return v
}

var mobileAgents = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|Windows Phone`)

// IsMobile reports whether a User-Agent belongs to a touch-class device.
func IsMobile(userAgent string) bool {
	return mobileAgents.MatchString(userAgent)
}
