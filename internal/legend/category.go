package legend

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-webgis/internal/feature"
)

// CategoryID identifies a category within its layer. It is either a numeric
// index (track stages, sections) or a string type code (points of interest).
type CategoryID struct {
	code    string
	index   int
	numeric bool
}

// IndexID returns a numeric category id.
func IndexID(i int) CategoryID { return CategoryID{index: i, numeric: true} }

// CodeID returns a string category id.
func CodeID(code string) CategoryID { return CategoryID{code: code} }

// Index returns the numeric id.
func (c CategoryID) Index() (int, bool) { return c.index, c.numeric }

// Code returns the string id.
func (c CategoryID) Code() (string, bool) { return c.code, !c.numeric }

func (c CategoryID) String() string {
	if c.numeric {
		return strconv.Itoa(c.index)
	}
	return c.code
}

// UnmarshalYAML accepts an integer or a string scalar.
func (c *CategoryID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: category id must be a scalar", value.Line)
	}
	if value.Tag == "!!int" {
		i, err := strconv.Atoi(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*c = IndexID(i)
		return nil
	}
	*c = CodeID(value.Value)
	return nil
}

// MarshalJSON writes a number or a string.
func (c CategoryID) MarshalJSON() ([]byte, error) {
	if c.numeric {
		return json.Marshal(c.index)
	}
	return json.Marshal(c.code)
}

// Category is one row of a categorized legend entry.
type Category struct {
	Title string     `yaml:"title" json:"title"`
	ID    CategoryID `yaml:"id" json:"id"`
	Img   string     `yaml:"img,omitempty" json:"img,omitempty"`
	Color string     `yaml:"color,omitempty" json:"color,omitempty"`
}

// Classifier decides whether a feature belongs to a category.
type Classifier func(c Category, f *feature.Feature) bool

// ByIndex matches numeric category ids against the feature "id" attribute.
func ByIndex(c Category, f *feature.Feature) bool {
	want, ok := c.ID.Index()
	if !ok {
		return false
	}
	got, ok := f.Index()
	return ok && got == want
}

// ByTypeCode matches string category ids against the feature "tipo" attribute.
func ByTypeCode(c Category, f *feature.Feature) bool {
	want, ok := c.ID.Code()
	if !ok {
		return false
	}
	got, ok := f.TypeCode()
	return ok && got == want
}

var classifiers = map[string]Classifier{
	"index": ByIndex,
	"type":  ByTypeCode,
}

// LookupClassifier returns a classifier by name ("index" or "type").
func LookupClassifier(name string) (Classifier, bool) {
	c, ok := classifiers[name]
	return c, ok
}
