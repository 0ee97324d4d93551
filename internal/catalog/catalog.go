// Package catalog holds the health check query catalog: an ordered mapping
// from Orion module name to the reports that make up its section of the
// health check, each one a display label and a SWQL query body.
//
// The catalog is static data. It is loaded once from the embedded literal (or
// an override file with the same shape) and is immutable afterwards.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"sync"

	"healthcheck_srv/internal/domain/query"
)

//go:embed catalog.yaml
var literal []byte

var (
	// ErrMalformed is returned when the catalog literal does not have the
	// category -> [{table, query}] shape.
	ErrMalformed = errors.New("malformed catalog entry")

	// ErrUnknownCategory is returned when a category name is not in the catalog.
	ErrUnknownCategory = errors.New("unknown category")
)

// MalformedError describes where the literal broke the expected shape.
type MalformedError struct {
	Line     int
	Category string
	Index    int // entry index within Category, -1 when the problem is the category itself
	Reason   string
}

func (e *MalformedError) Error() string {
	switch {
	case e.Category == "":
		return fmt.Sprintf("%s (line %d): %s", ErrMalformed, e.Line, e.Reason)
	case e.Index < 0:
		return fmt.Sprintf("%s (line %d, category %q): %s", ErrMalformed, e.Line, e.Category, e.Reason)
	default:
		return fmt.Sprintf("%s (line %d, category %q, entry %d): %s", ErrMalformed, e.Line, e.Category, e.Index, e.Reason)
	}
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Report is one entry of a category. Either field may be empty: an empty
// label or query marks a report that is planned but not written yet.
type Report struct {
	Label string `json:"table" yaml:"table"`
	Query string `json:"query" yaml:"query"`
}

// HasLabel reports whether the entry has a display label.
func (r Report) HasLabel() bool { return r.Label != "" }

// HasQuery reports whether the entry has a query body to run.
func (r Report) HasQuery() bool { return r.Query != "" }

// IsPlaceholder reports whether the entry is still missing its label or query.
func (r Report) IsPlaceholder() bool { return !r.HasLabel() || !r.HasQuery() }

// Category is a named, ordered group of reports.
type Category struct {
	Name    string   `json:"name"`
	Reports []Report `json:"reports"`
}

// Placeholders returns the number of placeholder entries in the category.
func (c Category) Placeholders() int {
	n := 0
	for _, r := range c.Reports {
		if r.IsPlaceholder() {
			n++
		}
	}
	return n
}

func (c Category) clone() Category {
	reports := slices.Clone(c.Reports)
	if reports == nil {
		reports = []Report{}
	}
	return Category{Name: c.Name, Reports: reports}
}

// Catalog is the immutable, ordered set of categories.
type Catalog struct {
	categories []Category
	index      map[string]int
}

var loadDefault = sync.OnceValues(Load)

// Default returns the catalog built from the embedded literal. It is parsed
// once per process and shared.
func Default() (*Catalog, error) {
	return loadDefault()
}

// Load parses the embedded literal.
func Load() (*Catalog, error) {
	return Parse(literal)
}

// MustLoad is Load for callers that treat a broken literal as a build error.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// ParseFile loads a catalog from a file with the same shape as the embedded literal.
func ParseFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Read loads a catalog from r.
func Read(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Len returns the number of categories.
func (c *Catalog) Len() int { return len(c.categories) }

// ReportCount returns the number of entries across all categories,
// placeholders included.
func (c *Catalog) ReportCount() int {
	n := 0
	for _, cat := range c.categories {
		n += len(cat.Reports)
	}
	return n
}

// Names returns the category names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.categories))
	for i, cat := range c.categories {
		names[i] = cat.Name
	}
	return names
}

// Has reports whether the catalog defines the named category.
func (c *Catalog) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Category returns a copy of the named category.
func (c *Catalog) Category(name string) (Category, bool) {
	i, ok := c.index[name]
	if !ok {
		return Category{}, false
	}
	return c.categories[i].clone(), true
}

// Categories yields category names in catalog order.
func (c *Catalog) Categories() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, cat := range c.categories {
			if !yield(cat.Name) {
				return
			}
		}
	}
}

// Reports yields the (label, query) pairs of the named category in order.
// An unknown category yields nothing.
func (c *Catalog) Reports(name string) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		i, ok := c.index[name]
		if !ok {
			return
		}
		for _, r := range c.categories[i].Reports {
			if !yield(r.Label, r.Query) {
				return
			}
		}
	}
}

// All yields a copy of every category in order.
func (c *Catalog) All() iter.Seq[Category] {
	return func(yield func(Category) bool) {
		for _, cat := range c.categories {
			if !yield(cat.clone()) {
				return
			}
		}
	}
}

// Queries yields every entry, placeholders included, located by category and
// position.
func (c *Catalog) Queries() iter.Seq[query.Query] {
	return func(yield func(query.Query) bool) {
		for _, cat := range c.categories {
			for i, r := range cat.Reports {
				q := query.Query{Category: cat.Name, Index: i, Label: r.Label, SQL: r.Query}
				if !yield(q) {
					return
				}
			}
		}
	}
}

// Filter returns a catalog restricted to the named categories, in catalog
// order. With no names it returns c itself.
func (c *Catalog) Filter(names ...string) (*Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		if !c.Has(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
		}
		keep[name] = true
	}

	out := &Catalog{index: make(map[string]int, len(keep))}
	for _, cat := range c.categories {
		if keep[cat.Name] {
			out.index[cat.Name] = len(out.categories)
			out.categories = append(out.categories, cat.clone())
		}
	}
	return out, nil
}

// Equal reports whether both catalogs hold the same categories and entries
// in the same order.
func (c *Catalog) Equal(other *Catalog) bool {
	if other == nil || len(c.categories) != len(other.categories) {
		return false
	}
	for i, cat := range c.categories {
		o := other.categories[i]
		if cat.Name != o.Name || !slices.Equal(cat.Reports, o.Reports) {
			return false
		}
	}
	return true
}
