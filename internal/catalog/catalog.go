// Package catalog holds the static registry of slot categories.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed catalog.toml
var defaultCatalog string

// Category is the display metadata for one budget category.
type Category struct {
	// ID is the numeric reference clients send as slotId. It defaults to
	// the 1-based file position when omitted.
	ID     int64  `toml:"id"`
	Code   string `toml:"code"`
	Label  string `toml:"label"`
	Color  string `toml:"color"`
	Icon   string `toml:"icon"`
	Saving bool   `toml:"saving"`
}

// Catalog is immutable after loading and safe for concurrent use.
type Catalog struct {
	categories []Category
	index      map[string]int
	byID       map[int64]int
}

type file struct {
	Categories []Category `toml:"category"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from a TOML file. An empty path yields the default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a TOML catalog document.
func Parse(doc string) (*Catalog, error) {
	var f file
	if _, err := toml.Decode(doc, &f); err != nil {
		return nil, fmt.Errorf("decode toml: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}

	c := &Catalog{
		categories: make([]Category, 0, len(f.Categories)),
		index:      make(map[string]int, len(f.Categories)),
		byID:       make(map[int64]int, len(f.Categories)),
	}
	for i, cat := range f.Categories {
		cat.Code = strings.ToUpper(strings.TrimSpace(cat.Code))
		if cat.Code == "" {
			return nil, fmt.Errorf("category %d has empty code", i)
		}
		if _, dup := c.index[cat.Code]; dup {
			return nil, fmt.Errorf("duplicate category code %q", cat.Code)
		}
		if cat.ID == 0 {
			cat.ID = int64(i + 1)
		}
		if cat.ID < 0 {
			return nil, fmt.Errorf("category %s has negative id %d", cat.Code, cat.ID)
		}
		if _, dup := c.byID[cat.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %d", cat.ID)
		}
		if strings.TrimSpace(cat.Label) == "" {
			cat.Label = cat.Code
		}
		c.byID[cat.ID] = len(c.categories)
		c.index[cat.Code] = len(c.categories)
		c.categories = append(c.categories, cat)
	}
	return c, nil
}

// Lookup returns the category registered under code.
func (c *Catalog) Lookup(code string) (Category, bool) {
	i, ok := c.index[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Category{}, false
	}
	return c.categories[i], true
}

// LookupID returns the category with the given numeric id.
func (c *Catalog) LookupID(id int64) (Category, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Category{}, false
	}
	return c.categories[i], true
}

// Position returns the display position of code, or -1 if it is unknown.
func (c *Catalog) Position(code string) int {
	if i, ok := c.index[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return i
	}
	return -1
}

// All returns a copy of the categories in catalog order.
func (c *Catalog) All() []Category {
	return append([]Category(nil), c.categories...)
}

// Len returns the number of categories.
func (c *Catalog) Len() int {
	return len(c.categories)
}
