package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

type CatalogItem struct {
	ID          int64   `yaml:"id"`
	Name        string  `yaml:"name"`
	UnitPrice   float64 `yaml:"price"`
	Section     string  `yaml:"section"`
	Description string  `yaml:"description"`
}

// Catalog is an immutable, read-only product list. It is built once at startup
// and shared between goroutines without locking.
type Catalog struct {
	items []CatalogItem
	byID  map[int64]CatalogItem
}

func NewCatalog(items []CatalogItem) *Catalog {
	c := &Catalog{
		items: make([]CatalogItem, len(items)),
		byID:  make(map[int64]CatalogItem, len(items)),
	}
	copy(c.items, items)
	sort.SliceStable(c.items, func(i, j int) bool {
		if c.items[i].Section != c.items[j].Section {
			return c.items[i].Section < c.items[j].Section
		}
		return c.items[i].Name < c.items[j].Name
	})
	for _, it := range c.items {
		c.byID[it.ID] = it
	}
	return c
}

// Items returns a copy of the catalog sorted by (section, name).
func (c *Catalog) Items() []CatalogItem {
	out := make([]CatalogItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) Lookup(id int64) (CatalogItem, bool) {
	it, ok := c.byID[id]
	return it, ok
}

// Price sums unit prices of every id that resolves. Unknown ids are skipped.
func (c *Catalog) Price(ids []int64) float64 {
	sum := decimal.Zero
	for _, id := range ids {
		if it, ok := c.byID[id]; ok {
			sum = sum.Add(decimal.NewFromFloat(it.UnitPrice))
		}
	}
	f, _ := sum.Float64()
	return f
}

// Names resolves ids to product names in order, skipping unknown ids.
func (c *Catalog) Names(ids []int64) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if it, ok := c.byID[id]; ok {
			names = append(names, it.Name)
		}
	}
	return names
}
