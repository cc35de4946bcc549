// Package catalog loads the menu document into an immutable domain.Catalog.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

//go:embed menu.yaml
var defaultMenu []byte

// Load reads the catalog from path, or from the embedded default menu when path
// is empty.
func Load(path string) (*domain.Catalog, error) {
	data := defaultMenu
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes a YAML item list and rejects duplicate ids and negative prices.
func Parse(data []byte) (*domain.Catalog, error) {
	var items []domain.CatalogItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("catalog is empty")
	}

	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		if seen[it.ID] {
			return nil, fmt.Errorf("catalog: duplicate item id %d", it.ID)
		}
		if it.UnitPrice < 0 {
			return nil, fmt.Errorf("catalog: item %d has negative price", it.ID)
		}
		seen[it.ID] = true
	}
	return domain.NewCatalog(items), nil
}
