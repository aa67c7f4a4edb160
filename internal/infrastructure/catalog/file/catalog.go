// Package file loads the static entity catalog from a JSON or YAML
// document of category → phrase → entry mappings.
package file

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

type catalogEntry struct {
	ID       string `json:"id" yaml:"id"`
	Type     string `json:"type" yaml:"type"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

type rawCatalog map[string]map[string]catalogEntry

// Catalog is an immutable in-memory phrase dictionary. A missing or
// corrupt file produces a degraded catalog with empty mappings; callers
// keep working and routing falls through to the vector path.
type Catalog struct {
	phrases    map[string]domain.EntityMention
	categories []string
	degraded   bool
}

func Load(path string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("entity catalog not found, resolver degraded", "path", path, "error", err)
		return &Catalog{phrases: map[string]domain.EntityMention{}, degraded: true}
	}

	raw, err := decode(path, data)
	if err != nil {
		logger.Warn("entity catalog unreadable, resolver degraded", "path", path, "error", err)
		return &Catalog{phrases: map[string]domain.EntityMention{}, degraded: true}
	}

	catalog := flatten(raw)
	logger.Info("entity catalog loaded",
		"path", path,
		"categories", len(catalog.categories),
		"phrases", len(catalog.phrases),
	)
	return catalog
}

func decode(path string, data []byte) (rawCatalog, error) {
	raw := rawCatalog{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml catalog: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse json catalog: %w", err)
		}
	}
	return raw, nil
}

func flatten(raw rawCatalog) *Catalog {
	phrases := make(map[string]domain.EntityMention)
	categories := make([]string, 0, len(raw))

	for category, mappings := range raw {
		categories = append(categories, category)
		for phrase, entry := range mappings {
			mention := domain.EntityMention{
				ID:       entry.ID,
				Type:     domain.EntityType(entry.Type),
				Category: category,
			}
			if entry.Category != "" {
				mention.Category = entry.Category
			}
			phrases[strings.ToLower(phrase)] = mention
		}
	}
	sort.Strings(categories)

	return &Catalog{phrases: phrases, categories: categories}
}

func (c *Catalog) Phrases() map[string]domain.EntityMention { return c.phrases }

func (c *Catalog) Categories() []string { return c.categories }

func (c *Catalog) Degraded() bool { return c.degraded }
