package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Model is one selectable generation backend with its price in rubies.
type Model struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	PriceRubies int    `json:"price_rubies"`
	Enabled     bool   `json:"enabled"`
}

type fileFormat struct {
	DefaultModel string  `json:"default_model"`
	Models       []Model `json:"models"`
}

// Catalog is the read-mostly model lookup backed by a JSON file. Reload swaps
// the whole snapshot under the write lock, so readers never observe a
// half-updated set.
type Catalog struct {
	path string

	mu          sync.RWMutex
	models      []Model
	defaultName string
}

// Load reads the catalog file. A missing or empty catalog is a startup error.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the backing file, replacing the in-memory set atomically.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read models config %s: %w", c.path, err)
	}
	var parsed fileFormat
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse models config %s: %w", c.path, err)
	}
	if len(parsed.Models) == 0 {
		return fmt.Errorf("models config %s contains no models", c.path)
	}
	for _, m := range parsed.Models {
		if m.Name == "" {
			return fmt.Errorf("models config %s: model with empty name", c.path)
		}
		if m.PriceRubies <= 0 {
			return fmt.Errorf("models config %s: model %s has non-positive price", c.path, m.Name)
		}
	}

	c.mu.Lock()
	c.models = parsed.Models
	c.defaultName = parsed.DefaultModel
	c.mu.Unlock()
	return nil
}

// ByName returns the model with the given machine name, or nil.
func (c *Catalog) ByName(name string) *Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return findModel(c.models, name)
}

// Enabled returns the models currently offered to users.
func (c *Catalog) Enabled() []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	enabled := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	return enabled
}

// Default resolves the effective default model: the configured default when it
// exists and is enabled, otherwise the first enabled model, otherwise the
// first model overall.
func (c *Catalog) Default() *Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.defaultName != "" {
		if m := findModel(c.models, c.defaultName); m != nil && m.Enabled {
			return m
		}
	}
	for i := range c.models {
		if c.models[i].Enabled {
			m := c.models[i]
			return &m
		}
	}
	if len(c.models) > 0 {
		m := c.models[0]
		return &m
	}
	return nil
}

func findModel(models []Model, name string) *Model {
	for i := range models {
		if models[i].Name == name {
			m := models[i]
			return &m
		}
	}
	return nil
}
