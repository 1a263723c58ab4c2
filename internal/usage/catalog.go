package usage

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ModelInfo is the pricing and context data for one model. Prices are USD
// per token.
type ModelInfo struct {
	ID              string  `json:"id"`
	Name            string  `json:"name,omitempty"`
	ContextLength   int     `json:"contextLength,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	InputPrice      float64 `json:"inputPrice"`
	OutputPrice     float64 `json:"outputPrice"`
	CacheReadPrice  float64 `json:"cacheReadPrice,omitempty"`
}

// Catalog indexes models by normalized id.
type Catalog struct {
	models map[string]ModelInfo
}

//go:embed default_catalog.json
var defaultCatalogJSON []byte

// DefaultCatalog returns the built-in catalog used when the remote one is
// unavailable.
func DefaultCatalog() *Catalog {
	cat, err := ParseCatalog(defaultCatalogJSON)
	if err != nil {
		panic(fmt.Sprintf("usage: embedded catalog: %v", err))
	}
	return cat
}

// openRouterModels mirrors the /models document served by OpenRouter and
// compatible gateways. Prices arrive as decimal strings.
type openRouterModels struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		ContextLength int    `json:"context_length"`
		Pricing       struct {
			Prompt         string `json:"prompt"`
			Completion     string `json:"completion"`
			InputCacheRead string `json:"input_cache_read"`
		} `json:"pricing"`
		TopProvider struct {
			MaxCompletionTokens int `json:"max_completion_tokens"`
		} `json:"top_provider"`
	} `json:"data"`
}

// ParseCatalog decodes an OpenRouter-style /models document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc openRouterModels
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("catalog has no models")
	}

	models := make([]ModelInfo, 0, len(doc.Data))
	for _, m := range doc.Data {
		if m.ID == "" {
			continue
		}
		models = append(models, ModelInfo{
			ID:              m.ID,
			Name:            m.Name,
			ContextLength:   m.ContextLength,
			MaxOutputTokens: m.TopProvider.MaxCompletionTokens,
			InputPrice:      parsePrice(m.Pricing.Prompt),
			OutputPrice:     parsePrice(m.Pricing.Completion),
			CacheReadPrice:  parsePrice(m.Pricing.InputCacheRead),
		})
	}
	return NewCatalog(models), nil
}

// NewCatalog builds a catalog from model entries.
func NewCatalog(models []ModelInfo) *Catalog {
	c := &Catalog{models: make(map[string]ModelInfo, len(models)*2)}
	for _, m := range models {
		key := normalizeModelID(m.ID)
		c.models[key] = m
		// Index the bare model name too so "claude-sonnet-4-5" finds
		// "anthropic/claude-sonnet-4.5". The first vendor wins.
		if _, bare, ok := strings.Cut(key, "/"); ok {
			if _, exists := c.models[bare]; !exists {
				c.models[bare] = m
			}
		}
	}
	return c
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// normalizeModelID lowercases, drops the "-thinking" variant suffix and
// treats "." and "-" in version numbers alike.
func normalizeModelID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimSuffix(id, "-thinking")
	return strings.ReplaceAll(id, ".", "-")
}

// Lookup finds a model by id, with or without a vendor prefix.
func (c *Catalog) Lookup(modelID string) (ModelInfo, bool) {
	if c == nil {
		return ModelInfo{}, false
	}
	key := normalizeModelID(modelID)
	if m, ok := c.models[key]; ok {
		return m, true
	}
	if _, bare, ok := strings.Cut(key, "/"); ok {
		m, found := c.models[bare]
		return m, found
	}
	return ModelInfo{}, false
}

// Len returns the number of distinct models.
func (c *Catalog) Len() int {
	return len(c.Models())
}

// Models returns the distinct entries sorted by id.
func (c *Catalog) Models() []ModelInfo {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool, len(c.models))
	out := make([]ModelInfo, 0, len(c.models))
	for _, m := range c.models {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
