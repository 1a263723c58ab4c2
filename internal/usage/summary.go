package usage

import (
	"github.com/samsaffron/tutor/internal/llm"
)

// ContextLimits describes the model's token limits.
type ContextLimits struct {
	TotalMax  int `json:"totalMax,omitempty"`
	OutputMax int `json:"outputMax,omitempty"`
	InputMax  int `json:"inputMax,omitempty"`
}

// Cost is the USD price of one completion.
type Cost struct {
	InputUSD     float64 `json:"inputUSD"`
	OutputUSD    float64 `json:"outputUSD"`
	CacheReadUSD float64 `json:"cacheReadUSD,omitempty"`
	TotalUSD     float64 `json:"totalUSD"`
}

// AppUsage is the token usage of a completion enriched with catalog data.
// It is streamed to clients and stored as a chat's last context.
type AppUsage struct {
	llm.Usage
	TotalTokens int            `json:"totalTokens"`
	ModelID     string         `json:"modelId,omitempty"`
	Context     *ContextLimits `json:"context,omitempty"`
	CostUSD     *Cost          `json:"costUSD,omitempty"`
}

// Raw wraps usage without enrichment.
func Raw(u llm.Usage) AppUsage {
	return AppUsage{Usage: u, TotalTokens: u.TotalTokens()}
}

// Summarize prices u for modelID. Unknown models, or a nil catalog, yield
// the raw usage tagged with the model id.
func Summarize(modelID string, u llm.Usage, cat *Catalog) AppUsage {
	out := Raw(u)
	if modelID == "" {
		return out
	}
	out.ModelID = modelID

	info, ok := cat.Lookup(modelID)
	if !ok {
		return out
	}

	limits := &ContextLimits{TotalMax: info.ContextLength, OutputMax: info.MaxOutputTokens}
	if info.ContextLength > 0 && info.MaxOutputTokens > 0 && info.ContextLength > info.MaxOutputTokens {
		limits.InputMax = info.ContextLength - info.MaxOutputTokens
	} else {
		limits.InputMax = llm.InputLimitForModel(modelID)
	}
	out.Context = limits

	// Cached input is billed at the cache-read price when one is listed.
	uncached := u.InputTokens
	var cacheRead float64
	if info.CacheReadPrice > 0 && u.CachedInputTokens > 0 {
		uncached -= u.CachedInputTokens
		if uncached < 0 {
			uncached = 0
		}
		cacheRead = float64(u.CachedInputTokens) * info.CacheReadPrice
	}
	cost := &Cost{
		InputUSD:     float64(uncached) * info.InputPrice,
		OutputUSD:    float64(u.OutputTokens) * info.OutputPrice,
		CacheReadUSD: cacheRead,
	}
	cost.TotalUSD = cost.InputUSD + cost.OutputUSD + cost.CacheReadUSD
	out.CostUSD = cost
	return out
}
