package llm

import (
	"fmt"
	"strings"
)

// InputLimitForModel returns the effective input token limit for a known
// model. It backs the usage summary when the pricing catalog has no entry for
// a model. Returns 0 for unknown models.
func InputLimitForModel(model string) int {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.TrimSuffix(model, "-thinking")
	return lookupPrefix(model, inputLimitTable)
}

// FormatTokenCount returns a human-readable string for a token count
// (e.g., "128K", "1M", "200K"). Returns "" for zero or negative values.
func FormatTokenCount(tokens int) string {
	if tokens <= 0 {
		return ""
	}
	if tokens >= 1_000_000 {
		// Round to nearest 100K for cleaner display
		rounded := (tokens + 50_000) / 100_000
		if rounded%10 == 0 {
			return fmt.Sprintf("%dM", rounded/10)
		}
		return fmt.Sprintf("%.1fM", float64(rounded)/10)
	}
	k := (tokens + 500) / 1_000
	return fmt.Sprintf("%dK", k)
}

type inputLimitEntry struct {
	prefix string
	tokens int
}

func lookupPrefix(model string, table []inputLimitEntry) int {
	best := 0
	bestLen := 0
	for _, e := range table {
		if strings.HasPrefix(model, e.prefix) && len(e.prefix) > bestLen {
			best = e.tokens
			bestLen = len(e.prefix)
		}
	}
	return best
}

// inputLimitTable holds input limits (context minus max output) for the
// model families the providers speak to. Entries match by longest prefix.
var inputLimitTable = []inputLimitEntry{
	// Claude 4.5 / 4.6: 200K ctx - 64K out
	{"claude-sonnet-4-6", 136_000},
	{"claude-opus-4-6", 136_000},
	{"claude-sonnet-4-5", 136_000},
	{"claude-opus-4-5", 136_000},
	{"claude-haiku-4-5", 136_000},
	{"claude-sonnet-4", 136_000},
	{"claude-opus-4", 168_000},
	{"claude-3-5-haiku", 192_000},
	{"claude-3-haiku", 196_000},

	{"gpt-5.1-chat", 112_000},
	{"gpt-5", 272_000},
	{"gpt-4.1", 1_014_808},
	{"gpt-4o", 112_000},
	{"o3", 100_000},
	{"o4-mini", 100_000},

	{"gemini-3-pro", 936_000},
	{"gemini-3-flash", 983_000},
	{"gemini-2.5-pro", 983_000},
	{"gemini-2.5-flash", 983_000},
	{"gemini-2.0-flash", 1_040_000},

	// Common Ollama tags; the server default context is what actually applies.
	{"llama3", 128_000},
	{"qwen3", 40_000},
	{"mistral", 32_000},
}
