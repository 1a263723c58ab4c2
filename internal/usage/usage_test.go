package usage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/tutor/internal/llm"
)

const remoteCatalog = `{"data":[{"id":"acme/tutor-1.5","name":"Acme Tutor","context_length":100000,
"pricing":{"prompt":"0.000002","completion":"0.000008","input_cache_read":"0.0000005"},
"top_provider":{"max_completion_tokens":20000}}]}`

func TestDefaultCatalogLookup(t *testing.T) {
	cat := DefaultCatalog()
	assert.Greater(t, cat.Len(), 5)

	for _, id := range []string{
		"anthropic/claude-sonnet-4.5",
		"claude-sonnet-4-5",
		"claude-sonnet-4-5-thinking",
		"ANTHROPIC/CLAUDE-SONNET-4-5",
	} {
		m, ok := cat.Lookup(id)
		require.True(t, ok, id)
		assert.Equal(t, "anthropic/claude-sonnet-4.5", m.ID)
	}

	_, ok := cat.Lookup("mock-model")
	assert.False(t, ok)

	var nilCat *Catalog
	_, ok = nilCat.Lookup("gpt-5")
	assert.False(t, ok)
}

func TestParseCatalogErrors(t *testing.T) {
	_, err := ParseCatalog([]byte("not json"))
	assert.Error(t, err)
	_, err = ParseCatalog([]byte(`{"data":[]}`))
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	cat, err := ParseCatalog([]byte(remoteCatalog))
	require.NoError(t, err)

	u := llm.Usage{InputTokens: 1000, OutputTokens: 500, CachedInputTokens: 400}
	got := Summarize("tutor-1-5", u, cat)

	assert.Equal(t, "tutor-1-5", got.ModelID)
	assert.Equal(t, 1500, got.TotalTokens)
	require.NotNil(t, got.Context)
	assert.Equal(t, 100000, got.Context.TotalMax)
	assert.Equal(t, 80000, got.Context.InputMax)
	require.NotNil(t, got.CostUSD)
	assert.InDelta(t, 600*0.000002, got.CostUSD.InputUSD, 1e-12)
	assert.InDelta(t, 500*0.000008, got.CostUSD.OutputUSD, 1e-12)
	assert.InDelta(t, 400*0.0000005, got.CostUSD.CacheReadUSD, 1e-12)
	assert.InDelta(t, got.CostUSD.InputUSD+got.CostUSD.OutputUSD+got.CostUSD.CacheReadUSD, got.CostUSD.TotalUSD, 1e-12)
}

func TestSummarizeUnknownModel(t *testing.T) {
	u := llm.Usage{InputTokens: 10, OutputTokens: 2}

	got := Summarize("mock-model", u, DefaultCatalog())
	assert.Equal(t, "mock-model", got.ModelID)
	assert.Nil(t, got.CostUSD)
	assert.Nil(t, got.Context)
	assert.Equal(t, 12, got.TotalTokens)

	assert.Equal(t, Raw(u), Summarize("", u, DefaultCatalog()))
	assert.Nil(t, Summarize("gpt-5", u, nil).CostUSD)
}

func TestCatalogSourceFetchesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(remoteCatalog))
	}))
	defer srv.Close()

	dir := t.TempDir()
	src := NewCatalogSource(srv.URL, dir, time.Hour, nil)

	cat := src.Get(context.Background())
	_, ok := cat.Lookup("acme/tutor-1.5")
	assert.True(t, ok)
	src.Get(context.Background())
	assert.Equal(t, int32(1), hits.Load())

	_, err := os.Stat(filepath.Join(dir, catalogCacheFilename))
	require.NoError(t, err)

	// A fresh source reads the disk copy instead of fetching.
	again := NewCatalogSource(srv.URL, dir, time.Hour, nil)
	_, ok = again.Get(context.Background()).Lookup("acme/tutor-1.5")
	assert.True(t, ok)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCatalogSourceRefetchesAfterTTL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(remoteCatalog))
	}))
	defer srv.Close()

	src := NewCatalogSource(srv.URL, "", time.Hour, nil)
	now := time.Now()
	src.now = func() time.Time { return now }
	src.Get(context.Background())

	now = now.Add(2 * time.Hour)
	src.Get(context.Background())
	assert.Equal(t, int32(2), hits.Load())
}

func TestCatalogSourceFallsBackToDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewCatalogSource(srv.URL, t.TempDir(), time.Hour, nil)
	cat := src.Get(context.Background())
	_, ok := cat.Lookup("claude-haiku-4-5")
	assert.True(t, ok)
}

func TestLoggerAndLoader(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)

	require.NoError(t, logger.Log(LogEntry{Timestamp: day, Model: "m1", Provider: "p", InputTokens: 10, OutputTokens: 5, CostUSD: 0.02}))
	require.NoError(t, logger.Log(LogEntry{Timestamp: day, Model: "m1", Provider: "p", InputTokens: 1, OutputTokens: 1, CostUSD: 0.01}))
	require.NoError(t, logger.Log(LogEntry{Timestamp: day.AddDate(0, 0, 1), Provider: "p2", InputTokens: 3, OutputTokens: 3}))
	require.NoError(t, logger.Log(LogEntry{Timestamp: day, Model: "empty"}))

	_, err := os.Stat(filepath.Join(dir, "2025-03-10.jsonl"))
	require.NoError(t, err)

	all := Load(dir)
	assert.Empty(t, all.Errors)
	assert.Len(t, all.Entries, 3)

	ranged := LoadForDateRange(dir, day, day)
	assert.Len(t, ranged.Entries, 2)

	totals := TotalsByModel(all.Entries)
	require.Len(t, totals, 2)
	assert.Equal(t, "m1", totals[0].Model)
	assert.Equal(t, 2, totals[0].Requests)
	assert.Equal(t, 11, totals[0].InputTokens)
	assert.Equal(t, "p2", totals[1].Model)

	missing := Load(filepath.Join(dir, "nope"))
	assert.Len(t, missing.MissingDirectories, 1)
}
