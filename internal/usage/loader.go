package usage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LoadResult holds the entries read from the usage logs.
type LoadResult struct {
	Entries            []LogEntry
	Errors             []error
	MissingDirectories []string
}

// Load reads every daily log file in dir.
func Load(dir string) LoadResult {
	var result LoadResult

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		result.MissingDirectories = append(result.MissingDirectories, dir)
		return result
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".jsonl") {
			continue
		}
		entries, errs := loadFile(filepath.Join(dir, file.Name()))
		result.Entries = append(result.Entries, entries...)
		result.Errors = append(result.Errors, errs...)
	}

	return result
}

// LoadForDateRange reads only the daily files between since and until,
// inclusive.
func LoadForDateRange(dir string, since, until time.Time) LoadResult {
	var result LoadResult

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		result.MissingDirectories = append(result.MissingDirectories, dir)
		return result
	}

	since = time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location())
	for d := since; !d.After(until); d = d.AddDate(0, 0, 1) {
		filePath := filepath.Join(dir, d.Format("2006-01-02")+".jsonl")
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			continue // File doesn't exist for this date, skip
		}
		entries, errs := loadFile(filePath)
		result.Entries = append(result.Entries, entries...)
		result.Errors = append(result.Errors, errs...)
	}

	return result
}

func loadFile(path string) ([]LogEntry, []error) {
	var entries []LogEntry
	var errs []error

	file, err := os.Open(path)
	if err != nil {
		return nil, []error{err}
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // Skip invalid lines
		}

		// Skip entries with no usage data
		if entry.InputTokens == 0 && entry.OutputTokens == 0 {
			continue
		}

		// Use Provider as Model fallback when Model is empty
		if entry.Model == "" {
			entry.Model = entry.Provider
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}

	return entries, errs
}

// ModelTotals aggregates usage for one model.
type ModelTotals struct {
	Model             string
	Requests          int
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
	CostUSD           float64
}

// TotalsByModel sums entries per model, most expensive first.
func TotalsByModel(entries []LogEntry) []ModelTotals {
	byModel := map[string]*ModelTotals{}
	for _, e := range entries {
		t, ok := byModel[e.Model]
		if !ok {
			t = &ModelTotals{Model: e.Model}
			byModel[e.Model] = t
		}
		t.Requests++
		t.InputTokens += e.InputTokens
		t.OutputTokens += e.OutputTokens
		t.CachedInputTokens += e.CachedInputTokens
		t.CostUSD += e.CostUSD
	}

	out := make([]ModelTotals, 0, len(byModel))
	for _, t := range byModel {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CostUSD != out[j].CostUSD {
			return out[i].CostUSD > out[j].CostUSD
		}
		return out[i].Model < out[j].Model
	})
	return out
}
