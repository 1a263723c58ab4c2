package usage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogEntry is one completion's usage, written as a JSON line.
type LogEntry struct {
	Timestamp         time.Time `json:"timestamp"`
	ChatID            string    `json:"chat_id,omitempty"`
	UserID            string    `json:"user_id,omitempty"`
	ChatModel         string    `json:"chat_model,omitempty"`
	Model             string    `json:"model"`
	Provider          string    `json:"provider"`
	InputTokens       int       `json:"input_tokens"`
	OutputTokens      int       `json:"output_tokens"`
	CachedInputTokens int       `json:"cached_input_tokens,omitempty"`
	ReasoningTokens   int       `json:"reasoning_tokens,omitempty"`
	CostUSD           float64   `json:"cost_usd,omitempty"`
}

// Logger writes usage entries to daily JSONL files
type Logger struct {
	baseDir string
	mu      sync.Mutex
}

// NewLogger creates a Logger writing under dir.
func NewLogger(dir string) *Logger {
	return &Logger{baseDir: dir}
}

// Dir returns the log directory.
func (l *Logger) Dir() string {
	return l.baseDir
}

// Log writes a usage entry to the appropriate daily file
func (l *Logger) Log(entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	// Ensure directory exists
	if err := os.MkdirAll(l.baseDir, 0755); err != nil {
		return err
	}

	// Determine filename based on date
	date := entry.Timestamp.Format("2006-01-02")
	filename := filepath.Join(l.baseDir, date+".jsonl")

	// Open file for appending
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	// Write JSON line
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.WriteString("\n"); err != nil {
		return err
	}
	return w.Flush()
}
