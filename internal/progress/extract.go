// Package progress extracts <PROGRESS>value</PROGRESS> markers from
// streamed assistant text.
package progress

import (
	"bytes"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	OpenTag  = "<PROGRESS>"
	CloseTag = "</PROGRESS>"
)

var (
	markerRe  = regexp.MustCompile(`<PROGRESS>([^<]*)</PROGRESS>`)
	numericRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

// Result is the outcome of scanning a text snapshot.
type Result struct {
	// DisplayText is the input with every recognized marker removed.
	DisplayText string
	// Progress is the clamped value of the last valid marker.
	// Only meaningful when HasProgress is true.
	Progress float64
	// HasProgress is false when no valid marker was found.
	HasProgress bool
}

// Complete reports whether the result signals a finished exercise.
func (r Result) Complete() bool {
	return r.HasProgress && r.Progress >= 1
}

// Clamp limits v to [0, 1].
func Clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Percent converts a progress value to a rounded percentage in [0, 100].
func Percent(v float64) int {
	return int(math.Round(Clamp(v) * 100))
}

// Format renders a clamped value as a marker span, always with a
// fractional digit ("0.0", "0.3", "1.0").
func Format(v float64) string {
	lit := strconv.FormatFloat(Clamp(v), 'f', -1, 64)
	if !strings.Contains(lit, ".") {
		lit += ".0"
	}
	return OpenTag + lit + CloseTag
}

// Extract scans text for progress markers. Malformed markers are left in
// the display text and ignored. The function is pure; callers re-run it on
// the full accumulated text after every streamed chunk.
func Extract(text string) Result {
	matches := markerRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Result{DisplayText: text}
	}

	var (
		out    = make([]byte, 0, len(text))
		res    Result
		cursor int
	)

	for _, m := range matches {
		start, end := m[0], m[1]
		value, ok := parseLiteral(text[m[2]:m[3]])
		if !ok {
			continue
		}
		res.Progress = Clamp(value)
		res.HasProgress = true

		out = append(out, text[cursor:start]...)
		cursor = end
		if !startsLine(out) {
			continue
		}
		// A marker alone on its line takes the whole line with it,
		// indentation included.
		if next := skipLineRest(text, end); next != end {
			cursor = next
			out = out[:lineStart(out)]
		}
	}
	out = append(out, text[cursor:]...)
	res.DisplayText = string(out)
	return res
}

// Strip returns text with all valid markers removed.
func Strip(text string) string {
	return Extract(text).DisplayText
}

func parseLiteral(raw string) (float64, bool) {
	lit := strings.TrimSpace(raw)
	if !numericRe.MatchString(lit) {
		return 0, false
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		// Overflowing exponents come back as ±Inf, which still clamps.
		if errors.Is(err, strconv.ErrRange) {
			return v, true
		}
		return 0, false
	}
	return v, true
}

// startsLine reports whether only horizontal whitespace follows the last
// line break in out.
func startsLine(out []byte) bool {
	for i := len(out) - 1; i >= 0; i-- {
		switch out[i] {
		case ' ', '\t':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// lineStart returns the offset just past the last line break in out.
func lineStart(out []byte) int {
	return bytes.LastIndexByte(out, '\n') + 1
}

// skipLineRest returns the position after trailing horizontal whitespace and
// one line break following pos. If anything else follows on the line, pos is
// returned unchanged.
func skipLineRest(text string, pos int) int {
	i := pos
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	if i < len(text) && text[i] == '\r' {
		i++
	}
	if i < len(text) && text[i] == '\n' {
		return i + 1
	}
	return pos
}
