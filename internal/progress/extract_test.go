package progress

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantText    string
		wantValue   float64
		hasProgress bool
	}{
		{name: "empty", input: "", wantText: ""},
		{name: "no marker", input: "no marker here", wantText: "no marker here"},
		{name: "single marker", input: "<PROGRESS>0.3</PROGRESS>", wantText: "", wantValue: 0.3, hasProgress: true},
		{
			name:        "last marker wins",
			input:       "<PROGRESS>0.2</PROGRESS>a<PROGRESS>0.9</PROGRESS>",
			wantText:    "a",
			wantValue:   0.9,
			hasProgress: true,
		},
		{name: "negative clamps to zero", input: "<PROGRESS>-5</PROGRESS>", wantText: "", wantValue: 0, hasProgress: true},
		{name: "large clamps to one", input: "<PROGRESS>99</PROGRESS>", wantText: "", wantValue: 1, hasProgress: true},
		{name: "overflowing exponent clamps", input: "<PROGRESS>1e999</PROGRESS>", wantText: "", wantValue: 1, hasProgress: true},
		{name: "signed and spaced", input: "x <PROGRESS> +0.5 </PROGRESS> y", wantText: "x  y", wantValue: 0.5, hasProgress: true},
		{
			name:     "malformed marker left untouched",
			input:    "before <PROGRESS>abc</PROGRESS> after",
			wantText: "before <PROGRESS>abc</PROGRESS> after",
		},
		{
			name:     "nan is malformed",
			input:    "<PROGRESS>NaN</PROGRESS>",
			wantText: "<PROGRESS>NaN</PROGRESS>",
		},
		{
			name:        "malformed does not override earlier valid value",
			input:       "<PROGRESS>0.4</PROGRESS>ok<PROGRESS>1.2.3</PROGRESS>",
			wantText:    "ok<PROGRESS>1.2.3</PROGRESS>",
			wantValue:   0.4,
			hasProgress: true,
		},
		{
			name:        "marker on its own line takes its line break",
			input:       "<PROGRESS>0.1</PROGRESS>\nWhat is the total count?",
			wantText:    "What is the total count?",
			wantValue:   0.1,
			hasProgress: true,
		},
		{
			name:        "markers between lines",
			input:       "Starting...\n<PROGRESS>0.1</PROGRESS>\nRunning...\n<PROGRESS>0.5</PROGRESS>  \nDone",
			wantText:    "Starting...\nRunning...\nDone",
			wantValue:   0.5,
			hasProgress: true,
		},
		{
			name:        "indented marker on its own line removes the whole line",
			input:       "Q?\n    <PROGRESS>0.5</PROGRESS>\n    indented next",
			wantText:    "Q?\n    indented next",
			wantValue:   0.5,
			hasProgress: true,
		},
		{
			name:        "indented marker followed by text keeps indentation",
			input:       "Q?\n  <PROGRESS>0.2</PROGRESS>next",
			wantText:    "Q?\n  next",
			wantValue:   0.2,
			hasProgress: true,
		},
		{
			name:        "two markers alone on one line",
			input:       "a\n\t<PROGRESS>0.2</PROGRESS> <PROGRESS>0.4</PROGRESS>\nb",
			wantText:    "a\nb",
			wantValue:   0.4,
			hasProgress: true,
		},
		{
			name:        "inline marker keeps surrounding text",
			input:       "Download progress: <PROGRESS>0.75</PROGRESS> (75% complete)",
			wantText:    "Download progress:  (75% complete)",
			wantValue:   0.75,
			hasProgress: true,
		},
		{
			name:     "unterminated marker is plain text",
			input:    "thinking <PROGRESS>0.",
			wantText: "thinking <PROGRESS>0.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.input)
			assert.Equal(t, tt.wantText, got.DisplayText)
			assert.Equal(t, tt.hasProgress, got.HasProgress)
			if tt.hasProgress {
				assert.InDelta(t, tt.wantValue, got.Progress, 1e-12)
			}
		})
	}
}

func TestExtract_AnyFloatLiteral(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := []float64{0, 1, -1, 0.5, 1e-7, 123456789, -0.25}
	for i := 0; i < 200; i++ {
		values = append(values, (rng.Float64()-0.5)*10)
	}

	for _, v := range values {
		for _, format := range []byte{'f', 'g', 'e'} {
			lit := strconv.FormatFloat(v, format, -1, 64)
			got := Extract(OpenTag + lit + CloseTag)
			require.True(t, got.HasProgress, "literal %q", lit)
			require.Empty(t, got.DisplayText, "literal %q", lit)
			require.Equal(t, math.Max(0, math.Min(1, v)), got.Progress, "literal %q", lit)
		}
	}
}

func TestExtract_GrowingText(t *testing.T) {
	full := "<PROGRESS>0.3</PROGRESS>\nGood. Now consider the case where the first digit is 3. <PROGRESS>0.5</PROGRESS>"

	var last Result
	seen := false
	for i := 1; i <= len(full); i++ {
		last = Extract(full[:i])
		assert.GreaterOrEqual(t, last.Progress, 0.0)
		assert.LessOrEqual(t, last.Progress, 1.0)
		if last.HasProgress {
			seen = true
		}
		if seen {
			assert.True(t, last.HasProgress, "progress disappeared at prefix %d", i)
		}
	}
	assert.True(t, last.HasProgress)
	assert.Equal(t, 0.5, last.Progress)
	assert.False(t, strings.Contains(last.DisplayText, OpenTag))
}

func TestCompleteAndPercent(t *testing.T) {
	assert.True(t, Extract("<PROGRESS>1.0</PROGRESS>done").Complete())
	assert.True(t, Extract("<PROGRESS>3</PROGRESS>").Complete())
	assert.False(t, Extract("<PROGRESS>0.9</PROGRESS>").Complete())
	assert.False(t, Extract("nothing").Complete())

	assert.Equal(t, 0, Percent(-1))
	assert.Equal(t, 33, Percent(0.333))
	assert.Equal(t, 100, Percent(4))
}

func TestFormatRoundTrip(t *testing.T) {
	got := Extract("step " + Format(0.7))
	assert.Equal(t, "step ", got.DisplayText)
	assert.Equal(t, 0.7, got.Progress)
	assert.Equal(t, "<PROGRESS>1.0</PROGRESS>", Format(2))
	assert.Equal(t, "<PROGRESS>0.0</PROGRESS>", Format(-1))
	assert.Equal(t, "<PROGRESS>0.35</PROGRESS>", Format(0.35))
}
