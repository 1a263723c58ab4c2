package chat

import "regexp"

var wordChunkRe = regexp.MustCompile(`\S+\s+`)

// wordChunker re-chunks streamed text so each delta is a whole word plus its
// trailing whitespace.
type wordChunker struct {
	buf string
}

// Push appends text and returns the complete words now available.
func (c *wordChunker) Push(text string) []string {
	c.buf += text
	var out []string
	for {
		loc := wordChunkRe.FindStringIndex(c.buf)
		if loc == nil {
			return out
		}
		// Leading whitespace travels with the first word.
		out = append(out, c.buf[:loc[1]])
		c.buf = c.buf[loc[1]:]
	}
}

// Flush returns whatever text is still buffered.
func (c *wordChunker) Flush() string {
	rest := c.buf
	c.buf = ""
	return rest
}
