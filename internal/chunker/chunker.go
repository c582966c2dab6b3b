// Package chunker splits extracted document text into bounded, overlapping
// windows that preserve sentence boundaries where possible.
package chunker

import (
	"strings"
	"unicode"

	"github.com/aero-edu/aero/internal/domain"
)

// Window is one ordered text span of the source document. Start and End are
// rune offsets into the original text; consecutive windows overlap, so the
// non-overlapping remainder of each window tiles the input without gaps.
type Window struct {
	Seq   int
	Start int
	End   int
	Text  string
}

// Chunker produces overlapping windows of at most maxSize runes. When a
// sentence boundary exists inside the window it splits there; otherwise it
// falls back to a hard cut at maxSize, which bounds the worst-case chunk
// count for text without punctuation.
type Chunker struct {
	maxSize int
	overlap float64
}

// New creates a chunker. maxSize is clamped to a sane minimum; overlap is a
// fraction of the window carried into the next one, clamped to [0, 0.5).
func New(maxSize int, overlap float64) *Chunker {
	if maxSize < 64 {
		maxSize = 64
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= 0.5 {
		overlap = 0.45
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}
}

// Split cuts text into ordered windows. Returns domain.ErrEmptyDocument when
// the text is empty after trimming. The result is finite and restartable:
// callers may range over it any number of times.
func (c *Chunker) Split(text string) ([]Window, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	runes := []rune(text)
	n := len(runes)

	var windows []Window
	pos := 0
	seq := 0
	for pos < n {
		end := pos + c.maxSize
		if end >= n {
			end = n
		} else if b := lastBoundary(runes, pos, end); b > pos {
			end = b
		}

		windows = append(windows, Window{
			Seq:   seq,
			Start: pos,
			End:   end,
			Text:  string(runes[pos:end]),
		})
		seq++

		if end == n {
			break
		}

		next := end - int(float64(end-pos)*c.overlap)
		if next <= pos {
			next = pos + 1
		}
		pos = next
	}

	return windows, nil
}

// lastBoundary returns the rune offset just past the last sentence end in
// runes[pos:end], or pos when no boundary exists in the window.
func lastBoundary(runes []rune, pos, end int) int {
	for i := end - 1; i > pos; i-- {
		if !sentenceEnd(runes[i]) {
			continue
		}
		// A terminator only counts when followed by whitespace or the
		// window edge, so "3.14" does not split.
		if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}
	return pos
}

func sentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
