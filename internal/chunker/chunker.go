package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// ErrChunkConfig is returned when the chunk size / overlap combination is
// invalid. Configuration errors are rejected before any processing and are
// never retried.
var ErrChunkConfig = errors.New("invalid chunker configuration")

// Chunk is one bounded segment of a source document. Start and End are byte
// offsets into the original text; Overlap is the number of trailing bytes
// shared with the predecessor chunk.
type Chunk struct {
	Index   int
	Text    string
	Start   int
	End     int
	Overlap int
}

// Splitter splits raw text into overlapping, bounded-size chunks. Split
// points prefer paragraph and sentence boundaries near the size limit; when
// no boundary exists within the tolerance window it falls back to a
// whitespace cut and finally a hard cut at the limit.
type Splitter struct {
	maxChunkSize int
	overlap      int
	sentenceRe   *regexp.Regexp
	paragraphRe  *regexp.Regexp
}

// New validates the configuration and returns a Splitter.
// Requires 0 <= overlap < maxChunkSize.
func New(maxChunkSize, overlap int) (*Splitter, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("%w: max chunk size must be positive, got %d", ErrChunkConfig, maxChunkSize)
	}
	if overlap < 0 || overlap >= maxChunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrChunkConfig, overlap, maxChunkSize)
	}

	return &Splitter{
		maxChunkSize: maxChunkSize,
		overlap:      overlap,
		sentenceRe:   regexp.MustCompile(`[.!?]+\s+`),
		paragraphRe:  regexp.MustCompile(`\n\s*\n`),
	}, nil
}

// Split chunks text into consecutive segments of length <= maxChunkSize.
// Each chunk after the first starts with the trailing overlap bytes of its
// predecessor, so concatenating the non-overlapping spans reconstructs the
// input exactly. Cut positions always fall on UTF-8 rune boundaries, which
// may shrink the effective overlap at a boundary inside a multi-byte rune;
// each Chunk records the overlap it actually carries. Empty input yields no
// chunks.
func (s *Splitter) Split(text string) []Chunk {
	if len(text) == 0 {
		return nil
	}

	if len(text) <= s.maxChunkSize {
		return []Chunk{{Index: 0, Text: text, Start: 0, End: len(text)}}
	}

	var chunks []Chunk
	start := 0

	for start < len(text) {
		// Progress floor: each chunk must end strictly past its
		// predecessor, or the overlap regions stop reconstructing.
		prevEnd := start
		if n := len(chunks); n > 0 {
			prevEnd = chunks[n-1].End
		}

		end := start + s.maxChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = prevRuneStart(text, s.findSplitPoint(text, start, end))
			if end <= prevEnd {
				_, n := utf8.DecodeRuneInString(text[prevEnd:])
				end = prevEnd + n
			}
		}

		overlap := prevEnd - start

		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Text:    text[start:end],
			Start:   start,
			End:     end,
			Overlap: overlap,
		})

		if end == len(text) {
			break
		}
		next := nextRuneStart(text, end-s.overlap)
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// findSplitPoint returns the cut position for a chunk spanning [start, target).
// Priority: paragraph boundary > sentence boundary > whitespace > hard cut,
// searched within the tolerance window ending at target. The cut is kept
// strictly past start+overlap so every chunk is non-empty and the walk
// always advances.
func (s *Splitter) findSplitPoint(text string, start, target int) int {
	window := s.toleranceWindow(target - start)
	floor := target - window
	if min := start + s.overlap + 1; floor < min {
		floor = min
	}
	if floor >= target {
		return target
	}

	segment := text[floor:target]

	// Paragraph boundaries first: cut before the blank line.
	if locs := s.paragraphRe.FindAllStringIndex(segment, -1); len(locs) > 0 {
		return floor + locs[len(locs)-1][0]
	}

	// Then sentence endings: cut after the terminator and its whitespace.
	if locs := s.sentenceRe.FindAllStringIndex(segment, -1); len(locs) > 0 {
		return floor + locs[len(locs)-1][1]
	}

	// Then any whitespace.
	for i := target - 1; i >= floor; i-- {
		if text[i] == ' ' || text[i] == '\n' || text[i] == '\t' {
			return i
		}
	}

	return target
}

// prevRuneStart walks pos back to the nearest rune boundary at or before it.
func prevRuneStart(text string, pos int) int {
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}

// nextRuneStart walks pos forward to the nearest rune boundary at or after it.
func nextRuneStart(text string, pos int) int {
	if pos < 0 {
		pos = 0
	}
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}

func (s *Splitter) toleranceWindow(span int) int {
	window := span / 4
	if window > 200 {
		window = 200
	}
	return window
}

// Reassemble joins chunks back into the original text by dropping each
// chunk's leading overlap. Used by tests to verify the coverage invariant.
func Reassemble(chunks []Chunk) string {
	var out []byte
	for _, c := range chunks {
		out = append(out, c.Text[c.Overlap:]...)
	}
	return string(out)
}
