package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// splitSeparators orders the boundaries the splitter prefers: paragraph
// breaks, then line breaks, then word breaks. The empty string stands for
// the rune-level fallback when nothing else occurs in the text.
var splitSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts page text into chunks of at most chunkSize runes, breaking
// at the coarsest boundary that still fits. Adjacent chunks share up to
// overlap runes so sentences cut at a boundary stay searchable in both.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter validates the chunk geometry. Overlap must leave room for
// new content in every chunk, so it has to be smaller than the chunk size.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("ingest: chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("ingest: chunk overlap must be in [0, chunk size), got %d", overlap)
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split cuts text into chunks. Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.split(text, splitSeparators)
}

func (s *Splitter) split(text string, seps []string) []string {
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}

	sep, rest := pickSeparator(text, seps)
	if sep == "" {
		return s.cutRunes(text)
	}

	// Pieces longer than a whole chunk get re-split at the next finer
	// boundary before merging.
	var units []string
	for piece := range strings.SplitSeq(text, sep) {
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) > s.chunkSize {
			units = append(units, s.split(piece, rest)...)
			continue
		}
		units = append(units, piece)
	}
	return s.merge(units, sep)
}

// pickSeparator returns the first separator occurring in text, plus the
// finer ones after it for re-splitting oversized pieces.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			break
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

// merge packs units into chunks of at most chunkSize runes, rejoined with
// the separator they were split on. When a chunk fills up, the next one
// starts with the trailing units that fit in the overlap window.
func (s *Splitter) merge(units []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	var chunks []string
	var cur []string
	curLen := 0

	flush := func() {
		chunks = append(chunks, strings.Join(cur, sep))
		for len(cur) > 0 && curLen > s.overlap {
			curLen -= utf8.RuneCountInString(cur[0])
			if len(cur) > 1 {
				curLen -= sepLen
			}
			cur = cur[1:]
		}
	}

	for _, u := range units {
		uLen := utf8.RuneCountInString(u)
		need := uLen
		if len(cur) > 0 {
			need += sepLen
		}
		if curLen+need > s.chunkSize && len(cur) > 0 {
			flush()
			need = uLen
			if len(cur) > 0 {
				need += sepLen
			}
			// An overlap seed never forces an oversized chunk.
			if curLen+need > s.chunkSize {
				cur = nil
				curLen = 0
				need = uLen
			}
		}
		cur = append(cur, u)
		curLen += need
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, sep))
	}
	return chunks
}

// cutRunes is the last resort for text with no separators at all: fixed
// rune windows advancing by chunkSize minus overlap.
func (s *Splitter) cutRunes(text string) []string {
	runes := []rune(text)
	step := s.chunkSize - s.overlap

	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.chunkSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
