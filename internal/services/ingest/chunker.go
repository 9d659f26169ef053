package ingest

import (
	"strings"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 100
)

// chunkSeparators are tried in order when looking for a cut point, so
// paragraph breaks win over line breaks, and line breaks over spaces.
var chunkSeparators = []string{"\n\n", "\n", " "}

// ChunkText splits text into chunks of at most size characters with
// roughly overlap characters shared between neighbours. Cuts land on the
// best separator inside the window; a chunk never starts mid-word.
func ChunkText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
		if overlap >= size {
			overlap = size / 10
		}
	}

	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		if len(text)-start <= size {
			if chunk := strings.TrimSpace(text[start:]); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := cutPoint(text, start, start+size)
		if chunk := strings.TrimSpace(text[start:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		start = nextStart(text, start, cut, overlap)
	}

	return chunks
}

// cutPoint finds where to end the chunk beginning at start, preferring
// the last separator before the size limit and falling back to a hard
// cut on a rune boundary.
func cutPoint(text string, start, limit int) int {
	window := text[start:limit]
	for _, sep := range chunkSeparators {
		if i := strings.LastIndex(window, sep); i > 0 {
			return start + i + len(sep)
		}
	}

	// No separator in the window, cut at the limit without splitting a rune
	for limit > start+1 && text[limit]&0xC0 == 0x80 {
		limit--
	}
	return limit
}

// nextStart rewinds by the overlap from the cut, then moves forward to
// the next word boundary so the following chunk starts cleanly. When the
// overlap window holds no boundary the next chunk starts at the cut.
func nextStart(text string, start, cut, overlap int) int {
	next := cut - overlap
	if next <= start {
		return cut
	}
	if next > 0 && !isBoundary(text[next-1]) {
		if i := strings.IndexAny(text[next:cut], " \n\t"); i >= 0 {
			return next + i + 1
		}
		return cut
	}
	return next
}

func isBoundary(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}
