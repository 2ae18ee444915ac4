package util

import (
	"strings"
	"unicode/utf8"
)

// separators is the split hierarchy: paragraph breaks first, then lines,
// then words, then a hard rune cut when nothing else fits.
var separators = []string{"\n\n", "\n", " "}

const (
	// Pages with less text than this carry no useful signal (footers, blanks).
	minPageRunes = 50
	// Residual fragments shorter than this are not worth embedding.
	minChunkRunes = 20
)

// ChunkText splits text into chunks of at most chunkSize runes, with
// consecutive chunks sharing up to overlap trailing runes. The output is a
// pure function of the inputs, so re-chunking the same text always yields
// the same sequence.
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minPageRunes {
		return nil
	}
	pieces := splitPieces(text, 0, chunkSize)
	return mergePieces(pieces, chunkSize, overlap)
}

// splitPieces breaks text into fragments of at most chunkSize runes, trying
// each separator in order before falling back to a hard cut. Separators stay
// attached to the preceding fragment so concatenation preserves the input.
func splitPieces(text string, depth, chunkSize int) []string {
	if utf8.RuneCountInString(text) <= chunkSize {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	if depth >= len(separators) {
		return hardCut(text, chunkSize)
	}
	parts := strings.SplitAfter(text, separators[depth])
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, splitPieces(p, depth+1, chunkSize)...)
	}
	return out
}

func hardCut(text string, chunkSize int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/chunkSize+1)
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// mergePieces greedily packs fragments into chunks of at most chunkSize
// runes. When a chunk fills up, trailing fragments within the overlap budget
// carry over into the next chunk.
func mergePieces(pieces []string, chunkSize, overlap int) []string {
	out := make([]string, 0)
	window := make([]string, 0, 8)
	total := 0
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > chunkSize && total > 0 {
			out = appendChunk(out, window)
			for len(window) > 0 && (total > overlap || total+n > chunkSize) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	return appendChunk(out, window)
}

func appendChunk(chunks []string, window []string) []string {
	c := strings.TrimSpace(strings.Join(window, ""))
	if utf8.RuneCountInString(c) <= minChunkRunes {
		return chunks
	}
	return append(chunks, c)
}
