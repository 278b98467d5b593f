// Package chunker splits normalized document text into translatable chunks
// at natural boundaries. The split is lossless: concatenating the returned
// chunks in order reproduces the input exactly, with no trimming and no
// inserted separators, so downstream reassembly is a plain join.
package chunker

import (
	"fmt"
)

// minBoundaryRatio is the floor for an acceptable break point, measured from
// the chunk start as a fraction of maxSize. Boundaries before the floor are
// ignored so chunks don't collapse far below the configured size.
const minBoundaryRatio = 0.7

// sentenceEndings are the two-character sequences treated as sentence
// terminators. The cut lands immediately after the full two characters.
var sentenceEndings = [][2]rune{
	{'.', ' '}, {'!', ' '}, {'?', ' '},
	{'.', '\n'}, {'!', '\n'}, {'?', '\n'},
}

// Chunk splits text into pieces of at most maxSize characters (unicode code
// points). Break points are chosen in priority order within each window,
// gated by a floor of minBoundaryRatio×maxSize from the chunk start:
//
//  1. paragraph break (double newline)
//  2. single newline
//  3. sentence terminator (". ", "! ", "? ", or terminator+newline)
//  4. space
//  5. hard cut at exactly maxSize (may split a word)
//
// Text that already fits in maxSize is returned unmodified as a single
// chunk. An error is returned only for maxSize <= 0.
func Chunk(text string, maxSize int) ([]string, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", maxSize)
	}

	runes := []rune(text)
	if len(runes) <= maxSize {
		return []string{text}, nil
	}

	var chunks []string
	pos := 0
	for len(runes)-pos > maxSize {
		end := findBoundary(runes, pos, maxSize)
		chunks = append(chunks, string(runes[pos:end]))
		pos = end
	}
	chunks = append(chunks, string(runes[pos:]))

	return chunks, nil
}

// findBoundary returns the end position (exclusive, in runes) of the chunk
// starting at pos. The caller guarantees more than maxSize runes remain.
func findBoundary(runes []rune, pos, maxSize int) int {
	window := runes[pos : pos+maxSize]
	floor := int(float64(maxSize) * minBoundaryRatio)

	// 1. Paragraph break.
	if i := lastAt(window, floor, func(w []rune, i int) bool {
		return i+1 < len(w) && w[i] == '\n' && w[i+1] == '\n'
	}); i >= 0 {
		return pos + i + 2
	}

	// 2. Single newline.
	if i := lastAt(window, floor, func(w []rune, i int) bool {
		return w[i] == '\n'
	}); i >= 0 {
		return pos + i + 1
	}

	// 3. Sentence terminator.
	if i := lastAt(window, floor, func(w []rune, i int) bool {
		if i+1 >= len(w) {
			return false
		}
		for _, e := range sentenceEndings {
			if w[i] == e[0] && w[i+1] == e[1] {
				return true
			}
		}
		return false
	}); i >= 0 {
		return pos + i + 2
	}

	// 4. Space.
	if i := lastAt(window, floor, func(w []rune, i int) bool {
		return w[i] == ' '
	}); i >= 0 {
		return pos + i + 1
	}

	// 5. Hard cut.
	return pos + maxSize
}

// lastAt returns the largest index i >= floor in window for which match
// holds, or -1 when no position qualifies.
func lastAt(window []rune, floor int, match func([]rune, int) bool) int {
	for i := len(window) - 1; i >= floor; i-- {
		if match(window, i) {
			return i
		}
	}
	return -1
}
