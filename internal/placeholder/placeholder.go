// Package placeholder shields markup from translation. Protect swaps HTML
// tags, fenced code blocks, and inline code spans for numbered [PHn] markers
// the model is told to keep verbatim; Restore swaps them back afterwards.
// Captured markers serialize to JSON so they can live alongside the other
// session artifacts between the two calls.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reFencedCode = regexp.MustCompile("(?s)```.*?```")
	reInlineCode = regexp.MustCompile("`[^`]+`")
	reTag        = regexp.MustCompile(`<[^>]+>`)
	reMarker     = regexp.MustCompile(`\[PH(\d+)\]`)
)

// Markers holds the protected fragments in capture order. Index i restores
// marker [PHi].
type Markers []string

// Protect replaces markup in text with [PH0], [PH1], ... markers. Fenced
// blocks are captured before inline code and tags so the longest spans win.
func Protect(text string) (string, Markers) {
	var markers Markers
	capture := func(match string) string {
		id := fmt.Sprintf("[PH%d]", len(markers))
		markers = append(markers, match)
		return id
	}
	text = reFencedCode.ReplaceAllStringFunc(text, capture)
	text = reInlineCode.ReplaceAllStringFunc(text, capture)
	text = reTag.ReplaceAllStringFunc(text, capture)
	return text, markers
}

// Restore replaces [PHn] markers with the captured fragments. Markers the
// model dropped simply stay absent; indices it invented stay as written.
func Restore(text string, markers Markers) string {
	return reMarker.ReplaceAllStringFunc(text, func(match string) string {
		sub := reMarker.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx < 0 || idx >= len(markers) {
			return match
		}
		return markers[idx]
	})
}

// Missing reports the indices of markers no longer present in text.
func Missing(text string, markers Markers) []int {
	var missing []int
	for i := range markers {
		if !strings.Contains(text, fmt.Sprintf("[PH%d]", i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

// Hint is appended to translation prompts when protection is active.
func Hint() string {
	return "Preserve all [PHn] markers exactly as they appear. Do not translate, move, or remove them."
}
