// Package glossary produces and manipulates the document-level translation
// metadata: the entity dictionary and the style instructions shared by every
// chunk prompt of a session.
package glossary

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/doctran/internal/generate"
	"github.com/valpere/doctran/internal/prompt"
)

// Metadata carries the two artifacts extracted from (or supplied for) a
// document before chunk translation starts.
type Metadata struct {
	Entities string // JSON dictionary: term -> {context, suggested_translation}
	Style    string
}

// Complete reports whether both parts are present.
func (m *Metadata) Complete() bool {
	return strings.TrimSpace(m.Entities) != "" && strings.TrimSpace(m.Style) != ""
}

// Entity is one entry of the entity dictionary.
type Entity struct {
	Context              string `json:"context"`
	SuggestedTranslation string `json:"suggested_translation"`
}

// Derive extracts entities and style instructions from a document preview.
// Both generations must succeed; metadata failures abort the session before
// any chunk work starts.
func Derive(ctx context.Context, gen generate.Generator, preview, targetLanguage string, temperature float64) (*Metadata, error) {
	entities, err := gen.Generate(ctx, prompt.EntityExtraction(preview, targetLanguage), temperature)
	if err != nil {
		return nil, fmt.Errorf("entity extraction failed: %w", err)
	}
	style, err := gen.Generate(ctx, prompt.StyleGuide(preview, targetLanguage), temperature)
	if err != nil {
		return nil, fmt.Errorf("style guide extraction failed: %w", err)
	}
	return &Metadata{Entities: entities, Style: style}, nil
}

// MergeTerms folds user-defined glossary terms into the entity dictionary.
// User terms win over extracted ones. When the extracted dictionary is not
// valid JSON (models sometimes wrap it in prose) the terms are appended as
// plain dictionary lines instead, so they still reach the prompt.
func MergeTerms(entities string, terms map[string]string) string {
	if len(terms) == 0 {
		return entities
	}

	var dict map[string]Entity
	if err := json.Unmarshal([]byte(stripCodeFence(entities)), &dict); err == nil {
		if dict == nil {
			// A bare JSON null decodes without error but leaves the map nil.
			dict = make(map[string]Entity, len(terms))
		}
		for src, tgt := range terms {
			dict[src] = Entity{Context: "user glossary", SuggestedTranslation: tgt}
		}
		merged, err := json.MarshalIndent(dict, "", "  ")
		if err == nil {
			return string(merged)
		}
	}

	var sb strings.Builder
	sb.WriteString(entities)
	sb.WriteString("\n\nUser glossary (always use these translations):\n")
	keys := make([]string, 0, len(terms))
	for src := range terms {
		keys = append(keys, src)
	}
	sort.Strings(keys)
	for _, src := range keys {
		fmt.Fprintf(&sb, "  %s: %s\n", src, terms[src])
	}
	return sb.String()
}

// stripCodeFence removes a surrounding markdown code fence if present, a
// frequent artifact around JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
