package glossary

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type fakeGenerator struct {
	outputs map[string]string // substring of prompt -> output
	err     error
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	for needle, out := range f.outputs {
		if strings.Contains(prompt, needle) {
			return out, nil
		}
	}
	return "unmatched", nil
}

func TestDerive(t *testing.T) {
	gen := &fakeGenerator{outputs: map[string]string{
		"extract all critical entities": `{"Kyiv": {"context": "capital city", "suggested_translation": "Київ"}}`,
		"generate a comprehensive style guide": "Formal tone. Address the reader as an expert.",
	}}

	meta, err := Derive(context.Background(), gen, "Some document preview about Kyiv.", "Ukrainian", 1.0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !meta.Complete() {
		t.Fatalf("expected complete metadata, got %+v", meta)
	}
	if !strings.Contains(meta.Entities, "Київ") {
		t.Errorf("entities missing expected term: %q", meta.Entities)
	}
	if !strings.Contains(meta.Style, "Formal tone") {
		t.Errorf("style missing expected text: %q", meta.Style)
	}
}

func TestDerive_GenerationFailureIsFatal(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	if _, err := Derive(context.Background(), gen, "preview", "uk", 1.0); err == nil {
		t.Error("expected error when generation fails")
	}
}

func TestMetadata_Complete(t *testing.T) {
	if (&Metadata{Entities: "{}", Style: ""}).Complete() {
		t.Error("metadata with empty style should not be complete")
	}
	if (&Metadata{Entities: "  ", Style: "x"}).Complete() {
		t.Error("whitespace entities should not count as present")
	}
	if !(&Metadata{Entities: "{}", Style: "formal"}).Complete() {
		t.Error("expected complete")
	}
}

func TestMergeTerms_JSONDictionary(t *testing.T) {
	entities := `{"Kyiv": {"context": "city", "suggested_translation": "Киев"}}`
	merged := MergeTerms(entities, map[string]string{
		"Kyiv":  "Київ",
		"chunk": "фрагмент",
	})

	var dict map[string]Entity
	if err := json.Unmarshal([]byte(merged), &dict); err != nil {
		t.Fatalf("merged output is not JSON: %v\n%s", err, merged)
	}
	// The user term overrides the extracted suggestion.
	if dict["Kyiv"].SuggestedTranslation != "Київ" {
		t.Errorf("expected user term to win, got %q", dict["Kyiv"].SuggestedTranslation)
	}
	if dict["chunk"].SuggestedTranslation != "фрагмент" {
		t.Errorf("expected new term added, got %+v", dict["chunk"])
	}
}

func TestMergeTerms_FencedJSON(t *testing.T) {
	entities := "```json\n{\"Kyiv\": {\"context\": \"city\", \"suggested_translation\": \"Киев\"}}\n```"
	merged := MergeTerms(entities, map[string]string{"Kyiv": "Київ"})

	var dict map[string]Entity
	if err := json.Unmarshal([]byte(merged), &dict); err != nil {
		t.Fatalf("merged output is not JSON: %v\n%s", err, merged)
	}
	if dict["Kyiv"].SuggestedTranslation != "Київ" {
		t.Errorf("expected user term to win, got %q", dict["Kyiv"].SuggestedTranslation)
	}
}

func TestMergeTerms_NullDictionary(t *testing.T) {
	// A model can answer the extraction prompt with a bare JSON null, which
	// decodes into a nil map. The user terms must still come through.
	for _, entities := range []string{"null", "```json\nnull\n```"} {
		merged := MergeTerms(entities, map[string]string{"Widget": "Віджет"})

		var dict map[string]Entity
		if err := json.Unmarshal([]byte(merged), &dict); err != nil {
			t.Fatalf("merged output is not JSON: %v\n%s", err, merged)
		}
		if dict["Widget"].SuggestedTranslation != "Віджет" {
			t.Errorf("user term missing after merge of %q, got %+v", entities, dict)
		}
	}
}

func TestMergeTerms_NonJSONFallsBackToAppend(t *testing.T) {
	entities := "The document mentions Kyiv and several technical terms."
	merged := MergeTerms(entities, map[string]string{"Kyiv": "Київ"})

	if !strings.Contains(merged, entities) {
		t.Error("original entities text should be preserved")
	}
	if !strings.Contains(merged, "Kyiv: Київ") {
		t.Errorf("user term should be appended, got:\n%s", merged)
	}
}

func TestMergeTerms_NoTerms(t *testing.T) {
	entities := `{"a": {"context": "", "suggested_translation": "b"}}`
	if got := MergeTerms(entities, nil); got != entities {
		t.Errorf("expected unchanged entities, got %q", got)
	}
}
