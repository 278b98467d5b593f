// Package prompt holds the prompt templates of the translation pipeline:
// entity extraction, style guide extraction, and the per-chunk translation
// prompt. Composition is deterministic text substitution; all model-facing
// wording lives here.
package prompt

import (
	"strings"
	"text/template"

	"github.com/valpere/doctran/internal/codec"
)

var entityExtractionTmpl = template.Must(template.New("entities").Parse(`
Analyze the provided document below. Your task is to extract all critical entities that require consistent translation into {{.TargetLanguage}}.

**Entities to Extract:**
* **Named Entities:** People, geographic locations, organizations.
* **Terminology:** Technical terms, specialized vocabulary, domain-specific jargon.
* **Branding:** Product names, brand names, trademarks.
* **Abbreviations:** Acronyms and initialisms.

**Output Format:**
Return ONLY a JSON dictionary.
* **Key:** The source term as it appears in the text.
* **Value:** An object containing:
    * "context": A brief description of how the term is used.
    * "suggested_translation": The recommended translation only in {{.TargetLanguage}}.

**Document Content:**
{{.Text}}
`))

var styleGuideTmpl = template.Must(template.New("style").Parse(`
Analyze the provided document below. Your task is to generate a comprehensive style guide for its translation to {{.TargetLanguage}}.

**Style Guide Components:**
* **Tone & Voice:** Define the formality level (e.g., highly technical, casual, persuasive) and emotional resonance.
* **Target Audience:** Identify who will read this text and their expected knowledge level.
* **Convention & Formatting:** Note any specific formatting rules, capitalization preferences, or structural requirements typical for this document type.
* **Cultural Nuances:** Highlight any cultural references, idioms, or sensitivities that must be adapted for the target locale ({{.TargetLanguage}}).

**Document Content:**
{{.Text}}

**Output:** Provide clear, actionable style instructions that a human or AI translator can follow.
`))

var translationTmpl = template.Must(template.New("translation").Parse(`
# Translation Task (Chunk {{.ChunkNum}} of {{.TotalChunks}})

**Objective:** Translate the source content below into {{.TargetLanguage}} while preserving the original format.
**Constraints:** You MUST strictly adhere to the provided Entity Dictionary and Style Guide.

## 1. Format Instructions
{{.TypeInstruction}}

## 2. Style Guide
{{.Style}}

## 3. Entity Dictionary (Strict Adherence Required)
*Use these exact translations for the following terms:*
{{.Entities}}

## 4. Source Content
---
{{.Chunk}}
---

**Output:** Return ONLY the translated text. Preserve original format exactly. Do not include preamble or explanations.
`))

// typeInstructions carry format-specific constraints into the translation
// prompt.
var typeInstructions = map[codec.Format]string{
	codec.FormatPlain:   "Plain text document. Maintain paragraph structure and formatting.",
	codec.FormatCatalog: "PO (Portable Object) translation file rendering. Preserve the entry structure, section markers, and formatting markers. Translate only the Translation fields.",
	codec.FormatEbook:   "EPUB ebook in HTML format. Preserve ALL HTML tags, attributes, and structure. Do not escape HTML entities. Maintain all formatting tags like <p>, <h1>, <div>, <em>, <strong>, etc.",
}

// TypeInstruction returns the format-specific instruction paragraph.
func TypeInstruction(f codec.Format) string {
	if inst, ok := typeInstructions[f]; ok {
		return inst
	}
	return "Document content."
}

type textData struct {
	Text           string
	TargetLanguage string
}

// EntityExtraction renders the entity extraction prompt for a document
// preview.
func EntityExtraction(text, targetLanguage string) string {
	return render(entityExtractionTmpl, textData{Text: text, TargetLanguage: targetLanguage})
}

// StyleGuide renders the style guide extraction prompt for a document
// preview.
func StyleGuide(text, targetLanguage string) string {
	return render(styleGuideTmpl, textData{Text: text, TargetLanguage: targetLanguage})
}

// TranslationData feeds the per-chunk translation prompt.
type TranslationData struct {
	ChunkNum        int
	TotalChunks     int
	TargetLanguage  string
	TypeInstruction string
	Entities        string
	Style           string
	Chunk           string
}

// Translation renders the translation prompt for one chunk.
func Translation(data TranslationData) string {
	return render(translationTmpl, data)
}

func render(t *template.Template, data any) string {
	var b strings.Builder
	// The templates only reference fields of the data structs passed above,
	// so execution cannot fail.
	_ = t.Execute(&b, data)
	return strings.TrimSpace(b.String()) + "\n"
}
