// Package codec turns source documents into normalized text for chunking and
// performs format-specific reassembly of translated text. Formats are a
// closed set; adding one means registering another Codec, not branching in
// the pipeline.
package codec

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format tags the document types the pipeline understands.
type Format string

const (
	FormatPlain   Format = "plain"
	FormatCatalog Format = "catalog"
	FormatEbook   Format = "ebook"
)

// Document is the decoded, normalized form of a source document. Text is
// what gets chunked; the format-specific fields are retained read-only for
// the reassembly step.
type Document struct {
	Text   string
	Format Format

	// Catalog entries, populated only for FormatCatalog.
	Entries []*CatalogEntry

	// Book metadata, populated only for FormatEbook.
	Title  string
	Author string
}

// Codec decodes raw document bytes into a Document and re-encodes translated
// text back into the source format. Encode receives the Document produced by
// the matching Decode so it can reuse the retained structure.
type Codec interface {
	Format() Format
	Decode(data []byte) (*Document, error)
	Encode(translated string, original *Document) ([]byte, error)
}

// Registry dispatches on a document's format tag.
type Registry struct {
	codecs map[Format]Codec
}

// NewRegistry returns a registry with the three built-in codecs registered.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[Format]Codec)}
	r.register(&PlainCodec{})
	r.register(&CatalogCodec{})
	r.register(&EbookCodec{})
	return r
}

func (r *Registry) register(c Codec) {
	r.codecs[c.Format()] = c
}

// Get returns the codec for a format tag.
func (r *Registry) Get(f Format) (Codec, error) {
	c, ok := r.codecs[f]
	if !ok {
		return nil, fmt.Errorf("unsupported format: %s", f)
	}
	return c, nil
}

// DetectFormat maps a file path to its format tag by extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return FormatPlain, nil
	case ".po":
		return FormatCatalog, nil
	case ".epub":
		return FormatEbook, nil
	default:
		return "", fmt.Errorf("unsupported file type: %s (supported: .txt, .po, .epub)", filepath.Ext(path))
	}
}

// NeedsStructuralEncode reports whether reassembly requires a
// format-specific encode step beyond plain concatenation.
func NeedsStructuralEncode(f Format) bool {
	return f == FormatCatalog || f == FormatEbook
}
