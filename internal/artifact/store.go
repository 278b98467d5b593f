// Package artifact abstracts the durable staged storage behind the pipeline.
// Every pipeline stage writes its output here before advancing, under
// deterministic keys namespaced by session, so any run is independently
// retryable and externally observable. Each key has exactly one writer
// (stage × sequence), so backends need no locking across stages.
package artifact

import (
	"context"
	"fmt"
	"time"
)

// Store is a durable key→bytes store with prefix listing. Keys use forward
// slashes regardless of backend. Writes are idempotent: re-writing a key
// overwrites it.
type Store interface {
	// Put writes data under key and returns an opaque locator for it.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get reads the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all stored keys with the given prefix, sorted
	// lexicographically. Zero-padded sequence numbers in the key scheme make
	// this the chunk processing order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key holds an artifact.
	Exists(ctx context.Context, key string) (bool, error)

	// Locator returns the opaque locator for key without writing anything.
	Locator(key string) string

	// SignedURL returns a time-limited URL granting read access to key, for
	// handing artifacts to external collaborators. Backends without signing
	// support return the plain locator.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Session artifact layout. Chunk-indexed stages use 4-digit zero-padded
// sequence numbers so lexicographic listing equals numeric order.
const (
	entitiesName = "entity_extraction.txt"
	styleName    = "style_instructions.txt"

	chunksDir  = "original_chunks"
	promptsDir = "prompts_for_translation"
	resultsDir = "translated_chunks"

	chunkPrefix      = "original_chunk_"
	promptPrefix     = "translation_prompt_chunk_"
	translatedPrefix = "translated_chunk_"
	finalPrefix      = "final_translated_chunk_"
	markerPrefix     = "markers_chunk_"
)

// EntitiesKey is the singleton key for the entity glossary artifact.
func EntitiesKey(sessionID string) string {
	return sessionID + "/" + entitiesName
}

// StyleKey is the singleton key for the style instructions artifact.
func StyleKey(sessionID string) string {
	return sessionID + "/" + styleName
}

// ChunkKey addresses the original text of chunk index (1-based).
func ChunkKey(sessionID string, index int) string {
	return fmt.Sprintf("%s/%s/%s%04d.txt", sessionID, chunksDir, chunkPrefix, index)
}

// PromptKey addresses the composed translation prompt for chunk index.
func PromptKey(sessionID string, index int) string {
	return fmt.Sprintf("%s/%s/%s%04d.txt", sessionID, promptsDir, promptPrefix, index)
}

// MarkerKey addresses the markup protection marker table for chunk index.
func MarkerKey(sessionID string, index int) string {
	return fmt.Sprintf("%s/%s/%s%04d.json", sessionID, promptsDir, markerPrefix, index)
}

// TranslatedKey addresses the raw generated translation of chunk index.
func TranslatedKey(sessionID string, index int) string {
	return fmt.Sprintf("%s/%s/%s%04d.txt", sessionID, resultsDir, translatedPrefix, index)
}

// FinalKey addresses the final (validated or fallback) content of chunk
// index. Reassembly lists this prefix only, so the contract is uniform
// whether or not validation ran.
func FinalKey(sessionID string, index int) string {
	return fmt.Sprintf("%s/%s/%s%04d.txt", sessionID, resultsDir, finalPrefix, index)
}

// PromptsPrefix lists all prompts of a session.
func PromptsPrefix(sessionID string) string {
	return sessionID + "/" + promptsDir + "/" + promptPrefix
}

// FinalsPrefix lists all final chunk artifacts of a session.
func FinalsPrefix(sessionID string) string {
	return sessionID + "/" + resultsDir + "/" + finalPrefix
}

// FinalDocumentKey is the root-level concatenated document artifact.
func FinalDocumentKey(sessionID, originalBasename string) string {
	return sessionID + "/FINAL_" + originalBasename
}

// AssembledKey is the format-specific re-encoded artifact (catalog, ebook).
func AssembledKey(sessionID, assembledBasename string) string {
	return sessionID + "/assembled_" + assembledBasename
}
