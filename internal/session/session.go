// Package session defines the per-run configuration and observable state of
// a translation pipeline session. A Session is immutable once created; its
// State is mutated only by the pipeline and read by status queries.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Defaults mirrored from the reference deployment.
const (
	DefaultMaxChunkSize        = 30000
	DefaultMetadataPreviewSize = 30000
	DefaultTemperature         = 1.0
	DefaultConcurrency         = 4
)

// Error kinds surfaced by the pipeline. Fatal kinds stop the state machine;
// recoverable kinds (validation, reassembly encode) are handled chunk- or
// stage-locally and never abort a run.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrDecode        = errors.New("decode error")
	ErrChunking      = errors.New("chunking error")
	ErrGeneration    = errors.New("generation failure")
	ErrValidation    = errors.New("validation failure")
	ErrReassembly    = errors.New("reassembly encode failure")
)

// Session holds everything one pipeline run needs. Create with New, which
// validates the target language and applies defaults.
type Session struct {
	ID             string
	SourceFile     string
	TargetLanguage string

	MaxChunkSize        int
	MetadataPreviewSize int
	MaxNumberOfChunks   int // 0 = unlimited

	Model       string
	Temperature float64

	UseValidation bool
	ProtectMarkup bool
	Concurrency   int
	CreatedAt     time.Time
}

// New builds a Session with a fresh identifier. targetLanguage may be a BCP 47
// tag ("uk", "pt-BR") or a plain language name ("Ukrainian"); tags are
// validated, names are passed through for the prompt templates.
func New(sourceFile, targetLanguage string) (*Session, error) {
	if sourceFile == "" {
		return nil, fmt.Errorf("%w: source file is required", ErrConfiguration)
	}
	if strings.TrimSpace(targetLanguage) == "" {
		return nil, fmt.Errorf("%w: target language is required", ErrConfiguration)
	}
	if looksLikeTag(targetLanguage) {
		if _, err := language.Parse(targetLanguage); err != nil {
			return nil, fmt.Errorf("%w: invalid target language tag %q: %v", ErrConfiguration, targetLanguage, err)
		}
	}

	return &Session{
		ID:                  strings.ReplaceAll(uuid.New().String(), "-", ""),
		SourceFile:          sourceFile,
		TargetLanguage:      targetLanguage,
		MaxChunkSize:        DefaultMaxChunkSize,
		MetadataPreviewSize: DefaultMetadataPreviewSize,
		Temperature:         DefaultTemperature,
		UseValidation:       true,
		Concurrency:         DefaultConcurrency,
		CreatedAt:           time.Now(),
	}, nil
}

// looksLikeTag reports whether s resembles a BCP 47 tag rather than a plain
// language name ("French"). Tags are short and contain no spaces.
func looksLikeTag(s string) bool {
	return len(s) <= 10 && !strings.Contains(s, " ") && s == strings.ToLower(s)
}

// Validate checks the tunable parameters. Called by the pipeline before any
// stage runs.
func (s *Session) Validate() error {
	if s.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: max chunk size must be positive, got %d", ErrConfiguration, s.MaxChunkSize)
	}
	if s.MetadataPreviewSize <= 0 {
		return fmt.Errorf("%w: metadata preview size must be positive, got %d", ErrConfiguration, s.MetadataPreviewSize)
	}
	if s.MaxNumberOfChunks < 0 {
		return fmt.Errorf("%w: max number of chunks cannot be negative", ErrConfiguration)
	}
	if s.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive, got %d", ErrConfiguration, s.Concurrency)
	}
	return nil
}

// Stage identifies how far a pipeline run has progressed. Transitions are
// strictly forward; Failed is terminal and reachable from any stage.
type Stage string

const (
	StageInitializing  Stage = "initializing"
	StageMetadataReady Stage = "metadata_ready"
	StageChunked       Stage = "chunked"
	StagePromptsBuilt  Stage = "prompts_built"
	StageTranslating   Stage = "translating"
	StageValidating    Stage = "validating"
	StageReassembling  Stage = "reassembling"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

// State is the observable progress record of one run. Counters are updated
// with atomic increments because translation and validation workers run
// concurrently; everything else is written by the single pipeline goroutine.
type State struct {
	stage atomic.Value // Stage

	ChunksCreated        atomic.Int64
	PromptsBuilt         atomic.Int64
	TranslationsComplete atomic.Int64
	ValidationsComplete  atomic.Int64
	ValidationsFellBack  atomic.Int64
	MemoryHits           atomic.Int64

	mu               sync.Mutex
	truncated        bool
	truncatedFrom    int
	fallbackChunks   []int
	languageWarnings []int
	encodeSucceeded  bool
	lastErr          error
}

// NewState returns a State positioned at the initializing stage.
func NewState() *State {
	st := &State{}
	st.stage.Store(StageInitializing)
	return st
}

// Stage returns the current pipeline stage.
func (st *State) Stage() Stage {
	return st.stage.Load().(Stage)
}

// Advance moves the run to the given stage.
func (st *State) Advance(stage Stage) {
	st.stage.Store(stage)
}

// Fail marks the run failed and records the error for diagnostics. The
// counters keep the values reached before the failure.
func (st *State) Fail(err error) {
	st.mu.Lock()
	st.lastErr = err
	st.mu.Unlock()
	st.stage.Store(StageFailed)
}

// LastErr returns the error recorded by Fail, or nil.
func (st *State) LastErr() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastErr
}

// RecordTruncation notes that the chunk list was cut from original to the
// configured maximum. This is intentional policy, not an error.
func (st *State) RecordTruncation(original int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.truncated = true
	st.truncatedFrom = original
}

// Truncated reports whether the chunk list was truncated and, if so, the
// pre-truncation chunk count.
func (st *State) Truncated() (bool, int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.truncated, st.truncatedFrom
}

// RecordFallback notes that chunk index fell back to its raw translated text
// after a validation failure.
func (st *State) RecordFallback(index int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.fallbackChunks = append(st.fallbackChunks, index)
}

// FallbackChunks returns the indices whose validation fell back.
func (st *State) FallbackChunks() []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]int, len(st.fallbackChunks))
	copy(out, st.fallbackChunks)
	return out
}

// RecordLanguageWarning notes that the final content of chunk index did not
// appear to be in the target language. Advisory only.
func (st *State) RecordLanguageWarning(index int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.languageWarnings = append(st.languageWarnings, index)
}

// LanguageWarnings returns the indices flagged by the language check.
func (st *State) LanguageWarnings() []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]int, len(st.languageWarnings))
	copy(out, st.languageWarnings)
	return out
}

// RecordEncodeResult notes whether the format-specific re-encode step
// succeeded. Only meaningful for catalog and ebook sessions.
func (st *State) RecordEncodeResult(ok bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.encodeSucceeded = ok
}

// EncodeSucceeded reports the re-encode outcome.
func (st *State) EncodeSucceeded() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.encodeSucceeded
}

// Snapshot is a plain-value copy of State safe to serialize for status
// queries and the session registry.
type Snapshot struct {
	Stage                Stage  `json:"stage"`
	ChunksCreated        int64  `json:"chunks_created"`
	PromptsBuilt         int64  `json:"prompts_built"`
	TranslationsComplete int64  `json:"translations_complete"`
	ValidationsComplete  int64  `json:"validations_complete"`
	ValidationsFellBack  int64  `json:"validations_fell_back"`
	MemoryHits           int64  `json:"memory_hits"`
	Truncated            bool   `json:"truncated"`
	TruncatedFrom        int    `json:"truncated_from,omitempty"`
	FallbackChunks       []int  `json:"fallback_chunks,omitempty"`
	LanguageWarnings     []int  `json:"language_warnings,omitempty"`
	EncodeSucceeded      bool   `json:"encode_succeeded"`
	LastError            string `json:"last_error,omitempty"`
}

// Snapshot captures the current state as plain values.
func (st *State) Snapshot() Snapshot {
	snap := Snapshot{
		Stage:                st.Stage(),
		ChunksCreated:        st.ChunksCreated.Load(),
		PromptsBuilt:         st.PromptsBuilt.Load(),
		TranslationsComplete: st.TranslationsComplete.Load(),
		ValidationsComplete:  st.ValidationsComplete.Load(),
		ValidationsFellBack:  st.ValidationsFellBack.Load(),
		MemoryHits:           st.MemoryHits.Load(),
		FallbackChunks:       st.FallbackChunks(),
		LanguageWarnings:     st.LanguageWarnings(),
	}
	snap.Truncated, snap.TruncatedFrom = st.Truncated()
	snap.EncodeSucceeded = st.EncodeSucceeded()
	if err := st.LastErr(); err != nil {
		snap.LastError = err.Error()
	}
	return snap
}
