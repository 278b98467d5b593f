// Package pipeline runs the staged translation workflow: decode, metadata
// extraction, chunking, prompt composition, concurrent translation, optional
// validation, and reassembly. Every stage persists its output as artifacts
// before the run advances, so progress is observable from outside and a
// re-run picks up where a crashed one stopped.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valpere/doctran/internal/artifact"
	"github.com/valpere/doctran/internal/chunker"
	"github.com/valpere/doctran/internal/codec"
	"github.com/valpere/doctran/internal/detector"
	"github.com/valpere/doctran/internal/generate"
	"github.com/valpere/doctran/internal/glossary"
	"github.com/valpere/doctran/internal/placeholder"
	"github.com/valpere/doctran/internal/prompt"
	"github.com/valpere/doctran/internal/session"
	"github.com/valpere/doctran/internal/store"
	"github.com/valpere/doctran/internal/validate"
)

// locatorTTL bounds how long artifact URLs handed to the review agent stay
// readable.
const locatorTTL = time.Hour

// Options wires the pipeline's collaborators. Artifacts and Generator are
// required; the rest degrade gracefully when nil.
type Options struct {
	Artifacts artifact.Store
	Generator generate.Generator

	// Validator reviews translated chunks. nil disables validation even when
	// the session requests it.
	Validator validate.Validator

	// Detector backs the advisory language check on final chunks.
	Detector *detector.Detector

	// Registry persists session progress, translation memory, and the user
	// glossary. nil disables all three.
	Registry *store.Store

	Logger *slog.Logger
}

type Pipeline struct {
	artifacts artifact.Store
	codecs    *codec.Registry
	gen       generate.Generator
	validator validate.Validator
	detector  *detector.Detector
	registry  *store.Store
	logger    *slog.Logger
}

// New builds a pipeline from its collaborators.
func New(opts Options) (*Pipeline, error) {
	if opts.Artifacts == nil {
		return nil, fmt.Errorf("%w: artifact store is required", session.ErrConfiguration)
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("%w: generator is required", session.ErrConfiguration)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		artifacts: opts.Artifacts,
		codecs:    codec.NewRegistry(),
		gen:       opts.Generator,
		validator: opts.Validator,
		detector:  opts.Detector,
		registry:  opts.Registry,
		logger:    logger,
	}, nil
}

// Result summarizes a finished run.
type Result struct {
	SessionID string

	// FinalLocator points at the concatenated FINAL_ document.
	FinalLocator string

	// AssembledLocator points at the format-specific re-encoded document.
	// Empty for plain text and when re-encoding degraded.
	AssembledLocator string

	Snapshot session.Snapshot
}

// run carries the per-run working set between stages.
type run struct {
	sess    *session.Session
	state   *session.State
	doc     *codec.Document
	meta    *glossary.Metadata
	chunks  []string
	markers map[int]placeholder.Markers
}

// Run executes the full workflow for one session. data is the raw source
// document; userMeta, when complete, replaces metadata derivation. Fatal
// errors mark the session failed and are returned wrapped in the matching
// error kind.
func (p *Pipeline) Run(ctx context.Context, sess *session.Session, data []byte, userMeta *glossary.Metadata) (*Result, error) {
	st := session.NewState()
	r := &run{sess: sess, state: st, meta: userMeta, markers: make(map[int]placeholder.Markers)}

	result, err := p.execute(ctx, r, data)
	if err != nil {
		st.Fail(err)
		p.saveState(ctx, r)
		p.logger.Error("session failed", "session", sess.ID, "error", err)
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run, data []byte) (*Result, error) {
	sess, st := r.sess, r.state

	if err := sess.Validate(); err != nil {
		return nil, err
	}
	p.saveState(ctx, r)
	p.logger.Info("session started",
		"session", sess.ID,
		"source", sess.SourceFile,
		"target", sess.TargetLanguage,
		"model", sess.Model)

	if err := p.decode(r, data); err != nil {
		return nil, err
	}
	if err := p.prepareMetadata(ctx, r); err != nil {
		return nil, err
	}
	p.advance(ctx, r, session.StageMetadataReady)

	if err := p.chunk(ctx, r); err != nil {
		return nil, err
	}
	p.advance(ctx, r, session.StageChunked)

	if err := p.buildPrompts(ctx, r); err != nil {
		return nil, err
	}
	p.advance(ctx, r, session.StagePromptsBuilt)

	p.advance(ctx, r, session.StageTranslating)
	if err := p.translate(ctx, r); err != nil {
		return nil, err
	}

	if p.validationEnabled(sess) {
		p.advance(ctx, r, session.StageValidating)
	}
	if err := p.finalize(ctx, r); err != nil {
		return nil, err
	}

	p.advance(ctx, r, session.StageReassembling)
	result, err := p.reassemble(ctx, r)
	if err != nil {
		return nil, err
	}

	p.advance(ctx, r, session.StageDone)
	p.logger.Info("session done",
		"session", sess.ID,
		"chunks", st.ChunksCreated.Load(),
		"memory_hits", st.MemoryHits.Load(),
		"fallbacks", st.ValidationsFellBack.Load())
	result.Snapshot = st.Snapshot()
	return result, nil
}

func (p *Pipeline) validationEnabled(sess *session.Session) bool {
	return sess.UseValidation && p.validator != nil
}

// advance moves the state machine forward and mirrors the snapshot into the
// session registry.
func (p *Pipeline) advance(ctx context.Context, r *run, stage session.Stage) {
	r.state.Advance(stage)
	p.saveState(ctx, r)
	p.logger.Info("stage reached", "session", r.sess.ID, "stage", stage)
}

func (p *Pipeline) saveState(ctx context.Context, r *run) {
	if p.registry == nil {
		return
	}
	if err := p.registry.SaveSession(ctx, r.sess, r.state.Snapshot()); err != nil {
		p.logger.Warn("failed to persist session state", "session", r.sess.ID, "error", err)
	}
}

func (p *Pipeline) decode(r *run, data []byte) error {
	format, err := codec.DetectFormat(r.sess.SourceFile)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrConfiguration, err)
	}
	c, err := p.codecs.Get(format)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrConfiguration, err)
	}
	doc, err := c.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrDecode, err)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return fmt.Errorf("%w: document contains no translatable text", session.ErrDecode)
	}
	r.doc = doc
	return nil
}

// prepareMetadata uses the caller-supplied metadata when complete and
// derives it from a document preview otherwise. Either way both artifacts
// are persisted so every downstream prompt references the same state.
func (p *Pipeline) prepareMetadata(ctx context.Context, r *run) error {
	sess := r.sess

	if r.meta == nil || !r.meta.Complete() {
		preview := previewText(r.doc.Text, sess.MetadataPreviewSize)
		meta, err := glossary.Derive(ctx, p.gen, preview, sess.TargetLanguage, sess.Temperature)
		if err != nil {
			return fmt.Errorf("%w: %v", session.ErrGeneration, err)
		}
		r.meta = meta
	}

	if p.registry != nil {
		terms, err := p.registry.GetGlossaryTerms(ctx, sess.TargetLanguage)
		if err != nil {
			p.logger.Warn("failed to load user glossary", "session", sess.ID, "error", err)
		} else if len(terms) > 0 {
			r.meta.Entities = glossary.MergeTerms(r.meta.Entities, terms)
			p.logger.Info("merged user glossary", "session", sess.ID, "terms", len(terms))
		}
	}

	if _, err := p.artifacts.Put(ctx, artifact.EntitiesKey(sess.ID), []byte(r.meta.Entities)); err != nil {
		return fmt.Errorf("storing entity dictionary: %w", err)
	}
	if _, err := p.artifacts.Put(ctx, artifact.StyleKey(sess.ID), []byte(r.meta.Style)); err != nil {
		return fmt.Errorf("storing style instructions: %w", err)
	}
	return nil
}

func (p *Pipeline) chunk(ctx context.Context, r *run) error {
	sess, st := r.sess, r.state

	chunks, err := chunker.Chunk(r.doc.Text, sess.MaxChunkSize)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrChunking, err)
	}
	if sess.MaxNumberOfChunks > 0 && len(chunks) > sess.MaxNumberOfChunks {
		st.RecordTruncation(len(chunks))
		p.logger.Info("chunk list truncated",
			"session", sess.ID,
			"from", len(chunks),
			"to", sess.MaxNumberOfChunks)
		chunks = chunks[:sess.MaxNumberOfChunks]
	}

	for i, chunk := range chunks {
		if _, err := p.artifacts.Put(ctx, artifact.ChunkKey(sess.ID, i+1), []byte(chunk)); err != nil {
			return fmt.Errorf("storing chunk %d: %w", i+1, err)
		}
		st.ChunksCreated.Add(1)
	}
	r.chunks = chunks
	return nil
}

func (p *Pipeline) buildPrompts(ctx context.Context, r *run) error {
	sess, st := r.sess, r.state
	typeInstruction := prompt.TypeInstruction(r.doc.Format)

	for i, chunk := range r.chunks {
		index := i + 1
		text := chunk

		if sess.ProtectMarkup && r.doc.Format == codec.FormatEbook {
			protected, markers := placeholder.Protect(text)
			if len(markers) > 0 {
				text = protected
				r.markers[index] = markers
				blob, err := json.Marshal(markers)
				if err != nil {
					return fmt.Errorf("encoding markers for chunk %d: %w", index, err)
				}
				if _, err := p.artifacts.Put(ctx, artifact.MarkerKey(sess.ID, index), blob); err != nil {
					return fmt.Errorf("storing markers for chunk %d: %w", index, err)
				}
			}
		}

		instruction := typeInstruction
		if len(r.markers[index]) > 0 {
			instruction += "\n" + placeholder.Hint()
		}

		composed := prompt.Translation(prompt.TranslationData{
			ChunkNum:        index,
			TotalChunks:     len(r.chunks),
			TargetLanguage:  sess.TargetLanguage,
			TypeInstruction: instruction,
			Entities:        r.meta.Entities,
			Style:           r.meta.Style,
			Chunk:           text,
		})
		if _, err := p.artifacts.Put(ctx, artifact.PromptKey(sess.ID, index), []byte(composed)); err != nil {
			return fmt.Errorf("storing prompt %d: %w", index, err)
		}
		st.PromptsBuilt.Add(1)
	}
	return nil
}

// translate fans chunk generation out over Concurrency workers. Chunks that
// already have a translated artifact (a resumed run) or a translation memory
// hit skip generation. Any generation error aborts the whole run.
func (p *Pipeline) translate(ctx context.Context, r *run) error {
	sess, st := r.sess, r.state

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sess.Concurrency)

	for i := range r.chunks {
		index := i + 1
		chunk := r.chunks[i]
		g.Go(func() error {
			key := artifact.TranslatedKey(sess.ID, index)
			if ok, err := p.artifacts.Exists(gctx, key); err == nil && ok {
				p.logger.Info("translation exists, skipping", "session", sess.ID, "chunk", index)
				st.TranslationsComplete.Add(1)
				return nil
			}

			if p.registry != nil {
				remembered, hit, err := p.registry.GetMemory(gctx, chunk, sess.TargetLanguage)
				if err != nil {
					p.logger.Warn("memory lookup failed", "session", sess.ID, "chunk", index, "error", err)
				} else if hit {
					if _, err := p.artifacts.Put(gctx, key, []byte(remembered)); err != nil {
						return fmt.Errorf("storing remembered translation %d: %w", index, err)
					}
					st.MemoryHits.Add(1)
					st.TranslationsComplete.Add(1)
					return nil
				}
			}

			promptText, err := p.artifacts.Get(gctx, artifact.PromptKey(sess.ID, index))
			if err != nil {
				return fmt.Errorf("loading prompt %d: %w", index, err)
			}

			translated, err := p.gen.Generate(gctx, string(promptText), sess.Temperature)
			if err != nil {
				return fmt.Errorf("%w: chunk %d: %v", session.ErrGeneration, index, err)
			}
			if markers := r.markers[index]; len(markers) > 0 {
				if missing := placeholder.Missing(translated, markers); len(missing) > 0 {
					p.logger.Warn("markers dropped by model",
						"session", sess.ID, "chunk", index, "missing", len(missing))
				}
				translated = placeholder.Restore(translated, markers)
			}

			if _, err := p.artifacts.Put(gctx, key, []byte(translated)); err != nil {
				return fmt.Errorf("storing translation %d: %w", index, err)
			}
			if p.registry != nil {
				if err := p.registry.SaveMemory(gctx, chunk, sess.TargetLanguage, translated, sess.Model); err != nil {
					p.logger.Warn("memory save failed", "session", sess.ID, "chunk", index, "error", err)
				}
			}
			st.TranslationsComplete.Add(1)
			p.logger.Info("chunk translated", "session", sess.ID, "chunk", index, "total", len(r.chunks))
			return nil
		})
	}
	return g.Wait()
}

// finalize produces the final_translated_chunk artifacts. With validation
// enabled each chunk is reviewed by the agent; a failed review falls back to
// the raw translation and the run continues. Without validation the raw
// translation is promoted as-is, so reassembly reads one uniform prefix
// either way.
func (p *Pipeline) finalize(ctx context.Context, r *run) error {
	sess, st := r.sess, r.state
	validating := p.validationEnabled(sess)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sess.Concurrency)

	for i := range r.chunks {
		index := i + 1
		g.Go(func() error {
			finalKey := artifact.FinalKey(sess.ID, index)
			if ok, err := p.artifacts.Exists(gctx, finalKey); err == nil && ok {
				if validating {
					st.ValidationsComplete.Add(1)
				}
				return nil
			}

			raw, err := p.artifacts.Get(gctx, artifact.TranslatedKey(sess.ID, index))
			if err != nil {
				return fmt.Errorf("loading translation %d: %w", index, err)
			}
			final := string(raw)

			if validating {
				reviewed, err := p.reviewChunk(gctx, sess, index)
				if err != nil {
					p.logger.Warn("validation failed, falling back to raw translation",
						"session", sess.ID, "chunk", index, "error", err)
					st.RecordFallback(index)
					st.ValidationsFellBack.Add(1)
				} else {
					final = reviewed
					st.ValidationsComplete.Add(1)
				}
			}

			if p.detector != nil && !p.detector.MatchesTarget(final, sess.TargetLanguage) {
				p.logger.Warn("final chunk may not be in target language",
					"session", sess.ID, "chunk", index, "target", sess.TargetLanguage)
				st.RecordLanguageWarning(index)
			}

			if _, err := p.artifacts.Put(gctx, finalKey, []byte(final)); err != nil {
				return fmt.Errorf("storing final chunk %d: %w", index, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) reviewChunk(ctx context.Context, sess *session.Session, index int) (string, error) {
	promptLoc, err := p.artifacts.SignedURL(ctx, artifact.PromptKey(sess.ID, index), locatorTTL)
	if err != nil {
		return "", fmt.Errorf("signing prompt locator: %w", err)
	}
	translatedLoc, err := p.artifacts.SignedURL(ctx, artifact.TranslatedKey(sess.ID, index), locatorTTL)
	if err != nil {
		return "", fmt.Errorf("signing translation locator: %w", err)
	}
	return p.validator.Validate(ctx, promptLoc, translatedLoc)
}

// reassemble concatenates the final chunks into the FINAL_ document and,
// for structured formats, re-encodes it into the source format. A failed
// re-encode degrades: the concatenated document remains the deliverable.
func (p *Pipeline) reassemble(ctx context.Context, r *run) (*Result, error) {
	sess, st := r.sess, r.state

	keys, err := p.artifacts.List(ctx, artifact.FinalsPrefix(sess.ID))
	if err != nil {
		return nil, fmt.Errorf("%w: listing final chunks: %v", session.ErrReassembly, err)
	}
	if len(keys) != len(r.chunks) {
		return nil, fmt.Errorf("%w: expected %d final chunks, found %d",
			session.ErrReassembly, len(r.chunks), len(keys))
	}

	var sb strings.Builder
	for _, key := range keys {
		content, err := p.artifacts.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", session.ErrReassembly, key, err)
		}
		sb.Write(content)
	}
	finalText := sb.String()

	basename := filepath.Base(sess.SourceFile)
	finalLocator, err := p.artifacts.Put(ctx, artifact.FinalDocumentKey(sess.ID, basename), []byte(finalText))
	if err != nil {
		return nil, fmt.Errorf("%w: storing final document: %v", session.ErrReassembly, err)
	}

	result := &Result{SessionID: sess.ID, FinalLocator: finalLocator}

	if !codec.NeedsStructuralEncode(r.doc.Format) {
		st.RecordEncodeResult(true)
		return result, nil
	}

	c, err := p.codecs.Get(r.doc.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrReassembly, err)
	}
	encoded, err := c.Encode(finalText, r.doc)
	if err != nil {
		// The concatenated FINAL_ document still stands; record the
		// degradation and move on.
		p.logger.Warn("format re-encode failed, delivering concatenated text only",
			"session", sess.ID, "format", r.doc.Format, "error", err)
		st.RecordEncodeResult(false)
		return result, nil
	}
	assembledName := basename
	if r.doc.Format == codec.FormatEbook {
		// Ebook re-encode yields flat text, not a rebuilt container.
		assembledName = strings.TrimSuffix(basename, filepath.Ext(basename)) + ".txt"
	}
	assembledLocator, err := p.artifacts.Put(ctx, artifact.AssembledKey(sess.ID, assembledName), encoded)
	if err != nil {
		p.logger.Warn("storing assembled document failed",
			"session", sess.ID, "error", err)
		st.RecordEncodeResult(false)
		return result, nil
	}
	st.RecordEncodeResult(true)
	result.AssembledLocator = assembledLocator
	return result, nil
}

// previewText returns the first limit runes of text.
func previewText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
