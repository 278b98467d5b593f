package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/valpere/doctran/internal/artifact"
	"github.com/valpere/doctran/internal/glossary"
	"github.com/valpere/doctran/internal/session"
	"github.com/valpere/doctran/internal/store"
)

// echoGenerator answers metadata prompts with canned text and translation
// prompts by echoing the source chunk back, which keeps the pipeline's
// persistence behavior fully observable.
type echoGenerator struct {
	calls     atomic.Int64
	transform func(chunk string) string
	err       error
}

func (g *echoGenerator) Name() string { return "echo" }

func (g *echoGenerator) Generate(_ context.Context, promptText string, _ float64) (string, error) {
	g.calls.Add(1)
	if g.err != nil {
		return "", g.err
	}
	switch {
	case strings.Contains(promptText, "extract all critical entities"):
		return `{"Widget": {"context": "product", "suggested_translation": "Віджет"}}`, nil
	case strings.Contains(promptText, "generate a comprehensive style guide"):
		return "Neutral, technical tone.", nil
	}
	chunk := sourceChunk(promptText)
	if g.transform != nil {
		return g.transform(chunk), nil
	}
	return chunk, nil
}

// sourceChunk pulls the chunk text out of a composed translation prompt.
func sourceChunk(promptText string) string {
	start := strings.Index(promptText, "---\n")
	end := strings.LastIndex(promptText, "\n---")
	if start < 0 || end < 0 || end <= start {
		return promptText
	}
	return promptText[start+len("---\n") : end]
}

type fakeValidator struct {
	calls  atomic.Int64
	review func(index int64) (string, error)
}

func (v *fakeValidator) Validate(_ context.Context, _, _ string) (string, error) {
	n := v.calls.Add(1)
	return v.review(n)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newSession(t *testing.T, sourceFile string) *session.Session {
	t.Helper()
	sess, err := session.New(sourceFile, "uk")
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return sess
}

func TestRun_PlainDocument(t *testing.T) {
	ctx := context.Background()
	artifacts := artifact.NewMemStore()
	gen := &echoGenerator{}

	p, err := New(Options{Artifacts: artifacts, Generator: gen, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("creating pipeline: %v", err)
	}

	sess := newSession(t, "/docs/story.txt")
	sess.MaxChunkSize = 40
	sess.UseValidation = false

	text := "First paragraph of the story.\n\nSecond paragraph, a bit longer than the first one.\n\nThird."
	result, err := p.Run(ctx, sess, []byte(text), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Snapshot.Stage != session.StageDone {
		t.Errorf("expected done stage, got %s", result.Snapshot.Stage)
	}
	if result.AssembledLocator != "" {
		t.Errorf("plain documents should not produce an assembled artifact")
	}
	if !result.Snapshot.EncodeSucceeded {
		t.Error("plain reassembly should report encode success")
	}

	// Metadata artifacts persisted.
	entities, err := artifacts.Get(ctx, artifact.EntitiesKey(sess.ID))
	if err != nil {
		t.Fatalf("entity artifact missing: %v", err)
	}
	if !strings.Contains(string(entities), "Віджет") {
		t.Errorf("unexpected entity artifact: %s", entities)
	}
	if _, err := artifacts.Get(ctx, artifact.StyleKey(sess.ID)); err != nil {
		t.Fatalf("style artifact missing: %v", err)
	}

	// Chunk, prompt, translated, and final artifacts line up per chunk.
	n := int(result.Snapshot.ChunksCreated)
	if n < 2 {
		t.Fatalf("expected multiple chunks for maxSize 40, got %d", n)
	}
	if result.Snapshot.PromptsBuilt != int64(n) || result.Snapshot.TranslationsComplete != int64(n) {
		t.Errorf("counters out of step: %+v", result.Snapshot)
	}
	for i := 1; i <= n; i++ {
		for _, key := range []string{
			artifact.ChunkKey(sess.ID, i),
			artifact.PromptKey(sess.ID, i),
			artifact.TranslatedKey(sess.ID, i),
			artifact.FinalKey(sess.ID, i),
		} {
			if ok, _ := artifacts.Exists(ctx, key); !ok {
				t.Errorf("missing artifact %s", key)
			}
		}
	}

	// The echo generator returns each chunk unchanged, so the concatenated
	// final document reproduces the source text.
	final, err := artifacts.Get(ctx, artifact.FinalDocumentKey(sess.ID, "story.txt"))
	if err != nil {
		t.Fatalf("final document missing: %v", err)
	}
	for _, want := range []string{"First paragraph", "Second paragraph", "Third."} {
		if !strings.Contains(string(final), want) {
			t.Errorf("final document missing %q:\n%s", want, final)
		}
	}
}

func TestRun_SuppliedMetadataSkipsDerivation(t *testing.T) {
	artifacts := artifact.NewMemStore()
	gen := &echoGenerator{}
	p, _ := New(Options{Artifacts: artifacts, Generator: gen, Logger: quietLogger()})

	sess := newSession(t, "note.txt")
	sess.UseValidation = false
	meta := &glossary.Metadata{Entities: `{"A": {"context": "", "suggested_translation": "Б"}}`, Style: "Casual."}

	if _, err := p.Run(context.Background(), sess, []byte("Short note."), meta); err != nil {
		t.Fatalf("run: %v", err)
	}

	// One chunk means exactly one generation call; metadata came from the
	// caller.
	if got := gen.calls.Load(); got != 1 {
		t.Errorf("expected 1 generation call, got %d", got)
	}
	stored, _ := artifacts.Get(context.Background(), artifact.StyleKey(sess.ID))
	if string(stored) != "Casual." {
		t.Errorf("supplied style not persisted: %q", stored)
	}
}

func TestRun_GenerationFailureIsFatal(t *testing.T) {
	artifacts := artifact.NewMemStore()
	gen := &echoGenerator{err: errors.New("quota exhausted")}
	p, _ := New(Options{Artifacts: artifacts, Generator: gen, Logger: quietLogger()})

	sess := newSession(t, "note.txt")
	_, err := p.Run(context.Background(), sess, []byte("Some text."), nil)
	if err == nil {
		t.Fatal("expected run to fail")
	}
	if !errors.Is(err, session.ErrGeneration) {
		t.Errorf("expected generation error kind, got %v", err)
	}
}

func TestRun_ChunkGenerationFailureIsFatal(t *testing.T) {
	artifacts := artifact.NewMemStore()
	gen := &echoGenerator{}
	p, _ := New(Options{Artifacts: artifacts, Generator: gen, Logger: quietLogger()})

	sess := newSession(t, "note.txt")
	sess.UseValidation = false
	meta := &glossary.Metadata{Entities: "{}", Style: "Neutral."}

	// Metadata is supplied, so the first generation call is a chunk.
	gen.err = errors.New("backend down")
	_, err := p.Run(context.Background(), sess, []byte("Some text."), meta)
	if !errors.Is(err, session.ErrGeneration) {
		t.Errorf("expected generation error kind, got %v", err)
	}
}

func TestRun_ValidationReviewsChunks(t *testing.T) {
	ctx := context.Background()
	artifacts := artifact.NewMemStore()
	gen := &echoGenerator{}
	val := &fakeValidator{review: func(int64) (string, error) { return "reviewed text", nil }}
	p, _ := New(Options{Artifacts: artifacts, Generator: gen, Validator: val, Logger: quietLogger()})

	sess := newSession(t, "note.txt")
	result, err := p.Run(ctx, sess, []byte("A single small chunk."), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Snapshot.ValidationsComplete != 1 {
		t.Errorf("expected 1 validation, got %+v", result.Snapshot)
	}
	final, _ := artifacts.Get(ctx, artifact.FinalKey(sess.ID, 1))
	if string(final) != "reviewed text" {
		t.Errorf("final chunk should hold reviewed text, got %q", final)
	}
}

func TestRun_ValidationFailureFallsBackPerChunk(t *testing.T) {
	ctx := context.Background()
	artifacts := artifact.NewMemStore()
	gen := &echoGenerator{}
	val := &fakeValidator{review: func(int64) (string, error) { return "", errors.New("agent offline") }}
	p, _ := New(Options{Artifacts: artifacts, Generator: gen, Validator: val, Logger: quietLogger()})

	sess := newSession(t, "note.txt")
	result, err := p.Run(ctx, sess, []byte("A single small chunk."), nil)
	if err != nil {
		t.Fatalf("validation failure must not abort the run: %v", err)
	}

	if result.Snapshot.ValidationsFellBack != 1 {
		t.Errorf("expected 1 fallback, got %+v", result.Snapshot)
	}
	if len(result.Snapshot.FallbackChunks) != 1 || result.Snapshot.FallbackChunks[0] != 1 {
		t.Errorf("expected chunk 1 recorded as fallback, got %v", result.Snapshot.FallbackChunks)
	}
	// Fallback promotes the raw translation.
	raw, _ := artifacts.Get(ctx, artifact.TranslatedKey(sess.ID, 1))
	final, _ := artifacts.Get(ctx, artifact.FinalKey(sess.ID, 1))
	if string(final) != string(raw) {
		t.Errorf("final should equal raw translation, got %q vs %q", final, raw)
	}
}

func TestRun_TruncatesChunkList(t *testing.T) {
	artifacts := artifact.NewMemStore()
	gen := &echoGenerator{}
	p, _ := New(Options{Artifacts: artifacts, Generator: gen, Logger: quietLogger()})

	sess := newSession(t, "long.txt")
	sess.UseValidation = false
	sess.MaxChunkSize = 30
	sess.MaxNumberOfChunks = 2

	text := strings.Repeat("Sentence one here. ", 20)
	result, err := p.Run(context.Background(), sess, []byte(text), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Snapshot.ChunksCreated != 2 {
		t.Errorf("expected 2 chunks after truncation, got %d", result.Snapshot.ChunksCreated)
	}
	if !result.Snapshot.Truncated || result.Snapshot.TruncatedFrom <= 2 {
		t.Errorf("truncation not recorded: %+v", result.Snapshot)
	}
}

func TestRun_ResumeSkipsExistingTranslations(t *testing.T) {
	ctx := context.Background()
	artifacts := artifact.NewMemStore()
	gen := &echoGenerator{}
	p, _ := New(Options{Artifacts: artifacts, Generator: gen, Logger: quietLogger()})

	sess := newSession(t, "note.txt")
	sess.UseValidation = false
	meta := &glossary.Metadata{Entities: "{}", Style: "Neutral."}

	// Simulate a previous run that already translated chunk 1.
	if _, err := artifacts.Put(ctx, artifact.TranslatedKey(sess.ID, 1), []byte("already translated")); err != nil {
		t.Fatalf("seeding artifact: %v", err)
	}

	result, err := p.Run(ctx, sess, []byte("A single small chunk."), meta)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := gen.calls.Load(); got != 0 {
		t.Errorf("expected no generation calls on resume, got %d", got)
	}
	final, _ := artifacts.Get(ctx, artifact.FinalDocumentKey(sess.ID, "note.txt"))
	if string(final) != "already translated" {
		t.Errorf("resume should reuse the existing translation, got %q", final)
	}
	_ = result
}

func TestRun_MemoryHitSkipsGeneration(t *testing.T) {
	ctx := context.Background()
	registry, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating registry: %v", err)
	}
	defer registry.Close()

	meta := &glossary.Metadata{Entities: "{}", Style: "Neutral."}
	text := "A single small chunk."

	first := &echoGenerator{}
	p1, _ := New(Options{Artifacts: artifact.NewMemStore(), Generator: first, Registry: registry, Logger: quietLogger()})
	sessA := newSession(t, "a.txt")
	sessA.UseValidation = false
	if _, err := p1.Run(ctx, sessA, []byte(text), meta); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.calls.Load() != 1 {
		t.Fatalf("expected 1 generation call in first run, got %d", first.calls.Load())
	}

	// Second session, same content: the memory answers instead of the model.
	second := &echoGenerator{}
	p2, _ := New(Options{Artifacts: artifact.NewMemStore(), Generator: second, Registry: registry, Logger: quietLogger()})
	sessB := newSession(t, "b.txt")
	sessB.UseValidation = false
	result, err := p2.Run(ctx, sessB, []byte(text), meta)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.calls.Load() != 0 {
		t.Errorf("expected 0 generation calls on memory hit, got %d", second.calls.Load())
	}
	if result.Snapshot.MemoryHits != 1 {
		t.Errorf("expected 1 memory hit, got %+v", result.Snapshot)
	}
}

func TestRun_SessionRegistryTracksProgress(t *testing.T) {
	ctx := context.Background()
	registry, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating registry: %v", err)
	}
	defer registry.Close()

	p, _ := New(Options{Artifacts: artifact.NewMemStore(), Generator: &echoGenerator{}, Registry: registry, Logger: quietLogger()})
	sess := newSession(t, "note.txt")
	sess.UseValidation = false

	if _, err := p.Run(ctx, sess, []byte("A single small chunk."), nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	rec, err := registry.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("registry lookup: %v", err)
	}
	if rec.Stage != session.StageDone {
		t.Errorf("registry should show done stage, got %s", rec.Stage)
	}
	if rec.Snapshot.TranslationsComplete != 1 {
		t.Errorf("registry snapshot stale: %+v", rec.Snapshot)
	}
}

func TestRun_FailureRecordedInRegistry(t *testing.T) {
	ctx := context.Background()
	registry, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating registry: %v", err)
	}
	defer registry.Close()

	gen := &echoGenerator{err: errors.New("boom")}
	p, _ := New(Options{Artifacts: artifact.NewMemStore(), Generator: gen, Registry: registry, Logger: quietLogger()})
	sess := newSession(t, "note.txt")

	if _, err := p.Run(ctx, sess, []byte("text"), nil); err == nil {
		t.Fatal("expected failure")
	}
	rec, err := registry.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("registry lookup: %v", err)
	}
	if rec.Stage != session.StageFailed {
		t.Errorf("expected failed stage in registry, got %s", rec.Stage)
	}
	if rec.Snapshot.LastError == "" {
		t.Error("expected last error recorded")
	}
}

func TestRun_UnsupportedExtension(t *testing.T) {
	p, _ := New(Options{Artifacts: artifact.NewMemStore(), Generator: &echoGenerator{}, Logger: quietLogger()})
	sess := newSession(t, "doc.pdf")
	_, err := p.Run(context.Background(), sess, []byte("x"), nil)
	if !errors.Is(err, session.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestRun_EmptyDocument(t *testing.T) {
	p, _ := New(Options{Artifacts: artifact.NewMemStore(), Generator: &echoGenerator{}, Logger: quietLogger()})
	sess := newSession(t, "empty.txt")
	_, err := p.Run(context.Background(), sess, []byte("   \n\n  "), nil)
	if !errors.Is(err, session.ErrDecode) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestRun_CatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	artifacts := artifact.NewMemStore()
	// Fill every untranslated slot so reassembly can fold translations back
	// into the catalog.
	gen := &echoGenerator{transform: func(chunk string) string {
		return strings.ReplaceAll(chunk, "(not translated)", "Перекладено")
	}}
	p, _ := New(Options{Artifacts: artifacts, Generator: gen, Logger: quietLogger()})

	po := `msgid ""
msgstr ""
"Project-Id-Version: demo\n"

msgid "Hello"
msgstr ""

msgid "Goodbye"
msgstr ""
`
	sess := newSession(t, "demo.po")
	sess.UseValidation = false

	result, err := p.Run(ctx, sess, []byte(po), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.AssembledLocator == "" {
		t.Fatal("expected assembled catalog artifact")
	}
	if !result.Snapshot.EncodeSucceeded {
		t.Error("expected encode success")
	}

	assembled, err := artifacts.Get(ctx, artifact.AssembledKey(sess.ID, "demo.po"))
	if err != nil {
		t.Fatalf("assembled artifact missing: %v", err)
	}
	got := string(assembled)
	if !strings.Contains(got, `msgid "Hello"`) || !strings.Contains(got, `msgstr "Перекладено"`) {
		t.Errorf("assembled catalog missing folded translation:\n%s", got)
	}
}

func TestRun_EbookProtectMarkup(t *testing.T) {
	ctx := context.Background()
	artifacts := artifact.NewMemStore()
	// The echo generator returns the protected chunk text with its [PHn]
	// markers intact; Restore must bring the tags back.
	gen := &echoGenerator{}
	p, _ := New(Options{Artifacts: artifacts, Generator: gen, Logger: quietLogger()})

	epub := buildEPUB(t, "<p>Hello <em>world</em></p>")

	sess := newSession(t, "book.epub")
	sess.UseValidation = false
	sess.ProtectMarkup = true

	result, err := p.Run(ctx, sess, epub, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// The prompt must carry markers instead of tags.
	promptText, _ := artifacts.Get(ctx, artifact.PromptKey(sess.ID, 1))
	if strings.Contains(string(promptText), "<em>") {
		t.Error("prompt should not contain raw tags when protection is on")
	}
	if !strings.Contains(string(promptText), "[PH") {
		t.Error("prompt should contain placeholder markers")
	}
	if ok, _ := artifacts.Exists(ctx, artifact.MarkerKey(sess.ID, 1)); !ok {
		t.Error("marker table artifact missing")
	}

	// Restored tags must be back in the final document.
	final, _ := artifacts.Get(ctx, artifact.FinalDocumentKey(sess.ID, "book.epub"))
	if !strings.Contains(string(final), "<em>") {
		t.Errorf("final document should restore tags, got:\n%s", final)
	}
	_ = result
}

func TestSourceChunk(t *testing.T) {
	composed := "## 4. Source Content\n---\nthe chunk body\n---\n\n**Output:** x"
	if got := sourceChunk(composed); got != "the chunk body" {
		t.Errorf("unexpected extraction: %q", got)
	}
}

// buildEPUB assembles a minimal one-chapter EPUB holding body markup.
func buildEPUB(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	add := func(name, content string) {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}

	add("META-INF/container.xml", `<?xml version="1.0"?>
<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`)
	add("OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:creator>An Author</dc:creator>
  </metadata>
  <manifest><item id="c1" href="ch1.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine><itemref idref="c1"/></spine>
</package>`)
	add("OEBPS/ch1.xhtml", `<?xml version="1.0"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>x</title></head>
<body>`+body+`</body></html>`)

	if err := w.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}
